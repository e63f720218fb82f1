package market

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transport failure or non-success status. It is the
// only failure class worth retrying within a cycle.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ExtractionError means the expected structural anchor was absent from an
// otherwise successful response. Upstream markup changes land here.
type ExtractionError struct {
	Source string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s: %s", e.Source, e.Reason)
}

// Retryable reports whether another attempt in the same cycle could
// plausibly succeed. Structural and format problems will not.
func Retryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
