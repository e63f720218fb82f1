package source

import (
	"context"

	"golddash/internal/market"
)

// Source fetches one quantity from one upstream. Implementations perform
// network I/O only: no retries (the aggregator owns retry policy) and no
// cache writes.
type Source interface {
	Quantity() market.Quantity
	Name() string
	Fetch(ctx context.Context) (market.Observation, error)
}
