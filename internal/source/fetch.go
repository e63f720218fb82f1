package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golddash/internal/httpx"
	"golddash/internal/market"
)

// maxBody caps how much of an upstream page is read. The scraped pages are
// well under this; anything larger is not the page we expect.
const maxBody = 4 << 20

// FetchText issues one request and returns the payload as text. Transport
// failures, timeouts, and non-2xx statuses all come back as
// *market.NetworkError so the aggregator can tell them apart from
// structural problems.
func FetchText(ctx context.Context, c *httpx.Client, method, rawURL string, headers map[string]string, form url.Values) (string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return "", &market.NetworkError{URL: rawURL, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", &market.NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &market.NetworkError{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", &market.NetworkError{URL: rawURL, Err: err}
	}
	return string(b), nil
}

// Lines splits a payload into trimmed, non-empty lines. The extractors
// scan this flattened form instead of walking markup, which survives
// upstream layout churn better than selector paths.
func Lines(payload string) []string {
	raw := strings.Split(payload, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}
