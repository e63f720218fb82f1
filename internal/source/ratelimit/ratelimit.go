package ratelimit

import (
	"context"
	"sync"
	"time"

	"golddash/internal/market"
	"golddash/internal/source"
)

// MinInterval wraps a source and enforces a minimum time between calls to
// its upstream. Scraped sites tolerate one request per cycle; this keeps a
// tight refresh loop from hammering them. Concurrent calls wait until the
// interval has elapsed since the last call, or return early if the context
// is canceled.
type MinInterval struct {
	S        source.Source
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Quantity() market.Quantity { return m.S.Quantity() }

func (m *MinInterval) Name() string { return m.S.Name() }

func (m *MinInterval) Fetch(ctx context.Context) (market.Observation, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		m.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return market.Observation{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	obs, err := m.S.Fetch(ctx)
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
	return obs, err
}
