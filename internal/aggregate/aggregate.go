// Package aggregate orchestrates the per-quantity fetchers and the cache
// store into one consistent snapshot. Its contract to callers: a complete
// snapshot every cycle, degraded entries instead of errors, never a crash.
package aggregate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"golddash/internal/market"
	"golddash/internal/source"
	"golddash/internal/store"
)

type Options struct {
	// TTL is the age under which a cached observation is served without
	// touching the network at all. Zero means the cache never satisfies a
	// refresh; every cycle fetches live.
	TTL time.Duration
	// Retries is how many extra attempts a network failure gets. Structural
	// and format failures are never retried within a cycle.
	Retries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	// FetchTimeout bounds one fetch attempt, so a hanging upstream fails
	// alone without delaying the other quantities.
	FetchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL < 0 {
		o.TTL = 0
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	return o
}

type Aggregator struct {
	sources []source.Source
	store   store.Store
	opts    Options

	// sf coalesces overlapping refreshes of the same quantity so two
	// concurrent cycles share one upstream fetch.
	sf singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// New wires the aggregator with its collaborators. The store is injected
// so tests can substitute an in-memory one.
func New(sources []source.Source, st store.Store, opts Options) *Aggregator {
	return &Aggregator{
		sources: sources,
		store:   st,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// RefreshAll refreshes every quantity concurrently and assembles one
// snapshot. Each quantity is evaluated independently: one source hanging
// or failing never delays or degrades another. It never returns an error.
func (a *Aggregator) RefreshAll(ctx context.Context) market.Snapshot {
	entries := make(map[market.Quantity]market.Entry, len(a.sources))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, src := range a.sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			entry := a.refreshOne(ctx, src)
			mu.Lock()
			entries[src.Quantity()] = entry
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	// Consumers handle every quantity key uniformly, so keys without a
	// wired source still appear, as Unavailable.
	for _, q := range market.AllQuantities() {
		if _, ok := entries[q]; !ok {
			entries[q] = market.Entry{Unavailable: true}
		}
	}

	return market.Snapshot{TakenAt: a.now().UTC(), Entries: entries}
}

// refreshOne applies the cache-or-refresh policy for one quantity.
func (a *Aggregator) refreshOne(ctx context.Context, src source.Source) market.Entry {
	now := a.now()

	// Within TTL the cached value is still authoritative; skip the network.
	// A zero TTL never short-circuits; every refresh fetches live.
	if a.opts.TTL > 0 {
		if cached, ok := a.store.Get(ctx, src.Quantity()); ok && store.Fresh(cached, now, a.opts.TTL) {
			return entryFor(cached, now)
		}
	}

	v, err, _ := a.sf.Do(string(src.Quantity()), func() (any, error) {
		return a.fetchWithRetry(ctx, src)
	})
	if err == nil {
		obs := v.(market.Observation)
		// Best-effort persistence: a failed write costs durability across
		// restarts, not this cycle's snapshot.
		_ = a.store.Put(ctx, obs)
		return entryFor(obs, a.now())
	}

	// Serve stale rather than fail. Only a key that has never succeeded
	// reports Unavailable.
	if cached, ok := a.store.Get(ctx, src.Quantity()); ok {
		return entryFor(cached, a.now())
	}
	return market.Entry{Unavailable: true}
}

// fetchWithRetry runs one fetch plus up to Retries repeats, backing off
// exponentially, and only for failures another attempt could fix.
func (a *Aggregator) fetchWithRetry(ctx context.Context, src source.Source) (market.Observation, error) {
	var lastErr error
	backoff := a.opts.Backoff
	for attempt := 0; attempt <= a.opts.Retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return market.Observation{}, ctx.Err()
			case <-t.C:
			}
			backoff *= 2
		}

		fetchCtx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
		obs, err := src.Fetch(fetchCtx)
		cancel()
		if err == nil {
			if verr := validate(obs, src.Quantity()); verr != nil {
				// An invariant violation is a bug in the source, not an
				// operating condition; reject it like a format failure.
				return market.Observation{}, verr
			}
			return obs, nil
		}
		lastErr = err
		if !market.Retryable(err) {
			break
		}
	}
	return market.Observation{}, lastErr
}

func validate(obs market.Observation, want market.Quantity) error {
	if obs.Quantity != want || obs.Value.Sign() < 0 || obs.ObservedAt.IsZero() {
		return &market.ExtractionError{Source: obs.Source, Reason: "invalid observation"}
	}
	return nil
}

func entryFor(obs market.Observation, now time.Time) market.Entry {
	o := obs
	return market.Entry{Observation: &o, Freshness: obs.Freshness(now)}
}
