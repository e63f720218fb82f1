package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golddash/internal/market"
	"golddash/internal/source"
	"golddash/internal/store"
)

type fakeSource struct {
	q     market.Quantity
	calls atomic.Int32
	fetch func(ctx context.Context, call int32) (market.Observation, error)
}

func (f *fakeSource) Quantity() market.Quantity { return f.q }
func (f *fakeSource) Name() string              { return "fake:" + string(f.q) }
func (f *fakeSource) Fetch(ctx context.Context) (market.Observation, error) {
	return f.fetch(ctx, f.calls.Add(1))
}

func obsAt(t *testing.T, q market.Quantity, value string, at time.Time) market.Observation {
	t.Helper()
	obs, err := market.NewObservation(q, decimal.RequireFromString(value), nil, "VND", "fake", at)
	if err != nil {
		t.Fatalf("observation: %v", err)
	}
	return obs
}

func okSource(t *testing.T, q market.Quantity, value string) *fakeSource {
	return &fakeSource{q: q, fetch: func(context.Context, int32) (market.Observation, error) {
		return obsAt(t, q, value, time.Now()), nil
	}}
}

func failSource(q market.Quantity, err error) *fakeSource {
	return &fakeSource{q: q, fetch: func(context.Context, int32) (market.Observation, error) {
		return market.Observation{}, err
	}}
}

func netErr() error {
	return &market.NetworkError{URL: "http://example.com", Err: errors.New("connection refused")}
}

func TestRefreshAll_SuccessIsCachedAndFresh(t *testing.T) {
	st := store.NewMemory()
	src := okSource(t, market.Gold, "84500000")
	agg := New([]source.Source{src}, st, Options{Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	e := snap.Entries[market.Gold]
	if e.Unavailable || e.Observation == nil {
		t.Fatalf("want observation, got %+v", e)
	}
	if e.Freshness != market.Fresh {
		t.Fatalf("want fresh, got %s", e.Freshness)
	}
	cached, ok := st.Get(context.Background(), market.Gold)
	if !ok || !cached.Value.Equal(e.Observation.Value) {
		t.Fatalf("observation not cached: ok=%v", ok)
	}
}

func TestRefreshAll_StaleFallback_NeverUnavailable(t *testing.T) {
	st := store.NewMemory()
	old := obsAt(t, market.Gold, "83000000", time.Now().Add(-20*time.Minute))
	if err := st.Put(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	src := failSource(market.Gold, netErr())
	agg := New([]source.Source{src}, st, Options{Retries: 2, Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	e := snap.Entries[market.Gold]
	if e.Unavailable {
		t.Fatal("cached value exists; entry must not be unavailable")
	}
	if !e.Observation.Value.Equal(old.Value) {
		t.Fatalf("want cached value %s, got %s", old.Value, e.Observation.Value)
	}
	if e.Freshness != market.Stale {
		t.Fatalf("20 minute old data must be tagged stale, got %s", e.Freshness)
	}
	if got := src.calls.Load(); got != 3 {
		t.Fatalf("want 1+2 attempts on network errors, got %d", got)
	}
}

func TestRefreshAll_NoCache_Unavailable_OthersUnaffected(t *testing.T) {
	st := store.NewMemory()
	bad := failSource(market.UsdVnd, netErr())
	good := okSource(t, market.Bitcoin, "2900000000")
	agg := New([]source.Source{bad, good}, st, Options{Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	if e := snap.Entries[market.UsdVnd]; !e.Unavailable || e.Observation != nil {
		t.Fatalf("want exactly Unavailable for usd_vnd, got %+v", e)
	}
	if e := snap.Entries[market.Bitcoin]; e.Unavailable || e.Observation == nil {
		t.Fatalf("bitcoin must be unaffected, got %+v", e)
	}
}

func TestRefreshAll_RetriesNetworkThenSucceeds(t *testing.T) {
	st := store.NewMemory()
	src := &fakeSource{q: market.Vn30}
	src.fetch = func(_ context.Context, call int32) (market.Observation, error) {
		if call == 1 {
			return market.Observation{}, netErr()
		}
		return obsAt(t, market.Vn30, "2029.81", time.Now()), nil
	}
	agg := New([]source.Source{src}, st, Options{Retries: 2, Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	if e := snap.Entries[market.Vn30]; e.Unavailable {
		t.Fatalf("retry should have recovered, got %+v", e)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("want 2 attempts, got %d", got)
	}
}

func TestRefreshAll_NoRetryOnStructuralFailure(t *testing.T) {
	st := store.NewMemory()
	src := failSource(market.Gold, &market.ExtractionError{Source: "fake", Reason: "anchor gone"})
	agg := New([]source.Source{src}, st, Options{Retries: 3, Backoff: time.Millisecond})

	agg.RefreshAll(context.Background())

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("structural failures must not be retried, got %d attempts", got)
	}
}

func TestRefreshAll_FreshCacheSkipsFetch(t *testing.T) {
	st := store.NewMemory()
	recent := obsAt(t, market.Gold, "84500000", time.Now().Add(-time.Minute))
	if err := st.Put(context.Background(), recent); err != nil {
		t.Fatalf("seed: %v", err)
	}

	src := okSource(t, market.Gold, "99999999")
	agg := New([]source.Source{src}, st, Options{TTL: 10 * time.Minute, Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	if got := src.calls.Load(); got != 0 {
		t.Fatalf("fresh cache must skip the network, got %d fetches", got)
	}
	if e := snap.Entries[market.Gold]; !e.Observation.Value.Equal(recent.Value) {
		t.Fatalf("want cached value, got %s", e.Observation.Value)
	}
}

func TestRefreshAll_ZeroTTLForcesLiveFetch(t *testing.T) {
	st := store.NewMemory()
	recent := obsAt(t, market.Gold, "84500000", time.Now().Add(-time.Minute))
	if err := st.Put(context.Background(), recent); err != nil {
		t.Fatalf("seed: %v", err)
	}

	src := okSource(t, market.Gold, "85000000")
	agg := New([]source.Source{src}, st, Options{TTL: 0, Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("zero TTL must bypass the cache and fetch live, got %d fetches", got)
	}
	if e := snap.Entries[market.Gold]; e.Observation.Value.Equal(recent.Value) {
		t.Fatalf("want the live value, still serving the cached %s", e.Observation.Value)
	}
}

func TestRefreshAll_HangingSourceFailsAlone(t *testing.T) {
	st := store.NewMemory()
	hang := &fakeSource{q: market.Gold}
	hang.fetch = func(ctx context.Context, _ int32) (market.Observation, error) {
		<-ctx.Done()
		return market.Observation{}, &market.NetworkError{URL: "http://slow", Err: ctx.Err()}
	}
	quick := okSource(t, market.Bitcoin, "2900000000")

	agg := New([]source.Source{hang, quick}, st, Options{
		FetchTimeout: 50 * time.Millisecond,
		Backoff:      time.Millisecond,
	})

	start := time.Now()
	snap := agg.RefreshAll(context.Background())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("hanging source delayed the cycle: %s", elapsed)
	}
	if e := snap.Entries[market.Gold]; !e.Unavailable {
		t.Fatalf("hanging source with no cache should be unavailable, got %+v", e)
	}
	if e := snap.Entries[market.Bitcoin]; e.Unavailable {
		t.Fatal("quick source must not be affected by the hanging one")
	}
}

func TestRefreshAll_RejectsInvalidObservation(t *testing.T) {
	st := store.NewMemory()
	src := &fakeSource{q: market.Gold}
	src.fetch = func(context.Context, int32) (market.Observation, error) {
		// Bypasses the constructor to simulate a buggy source.
		return market.Observation{
			Quantity:   market.Gold,
			Value:      decimal.RequireFromString("-1"),
			ObservedAt: time.Now(),
		}, nil
	}
	agg := New([]source.Source{src}, st, Options{Backoff: time.Millisecond})

	snap := agg.RefreshAll(context.Background())

	if e := snap.Entries[market.Gold]; !e.Unavailable {
		t.Fatalf("invalid observation must be rejected, got %+v", e)
	}
	if _, ok := st.Get(context.Background(), market.Gold); ok {
		t.Fatal("invalid observation must never reach the cache")
	}
}

func TestRefreshAll_UnwiredQuantitiesPresentAsUnavailable(t *testing.T) {
	agg := New([]source.Source{okSource(t, market.Gold, "84500000")}, store.NewMemory(), Options{})

	snap := agg.RefreshAll(context.Background())

	for _, q := range market.AllQuantities() {
		if _, ok := snap.Entries[q]; !ok {
			t.Fatalf("snapshot missing entry for %s", q)
		}
	}
	if e := snap.Entries[market.Vn30]; !e.Unavailable {
		t.Fatalf("unwired quantity should be unavailable, got %+v", e)
	}
}
