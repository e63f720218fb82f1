package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golddash/internal/aggregate"
	"golddash/internal/config"
	"golddash/internal/httpx"
	"golddash/internal/market"
	"golddash/internal/source"
	"golddash/internal/source/bitcoin"
	"golddash/internal/source/gold"
	"golddash/internal/source/ratelimit"
	"golddash/internal/source/stockindex"
	"golddash/internal/source/usdvnd"
	"golddash/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var st store.Store
	sqlStore, err := store.Open(cfg.Cache.Path)
	if err != nil {
		// A broken cache never blocks startup; run without persistence.
		log.Printf("warning: cache store unavailable (%v); running in-memory", err)
		st = store.NewMemory()
	} else {
		defer sqlStore.Close()
		st = sqlStore
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	httpClient.Headers = cfg.Headers

	sources := buildSources(cfg, httpClient)
	if len(sources) == 0 {
		log.Println("warning: no sources enabled; every quantity will be unavailable")
	}

	agg := aggregate.New(sources, st, aggregate.Options{
		TTL:          time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Retries:      cfg.Fetch.Retries,
		Backoff:      time.Duration(cfg.Fetch.BackoffMS) * time.Millisecond,
		FetchTimeout: time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var latest latestSnapshot
	refresh := func() {
		snap := agg.RefreshAll(ctx)
		latest.set(snap)
		for _, q := range market.AllQuantities() {
			e := snap.Entries[q]
			if e.Unavailable {
				log.Printf("refresh: %s unavailable", q)
			} else {
				log.Printf("refresh: %s = %s (%s, %s)", q, e.Observation.Value, e.Observation.Source, e.Freshness)
			}
		}
	}

	refresh()
	go func() {
		ticker := time.NewTicker(refreshCadence(cfg.Cache.TTLSeconds))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		writeSnapshot(w, latest.get())
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}
	go func() {
		log.Printf("listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func buildSources(cfg config.Config, hc *httpx.Client) []source.Source {
	var out []source.Source
	gate := func(s source.Source, intervalSec int) source.Source {
		if intervalSec > 0 {
			return &ratelimit.MinInterval{S: s, Interval: time.Duration(intervalSec) * time.Second}
		}
		return s
	}

	if cfg.Gold.Enabled {
		eps := make([]gold.Endpoint, 0, len(cfg.Gold.Endpoints))
		for _, ep := range cfg.Gold.Endpoints {
			eps = append(eps, gold.Endpoint{Label: ep.Label, URL: ep.URL})
		}
		out = append(out, gate(gold.New(gold.Config{
			Endpoints: eps,
			Headers:   cfg.Headers,
			Scale:     cfg.Gold.Scale,
		}, hc), cfg.Gold.MinIntervalSec))
	}
	if cfg.UsdVnd.Enabled {
		out = append(out, gate(usdvnd.New(usdvnd.Config{
			URL:     cfg.UsdVnd.Endpoint,
			Referer: cfg.UsdVnd.Referer,
			Headers: cfg.Headers,
			Fields:  cfg.UsdVnd.Fields,
		}, hc), cfg.UsdVnd.MinIntervalSec))
	}
	if cfg.Bitcoin.Enabled {
		client := bitcoin.NewClient(
			bitcoin.WithBaseURL(cfg.Bitcoin.BaseURL),
			bitcoin.WithHTTPClient(hc.HTTP),
		)
		out = append(out, gate(bitcoin.NewSource("coingecko", client), cfg.Bitcoin.MinIntervalSec))
	}
	if cfg.Vn30.Enabled {
		out = append(out, gate(stockindex.New(stockindex.Config{
			URL:     cfg.Vn30.Endpoint,
			Anchor:  cfg.Vn30.Anchor,
			Headers: cfg.Headers,
		}, hc), cfg.Vn30.MinIntervalSec))
	}
	return out
}

// refreshCadence derives the refresh loop period from the cache TTL. A
// non-positive TTL means live fetches, not a zero-period ticker, which
// NewTicker would panic on; the loop then runs once a minute.
func refreshCadence(ttlSec int) time.Duration {
	if ttlSec <= 0 {
		return time.Minute
	}
	return time.Duration(ttlSec) * time.Second
}

// latestSnapshot hands the most recent finished snapshot to readers
// without blocking the refresh loop.
type latestSnapshot struct {
	mu   sync.RWMutex
	snap market.Snapshot
}

func (l *latestSnapshot) set(s market.Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
}

func (l *latestSnapshot) get() market.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func writeSnapshot(w http.ResponseWriter, snap market.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("encode snapshot: %v", err)
	}
}
