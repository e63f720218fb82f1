package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
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
	var (
		configPath string
		timeout    int
		ttlSec     int
		asJSON     bool
	)
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 0), "request timeout seconds (0 = config value)")
	flag.IntVar(&ttlSec, "ttl", -1, "cache TTL seconds; 0 forces a live fetch (-1 = config value)")
	flag.BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
		cfg.Fetch.TimeoutSec = timeout
	}
	if ttlSec >= 0 {
		cfg.Cache.TTLSeconds = ttlSec
	}

	var st store.Store
	sqlStore, err := store.Open(cfg.Cache.Path)
	if err != nil {
		log.Printf("warning: cache store unavailable (%v); running in-memory", err)
		st = store.NewMemory()
	} else {
		defer sqlStore.Close()
		st = sqlStore
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	httpClient.Headers = cfg.Headers

	agg := aggregate.New(buildSources(cfg, httpClient), st, aggregate.Options{
		TTL:          time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Retries:      cfg.Fetch.Retries,
		Backoff:      time.Duration(cfg.Fetch.BackoffMS) * time.Millisecond,
		FetchTimeout: time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
	})

	snap := agg.RefreshAll(context.Background())

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	fmt.Printf("snapshot at %s\n", snap.TakenAt.Format(time.RFC3339))
	for _, q := range market.AllQuantities() {
		e := snap.Entries[q]
		if e.Unavailable {
			fmt.Printf("  %-8s unavailable\n", q)
			continue
		}
		o := e.Observation
		line := fmt.Sprintf("  %-8s %s %s", q, o.Value, o.Unit)
		if o.Secondary != nil {
			line += fmt.Sprintf(" (secondary %s)", o.Secondary)
		}
		fmt.Printf("%s [%s, %s]\n", line, o.Source, e.Freshness)
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

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil {
			return x
		}
	}
	return def
}
