package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Cache struct {
	Path       string `json:"path"`
	TTLSeconds int    `json:"ttl_sec"`
}

type Fetch struct {
	Retries    int `json:"retries"`
	BackoffMS  int `json:"backoff_ms"`
	TimeoutSec int `json:"timeout_sec"`
}

type GoldEndpoint struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Gold struct {
	Enabled bool `json:"enabled"`
	// Endpoints are tried in order; the first one listed is the primary
	// source, the rest are fallbacks.
	Endpoints      []GoldEndpoint `json:"endpoints"`
	Scale          int64          `json:"scale"`
	MinIntervalSec int            `json:"min_interval_sec"`
}

type UsdVnd struct {
	Enabled        bool              `json:"enabled"`
	Endpoint       string            `json:"endpoint"`
	Referer        string            `json:"referer"`
	Fields         map[string]string `json:"fields"`
	MinIntervalSec int               `json:"min_interval_sec"`
}

type Bitcoin struct {
	Enabled        bool   `json:"enabled"`
	BaseURL        string `json:"base_url"`
	MinIntervalSec int    `json:"min_interval_sec"`
}

type Vn30 struct {
	Enabled        bool   `json:"enabled"`
	Endpoint       string `json:"endpoint"`
	Anchor         string `json:"anchor"`
	MinIntervalSec int    `json:"min_interval_sec"`
}

type Config struct {
	Server  Server            `json:"server"`
	Cache   Cache             `json:"cache"`
	Fetch   Fetch             `json:"fetch"`
	Headers map[string]string `json:"headers"`
	Gold    Gold              `json:"gold"`
	UsdVnd  UsdVnd            `json:"usd_vnd"`
	Bitcoin Bitcoin           `json:"bitcoin"`
	Vn30    Vn30              `json:"vn30"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Cache:  Cache{Path: ".cache/golddash.db", TTLSeconds: 600},
		Fetch:  Fetch{Retries: 2, BackoffMS: 500, TimeoutSec: 10},
		// The scraped sites answer browsers, not bots; this header set is
		// what they expect to see.
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.9,vi;q=0.8",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Cache-Control":             "max-age=0",
		},
		Gold: Gold{
			Enabled: true,
			Endpoints: []GoldEndpoint{
				{Label: "24h", URL: "https://www.24h.com.vn/gia-vang-hom-nay-c425.html"},
				{Label: "mihong", URL: "https://www.mihong.vn/en/vietnam-gold-pricings"},
			},
			Scale: 10000,
		},
		UsdVnd: UsdVnd{
			Enabled:  true,
			Endpoint: "https://egcurrency.com/en/currency/USD-to-VND/blackMarket",
			Referer:  "https://egcurrency.com/",
			Fields:   map[string]string{"from": "USD", "to": "VND", "market": "black"},
		},
		Bitcoin: Bitcoin{Enabled: true, BaseURL: "https://api.coingecko.com"},
		Vn30: Vn30{
			Enabled:  true,
			Endpoint: "https://banggia.vietstock.vn/bang-gia/vn30",
			Anchor:   "VN30-INDEX",
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := envInt("CACHE_TTL_SEC"); v > 0 {
		cfg.Cache.TTLSeconds = v
	}
	if v := envInt("FETCH_RETRIES"); v >= 0 {
		cfg.Fetch.Retries = v
	}
	if v := envInt("FETCH_BACKOFF_MS"); v > 0 {
		cfg.Fetch.BackoffMS = v
	}
	if v := envInt("FETCH_TIMEOUT_SEC"); v > 0 {
		cfg.Fetch.TimeoutSec = v
	}
	if v := os.Getenv("GOLD_ENABLED"); v != "" {
		cfg.Gold.Enabled = envBool(v)
	}
	if v := os.Getenv("USD_VND_ENABLED"); v != "" {
		cfg.UsdVnd.Enabled = envBool(v)
	}
	if v := os.Getenv("USD_VND_ENDPOINT"); v != "" {
		cfg.UsdVnd.Endpoint = v
	}
	if v := os.Getenv("BITCOIN_ENABLED"); v != "" {
		cfg.Bitcoin.Enabled = envBool(v)
	}
	if v := os.Getenv("BITCOIN_BASE_URL"); v != "" {
		cfg.Bitcoin.BaseURL = v
	}
	if v := os.Getenv("VN30_ENABLED"); v != "" {
		cfg.Vn30.Enabled = envBool(v)
	}
	if v := os.Getenv("VN30_ENDPOINT"); v != "" {
		cfg.Vn30.Endpoint = v
	}
}

// envInt returns -1 when the variable is unset or not a number, so a typo
// like FETCH_RETRIES=abc leaves the configured value alone instead of
// silently turning into 0.
func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return -1
	}
	x, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return x
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
