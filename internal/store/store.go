// Package store persists the last known-good observation per quantity so
// values survive process restarts. A missing, corrupted, or unreadable
// database degrades to "no cache" — it never becomes an error for readers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"golddash/internal/market"
)

// Store is the cache consulted and written by the aggregator. Fetchers
// never touch it.
type Store interface {
	// Get returns the last observation for a quantity, or ok=false when
	// none is usable. It never fails.
	Get(ctx context.Context, q market.Quantity) (market.Observation, bool)
	// Put records an observation. A write carrying an older timestamp than
	// the stored row is ignored, so a slow retry cannot clobber a newer
	// value.
	Put(ctx context.Context, obs market.Observation) error
}

// Fresh reports whether an observation is still authoritative under ttl.
func Fresh(obs market.Observation, now time.Time, ttl time.Duration) bool {
	return obs.Age(now) <= ttl
}

// SQLite is the durable Store. Reads and writes go through separate
// handles; the write handle is capped at one connection.
type SQLite struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// Open creates or opens the cache database at dbPath. A file sqlite cannot
// read is discarded and recreated empty: losing the cache is acceptable,
// refusing to start is not.
func Open(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	s, err := open(dbPath)
	if err == nil {
		return s, nil
	}
	if rmErr := os.Remove(dbPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, err
	}
	return open(dbPath)
}

func open(dbPath string) (*SQLite, error) {
	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &SQLite{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			quantity    TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			secondary   TEXT,
			unit        TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			observed_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, q market.Quantity) (market.Observation, bool) {
	var (
		value, unit, source string
		secondary           sql.NullString
		observedAt          int64
	)
	err := s.readDB.QueryRowContext(ctx, `
		SELECT value, secondary, unit, source, observed_at
		FROM observations WHERE quantity = ?
	`, string(q)).Scan(&value, &secondary, &unit, &source, &observedAt)
	if err != nil {
		return market.Observation{}, false
	}

	v, err := decimal.NewFromString(value)
	if err != nil {
		// Corrupted row reads as missing.
		return market.Observation{}, false
	}
	var sec *decimal.Decimal
	if secondary.Valid {
		d, err := decimal.NewFromString(secondary.String)
		if err != nil {
			return market.Observation{}, false
		}
		sec = &d
	}

	obs, err := market.NewObservation(q, v, sec, unit, source, time.Unix(0, observedAt))
	if err != nil {
		return market.Observation{}, false
	}
	return obs, true
}

func (s *SQLite) Put(ctx context.Context, obs market.Observation) error {
	var secondary any
	if obs.Secondary != nil {
		secondary = obs.Secondary.String()
	}
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO observations (quantity, value, secondary, unit, source, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(quantity) DO UPDATE SET
			value       = excluded.value,
			secondary   = excluded.secondary,
			unit        = excluded.unit,
			source      = excluded.source,
			observed_at = excluded.observed_at
		WHERE excluded.observed_at >= observations.observed_at
	`, string(obs.Quantity), obs.Value.String(), secondary, obs.Unit, obs.Source, obs.ObservedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("caching %s: %w", obs.Quantity, err)
	}
	return nil
}
