// Package stockindex fetches the VN30 index. The quote page flattens to a
// line holding the index name, the value on the next line, and the change
// with percent in parentheses on the line after that.
package stockindex

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"golddash/internal/httpx"
	"golddash/internal/market"
	"golddash/internal/numfmt"
	"golddash/internal/source"
)

type Config struct {
	Name    string
	URL     string
	Anchor  string
	Headers map[string]string
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "vn30"
	}
	if cfg.Anchor == "" {
		cfg.Anchor = "VN30-INDEX"
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Quantity() market.Quantity { return market.Vn30 }

func (s *Source) Name() string { return s.cfg.Name }

// changeRe captures the signed change percent ahead of its parenthesis,
// e.g. "10.83 (0.54%)" or "-3.20 (-0.16%)".
var changeRe = regexp.MustCompile(`\(([-+]?\d+[.,]\d+)\s*%\)`)

func (s *Source) Fetch(ctx context.Context) (market.Observation, error) {
	payload, err := source.FetchText(ctx, s.client, "GET", s.cfg.URL, s.cfg.Headers, nil)
	if err != nil {
		return market.Observation{}, err
	}

	lines := source.Lines(payload)
	for i, line := range lines {
		if line != s.cfg.Anchor || i+1 >= len(lines) {
			continue
		}
		value, err := numfmt.Parse(lines[i+1])
		if err != nil {
			return market.Observation{}, err
		}
		if !plausible(value) {
			continue
		}
		var change *decimal.Decimal
		if i+2 < len(lines) {
			change = parseChange(lines[i+2])
		}
		return market.NewObservation(
			market.Vn30, value, change, "points", s.cfg.Name, time.Now(),
		)
	}
	return market.Observation{}, &market.ExtractionError{
		Source: s.cfg.Name, Reason: "anchor " + s.cfg.Anchor + " not found",
	}
}

// parseChange extracts the signed change percent when present. Absence is
// not an error; the index value alone is still a usable observation.
func parseChange(line string) *decimal.Decimal {
	m := changeRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	raw := m[1]
	neg := strings.HasPrefix(raw, "-")
	d, err := numfmt.Parse(raw)
	if err != nil {
		return nil
	}
	if neg {
		d = d.Neg()
	}
	return &d
}

func plausible(v decimal.Decimal) bool {
	return v.GreaterThan(decimal.NewFromInt(100)) &&
		v.LessThan(decimal.NewFromInt(10_000))
}
