// Package gold fetches the local SJC tael price. Upstream quotes arrive in
// tenths of ten-thousand VND, so every extracted figure is scaled into VND
// before it becomes an observation.
package gold

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

// Endpoint is one page that quotes the SJC price. The primary/secondary
// ordering is an explicit policy: endpoints are tried in declared order and
// the first success wins, regardless of which was reachable last cycle.
type Endpoint struct {
	Label string
	URL   string
}

type Config struct {
	Name      string
	Endpoints []Endpoint
	Headers   map[string]string
	// Scale converts upstream units into VND per tael. Defaults to 10000.
	Scale int64
}

type Source struct {
	cfg    Config
	client *httpx.Client
	scale  decimal.Decimal
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "sjc-gold"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 10000
	}
	return &Source{cfg: cfg, client: hc, scale: decimal.NewFromInt(cfg.Scale)}
}

func (s *Source) Quantity() market.Quantity { return market.Gold }

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Fetch(ctx context.Context) (market.Observation, error) {
	var lastErr error
	for _, ep := range s.cfg.Endpoints {
		payload, err := source.FetchText(ctx, s.client, "GET", ep.URL, s.cfg.Headers, nil)
		if err != nil {
			lastErr = err
			continue
		}
		buy, sell, err := s.extract(payload)
		if err != nil {
			lastErr = err
			continue
		}
		return market.NewObservation(
			market.Gold, sell, &buy, "VND/tael",
			s.cfg.Name+":"+ep.Label, time.Now(),
		)
	}
	if lastErr == nil {
		lastErr = &market.ExtractionError{Source: s.cfg.Name, Reason: "no endpoints configured"}
	}
	return market.Observation{}, lastErr
}

// priceToken matches a leading numeric cell. Quote rows often append
// up/down change figures after the price, so only the first field counts.
var priceToken = regexp.MustCompile(`^[0-9][0-9.,]*$`)

// extract scans the flattened page for the SJC row and takes the first two
// plausible prices after it: buy, then sell.
func (s *Source) extract(payload string) (buy, sell decimal.Decimal, err error) {
	lines := source.Lines(payload)
	for i, line := range lines {
		if !strings.Contains(line, "SJC") {
			continue
		}
		prices, err := s.scanWindow(lines, i)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
		if len(prices) >= 2 {
			return prices[0], prices[1], nil
		}
	}
	return decimal.Decimal{}, decimal.Decimal{},
		&market.ExtractionError{Source: s.cfg.Name, Reason: "no SJC price row found"}
}

func (s *Source) scanWindow(lines []string, from int) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	end := min(len(lines), from+15)
	for _, line := range lines[from:end] {
		token := strings.Fields(line)[0]
		if !priceToken.MatchString(token) {
			continue
		}
		d, err := numfmt.Parse(token)
		if err != nil {
			return nil, err
		}
		scaled := d.Mul(s.scale)
		if plausible(scaled) {
			out = append(out, scaled)
			if len(out) == 2 {
				break
			}
		}
	}
	return out, nil
}

// plausible bounds a tael price between 10 and 100 million VND, which
// also keeps small change-column figures out of the scan.
func plausible(v decimal.Decimal) bool {
	return v.GreaterThan(decimal.NewFromInt(10_000_000)) &&
		v.LessThan(decimal.NewFromInt(100_000_000))
}
