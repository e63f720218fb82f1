// Package usdvnd fetches the USD/VND black-market rate. The upstream
// answers a form POST with dated rate rows; the newest row wins, which is
// not necessarily the first one returned.
package usdvnd

import (
	"context"
	"net/url"
	"regexp"
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
	Referer string
	Headers map[string]string
	// Fields is the fixed application/x-www-form-urlencoded body.
	Fields map[string]string
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "usd-black-market"
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Quantity() market.Quantity { return market.UsdVnd }

func (s *Source) Name() string { return s.cfg.Name }

var (
	rateTag  = regexp.MustCompile(`<rate\b[^>]*>`)
	dateAttr = regexp.MustCompile(`\bdate="([^"]*)"`)
	buyAttr  = regexp.MustCompile(`\bbuy="([^"]*)"`)
	sellAttr = regexp.MustCompile(`\bsell="([^"]*)"`)
)

func (s *Source) Fetch(ctx context.Context) (market.Observation, error) {
	form := url.Values{}
	for k, v := range s.cfg.Fields {
		form.Set(k, v)
	}
	headers := map[string]string{}
	for k, v := range s.cfg.Headers {
		headers[k] = v
	}
	if s.cfg.Referer != "" {
		headers["Referer"] = s.cfg.Referer
	}

	payload, err := source.FetchText(ctx, s.client, "POST", s.cfg.URL, headers, form)
	if err != nil {
		return market.Observation{}, err
	}

	rawBuy, rawSell, err := s.newestRow(payload)
	if err != nil {
		return market.Observation{}, err
	}

	buy, err := numfmt.Parse(rawBuy)
	if err != nil {
		return market.Observation{}, err
	}
	sell, err := numfmt.Parse(rawSell)
	if err != nil {
		return market.Observation{}, err
	}
	if !plausible(sell) {
		return market.Observation{}, &market.ExtractionError{
			Source: s.cfg.Name, Reason: "rate outside 20000-30000 VND/USD",
		}
	}

	return market.NewObservation(
		market.UsdVnd, sell, &buy, "VND/USD", s.cfg.Name, time.Now(),
	)
}

// newestRow selects the rate row with the most recent date attribute.
func (s *Source) newestRow(payload string) (buy, sell string, err error) {
	var best time.Time
	var found bool
	for _, tag := range rateTag.FindAllString(payload, -1) {
		d := dateAttr.FindStringSubmatch(tag)
		b := buyAttr.FindStringSubmatch(tag)
		sl := sellAttr.FindStringSubmatch(tag)
		if d == nil || b == nil || sl == nil {
			continue
		}
		at, perr := time.Parse("2006-01-02", d[1])
		if perr != nil {
			continue
		}
		if !found || at.After(best) {
			best, found = at, true
			buy, sell = b[1], sl[1]
		}
	}
	if !found {
		return "", "", &market.ExtractionError{Source: s.cfg.Name, Reason: "no rate rows in payload"}
	}
	return buy, sell, nil
}

func plausible(v decimal.Decimal) bool {
	return v.GreaterThan(decimal.NewFromInt(20_000)) &&
		v.LessThan(decimal.NewFromInt(30_000))
}
