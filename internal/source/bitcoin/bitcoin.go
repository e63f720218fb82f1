// Package bitcoin fetches the BTC/VND rate from a JSON price API.
package bitcoin

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"golddash/internal/market"
)

type Source struct {
	name   string
	client *Client
}

func NewSource(name string, c *Client) *Source {
	if name == "" {
		name = "coingecko"
	}
	return &Source{name: name, client: c}
}

func (s *Source) Quantity() market.Quantity { return market.Bitcoin }

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context) (market.Observation, error) {
	rate, err := s.client.SimplePrice(ctx, "bitcoin", "vnd")
	if err != nil {
		return market.Observation{}, err
	}
	if !plausible(rate) {
		return market.Observation{}, &market.ExtractionError{
			Source: s.name, Reason: "rate outside 1-10 billion VND/BTC",
		}
	}
	return market.NewObservation(market.Bitcoin, rate, nil, "VND/BTC", s.name, time.Now())
}

func plausible(v decimal.Decimal) bool {
	return v.GreaterThan(decimal.NewFromInt(1_000_000_000)) &&
		v.LessThan(decimal.NewFromInt(10_000_000_000))
}
