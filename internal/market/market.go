package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quantity identifies one of the tracked market values.
type Quantity string

const (
	Gold    Quantity = "gold"
	UsdVnd  Quantity = "usd_vnd"
	Bitcoin Quantity = "bitcoin"
	Vn30    Quantity = "vn30"
)

// AllQuantities lists every tracked quantity in display order.
func AllQuantities() []Quantity {
	return []Quantity{Gold, UsdVnd, Bitcoin, Vn30}
}

// Freshness classifies the age of an observation.
type Freshness string

const (
	Fresh Freshness = "fresh"
	Aging Freshness = "aging"
	Stale Freshness = "stale"

	agingAfter = 5 * time.Minute
	staleAfter = 10 * time.Minute
)

// Observation is one normalized, timestamped value for a quantity.
// It is never mutated after creation, only replaced.
type Observation struct {
	Quantity   Quantity         `json:"quantity"`
	Value      decimal.Decimal  `json:"value"`
	Secondary  *decimal.Decimal `json:"secondary,omitempty"`
	Unit       string           `json:"unit"`
	Source     string           `json:"source"`
	ObservedAt time.Time        `json:"observed_at"`
}

// NewObservation builds an Observation, rejecting values that cannot be a
// market price. A negative primary value indicates a bug upstream of here.
func NewObservation(q Quantity, value decimal.Decimal, secondary *decimal.Decimal, unit, source string, at time.Time) (Observation, error) {
	if value.Sign() < 0 {
		return Observation{}, fmt.Errorf("observation %s: negative value %s", q, value)
	}
	return Observation{
		Quantity:   q,
		Value:      value,
		Secondary:  secondary,
		Unit:       unit,
		Source:     source,
		ObservedAt: at.UTC(),
	}, nil
}

// Age reports how long ago the observation was taken.
func (o Observation) Age(now time.Time) time.Duration {
	age := now.Sub(o.ObservedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Freshness classifies the observation's age: fresh under 5 minutes,
// aging under 10, stale beyond that.
func (o Observation) Freshness(now time.Time) Freshness {
	age := o.Age(now)
	switch {
	case age < agingAfter:
		return Fresh
	case age < staleAfter:
		return Aging
	default:
		return Stale
	}
}

// Entry is one snapshot slot: either an observation with its freshness tag,
// or an unavailable marker when no value has ever been obtained.
type Entry struct {
	Observation *Observation `json:"observation,omitempty"`
	Freshness   Freshness    `json:"freshness,omitempty"`
	Unavailable bool         `json:"unavailable,omitempty"`
}

// Snapshot is the complete set of current-best values for all quantities at
// one aggregation cycle. Immutable once handed to a consumer.
type Snapshot struct {
	TakenAt time.Time          `json:"taken_at"`
	Entries map[Quantity]Entry `json:"entries"`
}
