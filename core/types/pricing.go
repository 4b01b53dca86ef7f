// Package types - Rate card types
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateCard is a priced corridor for one tenant.
// Read-only at calculation time.
type RateCard struct {
	// ID uniquely identifies this card
	ID string `json:"id"`

	// TenantID owns the card
	TenantID TenantID `json:"tenant_id"`

	// Mode is the transport mode
	Mode Mode `json:"mode"`

	// Basis is the measure the tiers are priced against
	Basis Basis `json:"basis"`

	// Origin of the corridor
	Origin Location `json:"origin"`

	// Destination of the corridor
	Destination Location `json:"destination"`

	// Currency of every amount on the card
	Currency Currency `json:"currency"`

	// Tiers are contiguous, ascending, and end with an open tier
	Tiers []RateTier `json:"tiers"`

	// MinimumCharge floors the transport component
	MinimumCharge decimal.Decimal `json:"minimum_charge"`

	// FuelSurcharge is a fraction of transport
	FuelSurcharge decimal.Decimal `json:"fuel_surcharge"`

	// SecuritySurcharge is a fraction of transport
	SecuritySurcharge decimal.Decimal `json:"security_surcharge"`

	// PeakSeasonSurcharge is a fraction of transport
	PeakSeasonSurcharge decimal.Decimal `json:"peak_season_surcharge"`

	// Active gates eligibility
	Active bool `json:"active"`

	// CreatedAt orders otherwise equal matches
	CreatedAt time.Time `json:"created_at"`

	// Seq is the insertion sequence, second tie-breaker
	Seq int64 `json:"seq"`
}

// RateTier is a half-open quantity range [Lower, Upper) with a unit price
type RateTier struct {
	// Lower bound, inclusive
	Lower decimal.Decimal `json:"lower"`

	// Upper bound, exclusive (nil = unbounded)
	Upper *decimal.Decimal `json:"upper,omitempty"`

	// UnitPrice per kg or m3
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Contains reports whether q falls inside the tier
func (t RateTier) Contains(q decimal.Decimal) bool {
	if q.LessThan(t.Lower) {
		return false
	}
	return t.Upper == nil || q.LessThan(*t.Upper)
}

// IsOpen reports whether the tier has no upper bound
func (t RateTier) IsOpen() bool {
	return t.Upper == nil
}

// String renders the range
func (t RateTier) String() string {
	if t.Upper == nil {
		return fmt.Sprintf("[%s, inf)@%s", t.Lower, t.UnitPrice)
	}
	return fmt.Sprintf("[%s, %s)@%s", t.Lower, *t.Upper, t.UnitPrice)
}

// Corridor renders "origin -> destination (basis)"
func (c *RateCard) Corridor() string {
	return fmt.Sprintf("%s -> %s (%s)", c.Origin, c.Destination, c.Basis)
}

// Validate checks the card's structural invariants
func (c *RateCard) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("rate card: missing id")
	}
	if c.TenantID == "" {
		return fmt.Errorf("rate card %s: missing tenant", c.ID)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("rate card %s: invalid mode %q", c.ID, c.Mode)
	}
	if !c.Basis.IsValid() {
		return fmt.Errorf("rate card %s: invalid basis %q", c.ID, c.Basis)
	}
	if c.Origin.Country == "" || c.Destination.Country == "" {
		return fmt.Errorf("rate card %s: origin and destination countries are required", c.ID)
	}
	if !c.Currency.IsValid() {
		return fmt.Errorf("rate card %s: invalid currency %q", c.ID, c.Currency)
	}
	if c.MinimumCharge.IsNegative() {
		return fmt.Errorf("rate card %s: negative minimum charge", c.ID)
	}
	for name, f := range map[string]decimal.Decimal{
		"fuel":        c.FuelSurcharge,
		"security":    c.SecuritySurcharge,
		"peak season": c.PeakSeasonSurcharge,
	} {
		if f.IsNegative() || f.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("rate card %s: %s surcharge %s outside [0, 1]", c.ID, name, f)
		}
	}
	return ValidateTiers(c.Tiers)
}

// ValidateTiers checks tiers start at zero, are contiguous and ascending,
// and that only the last one is open
func ValidateTiers(tiers []RateTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	if !tiers[0].Lower.IsZero() {
		return fmt.Errorf("first tier must start at 0, got %s", tiers[0].Lower)
	}
	for i, tier := range tiers {
		if tier.UnitPrice.IsNegative() {
			return fmt.Errorf("tier %d: negative unit price", i)
		}
		last := i == len(tiers)-1
		if last {
			if !tier.IsOpen() {
				return fmt.Errorf("last tier must be open-ended")
			}
			break
		}
		if tier.IsOpen() {
			return fmt.Errorf("tier %d: only the last tier may be open-ended", i)
		}
		if !tier.Lower.LessThan(*tier.Upper) {
			return fmt.Errorf("tier %d: lower %s must be below upper %s", i, tier.Lower, *tier.Upper)
		}
		if !tiers[i+1].Lower.Equal(*tier.Upper) {
			return fmt.Errorf("tier %d: gap or overlap at %s", i+1, tiers[i+1].Lower)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate shared snapshots
func (c *RateCard) Clone() *RateCard {
	cp := *c
	cp.Tiers = make([]RateTier, len(c.Tiers))
	for i, t := range c.Tiers {
		cp.Tiers[i] = t
		if t.Upper != nil {
			u := *t.Upper
			cp.Tiers[i].Upper = &u
		}
	}
	return &cp
}
