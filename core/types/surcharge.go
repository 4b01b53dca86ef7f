// Package types - Surcharge rules
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SurchargeKind is how a rule computes its amount
type SurchargeKind string

const (
	SurchargePercent SurchargeKind = "percent"
	SurchargeFixed   SurchargeKind = "fixed"
)

// SurchargeBase is what a percentage rule is applied to
type SurchargeBase string

const (
	BaseTransport     SurchargeBase = "transport"
	BaseDeclaredValue SurchargeBase = "declared_value"
)

// SurchargeRule is a tenant-defined supplementary charge
type SurchargeRule struct {
	// ID uniquely identifies this rule
	ID string `json:"id"`

	// TenantID owns the rule
	TenantID TenantID `json:"tenant_id"`

	// Name appears on the quote line
	Name string `json:"name"`

	// Kind is percent or fixed
	Kind SurchargeKind `json:"kind"`

	// Value is a fraction of base (percent) or an amount (fixed)
	Value decimal.Decimal `json:"value"`

	// Base is transport or declared_value; ignored for fixed rules
	Base SurchargeBase `json:"base"`

	// RateCardID scopes the rule to one card; empty applies to every card
	RateCardID string `json:"rate_card_id,omitempty"`

	// Compounding rules also apply to the other surcharges on the same base
	Compounding bool `json:"compounding,omitempty"`

	// Currency of a fixed amount
	Currency Currency `json:"currency,omitempty"`

	// Active gates eligibility
	Active bool `json:"active"`
}

// AppliesTo reports whether the rule is eligible for a card
func (r *SurchargeRule) AppliesTo(card *RateCard) bool {
	if !r.Active {
		return false
	}
	return r.RateCardID == "" || r.RateCardID == card.ID
}

// Validate checks local invariants
func (r *SurchargeRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("surcharge rule: missing id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("surcharge rule %s: missing name", r.ID)
	}
	if r.Value.IsNegative() {
		return fmt.Errorf("surcharge rule %s: negative value", r.ID)
	}
	switch r.Kind {
	case SurchargePercent:
		if r.Base != BaseTransport && r.Base != BaseDeclaredValue {
			return fmt.Errorf("surcharge rule %s: unknown base %q", r.ID, r.Base)
		}
	case SurchargeFixed:
		if !r.Currency.IsValid() {
			return fmt.Errorf("surcharge rule %s: fixed rule needs a currency", r.ID)
		}
		if r.Compounding {
			return fmt.Errorf("surcharge rule %s: fixed rules cannot compound", r.ID)
		}
	default:
		return fmt.Errorf("surcharge rule %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}
