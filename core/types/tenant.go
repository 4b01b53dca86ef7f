// Package types - Tenant pricing context and margin policies
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"freightquote/internal/errors"
)

// TenantPricingContext holds per-tenant pricing settings
type TenantPricingContext struct {
	// ID identifies the tenant
	ID TenantID `json:"id"`

	// Name is a display name
	Name string `json:"name,omitempty"`

	// ParentTenantID is the platform owner this tenant resells from (empty for owners)
	ParentTenantID TenantID `json:"parent_tenant_id,omitempty"`

	// DisplayCurrency is the default currency quotes are shown in
	DisplayCurrency Currency `json:"display_currency,omitempty"`

	// VATRate is a fraction in [0, 1]
	VATRate decimal.Decimal `json:"vat_rate"`

	// Margin is the reseller markup over owner base prices (nil when unset)
	Margin MarginPolicy `json:"margin,omitempty"`

	// ResellPrices override owner plan prices, keyed by plan ID
	ResellPrices map[string]ResellPrice `json:"resell_prices,omitempty"`
}

// IsReseller reports whether the tenant resells a platform owner's catalog
func (t *TenantPricingContext) IsReseller() bool {
	return t.ParentTenantID != ""
}

// Validate checks local invariants
func (t *TenantPricingContext) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tenant: missing id")
	}
	if t.ParentTenantID == t.ID {
		return fmt.Errorf("tenant %s: cannot resell from itself", t.ID)
	}
	if t.VATRate.IsNegative() || t.VATRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tenant %s: vat rate %s outside [0, 1]", t.ID, t.VATRate)
	}
	if t.DisplayCurrency != "" && !t.DisplayCurrency.IsValid() {
		return fmt.Errorf("tenant %s: invalid display currency %q", t.ID, t.DisplayCurrency)
	}
	for id, rp := range t.ResellPrices {
		if rp.PlanID != id {
			return fmt.Errorf("tenant %s: resell price keyed %s names plan %s", t.ID, id, rp.PlanID)
		}
		if rp.Month.IsNegative() || rp.Year.IsNegative() {
			return fmt.Errorf("tenant %s: negative resell price for plan %s", t.ID, id)
		}
	}
	return nil
}

// ResellPrice is a reseller's own price for an owner plan
type ResellPrice struct {
	PlanID string          `json:"plan_id"`
	Month  decimal.Decimal `json:"resell_price_month"`
	Year   decimal.Decimal `json:"resell_price_year"`
}

// MarginMode names a margin policy variant
type MarginMode string

const (
	MarginModeFixed   MarginMode = "fixed"
	MarginModePercent MarginMode = "percent"
)

// MarginPolicy is either FixedMargin or PercentMargin.
// The unexported method closes the set of variants.
type MarginPolicy interface {
	Mode() MarginMode
	isMarginPolicy()
}

// FixedMargin adds a flat amount to the owner's base price
type FixedMargin struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// Mode implements MarginPolicy
func (FixedMargin) Mode() MarginMode { return MarginModeFixed }
func (FixedMargin) isMarginPolicy()  {}

// PercentMargin multiplies the owner's base price by (1 + Fraction)
type PercentMargin struct {
	Fraction decimal.Decimal `json:"fraction"`
}

// Mode implements MarginPolicy
func (PercentMargin) Mode() MarginMode { return MarginModePercent }
func (PercentMargin) isMarginPolicy()  {}

// ParseMarginPolicy builds a policy from loosely typed configuration fields.
// An empty mode means no margin is configured and returns nil.
func ParseMarginPolicy(mode, amount, currency, fraction string) (MarginPolicy, error) {
	switch MarginMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "":
		return nil, nil
	case MarginModeFixed:
		if strings.TrimSpace(amount) == "" {
			return nil, errors.MarginConfig("fixed margin requires an amount")
		}
		a, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, errors.MarginConfig(fmt.Sprintf("fixed margin amount %q is not a number", amount))
		}
		if a.IsNegative() {
			return nil, errors.MarginConfig("fixed margin amount must not be negative")
		}
		c, err := ParseCurrency(currency)
		if err != nil {
			return nil, errors.MarginConfig("fixed margin requires a currency")
		}
		return FixedMargin{Amount: a, Currency: c}, nil
	case MarginModePercent:
		if strings.TrimSpace(fraction) == "" {
			return nil, errors.MarginConfig("percent margin requires a margin fraction")
		}
		f, err := decimal.NewFromString(strings.TrimSpace(fraction))
		if err != nil {
			return nil, errors.MarginConfig(fmt.Sprintf("percent margin fraction %q is not a number", fraction))
		}
		if f.IsNegative() {
			return nil, errors.MarginConfig("percent margin fraction must not be negative")
		}
		return PercentMargin{Fraction: f}, nil
	default:
		return nil, errors.MarginConfig(fmt.Sprintf("unknown margin mode %q", mode))
	}
}

// MarginFields flattens a policy back into configuration fields
func MarginFields(p MarginPolicy) (mode, amount, currency, fraction string) {
	switch m := p.(type) {
	case FixedMargin:
		return string(MarginModeFixed), m.Amount.String(), string(m.Currency), ""
	case PercentMargin:
		return string(MarginModePercent), "", "", m.Fraction.String()
	default:
		return "", "", "", ""
	}
}
