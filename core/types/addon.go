// Package types - Add-on catalog
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AddonPricing is how an add-on's unit price is resolved
type AddonPricing string

const (
	// AddonPerUnit charges UnitPrice per selected unit
	AddonPerUnit AddonPricing = "per_unit"

	// AddonDeclaredValuePercent charges Rate x declared value per unit (insurance)
	AddonDeclaredValuePercent AddonPricing = "declared_value_percent"
)

// Addon is an optional service in a tenant's catalog
type Addon struct {
	ID        string          `json:"id"`
	TenantID  TenantID        `json:"tenant_id"`
	Name      string          `json:"name"`
	Pricing   AddonPricing    `json:"pricing"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Rate      decimal.Decimal `json:"rate"`
	Currency  Currency        `json:"currency"`
	Active    bool            `json:"active"`
}

// Validate checks local invariants
func (a *Addon) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("addon: missing id")
	}
	if !a.Currency.IsValid() {
		return fmt.Errorf("addon %s: invalid currency %q", a.ID, a.Currency)
	}
	switch a.Pricing {
	case AddonPerUnit:
		if a.UnitPrice.IsNegative() {
			return fmt.Errorf("addon %s: negative unit price", a.ID)
		}
	case AddonDeclaredValuePercent:
		if a.Rate.IsNegative() || a.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("addon %s: rate %s outside [0, 1]", a.ID, a.Rate)
		}
	default:
		return fmt.Errorf("addon %s: unknown pricing %q", a.ID, a.Pricing)
	}
	return nil
}

// AddonSelection is a client's request for an add-on
type AddonSelection struct {
	AddonID  string          `json:"addon_id"`
	Quantity decimal.Decimal `json:"quantity"`
}
