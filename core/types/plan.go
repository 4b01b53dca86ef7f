// Package types - Subscription plans
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Plan is a platform-owner-defined base plan that resellers may resell
type Plan struct {
	ID            string          `json:"id"`
	OwnerTenantID TenantID        `json:"owner_tenant_id"`
	Name          string          `json:"name"`
	Currency      Currency        `json:"currency"`
	PriceMonth    decimal.Decimal `json:"price_month"`
	PriceYear     decimal.Decimal `json:"price_year"`
	Active        bool            `json:"active"`
}

// Validate checks local invariants
func (p *Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan: missing id")
	}
	if !p.Currency.IsValid() {
		return fmt.Errorf("plan %s: invalid currency %q", p.ID, p.Currency)
	}
	if p.PriceMonth.IsNegative() || p.PriceYear.IsNegative() {
		return fmt.Errorf("plan %s: negative price", p.ID)
	}
	return nil
}

// PlanSource records where a quoted plan price came from
type PlanSource string

const (
	PlanSourceOwner    PlanSource = "owner"
	PlanSourceOverride PlanSource = "resell_override"
	PlanSourceMargin   PlanSource = "margin"
)

// PlanQuote is the plan price shown to the end customer
type PlanQuote struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Currency   Currency        `json:"currency"`
	PriceMonth decimal.Decimal `json:"price_month"`
	PriceYear  decimal.Decimal `json:"price_year"`
	Source     PlanSource      `json:"source"`
}
