// Package types - Quote types
package types

import (
	"time"

	"github.com/shopspring/decimal"

	"freightquote/internal/errors"
)

// LineKind classifies a quote line
type LineKind string

const (
	LineSurcharge LineKind = "surcharge"
	LineMargin    LineKind = "margin"
)

// LineItem is a priced line on a quote
type LineItem struct {
	// Code is a stable machine identifier (fuel, security, peak_season, margin, or a rule ID)
	Code string `json:"code"`

	// Name is the human-readable label
	Name string `json:"name"`

	// Kind is surcharge or margin
	Kind LineKind `json:"kind"`

	// Base is what a percentage was applied to
	Base SurchargeBase `json:"base,omitempty"`

	// Rate is the fraction applied, zero for fixed amounts
	Rate decimal.Decimal `json:"rate"`

	// Amount is rounded to the quote currency
	Amount decimal.Decimal `json:"amount"`
}

// AddonLine is a priced add-on on a quote
type AddonLine struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// Quote is an immutable, fully itemized price in the rate card's currency.
// Subtotal = TransportSubtotal + Margin + SurchargeTotal + AddonTotal and
// Total = Subtotal + TaxAmount, with every figure already rounded.
type Quote struct {
	// ID is derived from the inputs and configuration version
	ID string `json:"id"`

	TenantID   TenantID `json:"tenant_id"`
	RateCardID string   `json:"rate_card_id"`

	// ConfigVersion is the content hash of the configuration snapshot used
	ConfigVersion string `json:"config_version"`

	Mode        Mode     `json:"mode"`
	Basis       Basis    `json:"basis"`
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`

	// Quantity is kilograms or cubic meters, per Basis
	Quantity decimal.Decimal `json:"quantity"`

	// TierIndex is the zero-based tier that priced the quantity
	TierIndex int `json:"tier_index"`

	// UnitRate is the price per unit of the selected tier
	UnitRate decimal.Decimal `json:"unit_rate"`

	// TieredCost is quantity x unit rate before the minimum floor
	TieredCost decimal.Decimal `json:"tiered_cost"`

	MinimumCharge  decimal.Decimal `json:"minimum_charge"`
	MinimumApplied bool            `json:"minimum_applied"`

	// TransportSubtotal is the post-floor transport cost
	TransportSubtotal decimal.Decimal `json:"transport_subtotal"`

	// OwnerBasePriced is set when the card belongs to the platform owner
	OwnerBasePriced bool `json:"owner_base_priced,omitempty"`

	// Margin is the reseller markup on the owner's transport price
	Margin *LineItem `json:"margin,omitempty"`

	Surcharges     []LineItem      `json:"surcharges"`
	SurchargeTotal decimal.Decimal `json:"surcharge_total"`

	Addons     []AddonLine     `json:"addons"`
	AddonTotal decimal.Decimal `json:"addon_total"`

	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
	Currency  Currency        `json:"currency"`
}

// MarginAmount returns the margin or zero
func (q *Quote) MarginAmount() decimal.Decimal {
	if q.Margin == nil {
		return decimal.Zero
	}
	return q.Margin.Amount
}

// DisplayAmounts are quote totals converted to a display currency.
// Informational only: tax and margin are always computed natively.
type DisplayAmounts struct {
	Currency          Currency        `json:"currency"`
	Rate              decimal.Decimal `json:"rate"`
	Stale             bool            `json:"stale,omitempty"`
	RatesAsOf         time.Time       `json:"rates_as_of"`
	TransportSubtotal decimal.Decimal `json:"transport_subtotal"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	Total             decimal.Decimal `json:"total"`
}

// Result is everything a calculation returns
type Result struct {
	Quote *Quote     `json:"quote"`
	Plan  *PlanQuote `json:"plan,omitempty"`

	// Display is set when a display currency was requested and converted
	Display *DisplayAmounts `json:"display,omitempty"`

	// DisplayError is set when the display conversion alone failed
	DisplayError *errors.Error `json:"display_error,omitempty"`

	Warnings     []string  `json:"warnings"`
	CalculatedAt time.Time `json:"calculated_at"`
}
