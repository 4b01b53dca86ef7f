// Package api - API types for quoting
// These types define the HTTP contract; pricing types are reused for responses.
package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/pricing"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

// QuoteRequest is the body of POST /v1/quotes
type QuoteRequest struct {
	TenantID        string                 `json:"tenant_id" binding:"required"`
	Mode            string                 `json:"mode" binding:"required,oneof=air sea road"`
	Origin          string                 `json:"origin" binding:"required"`
	Destination     string                 `json:"destination" binding:"required"`
	RateBasis       string                 `json:"rate_basis" binding:"required,oneof=per_kg per_m3"`
	WeightKg        decimal.Decimal        `json:"weight_kg"`
	VolumeM3        decimal.Decimal        `json:"volume_m3"`
	DeclaredValue   decimal.Decimal        `json:"declared_value"`
	SelectedAddons  []types.AddonSelection `json:"selected_addons"`
	PlanID          string                 `json:"plan_id"`
	DisplayCurrency string                 `json:"display_currency" binding:"omitempty,len=3"`
}

// toPricing maps the wire request onto a calculation request
func (r *QuoteRequest) toPricing() *pricing.Request {
	return &pricing.Request{
		TenantID:        types.TenantID(r.TenantID),
		Mode:            types.Mode(r.Mode),
		Origin:          r.Origin,
		Destination:     r.Destination,
		Basis:           types.Basis(r.RateBasis),
		WeightKg:        r.WeightKg,
		VolumeM3:        r.VolumeM3,
		DeclaredValue:   r.DeclaredValue,
		Addons:          r.SelectedAddons,
		PlanID:          r.PlanID,
		DisplayCurrency: types.Currency(r.DisplayCurrency),
	}
}

// ConvertQuery is the query string of GET /v1/fx/convert
type ConvertQuery struct {
	Amount string `form:"amount" binding:"required"`
	From   string `form:"from" binding:"required,len=3"`
	To     string `form:"to" binding:"required,len=3"`
}

// Corridor describes one quotable rate card
type Corridor struct {
	RateCardID      string         `json:"rate_card_id"`
	Mode            types.Mode     `json:"mode"`
	Basis           types.Basis    `json:"basis"`
	Origin          types.Location `json:"origin"`
	Destination     types.Location `json:"destination"`
	Currency        types.Currency `json:"currency"`
	Label           string         `json:"label"`
	OwnerBasePriced bool           `json:"owner_base_priced,omitempty"`
}

func corridorsFrom(matches []catalog.Match) []Corridor {
	out := make([]Corridor, 0, len(matches))
	for _, m := range matches {
		out = append(out, Corridor{
			RateCardID:      m.Card.ID,
			Mode:            m.Card.Mode,
			Basis:           m.Card.Basis,
			Origin:          m.Card.Origin,
			Destination:     m.Card.Destination,
			Currency:        m.Card.Currency,
			Label:           m.Card.Corridor(),
			OwnerBasePriced: m.OwnerBasePriced,
		})
	}
	return out
}

// CorridorsResponse is the body of GET /v1/tenants/:tenant/corridors
type CorridorsResponse struct {
	TenantID  types.TenantID `json:"tenant_id"`
	Corridors []Corridor     `json:"corridors"`
	Count     int            `json:"count"`
}

// RefreshResponse is the body of POST /v1/admin/fx/refresh
type RefreshResponse struct {
	Reference  types.Currency   `json:"reference"`
	Currencies []types.Currency `json:"currencies"`
	AsOf       string           `json:"as_of"`
}

// ErrorResponse wraps every error body
type ErrorResponse struct {
	Error *errors.Error `json:"error"`
}

// statusFor maps an error type to an HTTP status
func statusFor(t errors.Type) int {
	switch t {
	case errors.TypeNoCorridor, errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeInvalidQuantity, errors.TypeInput:
		return http.StatusBadRequest
	case errors.TypeMarginConfig:
		return http.StatusUnprocessableEntity
	case errors.TypeFxUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
