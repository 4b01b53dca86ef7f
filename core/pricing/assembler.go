// Package pricing - Quote assembler
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/determinism"
	"freightquote/core/types"
)

var quoteIDs = determinism.NewIDGenerator("quote")

// Assembly is the priced parts of a quote before totals
type Assembly struct {
	Snapshot  *catalog.Snapshot
	Match     *catalog.Match
	Request   *Request
	Quantity  decimal.Decimal
	Transport *TransportPrice
	Margin    *types.LineItem
	Surcharge []types.LineItem
	Addons    []types.AddonLine
}

// Assemble folds the parts into a Quote in the card's currency.
// VAT is RoundMoney(subtotal x rate); no other figure is re-rounded.
func Assemble(a *Assembly) *types.Quote {
	card := a.Match.Card
	tenant := a.Snapshot.Tenant

	q := &types.Quote{
		TenantID:          tenant.ID,
		RateCardID:        card.ID,
		ConfigVersion:     a.Snapshot.Version,
		Mode:              card.Mode,
		Basis:             card.Basis,
		Origin:            card.Origin,
		Destination:       card.Destination,
		Quantity:          a.Quantity,
		TierIndex:         a.Transport.TierIndex,
		UnitRate:          a.Transport.UnitRate,
		TieredCost:        a.Transport.TieredCost,
		MinimumCharge:     card.MinimumCharge,
		MinimumApplied:    a.Transport.MinimumApplied,
		TransportSubtotal: a.Transport.Subtotal,
		OwnerBasePriced:   a.Match.OwnerBasePriced,
		Margin:            a.Margin,
		Surcharges:        a.Surcharge,
		SurchargeTotal:    SumLines(a.Surcharge),
		Addons:            a.Addons,
		AddonTotal:        SumAddons(a.Addons),
		TaxRate:           tenant.VATRate,
		Currency:          card.Currency,
	}
	if q.Surcharges == nil {
		q.Surcharges = []types.LineItem{}
	}
	if q.Addons == nil {
		q.Addons = []types.AddonLine{}
	}

	q.Subtotal = q.TransportSubtotal.Add(q.MarginAmount()).Add(q.SurchargeTotal).Add(q.AddonTotal)
	q.TaxAmount = types.RoundMoney(q.Subtotal.Mul(q.TaxRate), q.Currency)
	q.Total = q.Subtotal.Add(q.TaxAmount)
	q.ID = quoteID(a)
	return q
}

// quoteID depends only on the inputs and the configuration version
func quoteID(a *Assembly) string {
	r := a.Request
	addons := make([]string, 0, len(a.Addons))
	for _, l := range a.Addons {
		addons = append(addons, l.ID+"="+l.Quantity.String())
	}
	return quoteIDs.Generate(
		string(a.Snapshot.Tenant.ID),
		a.Snapshot.Version,
		a.Match.Card.ID,
		a.Quantity.String(),
		r.DeclaredValue.String(),
		strings.Join(addons, ","),
	).String()
}
