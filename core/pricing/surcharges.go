// Package pricing - Surcharge rule set
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"freightquote/core/determinism"
	"freightquote/core/types"
)

// Card surcharge codes, in the order they appear on a quote
const (
	CodeFuel       = "fuel"
	CodeSecurity   = "security"
	CodePeakSeason = "peak_season"
	CodeMargin     = "margin"
)

var cardSurchargeOrder = map[string]int{CodeFuel: 0, CodeSecurity: 1, CodePeakSeason: 2}

// SurchargeInput is everything a surcharge may be computed against
type SurchargeInput struct {
	Card *types.RateCard

	// Rules are tenant rules already filtered for the card
	Rules []*types.SurchargeRule

	// Transport is the post-floor transport subtotal
	Transport decimal.Decimal

	DeclaredValue decimal.Decimal
}

// ComputeSurcharges returns one line per applicable surcharge.
//
// Every non-compounding surcharge is computed from its own base only, so
// they never stack. A compounding rule applies to its base plus the sum of
// the non-compounding surcharges on that same base. Neither step depends on
// rule order, and lines come out sorted: card surcharges first, then rules
// by name and ID.
func ComputeSurcharges(in SurchargeInput) ([]types.LineItem, []string) {
	currency := in.Card.Currency
	var lines []types.LineItem
	var warnings []string

	bases := map[types.SurchargeBase]decimal.Decimal{
		types.BaseTransport:     in.Transport,
		types.BaseDeclaredValue: in.DeclaredValue,
	}
	layered := map[types.SurchargeBase]decimal.Decimal{}

	for _, cs := range []struct {
		code, name string
		rate       decimal.Decimal
	}{
		{CodeFuel, "Fuel surcharge", in.Card.FuelSurcharge},
		{CodeSecurity, "Security surcharge", in.Card.SecuritySurcharge},
		{CodePeakSeason, "Peak season surcharge", in.Card.PeakSeasonSurcharge},
	} {
		if !cs.rate.IsPositive() {
			continue
		}
		amount := types.RoundMoney(in.Transport.Mul(cs.rate), currency)
		layered[types.BaseTransport] = layered[types.BaseTransport].Add(amount)
		lines = append(lines, types.LineItem{
			Code:   cs.code,
			Name:   cs.name,
			Kind:   types.LineSurcharge,
			Base:   types.BaseTransport,
			Rate:   cs.rate,
			Amount: amount,
		})
	}

	var compounding []*types.SurchargeRule
	for _, r := range in.Rules {
		switch {
		case r.Kind == types.SurchargeFixed:
			if r.Currency != currency {
				warnings = append(warnings, fmt.Sprintf("surcharge %q skipped: fixed amount in %s, card priced in %s", r.Name, r.Currency, currency))
				continue
			}
			lines = append(lines, types.LineItem{
				Code:   r.ID,
				Name:   r.Name,
				Kind:   types.LineSurcharge,
				Amount: r.Value,
			})
		case r.Compounding:
			compounding = append(compounding, r)
		default:
			amount := types.RoundMoney(bases[r.Base].Mul(r.Value), currency)
			layered[r.Base] = layered[r.Base].Add(amount)
			lines = append(lines, ruleLine(r, amount))
		}
	}

	for _, r := range compounding {
		base := bases[r.Base].Add(layered[r.Base])
		lines = append(lines, ruleLine(r, types.RoundMoney(base.Mul(r.Value), currency)))
	}

	determinism.SortSlice(lines, lineBefore)
	return lines, warnings
}

func ruleLine(r *types.SurchargeRule, amount decimal.Decimal) types.LineItem {
	return types.LineItem{
		Code:   r.ID,
		Name:   r.Name,
		Kind:   types.LineSurcharge,
		Base:   r.Base,
		Rate:   r.Value,
		Amount: amount,
	}
}

func lineBefore(a, b types.LineItem) bool {
	ai, aCard := cardSurchargeOrder[a.Code]
	bi, bCard := cardSurchargeOrder[b.Code]
	switch {
	case aCard && bCard:
		return ai < bi
	case aCard != bCard:
		return aCard
	case a.Name != b.Name:
		return a.Name < b.Name
	default:
		return a.Code < b.Code
	}
}

// SumLines adds up line amounts
func SumLines(lines []types.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
