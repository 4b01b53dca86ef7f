// Package pricing - Tier pricing and minimum charge
// A quantity is priced entirely at the rate of the one tier that contains it.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

// TransportPrice is the transport component of a quote
type TransportPrice struct {
	// TierIndex is the tier that priced the quantity
	TierIndex int

	// UnitRate is that tier's unit price
	UnitRate decimal.Decimal

	// TieredCost is RoundMoney(quantity x UnitRate)
	TieredCost decimal.Decimal

	// Subtotal is TieredCost floored at the card minimum
	Subtotal decimal.Decimal

	// MinimumApplied is set when the floor raised the cost
	MinimumApplied bool
}

// ResolveTier returns the index of the tier whose [lower, upper) contains q.
// Quantities past every finite tier fall into the open terminal tier.
func ResolveTier(tiers []types.RateTier, q decimal.Decimal) (int, error) {
	if !q.IsPositive() {
		return -1, errors.InvalidQuantity(fmt.Sprintf("quantity must be positive, got %s", q))
	}
	for i, tier := range tiers {
		if tier.Contains(q) {
			return i, nil
		}
	}
	return -1, errors.Internal(fmt.Sprintf("no tier contains %s", q), nil)
}

// TieredCost prices q against the card's tiers, before the minimum floor
func TieredCost(card *types.RateCard, q decimal.Decimal) (int, decimal.Decimal, error) {
	idx, err := ResolveTier(card.Tiers, q)
	if err != nil {
		return -1, decimal.Zero, err
	}
	return idx, types.RoundMoney(q.Mul(card.Tiers[idx].UnitPrice), card.Currency), nil
}

// ApplyMinimum returns max(transport, minimum) and whether the floor was hit
func ApplyMinimum(transport, minimum decimal.Decimal) (decimal.Decimal, bool) {
	if transport.LessThan(minimum) {
		return minimum, true
	}
	return transport, false
}

// PriceTransport runs tier resolution then the minimum charge floor
func PriceTransport(card *types.RateCard, q decimal.Decimal) (*TransportPrice, error) {
	idx, cost, err := TieredCost(card, q)
	if err != nil {
		return nil, err
	}
	subtotal, floored := ApplyMinimum(cost, types.RoundMoney(card.MinimumCharge, card.Currency))
	return &TransportPrice{
		TierIndex:      idx,
		UnitRate:       card.Tiers[idx].UnitPrice,
		TieredCost:     cost,
		Subtotal:       subtotal,
		MinimumApplied: floored,
	}, nil
}
