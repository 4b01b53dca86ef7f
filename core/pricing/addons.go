// Package pricing - Add-on pricing resolver
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/determinism"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

// ResolveAddons prices selections against the snapshot's active catalog.
// Selections that cannot be priced are dropped and reported as warnings;
// they never fail the quote. Repeated selections of one add-on are merged.
func ResolveAddons(snap *catalog.Snapshot, selections []types.AddonSelection, declared decimal.Decimal, currency types.Currency) ([]types.AddonLine, []string) {
	var warnings []string
	drop := func(id, reason string) {
		warnings = append(warnings, fmt.Sprintf("%s: add-on %q dropped: %s", errors.TypeUnknownAddon, id, reason))
	}

	quantities := map[string]decimal.Decimal{}
	var order []string
	for _, sel := range selections {
		if !sel.Quantity.IsPositive() {
			drop(sel.AddonID, "quantity must be positive")
			continue
		}
		if _, seen := quantities[sel.AddonID]; !seen {
			order = append(order, sel.AddonID)
		}
		quantities[sel.AddonID] = quantities[sel.AddonID].Add(sel.Quantity)
	}

	var lines []types.AddonLine
	for _, id := range order {
		addon, ok := snap.Addon(id)
		switch {
		case !ok:
			drop(id, "not in catalog")
			continue
		case !addon.Active:
			drop(id, "inactive")
			continue
		case addon.Currency != currency:
			drop(id, fmt.Sprintf("priced in %s, quote is in %s", addon.Currency, currency))
			continue
		}

		unit := AddonUnitPrice(addon, declared)
		qty := quantities[id]
		lines = append(lines, types.AddonLine{
			ID:        addon.ID,
			Name:      addon.Name,
			Quantity:  qty,
			UnitPrice: unit,
			Amount:    types.RoundMoney(unit.Mul(qty), currency),
		})
	}

	determinism.SortSlice(lines, func(a, b types.AddonLine) bool { return a.ID < b.ID })
	return lines, warnings
}

// AddonUnitPrice resolves the unit price at calculation time
func AddonUnitPrice(addon *types.Addon, declared decimal.Decimal) decimal.Decimal {
	if addon.Pricing == types.AddonDeclaredValuePercent {
		return types.RoundMoney(declared.Mul(addon.Rate), addon.Currency)
	}
	return addon.UnitPrice
}

// SumAddons adds up add-on amounts
func SumAddons(lines []types.AddonLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
