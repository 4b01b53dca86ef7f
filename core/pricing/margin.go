// Package pricing - Reseller margin and plan pricing
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

// MarginLine computes a reseller's markup on an owner base price.
// fixed adds Amount; percent adds RoundMoney(base x Fraction). Only the
// owner's base price is ever passed in here.
func MarginLine(tenant *types.TenantPricingContext, base decimal.Decimal, currency types.Currency) (*types.LineItem, error) {
	amount, rate, err := marginAmount(tenant, base, currency)
	if err != nil {
		return nil, err
	}
	return &types.LineItem{
		Code:   CodeMargin,
		Name:   "Reseller margin",
		Kind:   types.LineMargin,
		Base:   types.BaseTransport,
		Rate:   rate,
		Amount: amount,
	}, nil
}

func marginAmount(tenant *types.TenantPricingContext, base decimal.Decimal, currency types.Currency) (decimal.Decimal, decimal.Decimal, error) {
	switch m := tenant.Margin.(type) {
	case types.FixedMargin:
		if m.Currency != currency {
			return decimal.Zero, decimal.Zero, errors.MarginConfig(fmt.Sprintf(
				"tenant %s: fixed margin is in %s but the owner price is in %s", tenant.ID, m.Currency, currency))
		}
		return types.RoundMoney(m.Amount, currency), decimal.Zero, nil
	case types.PercentMargin:
		return types.RoundMoney(base.Mul(m.Fraction), currency), m.Fraction, nil
	case nil:
		return decimal.Zero, decimal.Zero, errors.MarginConfig(fmt.Sprintf(
			"tenant %s resells from %s but has no margin configured", tenant.ID, tenant.ParentTenantID))
	default:
		return decimal.Zero, decimal.Zero, errors.MarginConfig(fmt.Sprintf(
			"tenant %s: unsupported margin mode %s", tenant.ID, m.Mode()))
	}
}

// PricePlan prices a plan for the snapshot's tenant.
// Owners see their own prices. Resellers see their resell override when one
// exists, otherwise the owner price plus margin. An unknown or inactive plan
// yields a warning and no plan.
func PricePlan(snap *catalog.Snapshot, planID string) (*types.PlanQuote, []string, error) {
	if planID == "" {
		return nil, nil, nil
	}
	plan, ok := snap.Plan(planID)
	if !ok || !plan.Active {
		return nil, []string{fmt.Sprintf("%s: plan %q is not available", errors.TypeNotFound, planID)}, nil
	}

	q := &types.PlanQuote{
		ID:         plan.ID,
		Name:       plan.Name,
		Currency:   plan.Currency,
		PriceMonth: types.RoundMoney(plan.PriceMonth, plan.Currency),
		PriceYear:  types.RoundMoney(plan.PriceYear, plan.Currency),
		Source:     types.PlanSourceOwner,
	}
	tenant := snap.Tenant
	if !tenant.IsReseller() {
		return q, nil, nil
	}

	if rp, ok := tenant.ResellPrices[plan.ID]; ok {
		q.PriceMonth = types.RoundMoney(rp.Month, plan.Currency)
		q.PriceYear = types.RoundMoney(rp.Year, plan.Currency)
		q.Source = types.PlanSourceOverride
		return q, nil, nil
	}

	month, _, err := marginAmount(tenant, q.PriceMonth, plan.Currency)
	if err != nil {
		return nil, nil, err
	}
	year, _, err := marginAmount(tenant, q.PriceYear, plan.Currency)
	if err != nil {
		return nil, nil, err
	}
	q.PriceMonth = q.PriceMonth.Add(month)
	q.PriceYear = q.PriceYear.Add(year)
	q.Source = types.PlanSourceMargin
	return q, nil, nil
}
