// Package fxsource - Exchange rate sources for the conversion service
package fxsource

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/core/types"
)

// Static serves a fixed rate table
type Static struct {
	table *types.RateTable
}

// NewStatic builds a static source from currency -> units-per-reference strings
func NewStatic(reference string, rates map[string]string, asOf time.Time) (*Static, error) {
	ref, err := types.ParseCurrency(reference)
	if err != nil {
		return nil, fmt.Errorf("reference currency: %w", err)
	}
	parsed, err := parseRates(rates)
	if err != nil {
		return nil, err
	}
	return &Static{table: &types.RateTable{Reference: ref, Rates: parsed, AsOf: asOf.UTC()}}, nil
}

// FetchRates implements fx.Source
func (s *Static) FetchRates(ctx context.Context) (*types.RateTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyTable(s.table), nil
}

func parseRates(in map[string]string) (map[types.Currency]decimal.Decimal, error) {
	out := make(map[types.Currency]decimal.Decimal, len(in))
	for code, raw := range in {
		c, err := types.ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", c, err)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive, got %s", c, r)
		}
		out[c] = r
	}
	return out, nil
}

// copyTable keeps callers from mutating a shared map
func copyTable(t *types.RateTable) *types.RateTable {
	rates := make(map[types.Currency]decimal.Decimal, len(t.Rates))
	for c, r := range t.Rates {
		rates[c] = r
	}
	return &types.RateTable{Reference: t.Reference, Rates: rates, AsOf: t.AsOf}
}
