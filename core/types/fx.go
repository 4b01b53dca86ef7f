// Package types - Exchange rates
package types

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FXRate is the price of one Base unit in Quote units at Timestamp
type FXRate struct {
	Base      Currency        `json:"base"`
	Quote     Currency        `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timestamp"`
	Stale     bool            `json:"stale,omitempty"`
}

// RateTable holds every rate relative to one reference currency.
// Rates[c] is the number of c units per one Reference unit.
type RateTable struct {
	Reference Currency                     `json:"reference"`
	Rates     map[Currency]decimal.Decimal `json:"rates"`
	AsOf      time.Time                    `json:"as_of"`
}

// PerReference returns units of c per reference unit
func (t *RateTable) PerReference(c Currency) (decimal.Decimal, bool) {
	if c == t.Reference {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[c]
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}
	return r, true
}

// Currencies returns the currencies the table can convert, reference included, sorted
func (t *RateTable) Currencies() []Currency {
	out := make([]Currency, 0, len(t.Rates)+1)
	out = append(out, t.Reference)
	for c, r := range t.Rates {
		if c != t.Reference && r.IsPositive() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
