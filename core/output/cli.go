// Package output - Human-readable rendering
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/fx"
	"freightquote/core/types"
)

const boxWidth = 73

type cliFormatter struct{}

func (cliFormatter) Format() Format { return FormatCLI }

// box collects rows and writes them framed
type box struct {
	w   io.Writer
	err error
}

func (b *box) printf(format string, args ...interface{}) {
	if b.err != nil {
		return
	}
	_, b.err = fmt.Fprintf(b.w, format, args...)
}

func (b *box) top()    { b.printf("┌%s┐\n", strings.Repeat("─", boxWidth)) }
func (b *box) rule()   { b.printf("├%s┤\n", strings.Repeat("─", boxWidth)) }
func (b *box) bottom() { b.printf("└%s┘\n", strings.Repeat("─", boxWidth)) }

func (b *box) title(s string) {
	b.printf("│ %-*s │\n", boxWidth-2, s)
}

func (b *box) row(label, value string) {
	b.printf("│ %-40s %30s │\n", label, value)
}

func (cliFormatter) Quote(w io.Writer, res *types.Result) error {
	q := res.Quote
	money := func(d decimal.Decimal) string {
		return types.Money{Amount: d, Currency: q.Currency}.String()
	}

	b := &box{w: w}
	b.top()
	b.title("QUOTE " + q.ID)
	b.title(fmt.Sprintf("%s  %s -> %s", q.Mode, q.Origin, q.Destination))
	b.rule()

	b.row(fmt.Sprintf("Transport (%s %s @ %s, tier %d)", q.Quantity, q.Basis.Unit(), q.UnitRate, q.TierIndex+1), money(q.TieredCost))
	if q.MinimumApplied {
		b.row("  Minimum charge applied", money(q.MinimumCharge))
	}
	if q.Margin != nil {
		b.row("Reseller margin", money(q.Margin.Amount))
	}
	for _, s := range q.Surcharges {
		b.row(s.Name, money(s.Amount))
	}
	for _, a := range q.Addons {
		b.row(fmt.Sprintf("%s x %s", a.Name, a.Quantity), money(a.Amount))
	}
	b.rule()
	b.row("Subtotal", money(q.Subtotal))
	b.row(fmt.Sprintf("VAT (%s%%)", q.TaxRate.Shift(2)), money(q.TaxAmount))
	b.row("TOTAL", money(q.Total))

	if d := res.Display; d != nil {
		b.rule()
		label := fmt.Sprintf("Total in %s (rate %s)", d.Currency, d.Rate.StringFixed(6))
		if d.Stale {
			label += " [stale]"
		}
		b.row(label, types.Money{Amount: d.Total, Currency: d.Currency}.String())
	}
	if p := res.Plan; p != nil {
		b.rule()
		b.row(fmt.Sprintf("Plan %s (%s)", p.Name, p.Source), "")
		b.row("  Monthly", types.Money{Amount: p.PriceMonth, Currency: p.Currency}.String())
		b.row("  Yearly", types.Money{Amount: p.PriceYear, Currency: p.Currency}.String())
	}
	b.bottom()

	if res.DisplayError != nil {
		b.printf("\nDisplay conversion failed: %s\n", res.DisplayError.Message)
	}
	for _, warn := range res.Warnings {
		b.printf("Warning: %s\n", warn)
	}
	return b.err
}

func (cliFormatter) Corridors(w io.Writer, tenant types.TenantID, matches []catalog.Match) error {
	b := &box{w: w}
	if len(matches) == 0 {
		b.printf("No corridors for tenant %s\n", tenant)
		return b.err
	}
	b.printf("%-20s %-5s %-7s %-4s %s\n", "RATE CARD", "MODE", "BASIS", "CCY", "CORRIDOR")
	for _, r := range CorridorRows(matches) {
		label := r.Corridor
		if r.OwnerBasePriced {
			label += " (owner)"
		}
		b.printf("%-20s %-5s %-7s %-4s %s\n", r.RateCardID, r.Mode, r.Basis, r.Currency, label)
	}
	return b.err
}

func (cliFormatter) Conversion(w io.Writer, amount types.Money, conv *fx.Conversion) error {
	b := &box{w: w}
	b.printf("%s = %s (rate %s, as of %s)\n",
		amount,
		types.Money{Amount: conv.Amount, Currency: conv.To},
		conv.Rate.StringFixed(6),
		conv.RatesAsOf.Format(time.RFC3339))
	if conv.Stale {
		b.printf("Warning: rates are stale, the last refresh failed\n")
	}
	return b.err
}

func (cliFormatter) RateTable(w io.Writer, table *types.RateTable) error {
	b := &box{w: w}
	b.printf("Reference: %s (as of %s)\n", table.Reference, table.AsOf.Format(time.RFC3339))
	for _, c := range table.Currencies() {
		b.printf("  %-4s %s\n", c, table.Rates[c])
	}
	return b.err
}
