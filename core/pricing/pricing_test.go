// Package pricing - Quote engine tests
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/core/catalog"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bound(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

// gzAbidjan is the Guangzhou to Abidjan air card
func gzAbidjan(tenant types.TenantID) *types.RateCard {
	return &types.RateCard{
		ID:          "gz-abj-air",
		TenantID:    tenant,
		Mode:        types.ModeAir,
		Basis:       types.BasisPerKg,
		Origin:      types.Location{Country: "China", City: "Guangzhou"},
		Destination: types.Location{Country: "Ivory Coast", City: "Abidjan"},
		Currency:    types.CurrencyXOF,
		Tiers: []types.RateTier{
			{Lower: dec("0"), Upper: bound("10"), UnitPrice: dec("1000")},
			{Lower: dec("10"), UnitPrice: dec("800")},
		},
		MinimumCharge: dec("5000"),
		FuelSurcharge: dec("0.10"),
		Active:        true,
	}
}

type fixture struct {
	store *catalog.MemoryStore
	calc  *Calculator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	store.SetClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) })

	tenants := []*types.TenantPricingContext{
		{ID: "platform", VATRate: dec("0")},
		{ID: "acme", ParentTenantID: "platform", VATRate: dec("0"), Margin: types.FixedMargin{Amount: dec("500"), Currency: types.CurrencyXOF}},
	}
	for _, tn := range tenants {
		if err := store.UpsertTenant(ctx, tn); err != nil {
			t.Fatalf("UpsertTenant: %v", err)
		}
	}
	if err := store.UpsertRateCard(ctx, gzAbidjan("platform")); err != nil {
		t.Fatalf("UpsertRateCard: %v", err)
	}

	opts = append([]Option{WithClock(func() time.Time { return time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC) })}, opts...)
	return &fixture{store: store, calc: NewCalculator(store, opts...)}
}

func (f *fixture) setTenant(t *testing.T, tn *types.TenantPricingContext) {
	t.Helper()
	if err := f.store.UpsertTenant(context.Background(), tn); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
}

func airRequest(tenant types.TenantID, kg string) *Request {
	return &Request{
		TenantID:    tenant,
		Mode:        types.ModeAir,
		Origin:      "Guangzhou",
		Destination: "Abidjan",
		Basis:       types.BasisPerKg,
		WeightKg:    dec(kg),
	}
}

func TestQuoteMinimumChargeScenario(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Calculate(context.Background(), airRequest("platform", "5"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	q := res.Quote

	assertAmount(t, "transport", q.TransportSubtotal, "5000")
	if len(q.Surcharges) != 1 || q.Surcharges[0].Code != CodeFuel {
		t.Fatalf("expected one fuel surcharge, got %+v", q.Surcharges)
	}
	assertAmount(t, "fuel", q.Surcharges[0].Amount, "500")
	assertAmount(t, "tax", q.TaxAmount, "0")
	assertAmount(t, "total", q.Total, "5500")
	if q.Currency != types.CurrencyXOF || q.RateCardID != "gz-abj-air" {
		t.Errorf("unexpected currency/card: %s %s", q.Currency, q.RateCardID)
	}
}

func TestQuoteUpperTierScenario(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Calculate(context.Background(), airRequest("platform", "20"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	q := res.Quote

	if q.MinimumApplied {
		t.Error("floor should not be applied at 20kg")
	}
	assertAmount(t, "unit rate", q.UnitRate, "800")
	assertAmount(t, "transport", q.TransportSubtotal, "16000")
	assertAmount(t, "surcharges", q.SurchargeTotal, "1600")
	assertAmount(t, "total", q.Total, "17600")
}

func TestMinimumAppliedBelowFloor(t *testing.T) {
	f := newFixture(t)
	res, err := f.calc.Calculate(context.Background(), airRequest("platform", "2.5"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	q := res.Quote
	assertAmount(t, "tiered", q.TieredCost, "2500")
	assertAmount(t, "transport", q.TransportSubtotal, "5000")
	if !q.MinimumApplied {
		t.Error("expected the floor to be applied")
	}
	// surcharges use the floored transport
	assertAmount(t, "fuel", q.SurchargeTotal, "500")
}

func TestNoCorridorScenario(t *testing.T) {
	f := newFixture(t)
	req := airRequest("platform", "5")
	req.Origin, req.Destination = "Lagos", "Nairobi"

	_, err := f.calc.Calculate(context.Background(), req)
	if !errors.IsType(err, errors.TypeNoCorridor) {
		t.Fatalf("expected NO_CORRIDOR, got %v", err)
	}
	corridors := errors.AvailableCorridors(err)
	if len(corridors) != 1 || corridors[0] != "Guangzhou, China -> Abidjan, Ivory Coast (per_kg)" {
		t.Errorf("unexpected corridors: %v", corridors)
	}
}

type fakeRates struct {
	rate *types.FXRate
	err  error
}

func (f fakeRates) Rate(ctx context.Context, from, to types.Currency) (*types.FXRate, error) {
	return f.rate, f.err
}

func TestDisplayConversionFailureKeepsNativeQuote(t *testing.T) {
	f := newFixture(t, WithRates(fakeRates{err: errors.FxUnavailable("no rate for EUR", nil)}))
	req := airRequest("platform", "5")
	req.DisplayCurrency = types.CurrencyEUR

	res, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	assertAmount(t, "total", res.Quote.Total, "5500")
	if res.Display != nil {
		t.Error("expected no display amounts")
	}
	if res.DisplayError == nil || res.DisplayError.Type != errors.TypeFxUnavailable {
		t.Fatalf("expected FX_RATE_UNAVAILABLE display error, got %v", res.DisplayError)
	}
}

func TestDisplayConversionWithoutRateProvider(t *testing.T) {
	f := newFixture(t)
	req := airRequest("platform", "5")
	req.DisplayCurrency = types.CurrencyEUR

	res, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.DisplayError == nil || res.DisplayError.Type != errors.TypeFxUnavailable {
		t.Fatalf("expected FX_RATE_UNAVAILABLE, got %v", res.DisplayError)
	}
}

func TestDisplayConversionDoesNotTouchNativeFigures(t *testing.T) {
	rate := &types.FXRate{Base: "XOF", Quote: "EUR", Rate: dec("0.0015245"), Timestamp: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}
	f := newFixture(t, WithRates(fakeRates{rate: rate}))
	plain, err := f.calc.Calculate(context.Background(), airRequest("platform", "5"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	req := airRequest("platform", "5")
	req.DisplayCurrency = types.CurrencyEUR
	res, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	a, _ := json.Marshal(plain.Quote)
	b, _ := json.Marshal(res.Quote)
	if !bytes.Equal(a, b) {
		t.Errorf("display conversion changed the native quote:\n%s\n%s", a, b)
	}
	if res.Display == nil {
		t.Fatal("expected display amounts")
	}
	assertAmount(t, "display total", res.Display.Total, "8.38")
	assertAmount(t, "display transport", res.Display.TransportSubtotal, "7.62")
}

func TestStaleDisplayRateWarns(t *testing.T) {
	rate := &types.FXRate{Base: "XOF", Quote: "EUR", Rate: dec("0.0015"), Stale: true}
	f := newFixture(t, WithRates(fakeRates{rate: rate}))
	req := airRequest("platform", "5")
	req.DisplayCurrency = types.CurrencyEUR

	res, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Display == nil || !res.Display.Stale {
		t.Fatal("expected stale display amounts")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "stale") {
		t.Errorf("expected a stale warning, got %v", res.Warnings)
	}
}

func TestInvalidQuantity(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"zero weight", func(r *Request) { r.WeightKg = dec("0") }},
		{"negative weight", func(r *Request) { r.WeightKg = dec("-1") }},
		{"volume for per_kg card", func(r *Request) { r.WeightKg = decimal.Zero; r.VolumeM3 = dec("2") }},
		{"negative volume", func(r *Request) { r.VolumeM3 = dec("-2") }},
		{"per_m3 without volume", func(r *Request) { r.Basis = types.BasisPerM3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := airRequest("platform", "5")
			tt.mutate(req)
			_, err := f.calc.Calculate(context.Background(), req)
			if !errors.IsType(err, errors.TypeInvalidQuantity) {
				t.Errorf("expected INVALID_QUANTITY, got %v", err)
			}
		})
	}
}

func TestInputErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(r *Request)
		want   errors.Type
	}{
		{"unknown mode", func(r *Request) { r.Mode = "rail" }, errors.TypeInput},
		{"missing origin", func(r *Request) { r.Origin = " " }, errors.TypeInput},
		{"negative declared value", func(r *Request) { r.DeclaredValue = dec("-1") }, errors.TypeInput},
		{"empty addon id", func(r *Request) { r.Addons = []types.AddonSelection{{Quantity: dec("1")}} }, errors.TypeInput},
		{"unknown tenant", func(r *Request) { r.TenantID = "ghost" }, errors.TypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := airRequest("platform", "5")
			tt.mutate(req)
			_, err := f.calc.Calculate(context.Background(), req)
			if !errors.IsType(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveTierBoundaries(t *testing.T) {
	card := gzAbidjan("platform")

	tests := []struct {
		q    string
		want int
	}{
		{"0.001", 0},
		{"9.999", 0},
		{"10", 1},
		{"10.001", 1},
		{"100000", 1},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			got, err := ResolveTier(card.Tiers, dec(tt.q))
			if err != nil {
				t.Fatalf("ResolveTier: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveTier(%s) = %d, want %d", tt.q, got, tt.want)
			}
		})
	}

	if _, err := ResolveTier(card.Tiers, decimal.Zero); !errors.IsType(err, errors.TypeInvalidQuantity) {
		t.Errorf("zero quantity: expected INVALID_QUANTITY, got %v", err)
	}
}

func TestTransportMonotonicWithinTier(t *testing.T) {
	card := gzAbidjan("platform")
	card.Tiers = []types.RateTier{
		{Lower: dec("0"), Upper: bound("45"), UnitPrice: dec("1000")},
		{Lower: dec("45"), Upper: bound("100"), UnitPrice: dec("950")},
		{Lower: dec("100"), UnitPrice: dec("800")},
	}

	for _, tier := range card.Tiers {
		var prev *TransportPrice
		for step := 1; step <= 40; step++ {
			q := tier.Lower.Add(decimal.NewFromFloat(0.25).Mul(decimal.NewFromInt(int64(step))))
			if !tier.Contains(q) {
				break
			}
			p, err := PriceTransport(card, q)
			if err != nil {
				t.Fatalf("PriceTransport(%s): %v", q, err)
			}
			if p.Subtotal.LessThan(card.MinimumCharge) {
				t.Fatalf("transport %s below minimum %s at %s", p.Subtotal, card.MinimumCharge, q)
			}
			if prev != nil && p.Subtotal.LessThan(prev.Subtotal) {
				t.Fatalf("price decreased within tier: %s -> %s at %s", prev.Subtotal, p.Subtotal, q)
			}
			prev = p
		}
	}
}

func TestApplyMinimum(t *testing.T) {
	got, floored := ApplyMinimum(dec("4999"), dec("5000"))
	if !floored || !got.Equal(dec("5000")) {
		t.Errorf("ApplyMinimum(4999, 5000) = %s, %v", got, floored)
	}
	got, floored = ApplyMinimum(dec("5001"), dec("5000"))
	if floored || !got.Equal(dec("5001")) {
		t.Errorf("ApplyMinimum(5001, 5000) = %s, %v", got, floored)
	}
}

func TestSurchargesOrderIndependent(t *testing.T) {
	card := gzAbidjan("platform")
	card.SecuritySurcharge = dec("0.02")
	rules := []*types.SurchargeRule{
		{ID: "r-handling", Name: "Handling", Kind: types.SurchargePercent, Value: dec("0.05"), Base: types.BaseTransport, Active: true},
		{ID: "r-risk", Name: "Risk", Kind: types.SurchargePercent, Value: dec("0.1"), Base: types.BaseTransport, Compounding: true, Active: true},
		{ID: "r-doc", Name: "Documentation", Kind: types.SurchargeFixed, Value: dec("1500"), Currency: types.CurrencyXOF, Active: true},
		{ID: "r-ins", Name: "Valuation", Kind: types.SurchargePercent, Value: dec("0.003"), Base: types.BaseDeclaredValue, Active: true},
	}
	in := SurchargeInput{Card: card, Transport: dec("16000"), DeclaredValue: dec("250000")}

	in.Rules = rules
	base, _ := ComputeSurcharges(in)
	baseJSON, _ := json.Marshal(base)

	perms := [][]int{{3, 2, 1, 0}, {1, 0, 3, 2}, {2, 3, 0, 1}, {1, 3, 0, 2}}
	for _, perm := range perms {
		shuffled := make([]*types.SurchargeRule, len(rules))
		for i, j := range perm {
			shuffled[i] = rules[j]
		}
		in.Rules = shuffled
		lines, _ := ComputeSurcharges(in)
		got, _ := json.Marshal(lines)
		if !bytes.Equal(got, baseJSON) {
			t.Fatalf("permutation %v changed surcharges:\n%s\n%s", perm, got, baseJSON)
		}
	}

	// fuel 1600 + security 320 + handling 800 + risk (16000+2720)*0.1 + doc 1500 + valuation 750
	assertAmount(t, "total surcharges", SumLines(base), "6842")
	if base[0].Code != CodeFuel || base[1].Code != CodeSecurity {
		t.Errorf("card surcharges must come first, got %s, %s", base[0].Code, base[1].Code)
	}
}

func TestFixedSurchargeInOtherCurrencySkipped(t *testing.T) {
	card := gzAbidjan("platform")
	rules := []*types.SurchargeRule{
		{ID: "r-doc", Name: "Documentation", Kind: types.SurchargeFixed, Value: dec("25"), Currency: types.CurrencyUSD, Active: true},
	}
	lines, warnings := ComputeSurcharges(SurchargeInput{Card: card, Rules: rules, Transport: dec("5000")})
	if len(lines) != 1 || len(warnings) != 1 {
		t.Fatalf("expected fuel only and one warning, got %v / %v", lines, warnings)
	}
}

func TestPercentSurchargeRoundsHalfUp(t *testing.T) {
	card := gzAbidjan("platform")
	card.Currency = types.CurrencyUSD
	card.FuelSurcharge = dec("0.125")
	lines, _ := ComputeSurcharges(SurchargeInput{Card: card, Transport: dec("10.02")})
	// 10.02 * 0.125 = 1.2525 -> 1.25
	assertAmount(t, "fuel", lines[0].Amount, "1.25")

	lines, _ = ComputeSurcharges(SurchargeInput{Card: card, Transport: dec("10.04")})
	// 10.04 * 0.125 = 1.255 -> 1.26
	assertAmount(t, "fuel", lines[0].Amount, "1.26")
}

func TestTenantSurchargeRulesApplyToQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := []*types.SurchargeRule{
		{ID: "global", TenantID: "platform", Name: "Handling", Kind: types.SurchargePercent, Value: dec("0.05"), Base: types.BaseTransport, Active: true},
		{ID: "scoped", TenantID: "platform", Name: "Screening", Kind: types.SurchargeFixed, Value: dec("700"), Currency: types.CurrencyXOF, RateCardID: "gz-abj-air", Active: true},
		{ID: "other", TenantID: "platform", Name: "Other card", Kind: types.SurchargeFixed, Value: dec("999"), Currency: types.CurrencyXOF, RateCardID: "elsewhere", Active: true},
		{ID: "off", TenantID: "platform", Name: "Retired", Kind: types.SurchargeFixed, Value: dec("999"), Currency: types.CurrencyXOF, Active: false},
	}
	for _, r := range rules {
		if err := f.store.UpsertSurchargeRule(ctx, r); err != nil {
			t.Fatalf("UpsertSurchargeRule: %v", err)
		}
	}

	res, err := f.calc.Calculate(ctx, airRequest("platform", "20"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// fuel 1600 + handling 800 + screening 700
	assertAmount(t, "surcharges", res.Quote.SurchargeTotal, "3100")
	assertAmount(t, "total", res.Quote.Total, "19100")
}

func TestVATOnSubtotal(t *testing.T) {
	f := newFixture(t)
	f.setTenant(t, &types.TenantPricingContext{ID: "platform", VATRate: dec("0.18")})

	res, err := f.calc.Calculate(context.Background(), airRequest("platform", "20"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	q := res.Quote
	assertAmount(t, "subtotal", q.Subtotal, "17600")
	assertAmount(t, "tax", q.TaxAmount, "3168")
	assertAmount(t, "total", q.Total, "20768")
	if !q.Total.Equal(q.Subtotal.Add(q.TaxAmount)) {
		t.Error("total must equal subtotal + tax")
	}
}

func TestAddons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addons := []*types.Addon{
		{ID: "customs", TenantID: "platform", Name: "Customs handling", Pricing: types.AddonPerUnit, UnitPrice: dec("2500"), Currency: types.CurrencyXOF, Active: true},
		{ID: "insurance", TenantID: "platform", Name: "Insurance", Pricing: types.AddonDeclaredValuePercent, Rate: dec("0.015"), Currency: types.CurrencyXOF, Active: true},
		{ID: "retired", TenantID: "platform", Name: "Old service", Pricing: types.AddonPerUnit, UnitPrice: dec("1"), Currency: types.CurrencyXOF, Active: false},
		{ID: "usd-only", TenantID: "platform", Name: "Courier", Pricing: types.AddonPerUnit, UnitPrice: dec("5"), Currency: types.CurrencyUSD, Active: true},
	}
	for _, a := range addons {
		if err := f.store.UpsertAddon(ctx, a); err != nil {
			t.Fatalf("UpsertAddon: %v", err)
		}
	}

	req := airRequest("platform", "20")
	req.DeclaredValue = dec("200000")
	req.Addons = []types.AddonSelection{
		{AddonID: "insurance", Quantity: dec("1")},
		{AddonID: "customs", Quantity: dec("1")},
		{AddonID: "customs", Quantity: dec("1")},
		{AddonID: "retired", Quantity: dec("1")},
		{AddonID: "ghost", Quantity: dec("1")},
		{AddonID: "usd-only", Quantity: dec("1")},
		{AddonID: "customs", Quantity: dec("0")},
	}

	res, err := f.calc.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	q := res.Quote

	if len(q.Addons) != 2 {
		t.Fatalf("expected 2 add-on lines, got %+v", q.Addons)
	}
	if q.Addons[0].ID != "customs" || q.Addons[1].ID != "insurance" {
		t.Errorf("add-on lines not sorted by id: %s, %s", q.Addons[0].ID, q.Addons[1].ID)
	}
	assertAmount(t, "customs qty", q.Addons[0].Quantity, "2")
	assertAmount(t, "customs", q.Addons[0].Amount, "5000")
	assertAmount(t, "insurance unit", q.Addons[1].UnitPrice, "3000")
	assertAmount(t, "addons", q.AddonTotal, "8000")
	assertAmount(t, "subtotal", q.Subtotal, "25600")

	if len(res.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if !strings.HasPrefix(w, string(errors.TypeUnknownAddon)+":") {
			t.Errorf("warning without UNKNOWN_ADDON prefix: %s", w)
		}
	}
}

func TestAddonPriceReadAtCalculationTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addon := &types.Addon{ID: "customs", TenantID: "platform", Name: "Customs", Pricing: types.AddonPerUnit, UnitPrice: dec("2500"), Currency: types.CurrencyXOF, Active: true}
	if err := f.store.UpsertAddon(ctx, addon); err != nil {
		t.Fatalf("UpsertAddon: %v", err)
	}
	req := airRequest("platform", "20")
	req.Addons = []types.AddonSelection{{AddonID: "customs", Quantity: dec("1")}}

	first, _ := f.calc.Calculate(ctx, req)

	addon.UnitPrice = dec("3000")
	if err := f.store.UpsertAddon(ctx, addon); err != nil {
		t.Fatalf("UpsertAddon: %v", err)
	}
	second, _ := f.calc.Calculate(ctx, req)

	assertAmount(t, "first", first.Quote.AddonTotal, "2500")
	assertAmount(t, "second", second.Quote.AddonTotal, "3000")
	if first.Quote.ID == second.Quote.ID {
		t.Error("a configuration change must produce a new quote id")
	}
}

func TestIdempotentQuotes(t *testing.T) {
	f := newFixture(t)
	req := airRequest("platform", "12.5")
	req.DeclaredValue = dec("1000")

	a, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	b, err := f.calc.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatalf("identical inputs gave different output:\n%s\n%s", ja, jb)
	}
	if a.Quote.ID == "" {
		t.Error("expected a quote id")
	}
}

func TestResellerMarginAppliesToOwnerTransportOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.UpsertAddon(ctx, &types.Addon{ID: "customs", TenantID: "acme", Name: "Customs", Pricing: types.AddonPerUnit, UnitPrice: dec("2500"), Currency: types.CurrencyXOF, Active: true}); err != nil {
		t.Fatalf("UpsertAddon: %v", err)
	}
	if err := f.store.UpsertSurchargeRule(ctx, &types.SurchargeRule{ID: "doc", TenantID: "acme", Name: "Docs", Kind: types.SurchargeFixed, Value: dec("300"), Currency: types.CurrencyXOF, Active: true}); err != nil {
		t.Fatalf("UpsertSurchargeRule: %v", err)
	}

	req := airRequest("acme", "5")
	req.Addons = []types.AddonSelection{{AddonID: "customs", Quantity: dec("1")}}

	fixed, err := f.calc.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("Calculate (fixed): %v", err)
	}

	f.setTenant(t, &types.TenantPricingContext{ID: "acme", ParentTenantID: "platform", Margin: types.PercentMargin{Fraction: dec("0.1")}})
	percent, err := f.calc.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("Calculate (percent): %v", err)
	}

	for name, res := range map[string]*types.Result{"fixed": fixed, "percent": percent} {
		q := res.Quote
		if !q.OwnerBasePriced || q.Margin == nil {
			t.Fatalf("%s: expected owner-priced quote with margin", name)
		}
		assertAmount(t, name+" margin", q.Margin.Amount, "500")
		assertAmount(t, name+" transport", q.TransportSubtotal, "5000")
		// subtotal = 5000 + 500 margin + 500 fuel + 300 docs + 2500 customs
		assertAmount(t, name+" subtotal", q.Subtotal, "8800")
	}

	fs, _ := json.Marshal(fixed.Quote.Surcharges)
	ps, _ := json.Marshal(percent.Quote.Surcharges)
	if !bytes.Equal(fs, ps) {
		t.Errorf("surcharges changed with margin mode:\n%s\n%s", fs, ps)
	}
	fa, _ := json.Marshal(fixed.Quote.Addons)
	pa, _ := json.Marshal(percent.Quote.Addons)
	if !bytes.Equal(fa, pa) {
		t.Errorf("add-ons changed with margin mode:\n%s\n%s", fa, pa)
	}
}

func TestResellerWithoutMarginIsConfigError(t *testing.T) {
	f := newFixture(t)
	f.setTenant(t, &types.TenantPricingContext{ID: "acme", ParentTenantID: "platform"})

	_, err := f.calc.Calculate(context.Background(), airRequest("acme", "5"))
	if !errors.IsType(err, errors.TypeMarginConfig) {
		t.Fatalf("expected MARGIN_CONFIG_ERROR, got %v", err)
	}
}

func TestFixedMarginCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	f.setTenant(t, &types.TenantPricingContext{ID: "acme", ParentTenantID: "platform", Margin: types.FixedMargin{Amount: dec("5"), Currency: types.CurrencyUSD}})

	_, err := f.calc.Calculate(context.Background(), airRequest("acme", "5"))
	if !errors.IsType(err, errors.TypeMarginConfig) {
		t.Fatalf("expected MARGIN_CONFIG_ERROR, got %v", err)
	}
}

func TestOwnCardHasNoMargin(t *testing.T) {
	f := newFixture(t)
	card := gzAbidjan("acme")
	card.ID = "acme-own"
	if err := f.store.UpsertRateCard(context.Background(), card); err != nil {
		t.Fatalf("UpsertRateCard: %v", err)
	}

	res, err := f.calc.Calculate(context.Background(), airRequest("acme", "5"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if res.Quote.RateCardID != "acme-own" || res.Quote.Margin != nil {
		t.Errorf("expected own card without margin, got %s margin=%v", res.Quote.RateCardID, res.Quote.Margin)
	}
}

func TestParseMarginPolicy(t *testing.T) {
	tests := []struct {
		name                             string
		mode, amount, currency, fraction string
		want                             types.MarginMode
		wantErr                          bool
	}{
		{"none", "", "", "", "", "", false},
		{"fixed", "fixed", "500", "XOF", "", types.MarginModeFixed, false},
		{"percent", "percent", "", "", "0.12", types.MarginModePercent, false},
		{"percent without fraction", "percent", "10", "XOF", "", "", true},
		{"fixed without amount", "fixed", "", "XOF", "0.1", "", true},
		{"fixed without currency", "fixed", "10", "", "", "", true},
		{"unknown mode", "tiered", "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := types.ParseMarginPolicy(tt.mode, tt.amount, tt.currency, tt.fraction)
			if tt.wantErr {
				if !errors.IsType(err, errors.TypeMarginConfig) {
					t.Fatalf("expected MARGIN_CONFIG_ERROR, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil {
				if tt.want != "" {
					t.Fatalf("expected %s policy, got nil", tt.want)
				}
				return
			}
			if p.Mode() != tt.want {
				t.Errorf("mode = %s, want %s", p.Mode(), tt.want)
			}
		})
	}
}

func TestPlanPricing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []*types.Plan{
		{ID: "starter", OwnerTenantID: "platform", Name: "Starter", Currency: types.CurrencyUSD, PriceMonth: dec("49"), PriceYear: dec("490"), Active: true},
		{ID: "pro", OwnerTenantID: "platform", Name: "Pro", Currency: types.CurrencyUSD, PriceMonth: dec("99"), PriceYear: dec("990"), Active: true},
	} {
		if err := f.store.UpsertPlan(ctx, p); err != nil {
			t.Fatalf("UpsertPlan: %v", err)
		}
	}
	f.setTenant(t, &types.TenantPricingContext{
		ID:             "acme",
		ParentTenantID: "platform",
		Margin:         types.PercentMargin{Fraction: dec("0.2")},
		ResellPrices: map[string]types.ResellPrice{
			"pro": {PlanID: "pro", Month: dec("129"), Year: dec("1290")},
		},
	})

	tests := []struct {
		name       string
		tenant     types.TenantID
		plan       string
		month      string
		year       string
		source     types.PlanSource
		wantPlan   bool
		wantWarned bool
	}{
		{"owner sees base price", "platform", "starter", "49", "490", types.PlanSourceOwner, true, false},
		{"reseller margin", "acme", "starter", "58.8", "588", types.PlanSourceMargin, true, false},
		{"reseller override", "acme", "pro", "129", "1290", types.PlanSourceOverride, true, false},
		{"unknown plan", "acme", "enterprise", "", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := airRequest(tt.tenant, "5")
			req.PlanID = tt.plan
			res, err := f.calc.Calculate(ctx, req)
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if (res.Plan != nil) != tt.wantPlan {
				t.Fatalf("plan presence = %v, want %v", res.Plan != nil, tt.wantPlan)
			}
			if tt.wantWarned != (len(res.Warnings) > 0) {
				t.Errorf("warnings = %v", res.Warnings)
			}
			if !tt.wantPlan {
				return
			}
			assertAmount(t, "month", res.Plan.PriceMonth, tt.month)
			assertAmount(t, "year", res.Plan.PriceYear, tt.year)
			if res.Plan.Source != tt.source {
				t.Errorf("source = %s, want %s", res.Plan.Source, tt.source)
			}
		})
	}
}

func TestCorridors(t *testing.T) {
	f := newFixture(t)
	matches, err := f.calc.Corridors(context.Background(), "acme", types.ModeAir)
	if err != nil {
		t.Fatalf("Corridors: %v", err)
	}
	if len(matches) != 1 || !matches[0].OwnerBasePriced {
		t.Fatalf("expected the owner card, got %+v", matches)
	}
	if _, err := f.calc.Corridors(context.Background(), "acme", "rail"); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR, got %v", err)
	}
}

func TestConcurrentCalculations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func(i int) {
			res, err := f.calc.Calculate(ctx, airRequest("platform", fmt.Sprintf("%d", 5+i)))
			if err == nil && res.Quote.Total.IsZero() {
				err = fmt.Errorf("zero total")
			}
			done <- err
		}(i)
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Errorf("calculation failed: %v", err)
		}
	}
}
