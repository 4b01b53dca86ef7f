// Package hclconfig - HCL tenant pricing configuration
// A pricing file declares tenants, rate cards, surcharge rules, add-ons and
// plans. Amounts and fractions are strings so they never pass through float64.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/core/catalog"
	"freightquote/core/types"
	"freightquote/internal/errors"
	"freightquote/internal/logging"
)

// File is the decoded, validated content of a pricing file
type File struct {
	Tenants    []*types.TenantPricingContext
	RateCards  []*types.RateCard
	Surcharges []*types.SurchargeRule
	Addons     []*types.Addon
	Plans      []*types.Plan
}

type fileBlock struct {
	Tenants    []tenantBlock    `hcl:"tenant,block"`
	RateCards  []rateCardBlock  `hcl:"rate_card,block"`
	Surcharges []surchargeBlock `hcl:"surcharge,block"`
	Addons     []addonBlock     `hcl:"addon,block"`
	Plans      []planBlock      `hcl:"plan,block"`
}

type tenantBlock struct {
	ID              string        `hcl:"id,label"`
	Name            string        `hcl:"name,optional"`
	Parent          string        `hcl:"parent,optional"`
	DisplayCurrency string        `hcl:"display_currency,optional"`
	VATRate         string        `hcl:"vat_rate,optional"`
	Margin          *marginBlock  `hcl:"margin,block"`
	Resell          []resellBlock `hcl:"resell,block"`
}

type marginBlock struct {
	Mode     string `hcl:"mode"`
	Amount   string `hcl:"amount,optional"`
	Currency string `hcl:"currency,optional"`
	Fraction string `hcl:"fraction,optional"`
}

type resellBlock struct {
	PlanID string `hcl:"plan,label"`
	Month  string `hcl:"month"`
	Year   string `hcl:"year"`
}

type locationBlock struct {
	Country string `hcl:"country"`
	City    string `hcl:"city,optional"`
}

type tierBlock struct {
	Lower     string  `hcl:"lower"`
	Upper     *string `hcl:"upper,optional"`
	UnitPrice string  `hcl:"unit_price"`
}

type rateCardBlock struct {
	ID                  string        `hcl:"id,label"`
	Tenant              string        `hcl:"tenant"`
	Mode                string        `hcl:"mode"`
	Basis               string        `hcl:"basis"`
	Currency            string        `hcl:"currency"`
	MinimumCharge       string        `hcl:"minimum_charge,optional"`
	FuelSurcharge       string        `hcl:"fuel_surcharge,optional"`
	SecuritySurcharge   string        `hcl:"security_surcharge,optional"`
	PeakSeasonSurcharge string        `hcl:"peak_season_surcharge,optional"`
	Active              *bool         `hcl:"active,optional"`
	CreatedAt           string        `hcl:"created_at,optional"`
	Origin              locationBlock `hcl:"origin,block"`
	Destination         locationBlock `hcl:"destination,block"`
	Tiers               []tierBlock   `hcl:"tier,block"`
}

type surchargeBlock struct {
	ID          string `hcl:"id,label"`
	Tenant      string `hcl:"tenant"`
	Name        string `hcl:"name"`
	Kind        string `hcl:"kind"`
	Value       string `hcl:"value"`
	Base        string `hcl:"base,optional"`
	RateCard    string `hcl:"rate_card,optional"`
	Compounding bool   `hcl:"compounding,optional"`
	Currency    string `hcl:"currency,optional"`
	Active      *bool  `hcl:"active,optional"`
}

type addonBlock struct {
	ID        string `hcl:"id,label"`
	Tenant    string `hcl:"tenant"`
	Name      string `hcl:"name"`
	Pricing   string `hcl:"pricing"`
	UnitPrice string `hcl:"unit_price,optional"`
	Rate      string `hcl:"rate,optional"`
	Currency  string `hcl:"currency"`
	Active    *bool  `hcl:"active,optional"`
}

type planBlock struct {
	ID         string `hcl:"id,label"`
	Owner      string `hcl:"owner"`
	Name       string `hcl:"name"`
	Currency   string `hcl:"currency"`
	PriceMonth string `hcl:"price_month"`
	PriceYear  string `hcl:"price_year"`
	Active     *bool  `hcl:"active,optional"`
}

// Load reads and decodes a pricing file
func Load(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("failed to read pricing file", err).WithContext("path", path)
	}
	return Decode(path, src)
}

// Decode parses HCL source. filename is only used in diagnostics.
func Decode(filename string, src []byte) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	var raw fileBlock
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return nil, diagError(diags)
	}
	return convert(&raw)
}

func diagError(diags hcl.Diagnostics) error {
	msgs := make([]string, 0, len(diags))
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		loc := ""
		if diag.Subject != nil {
			loc = fmt.Sprintf("%s:%d: ", diag.Subject.Filename, diag.Subject.Start.Line)
		}
		msgs = append(msgs, loc+diag.Summary+": "+diag.Detail)
	}
	return errors.Config("invalid pricing file", fmt.Errorf("%s", strings.Join(msgs, "; ")))
}

// fields collects decimal parse failures so one message reports all of them
type fields struct {
	where string
	errs  []string
}

func (p *fields) dec(name, s string) decimal.Decimal {
	d, err := types.ParseDecimal(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %s %q is not a number", p.where, name, s))
	}
	return d
}

func (p *fields) currency(name, s string) types.Currency {
	if s == "" {
		return ""
	}
	c, err := types.ParseCurrency(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %s: %v", p.where, name, err))
	}
	return c
}

func (p *fields) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return errors.Config(strings.Join(p.errs, "; "), nil)
}

func active(b *bool) bool {
	return b == nil || *b
}

func convert(raw *fileBlock) (*File, error) {
	out := &File{}

	for _, b := range raw.Tenants {
		p := &fields{where: "tenant " + b.ID}
		t := &types.TenantPricingContext{
			ID:              types.TenantID(b.ID),
			Name:            b.Name,
			ParentTenantID:  types.TenantID(b.Parent),
			DisplayCurrency: p.currency("display_currency", b.DisplayCurrency),
			VATRate:         p.dec("vat_rate", b.VATRate),
		}
		if b.Margin != nil {
			m, err := types.ParseMarginPolicy(b.Margin.Mode, b.Margin.Amount, b.Margin.Currency, b.Margin.Fraction)
			if err != nil {
				return nil, errors.Wrap(errors.TypeMarginConfig, "tenant "+b.ID, err)
			}
			t.Margin = m
		}
		if len(b.Resell) > 0 {
			t.ResellPrices = make(map[string]types.ResellPrice, len(b.Resell))
			for _, r := range b.Resell {
				t.ResellPrices[r.PlanID] = types.ResellPrice{
					PlanID: r.PlanID,
					Month:  p.dec("resell month", r.Month),
					Year:   p.dec("resell year", r.Year),
				}
			}
		}
		if err := p.err(); err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, errors.Config(err.Error(), nil)
		}
		out.Tenants = append(out.Tenants, t)
	}

	for _, b := range raw.RateCards {
		card, err := convertCard(b)
		if err != nil {
			return nil, err
		}
		out.RateCards = append(out.RateCards, card)
	}

	for _, b := range raw.Surcharges {
		p := &fields{where: "surcharge " + b.ID}
		r := &types.SurchargeRule{
			ID:          b.ID,
			TenantID:    types.TenantID(b.Tenant),
			Name:        b.Name,
			Kind:        types.SurchargeKind(b.Kind),
			Value:       p.dec("value", b.Value),
			Base:        types.SurchargeBase(b.Base),
			RateCardID:  b.RateCard,
			Compounding: b.Compounding,
			Currency:    p.currency("currency", b.Currency),
			Active:      active(b.Active),
		}
		if r.Kind == types.SurchargePercent && r.Base == "" {
			r.Base = types.BaseTransport
		}
		if err := p.err(); err != nil {
			return nil, err
		}
		if err := r.Validate(); err != nil {
			return nil, errors.Config(err.Error(), nil)
		}
		out.Surcharges = append(out.Surcharges, r)
	}

	for _, b := range raw.Addons {
		p := &fields{where: "addon " + b.ID}
		a := &types.Addon{
			ID:        b.ID,
			TenantID:  types.TenantID(b.Tenant),
			Name:      b.Name,
			Pricing:   types.AddonPricing(b.Pricing),
			UnitPrice: p.dec("unit_price", b.UnitPrice),
			Rate:      p.dec("rate", b.Rate),
			Currency:  p.currency("currency", b.Currency),
			Active:    active(b.Active),
		}
		if err := p.err(); err != nil {
			return nil, err
		}
		if err := a.Validate(); err != nil {
			return nil, errors.Config(err.Error(), nil)
		}
		out.Addons = append(out.Addons, a)
	}

	for _, b := range raw.Plans {
		p := &fields{where: "plan " + b.ID}
		pl := &types.Plan{
			ID:            b.ID,
			OwnerTenantID: types.TenantID(b.Owner),
			Name:          b.Name,
			Currency:      p.currency("currency", b.Currency),
			PriceMonth:    p.dec("price_month", b.PriceMonth),
			PriceYear:     p.dec("price_year", b.PriceYear),
			Active:        active(b.Active),
		}
		if err := p.err(); err != nil {
			return nil, err
		}
		if err := pl.Validate(); err != nil {
			return nil, errors.Config(err.Error(), nil)
		}
		out.Plans = append(out.Plans, pl)
	}

	return out, nil
}

func convertCard(b rateCardBlock) (*types.RateCard, error) {
	p := &fields{where: "rate_card " + b.ID}
	mode, err := types.ParseMode(b.Mode)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", p.where, err))
	}
	basis, err := types.ParseBasis(b.Basis)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", p.where, err))
	}

	card := &types.RateCard{
		ID:                  b.ID,
		TenantID:            types.TenantID(b.Tenant),
		Mode:                mode,
		Basis:               basis,
		Origin:              types.Location{Country: b.Origin.Country, City: b.Origin.City},
		Destination:         types.Location{Country: b.Destination.Country, City: b.Destination.City},
		Currency:            p.currency("currency", b.Currency),
		MinimumCharge:       p.dec("minimum_charge", b.MinimumCharge),
		FuelSurcharge:       p.dec("fuel_surcharge", b.FuelSurcharge),
		SecuritySurcharge:   p.dec("security_surcharge", b.SecuritySurcharge),
		PeakSeasonSurcharge: p.dec("peak_season_surcharge", b.PeakSeasonSurcharge),
		Active:              active(b.Active),
	}
	if b.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, b.CreatedAt)
		if err != nil {
			p.errs = append(p.errs, fmt.Sprintf("%s: created_at: %v", p.where, err))
		}
		card.CreatedAt = ts.UTC()
	}
	for _, t := range b.Tiers {
		tier := types.RateTier{
			Lower:     p.dec("tier lower", t.Lower),
			UnitPrice: p.dec("tier unit_price", t.UnitPrice),
		}
		if t.Upper != nil {
			u := p.dec("tier upper", *t.Upper)
			tier.Upper = &u
		}
		card.Tiers = append(card.Tiers, tier)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if err := card.Validate(); err != nil {
		return nil, errors.Config(err.Error(), nil)
	}
	return card, nil
}

// Apply upserts everything in f into store, tenants first.
// Owners are written before the resellers that reference them.
func Apply(ctx context.Context, store catalog.Store, f *File, logger *zap.Logger) error {
	logger = logging.Or(logger)

	tenants := append([]*types.TenantPricingContext(nil), f.Tenants...)
	for pass := 0; pass < 2; pass++ {
		for _, t := range tenants {
			if t.IsReseller() != (pass == 1) {
				continue
			}
			if err := store.UpsertTenant(ctx, t); err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
		}
	}
	for _, c := range f.RateCards {
		if err := store.UpsertRateCard(ctx, c); err != nil {
			return fmt.Errorf("rate card %s: %w", c.ID, err)
		}
	}
	for _, r := range f.Surcharges {
		if err := store.UpsertSurchargeRule(ctx, r); err != nil {
			return fmt.Errorf("surcharge %s: %w", r.ID, err)
		}
	}
	for _, a := range f.Addons {
		if err := store.UpsertAddon(ctx, a); err != nil {
			return fmt.Errorf("addon %s: %w", a.ID, err)
		}
	}
	for _, p := range f.Plans {
		if err := store.UpsertPlan(ctx, p); err != nil {
			return fmt.Errorf("plan %s: %w", p.ID, err)
		}
	}

	logger.Info("pricing configuration applied",
		zap.Int("tenants", len(f.Tenants)),
		zap.Int("rate_cards", len(f.RateCards)),
		zap.Int("surcharges", len(f.Surcharges)),
		zap.Int("addons", len(f.Addons)),
		zap.Int("plans", len(f.Plans)))
	return nil
}
