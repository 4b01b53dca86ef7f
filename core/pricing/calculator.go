// Package pricing - Quote calculation entry point
package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"freightquote/core/catalog"
	"freightquote/core/types"
	"freightquote/internal/errors"
	"freightquote/internal/logging"
	"freightquote/internal/metrics"
)

// Request is a quote calculation request
type Request struct {
	TenantID      types.TenantID         `json:"tenant_id"`
	Mode          types.Mode             `json:"mode"`
	Origin        string                 `json:"origin"`
	Destination   string                 `json:"destination"`
	Basis         types.Basis            `json:"rate_basis"`
	WeightKg      decimal.Decimal        `json:"weight_kg"`
	VolumeM3      decimal.Decimal        `json:"volume_m3"`
	DeclaredValue decimal.Decimal        `json:"declared_value"`
	Addons        []types.AddonSelection `json:"selected_addons,omitempty"`
	PlanID        string                 `json:"plan_id,omitempty"`

	// DisplayCurrency requests converted totals alongside the native quote
	DisplayCurrency types.Currency `json:"display_currency,omitempty"`
}

// Quantity returns the measure matching the basis, validated
func (r *Request) Quantity() (decimal.Decimal, error) {
	if r.WeightKg.IsNegative() {
		return decimal.Zero, errors.InvalidQuantity("weight_kg must not be negative")
	}
	if r.VolumeM3.IsNegative() {
		return decimal.Zero, errors.InvalidQuantity("volume_m3 must not be negative")
	}
	switch r.Basis {
	case types.BasisPerKg:
		if !r.WeightKg.IsPositive() {
			return decimal.Zero, errors.InvalidQuantity("a per_kg rate needs a positive weight_kg")
		}
		return r.WeightKg, nil
	case types.BasisPerM3:
		if !r.VolumeM3.IsPositive() {
			return decimal.Zero, errors.InvalidQuantity("a per_m3 rate needs a positive volume_m3")
		}
		return r.VolumeM3, nil
	default:
		return decimal.Zero, errors.Input(fmt.Sprintf("unknown rate basis %q", r.Basis))
	}
}

// Validate checks the request shape before any pricing runs
func (r *Request) Validate() (decimal.Decimal, error) {
	if r.TenantID == "" {
		return decimal.Zero, errors.Input("tenant_id is required")
	}
	if !r.Mode.IsValid() {
		return decimal.Zero, errors.Input(fmt.Sprintf("unknown transport mode %q", r.Mode))
	}
	if strings.TrimSpace(r.Origin) == "" || strings.TrimSpace(r.Destination) == "" {
		return decimal.Zero, errors.Input("origin and destination are required")
	}
	if r.DeclaredValue.IsNegative() {
		return decimal.Zero, errors.Input("declared_value must not be negative")
	}
	for _, a := range r.Addons {
		if strings.TrimSpace(a.AddonID) == "" {
			return decimal.Zero, errors.Input("selected_addons entries need an addon_id")
		}
	}
	if r.DisplayCurrency != "" && !r.DisplayCurrency.IsValid() {
		return decimal.Zero, errors.Input(fmt.Sprintf("invalid display currency %q", r.DisplayCurrency))
	}
	return r.Quantity()
}

// RateProvider supplies exchange rates for display conversion
type RateProvider interface {
	Rate(ctx context.Context, from, to types.Currency) (*types.FXRate, error)
}

// Calculator computes quotes. It holds no per-request state and is safe
// for concurrent use.
type Calculator struct {
	store  catalog.Reader
	rates  RateProvider
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Calculator
type Option func(*Calculator)

// WithRates enables display currency conversion
func WithRates(rates RateProvider) Option {
	return func(c *Calculator) { c.rates = rates }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Calculator) { c.logger = l }
}

// WithClock sets the clock used for Result.CalculatedAt
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator creates a calculator over a configuration store
func NewCalculator(store catalog.Reader, opts ...Option) *Calculator {
	c := &Calculator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Or(c.logger).Named("pricing")
	return c
}

// Calculate prices a request. Pricing errors fail the call; a failed display
// conversion only sets Result.DisplayError.
func (c *Calculator) Calculate(ctx context.Context, req *Request) (result *types.Result, err error) {
	start := time.Now()
	ctx, span := otel.Tracer("freightquote/pricing").Start(ctx, "pricing.Calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", string(req.TenantID)),
		attribute.String("mode", string(req.Mode)),
	)
	defer func() {
		status := "ok"
		if err != nil {
			status = string(errors.TypeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		metrics.QuotesTotal.WithLabelValues(status).Inc()
		metrics.QuoteDuration.Observe(time.Since(start).Seconds())
	}()

	qty, err := req.Validate()
	if err != nil {
		return nil, err
	}

	snap, err := c.store.Snapshot(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	result, err = Price(snap, req, qty)
	if err != nil {
		if errors.IsType(err, errors.TypeNoCorridor) {
			c.logger.Debug("no corridor",
				zap.String("tenant", string(req.TenantID)),
				zap.String("origin", req.Origin),
				zap.String("destination", req.Destination),
				zap.Strings("available", errors.AvailableCorridors(err)))
		}
		return nil, err
	}
	result.CalculatedAt = c.now().UTC()
	span.SetAttributes(attribute.String("rate_card_id", result.Quote.RateCardID))

	if dropped := countAddonWarnings(result.Warnings); dropped > 0 {
		metrics.AddonsDropped.Add(float64(dropped))
		c.logger.Info("add-on selections dropped",
			zap.String("tenant", string(req.TenantID)),
			zap.Int("count", dropped))
	}

	display := req.DisplayCurrency
	if display == "" {
		display = snap.Tenant.DisplayCurrency
	}
	if display != "" && display != result.Quote.Currency {
		c.convertDisplay(ctx, result, display)
	}
	return result, nil
}

// Price is the pure part of a calculation: one snapshot in, one Result out
func Price(snap *catalog.Snapshot, req *Request, qty decimal.Decimal) (*types.Result, error) {
	match, err := snap.FindCard(catalog.CorridorQuery{
		Mode:        req.Mode,
		Basis:       req.Basis,
		Origin:      req.Origin,
		Destination: req.Destination,
	})
	if err != nil {
		return nil, err
	}
	card := match.Card

	transport, err := PriceTransport(card, qty)
	if err != nil {
		return nil, err
	}

	var margin *types.LineItem
	if match.OwnerBasePriced {
		margin, err = MarginLine(snap.Tenant, transport.Subtotal, card.Currency)
		if err != nil {
			return nil, err
		}
	}

	surcharges, warnings := ComputeSurcharges(SurchargeInput{
		Card:          card,
		Rules:         snap.RulesFor(card),
		Transport:     transport.Subtotal,
		DeclaredValue: req.DeclaredValue,
	})

	addons, addonWarnings := ResolveAddons(snap, req.Addons, req.DeclaredValue, card.Currency)
	warnings = append(warnings, addonWarnings...)

	plan, planWarnings, err := PricePlan(snap, req.PlanID)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, planWarnings...)

	quote := Assemble(&Assembly{
		Snapshot:  snap,
		Match:     match,
		Request:   req,
		Quantity:  qty,
		Transport: transport,
		Margin:    margin,
		Surcharge: surcharges,
		Addons:    addons,
	})

	if warnings == nil {
		warnings = []string{}
	}
	return &types.Result{Quote: quote, Plan: plan, Warnings: warnings}, nil
}

// convertDisplay is the last step and only ever reads the finished quote
func (c *Calculator) convertDisplay(ctx context.Context, result *types.Result, to types.Currency) {
	q := result.Quote
	if c.rates == nil {
		result.DisplayError = errors.FxUnavailable("currency conversion is not configured", nil)
		return
	}
	rate, err := c.rates.Rate(ctx, q.Currency, to)
	if err != nil {
		e, ok := errors.As(err)
		if !ok || e.Type != errors.TypeFxUnavailable {
			e = errors.FxUnavailable(fmt.Sprintf("no rate from %s to %s", q.Currency, to), err)
		}
		result.DisplayError = e
		c.logger.Warn("display conversion failed",
			zap.String("from", string(q.Currency)),
			zap.String("to", string(to)),
			zap.Error(err))
		return
	}
	if rate.Stale {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: display rate %s->%s is stale (as of %s)",
			errors.TypeFxUnavailable, q.Currency, to, rate.Timestamp.Format(time.RFC3339)))
	}

	convert := func(d decimal.Decimal) decimal.Decimal {
		return types.RoundMoney(d.Mul(rate.Rate), to)
	}
	result.Display = &types.DisplayAmounts{
		Currency:          to,
		Rate:              rate.Rate,
		Stale:             rate.Stale,
		RatesAsOf:         rate.Timestamp,
		TransportSubtotal: convert(q.TransportSubtotal),
		Subtotal:          convert(q.Subtotal),
		TaxAmount:         convert(q.TaxAmount),
		Total:             convert(q.Total),
	}
}

// Corridors lists the corridors a tenant can quote for a mode
func (c *Calculator) Corridors(ctx context.Context, tenant types.TenantID, mode types.Mode) ([]catalog.Match, error) {
	if mode != "" && !mode.IsValid() {
		return nil, errors.Input(fmt.Sprintf("unknown transport mode %q", mode))
	}
	snap, err := c.store.Snapshot(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return snap.Cards(mode), nil
}

func countAddonWarnings(warnings []string) int {
	n := 0
	prefix := string(errors.TypeUnknownAddon) + ":"
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}
