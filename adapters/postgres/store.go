// Package postgres - Postgres tenant configuration store
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/core/catalog"
	"freightquote/core/types"
	"freightquote/internal/errors"
	"freightquote/internal/logging"
)

//go:embed schema.sql
var schema string

var _ catalog.Store = (*Store)(nil)

// Store implements catalog.Store on Postgres
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects and pings the database
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Config("failed to open postgres db", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Network("failed to ping postgres db", err)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logging.Or(logger).Named("postgres")}
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Internal("failed to apply schema", err)
	}
	s.logger.Info("schema applied")
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Snapshot reads the tenant's configuration in one repeatable-read transaction
func (s *Store) Snapshot(ctx context.Context, tenantID types.TenantID) (*catalog.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, errors.Network("failed to begin snapshot", err)
	}
	defer tx.Rollback()

	tenant, err := loadTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	var owner *types.TenantPricingContext
	ids := []string{string(tenant.ID)}
	if tenant.IsReseller() {
		owner, err = loadTenant(ctx, tx, tenant.ParentTenantID)
		if err != nil {
			if errors.IsType(err, errors.TypeNotFound) {
				return nil, errors.Config(fmt.Sprintf("tenant %s resells from unknown owner %s", tenant.ID, tenant.ParentTenantID), err)
			}
			return nil, err
		}
		ids = append(ids, string(owner.ID))
	}

	cards, err := loadCards(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	var own, ownerCards []*types.RateCard
	for _, c := range cards {
		if c.TenantID == tenant.ID {
			own = append(own, c)
		} else {
			ownerCards = append(ownerCards, c)
		}
	}

	rules, err := loadRules(ctx, tx, tenant.ID)
	if err != nil {
		return nil, err
	}

	all, err := loadAddons(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	addons := map[string]*types.Addon{}
	for _, a := range all {
		if a.TenantID == tenant.ID {
			addons[a.ID] = a
		}
	}
	for _, a := range all {
		if _, shadowed := addons[a.ID]; !shadowed {
			addons[a.ID] = a
		}
	}

	planOwner := tenant.ID
	if owner != nil {
		planOwner = owner.ID
	}
	plans, err := loadPlans(ctx, tx, planOwner)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Network("failed to finish snapshot", err)
	}
	return catalog.NewSnapshot(tenant, owner, own, ownerCards, rules, addons, plans)
}

func loadTenant(ctx context.Context, q querier, id types.TenantID) (*types.TenantPricingContext, error) {
	var (
		t                                types.TenantPricingContext
		parent                           sql.NullString
		displayCurrency, mode, marginCcy string
		marginAmount, marginFraction     decimal.NullDecimal
	)
	err := q.QueryRowContext(ctx, `
        SELECT id, name, parent_tenant_id, display_currency, vat_rate,
               margin_mode, margin_amount, margin_currency, margin_fraction
        FROM tenants WHERE id = $1`, string(id)).Scan(
		&t.ID, &t.Name, &parent, &displayCurrency, &t.VATRate,
		&mode, &marginAmount, &marginCcy, &marginFraction,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("tenant", string(id))
	}
	if err != nil {
		return nil, errors.Network("failed to load tenant", err)
	}
	t.ParentTenantID = types.TenantID(parent.String)
	t.DisplayCurrency = types.Currency(displayCurrency)

	t.Margin, err = types.ParseMarginPolicy(mode, nullString(marginAmount), marginCcy, nullString(marginFraction))
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
        SELECT plan_id, month, year FROM resell_prices WHERE tenant_id = $1`, string(id))
	if err != nil {
		return nil, errors.Network("failed to load resell prices", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rp types.ResellPrice
		if err := rows.Scan(&rp.PlanID, &rp.Month, &rp.Year); err != nil {
			return nil, errors.Internal("failed to scan resell price", err)
		}
		if t.ResellPrices == nil {
			t.ResellPrices = map[string]types.ResellPrice{}
		}
		t.ResellPrices[rp.PlanID] = rp
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Network("failed to load resell prices", err)
	}
	return &t, nil
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func loadCards(ctx context.Context, q querier, tenants []string) ([]*types.RateCard, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT id, tenant_id, mode, basis, origin_country, origin_city,
               destination_country, destination_city, currency, tiers,
               minimum_charge, fuel_surcharge, security_surcharge, peak_season_surcharge,
               active, seq, created_at
        FROM rate_cards
        WHERE tenant_id = ANY($1)
        ORDER BY created_at, seq, id`, pq.Array(tenants))
	if err != nil {
		return nil, errors.Network("failed to load rate cards", err)
	}
	defer rows.Close()

	var cards []*types.RateCard
	for rows.Next() {
		var (
			c     types.RateCard
			tiers []byte
		)
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Mode, &c.Basis,
			&c.Origin.Country, &c.Origin.City,
			&c.Destination.Country, &c.Destination.City,
			&c.Currency, &tiers,
			&c.MinimumCharge, &c.FuelSurcharge, &c.SecuritySurcharge, &c.PeakSeasonSurcharge,
			&c.Active, &c.Seq, &c.CreatedAt,
		); err != nil {
			return nil, errors.Internal("failed to scan rate card", err)
		}
		if c.Tiers, err = decodeTiers(tiers); err != nil {
			return nil, errors.Internal("rate card "+c.ID+" has malformed tiers", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Network("failed to load rate cards", err)
	}
	return cards, nil
}

func loadRules(ctx context.Context, q querier, tenant types.TenantID) ([]*types.SurchargeRule, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT id, tenant_id, name, kind, value, base, rate_card_id, compounding, currency, active
        FROM surcharge_rules WHERE tenant_id = $1`, string(tenant))
	if err != nil {
		return nil, errors.Network("failed to load surcharge rules", err)
	}
	defer rows.Close()

	var rules []*types.SurchargeRule
	for rows.Next() {
		var r types.SurchargeRule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Kind, &r.Value, &r.Base,
			&r.RateCardID, &r.Compounding, &r.Currency, &r.Active); err != nil {
			return nil, errors.Internal("failed to scan surcharge rule", err)
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Network("failed to load surcharge rules", err)
	}
	return rules, nil
}

func loadAddons(ctx context.Context, q querier, tenants []string) ([]*types.Addon, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT tenant_id, id, name, pricing, unit_price, rate, currency, active
        FROM addons WHERE tenant_id = ANY($1)`, pq.Array(tenants))
	if err != nil {
		return nil, errors.Network("failed to load add-ons", err)
	}
	defer rows.Close()

	var addons []*types.Addon
	for rows.Next() {
		var a types.Addon
		if err := rows.Scan(&a.TenantID, &a.ID, &a.Name, &a.Pricing, &a.UnitPrice,
			&a.Rate, &a.Currency, &a.Active); err != nil {
			return nil, errors.Internal("failed to scan add-on", err)
		}
		addons = append(addons, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Network("failed to load add-ons", err)
	}
	return addons, nil
}

func loadPlans(ctx context.Context, q querier, owner types.TenantID) (map[string]*types.Plan, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT id, owner_tenant_id, name, currency, price_month, price_year, active
        FROM plans WHERE owner_tenant_id = $1`, string(owner))
	if err != nil {
		return nil, errors.Network("failed to load plans", err)
	}
	defer rows.Close()

	plans := map[string]*types.Plan{}
	for rows.Next() {
		var p types.Plan
		if err := rows.Scan(&p.ID, &p.OwnerTenantID, &p.Name, &p.Currency,
			&p.PriceMonth, &p.PriceYear, &p.Active); err != nil {
			return nil, errors.Internal("failed to scan plan", err)
		}
		plans[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Network("failed to load plans", err)
	}
	return plans, nil
}

// UpsertTenant creates or replaces a tenant and its resell prices
func (s *Store) UpsertTenant(ctx context.Context, t *types.TenantPricingContext) error {
	if err := t.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	mode, amount, currency, fraction := types.MarginFields(t.Margin)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Network("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO tenants (id, name, parent_tenant_id, display_currency, vat_rate,
                             margin_mode, margin_amount, margin_currency, margin_fraction, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::numeric, $8, NULLIF($9, '')::numeric, now())
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            parent_tenant_id = EXCLUDED.parent_tenant_id,
            display_currency = EXCLUDED.display_currency,
            vat_rate = EXCLUDED.vat_rate,
            margin_mode = EXCLUDED.margin_mode,
            margin_amount = EXCLUDED.margin_amount,
            margin_currency = EXCLUDED.margin_currency,
            margin_fraction = EXCLUDED.margin_fraction,
            updated_at = now()`,
		string(t.ID), t.Name, sql.NullString{String: string(t.ParentTenantID), Valid: t.IsReseller()},
		string(t.DisplayCurrency), t.VATRate, mode, amount, currency, fraction)
	if err != nil {
		return writeError("tenant", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resell_prices WHERE tenant_id = $1`, string(t.ID)); err != nil {
		return writeError("resell prices", err)
	}
	for _, rp := range t.ResellPrices {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO resell_prices (tenant_id, plan_id, month, year) VALUES ($1, $2, $3, $4)`,
			string(t.ID), rp.PlanID, rp.Month, rp.Year); err != nil {
			return writeError("resell price", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Network("failed to commit tenant", err)
	}
	return nil
}

// UpsertRateCard creates or replaces a rate card.
// Replacing a card keeps its creation time and sequence.
func (s *Store) UpsertRateCard(ctx context.Context, card *types.RateCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if err := card.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	tiers, err := encodeTiers(card.Tiers)
	if err != nil {
		return errors.Input(err.Error())
	}
	createdAt := sql.NullTime{Time: card.CreatedAt, Valid: !card.CreatedAt.IsZero()}

	err = s.db.QueryRowContext(ctx, `
        INSERT INTO rate_cards (id, tenant_id, mode, basis, origin_country, origin_city,
                                destination_country, destination_city, currency, tiers,
                                minimum_charge, fuel_surcharge, security_surcharge, peak_season_surcharge,
                                active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, COALESCE($16, now()))
        ON CONFLICT (id) DO UPDATE SET
            mode = EXCLUDED.mode,
            basis = EXCLUDED.basis,
            origin_country = EXCLUDED.origin_country,
            origin_city = EXCLUDED.origin_city,
            destination_country = EXCLUDED.destination_country,
            destination_city = EXCLUDED.destination_city,
            currency = EXCLUDED.currency,
            tiers = EXCLUDED.tiers,
            minimum_charge = EXCLUDED.minimum_charge,
            fuel_surcharge = EXCLUDED.fuel_surcharge,
            security_surcharge = EXCLUDED.security_surcharge,
            peak_season_surcharge = EXCLUDED.peak_season_surcharge,
            active = EXCLUDED.active
        WHERE rate_cards.tenant_id = EXCLUDED.tenant_id
        RETURNING seq, created_at`,
		card.ID, string(card.TenantID), string(card.Mode), string(card.Basis),
		card.Origin.Country, card.Origin.City, card.Destination.Country, card.Destination.City,
		string(card.Currency), tiers,
		card.MinimumCharge, card.FuelSurcharge, card.SecuritySurcharge, card.PeakSeasonSurcharge,
		card.Active, createdAt,
	).Scan(&card.Seq, &card.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Input("rate card " + card.ID + " belongs to another tenant")
	}
	if err != nil {
		return writeError("rate card", err)
	}
	card.CreatedAt = card.CreatedAt.UTC()
	return nil
}

// UpsertSurchargeRule creates or replaces a surcharge rule
func (s *Store) UpsertSurchargeRule(ctx context.Context, r *types.SurchargeRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := r.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO surcharge_rules (id, tenant_id, name, kind, value, base, rate_card_id, compounding, currency, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            kind = EXCLUDED.kind,
            value = EXCLUDED.value,
            base = EXCLUDED.base,
            rate_card_id = EXCLUDED.rate_card_id,
            compounding = EXCLUDED.compounding,
            currency = EXCLUDED.currency,
            active = EXCLUDED.active
        WHERE surcharge_rules.tenant_id = EXCLUDED.tenant_id
        RETURNING id`,
		r.ID, string(r.TenantID), r.Name, string(r.Kind), r.Value, string(r.Base),
		r.RateCardID, r.Compounding, string(r.Currency), r.Active).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Input("surcharge rule " + r.ID + " belongs to another tenant")
	}
	if err != nil {
		return writeError("surcharge rule", err)
	}
	return nil
}

// UpsertAddon creates or replaces an add-on
func (s *Store) UpsertAddon(ctx context.Context, a *types.Addon) error {
	if err := a.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO addons (tenant_id, id, name, pricing, unit_price, rate, currency, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (tenant_id, id) DO UPDATE SET
            name = EXCLUDED.name,
            pricing = EXCLUDED.pricing,
            unit_price = EXCLUDED.unit_price,
            rate = EXCLUDED.rate,
            currency = EXCLUDED.currency,
            active = EXCLUDED.active`,
		string(a.TenantID), a.ID, a.Name, string(a.Pricing), a.UnitPrice, a.Rate, string(a.Currency), a.Active)
	if err != nil {
		return writeError("add-on", err)
	}
	return nil
}

// UpsertPlan creates or replaces a plan
func (s *Store) UpsertPlan(ctx context.Context, p *types.Plan) error {
	if err := p.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO plans (id, owner_tenant_id, name, currency, price_month, price_year, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            currency = EXCLUDED.currency,
            price_month = EXCLUDED.price_month,
            price_year = EXCLUDED.price_year,
            active = EXCLUDED.active
        WHERE plans.owner_tenant_id = EXCLUDED.owner_tenant_id
        RETURNING id`,
		p.ID, string(p.OwnerTenantID), p.Name, string(p.Currency), p.PriceMonth, p.PriceYear, p.Active).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Input("plan " + p.ID + " belongs to another tenant")
	}
	if err != nil {
		return writeError("plan", err)
	}
	return nil
}

// writeError maps a foreign key violation to NOT_FOUND
func writeError(what string, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == "23503" {
		return errors.NotFound("referenced tenant", pqErr.Constraint).WithContext("detail", pqErr.Detail)
	}
	return errors.Network(fmt.Sprintf("failed to write %s", what), err)
}

// tierJSON keeps decimals as strings inside the JSONB column
type tierJSON struct {
	Lower     string  `json:"lower"`
	Upper     *string `json:"upper,omitempty"`
	UnitPrice string  `json:"unit_price"`
}

func encodeTiers(tiers []types.RateTier) ([]byte, error) {
	out := make([]tierJSON, len(tiers))
	for i, t := range tiers {
		out[i] = tierJSON{Lower: t.Lower.String(), UnitPrice: t.UnitPrice.String()}
		if t.Upper != nil {
			u := t.Upper.String()
			out[i].Upper = &u
		}
	}
	return json.Marshal(out)
}

func decodeTiers(data []byte) ([]types.RateTier, error) {
	var raw []tierJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	tiers := make([]types.RateTier, len(raw))
	for i, r := range raw {
		lower, err := decimal.NewFromString(r.Lower)
		if err != nil {
			return nil, fmt.Errorf("tier %d lower: %w", i, err)
		}
		price, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("tier %d unit_price: %w", i, err)
		}
		tiers[i] = types.RateTier{Lower: lower, UnitPrice: price}
		if r.Upper != nil {
			u, err := decimal.NewFromString(*r.Upper)
			if err != nil {
				return nil, fmt.Errorf("tier %d upper: %w", i, err)
			}
			tiers[i].Upper = &u
		}
	}
	return tiers, nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
