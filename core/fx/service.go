// Package fx - Currency conversion service
// Rates are held against one reference currency and cached with a TTL.
// Readers never lock and never wait while any table is known: an expired
// table is served flagged stale while one single-flighted refresh runs on a
// context detached from the caller. Only the very first load is waited on.
package fx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"freightquote/core/types"
	"freightquote/internal/errors"
	"freightquote/internal/logging"
	"freightquote/internal/metrics"
)

// Source fetches a complete rate table
type Source interface {
	FetchRates(ctx context.Context) (*types.RateTable, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (*types.RateTable, error)

// FetchRates implements Source
func (f SourceFunc) FetchRates(ctx context.Context) (*types.RateTable, error) {
	return f(ctx)
}

// Config controls caching and refresh behaviour
type Config struct {
	// TTL is how long a fetched table is served without refreshing
	TTL time.Duration

	// RefreshTimeout bounds one refresh, retries included
	RefreshTimeout time.Duration

	// RetryAttempts is the number of fetches per refresh
	RetryAttempts int

	// RetryBackoff is the wait before the second attempt; it doubles after that
	RetryBackoff time.Duration

	// FailureCooldown is how long after a failed refresh the last known
	// table is served without trying again
	FailureCooldown time.Duration
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		TTL:             15 * time.Minute,
		RefreshTimeout:  5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    200 * time.Millisecond,
		FailureCooldown: 30 * time.Second,
	}
}

// Conversion is the result of converting an amount
type Conversion struct {
	Amount      decimal.Decimal `json:"amount"`
	From        types.Currency  `json:"from"`
	To          types.Currency  `json:"to"`
	Rate        decimal.Decimal `json:"rate"`
	ConvertedAt time.Time       `json:"converted_at"`

	// Stale is set when the rates are past their TTL because a refresh failed
	Stale     bool      `json:"stale"`
	RatesAsOf time.Time `json:"rates_as_of"`
}

// entry is immutable once published
type entry struct {
	table     *types.RateTable
	fetchedAt time.Time
}

// failure records the last failed refresh
type failure struct {
	at  time.Time
	err error
}

// Service converts amounts between currencies
type Service struct {
	source Source
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	current atomic.Pointer[entry]
	failed  atomic.Pointer[failure]
	group   singleflight.Group
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock used for TTL checks and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a conversion service. Zero config fields take defaults.
func NewService(source Source, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.FailureCooldown < 0 {
		cfg.FailureCooldown = 0
	}

	s := &Service{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).Named("fx")
	return s
}

// Convert converts amount and rounds it to the target currency's minor unit.
// Same-currency conversion returns the amount unchanged at rate 1.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to types.Currency) (*Conversion, error) {
	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return nil, err
	}
	converted := amount
	if from != to {
		converted = types.RoundMoney(amount.Mul(rate.Rate), to)
	}
	return &Conversion{
		Amount:      converted,
		From:        from,
		To:          to,
		Rate:        rate.Rate,
		ConvertedAt: s.now().UTC(),
		Stale:       rate.Stale,
		RatesAsOf:   rate.Timestamp,
	}, nil
}

// Rate returns the price of one from unit in to units, composed through the
// reference currency
func (s *Service) Rate(ctx context.Context, from, to types.Currency) (*types.FXRate, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, errors.Input(fmt.Sprintf("invalid currency pair %q/%q", from, to))
	}
	if from == to {
		return &types.FXRate{Base: from, Quote: to, Rate: decimal.NewFromInt(1), Timestamp: s.now().UTC()}, nil
	}

	table, stale, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	return CrossRate(table, from, to, stale)
}

// CrossRate derives from->to from a reference-based table
func CrossRate(table *types.RateTable, from, to types.Currency, stale bool) (*types.FXRate, error) {
	fromRef, ok := table.PerReference(from)
	if !ok {
		return nil, errors.FxUnavailable(fmt.Sprintf("no %s rate against %s", from, table.Reference), nil)
	}
	toRef, ok := table.PerReference(to)
	if !ok {
		return nil, errors.FxUnavailable(fmt.Sprintf("no %s rate against %s", to, table.Reference), nil)
	}
	return &types.FXRate{
		Base:      from,
		Quote:     to,
		Rate:      toRef.Div(fromRef),
		Timestamp: table.AsOf,
		Stale:     stale,
	}, nil
}

// Table returns the current rate table, refreshing it when expired
func (s *Service) Table(ctx context.Context) (*types.RateTable, bool, error) {
	return s.table(ctx)
}

func (s *Service) table(ctx context.Context) (*types.RateTable, bool, error) {
	cur := s.current.Load()
	now := s.now()
	if cur != nil && now.Sub(cur.fetchedAt) < s.cfg.TTL {
		return cur.table, false, nil
	}

	if f := s.failed.Load(); f != nil && now.Sub(f.at) < s.cfg.FailureCooldown {
		return s.fallback(cur, f.err)
	}

	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		// another flight may have finished since the load above
		if e := s.current.Load(); e != nil && s.now().Sub(e.fetchedAt) < s.cfg.TTL {
			return e, nil
		}
		// detached: the refresh outlives any one caller
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		return s.refresh(rctx)
	})

	if cur != nil {
		metrics.FXStaleServed.Inc()
		s.logger.Debug("serving expired exchange rates during refresh",
			zap.Time("fetched_at", cur.fetchedAt))
		return cur.table, true, nil
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.fallback(nil, res.Err)
		}
		return res.Val.(*entry).table, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// fallback serves the last known table after a failed refresh
func (s *Service) fallback(cur *entry, cause error) (*types.RateTable, bool, error) {
	if cur == nil {
		return nil, false, errors.FxUnavailable("no exchange rates available", cause)
	}
	metrics.FXStaleServed.Inc()
	s.logger.Warn("serving stale exchange rates",
		zap.Time("fetched_at", cur.fetchedAt),
		zap.Time("as_of", cur.table.AsOf),
		zap.Error(cause))
	return cur.table, true, nil
}

// Refresh fetches a new table unconditionally and publishes it
func (s *Service) Refresh(ctx context.Context) (*types.RateTable, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()
	e, err := s.refresh(rctx)
	if err != nil {
		return nil, errors.FxUnavailable("exchange rate refresh failed", err)
	}
	return e.table, nil
}

// refresh fetches with retries and swaps the cached entry on success
func (s *Service) refresh(ctx context.Context) (*entry, error) {
	ctx, span := otel.Tracer("freightquote/fx").Start(ctx, "fx.Refresh")
	defer span.End()

	backoff := s.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		table, err := s.fetch(ctx)
		if err == nil {
			e := &entry{table: table, fetchedAt: s.now()}
			s.current.Store(e)
			s.failed.Store(nil)
			metrics.FXRefreshTotal.WithLabelValues("success").Inc()
			span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("currencies", len(table.Rates)))
			s.logger.Debug("exchange rates refreshed",
				zap.String("reference", string(table.Reference)),
				zap.Int("currencies", len(table.Rates)),
				zap.Int("attempt", attempt))
			return e, nil
		}
		lastErr = err
		s.logger.Warn("exchange rate fetch failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.RetryAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if attempt == s.cfg.RetryAttempts {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
			break
		}
		backoff *= 2
	}

	s.failed.Store(&failure{at: s.now(), err: lastErr})
	metrics.FXRefreshTotal.WithLabelValues("failure").Inc()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "refresh failed")
	return nil, lastErr
}

func (s *Service) fetch(ctx context.Context) (*types.RateTable, error) {
	table, err := s.source.FetchRates(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return table, nil
}

// ValidateTable checks a fetched table before it is published
func ValidateTable(t *types.RateTable) error {
	if t == nil {
		return fmt.Errorf("empty rate table")
	}
	if !t.Reference.IsValid() {
		return fmt.Errorf("rate table has invalid reference currency %q", t.Reference)
	}
	for c, r := range t.Rates {
		if !c.IsValid() {
			return fmt.Errorf("rate table has invalid currency %q", c)
		}
		if !r.IsPositive() {
			return fmt.Errorf("rate for %s must be positive, got %s", c, r)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
