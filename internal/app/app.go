// Package app - Dependency wiring
// Every long-lived component is constructed once here and passed by
// reference to the CLI and HTTP layers.
package app

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"freightquote/adapters/fxsource"
	"freightquote/adapters/hclconfig"
	"freightquote/adapters/postgres"
	"freightquote/core/catalog"
	"freightquote/core/fx"
	"freightquote/core/pricing"
	"freightquote/core/types"
	"freightquote/internal/config"
	"freightquote/internal/errors"
	"freightquote/internal/logging"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      catalog.Store
	FX         *fx.Service
	Calculator *pricing.Calculator

	closers []func() error
}

// New wires the application from cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logging.Or(logger)}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	source, err := a.openFXSource()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.FX = fx.NewService(source, fx.Config{
		TTL:             cfg.FX.CacheTTL(),
		RefreshTimeout:  cfg.FX.RefreshTimeout(),
		RetryAttempts:   cfg.FX.RetryAttempts,
		RetryBackoff:    cfg.FX.RetryBackoff(),
		FailureCooldown: cfg.FX.FailureCooldown(),
	}, fx.WithLogger(a.Logger))

	a.Calculator = pricing.NewCalculator(a.Store,
		pricing.WithRates(a.FX),
		pricing.WithLogger(a.Logger))
	return a, nil
}

func (a *App) openStore(ctx context.Context) (catalog.Store, error) {
	cfg := a.Config
	if cfg.Database.DSN != "" {
		pg, err := postgres.Open(ctx, cfg.Database.DSN, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.Database.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		a.Logger.Info("using postgres configuration store")
		return pg, nil
	}

	mem := catalog.NewMemoryStore()
	path := cfg.Pricing.ConfigPath
	if path == "" {
		return nil, errors.Config("no pricing configuration: set pricing.config_path or database.dsn", nil)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Config("pricing file not found, run \"freightquote config init\"", err).
			WithContext("path", path)
	}
	f, err := hclconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := hclconfig.Apply(ctx, mem, f, a.Logger); err != nil {
		return nil, err
	}
	a.Logger.Info("using in-memory configuration store", zap.String("path", path))
	return mem, nil
}

func (a *App) openFXSource() (fx.Source, error) {
	cfg := a.Config.FX
	switch cfg.Source {
	case "static", "":
		s, err := fxsource.NewStatic(cfg.ReferenceCurrency, cfg.StaticRates, time.Now())
		if err != nil {
			return nil, errors.Config("invalid static exchange rates", err)
		}
		return s, nil
	case "http":
		if cfg.URL == "" {
			return nil, errors.Config("fx.url is required for the http rate source", nil)
		}
		return fxsource.NewHTTP(cfg.URL), nil
	case "redis":
		ref, err := types.ParseCurrency(cfg.ReferenceCurrency)
		if err != nil {
			return nil, errors.Config("invalid fx reference currency", err)
		}
		r := a.Config.Redis
		client := fxsource.NewRedisClient(r.Addr, r.Password, r.DB)
		a.closers = append(a.closers, client.Close)
		return fxsource.NewRedis(client, cfg.RedisKeyPrefix, ref), nil
	default:
		return nil, errors.Config("unknown fx source "+cfg.Source, nil)
	}
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
