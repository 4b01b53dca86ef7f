// Package api - Thin HTTP layer over the quote engine
// Handlers decode, delegate and encode. No pricing logic lives here.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"freightquote/core/catalog"
	"freightquote/core/fx"
	"freightquote/core/pricing"
	"freightquote/core/types"
	"freightquote/internal/logging"
	"freightquote/internal/metrics"
)

// Quoter prices requests and lists corridors
type Quoter interface {
	Calculate(ctx context.Context, req *pricing.Request) (*types.Result, error)
	Corridors(ctx context.Context, tenant types.TenantID, mode types.Mode) ([]catalog.Match, error)
}

// Converter converts amounts and refreshes rates
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to types.Currency) (*fx.Conversion, error)
	Refresh(ctx context.Context) (*types.RateTable, error)
}

// Server is the API server
type Server struct {
	quoter  Quoter
	fx      Converter
	logger  *zap.Logger
	version string
	engine  *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health and /version
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates the API server
func NewServer(quoter Quoter, conv Converter, opts ...Option) *Server {
	s := &Server{quoter: quoter, fx: conv, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).Named("api")

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/version", s.handleVersion)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/quotes", s.handleQuote)
	v1.GET("/tenants/:tenant/corridors", s.handleCorridors)
	v1.GET("/fx/convert", s.handleConvert)
	v1.POST("/admin/fx/refresh", s.handleRefresh)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// accessLog traces, logs and measures every request
func (s *Server) accessLog() gin.HandlerFunc {
	tracer := otel.Tracer("freightquote/api")
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", status))
		metrics.ObserveRequest(route, latency, status)

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			logging.Traced(ctx))
	}
}
