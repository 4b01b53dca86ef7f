// Package api - Request handlers
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

// handleQuote handles POST /v1/quotes
func (s *Server) handleQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Input("invalid quote request: "+err.Error()))
		return
	}

	result, err := s.quoter.Calculate(c.Request.Context(), req.toPricing())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleCorridors handles GET /v1/tenants/:tenant/corridors
func (s *Server) handleCorridors(c *gin.Context) {
	tenant := types.TenantID(c.Param("tenant"))
	mode := types.Mode(c.Query("mode"))

	matches, err := s.quoter.Corridors(c.Request.Context(), tenant, mode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	corridors := corridorsFrom(matches)
	c.JSON(http.StatusOK, CorridorsResponse{
		TenantID:  tenant,
		Corridors: corridors,
		Count:     len(corridors),
	})
}

// handleConvert handles GET /v1/fx/convert
func (s *Server) handleConvert(c *gin.Context) {
	var q ConvertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, errors.Input("invalid conversion query: "+err.Error()))
		return
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		s.writeError(c, errors.Input("amount must be a decimal number"))
		return
	}
	from, err := types.ParseCurrency(q.From)
	if err != nil {
		s.writeError(c, errors.Input(err.Error()))
		return
	}
	to, err := types.ParseCurrency(q.To)
	if err != nil {
		s.writeError(c, errors.Input(err.Error()))
		return
	}

	conv, err := s.fx.Convert(c.Request.Context(), amount, from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// handleRefresh handles POST /v1/admin/fx/refresh
func (s *Server) handleRefresh(c *gin.Context) {
	table, err := s.fx.Refresh(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	currencies := table.Currencies()
	s.logger.Info("exchange rates refreshed by admin request",
		zap.String("reference", string(table.Reference)),
		zap.Int("currencies", len(currencies)))
	c.JSON(http.StatusOK, RefreshResponse{
		Reference:  table.Reference,
		Currencies: currencies,
		AsOf:       table.AsOf.UTC().Format(time.RFC3339),
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion handles GET /version
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     s.version,
		"engine":      "freightquote",
		"api_version": "v1",
	})
}

// writeError renders err as {"error": {...}} with the mapped status
func (s *Server) writeError(c *gin.Context, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Internal("internal error", err)
	}
	status := statusFor(e.Type)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("type", string(e.Type)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: e})
}
