package fxsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

// maxFeedBytes bounds the size of a rate feed response
const maxFeedBytes = 1 << 20

// HTTP fetches a JSON rate feed of the form
//
//	{"base": "USD", "timestamp": 1700000000, "rates": {"EUR": "0.92", "XOF": 603.5}}
//
// Rates may be JSON numbers or strings; neither passes through float64.
type HTTP struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// HTTPOption configures an HTTP source
type HTTPOption func(*HTTP)

// WithHTTPClient sets the client used for fetches
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// NewHTTP creates an HTTP rate source
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type feed struct {
	Base      string                     `json:"base"`
	Timestamp json.RawMessage            `json:"timestamp"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

// FetchRates implements fx.Source
func (h *HTTP) FetchRates(ctx context.Context) (*types.RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errors.Config("invalid rate feed url", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Network("rate feed request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, errors.Network("reading rate feed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Network(fmt.Sprintf("rate feed returned %d", resp.StatusCode), nil).
			WithContext("body", string(bytes.TrimSpace(body)))
	}
	return h.decode(body)
}

func (h *HTTP) decode(body []byte) (*types.RateTable, error) {
	var f feed
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, errors.Wrap(errors.TypeNetwork, "malformed rate feed", err)
	}
	ref, err := types.ParseCurrency(f.Base)
	if err != nil {
		return nil, errors.Wrap(errors.TypeNetwork, "rate feed base", err)
	}
	asOf, err := parseTimestamp(f.Timestamp)
	if err != nil {
		return nil, errors.Wrap(errors.TypeNetwork, "rate feed timestamp", err)
	}
	if asOf.IsZero() {
		asOf = h.now().UTC()
	}

	rates := make(map[types.Currency]decimal.Decimal, len(f.Rates))
	for code, r := range f.Rates {
		c, err := types.ParseCurrency(code)
		if err != nil {
			return nil, errors.Wrap(errors.TypeNetwork, "rate feed currency", err)
		}
		if c == ref {
			continue
		}
		rates[c] = r
	}
	return &types.RateTable{Reference: ref, Rates: rates, AsOf: asOf}, nil
}

// parseTimestamp accepts unix seconds or an RFC3339 string; absent means zero
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Parse(time.RFC3339, s)
	}
	secs, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
	}
	return time.Unix(secs, 0).UTC(), nil
}
