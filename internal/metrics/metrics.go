// Package metrics holds the Prometheus collectors for the quote engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "freightquote"

var (
	// QuotesTotal counts calculations by outcome (ok or an error type)
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotes_total",
		Help:      "Quote calculations by outcome.",
	}, []string{"status"})

	// QuoteDuration times calculations, display conversion included
	QuoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quote_duration_seconds",
		Help:      "Quote calculation latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// AddonsDropped counts add-on selections dropped with a warning
	AddonsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "addons_dropped_total",
		Help:      "Add-on selections dropped as unknown, inactive or unusable.",
	})

	// FXRefreshTotal counts FX table refreshes by result (success, failure)
	FXRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fx",
		Name:      "refresh_total",
		Help:      "FX rate table refreshes by result.",
	}, []string{"result"})

	// FXStaleServed counts conversions answered from an expired table
	FXStaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fx",
		Name:      "stale_served_total",
		Help:      "Conversions served from the last known rate table after a failed refresh.",
	})

	// HTTPRequests observes API latency by status code
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// ObserveRequest records one HTTP request
func ObserveRequest(route string, d time.Duration, status int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}
