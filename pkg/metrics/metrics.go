// Package metrics exposes execution counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cratex"

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "executions_total",
		Help:      "Basket executions by side and outcome.",
	}, []string{"side", "outcome"})

	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_submitted_total",
		Help:      "Orders created on chain.",
	}, []string{"side"})

	FeeQuoteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fee_quote_failures_total",
		Help:      "Failed fee quote attempts, retries included.",
	})

	OrderStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_total",
		Help:      "Order status transitions observed by the tracker.",
	}, []string{"status"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_duration_seconds",
		Help:      "Time from request to mined batch.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"side"})

	SkippedConstituentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_constituents_total",
		Help:      "Constituents left out of a batch, by reason.",
	}, []string{"reason"})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
