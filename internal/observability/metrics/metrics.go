// Package metrics provides Prometheus instrumentation for fundme.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Ledger metrics
	ledgerFundTotal     *prometheus.CounterVec
	ledgerWithdrawTotal *prometheus.CounterVec
	ledgerBalanceWei    prometheus.Gauge
	ledgerFunders       prometheus.Gauge
	journalFailureTotal *prometheus.CounterVec

	// Price feed metrics
	priceFeedReadTotal *prometheus.CounterVec
	priceFeedDuration  prometheus.Histogram

	// Payout metrics
	payoutTotal *prometheus.CounterVec
)

// Init initializes the metrics system. It must be called at most once per
// process when enabled, since collectors register with the default registry.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	constLabels := prometheus.Labels{"service": svcName}

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	ledgerFundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "ledger_fund_total",
			Help:        "Total number of fund attempts by result",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	ledgerWithdrawTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "ledger_withdraw_total",
			Help:        "Total number of withdraw attempts by result",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	ledgerBalanceWei = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:        "ledger_balance_wei",
			Help:        "Balance currently held by the ledger, in wei",
			ConstLabels: constLabels,
		},
	)

	ledgerFunders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:        "ledger_funders",
			Help:        "Number of entries in the funders log",
			ConstLabels: constLabels,
		},
	)

	journalFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "ledger_journal_failures_total",
			Help:        "Ledger events that could not be written to the journal",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)

	priceFeedReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "price_feed_reads_total",
			Help:        "Total number of price feed reads by result",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	priceFeedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "price_feed_read_duration_seconds",
			Help:        "Price feed read latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
	)

	payoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payout_total",
			Help:        "Total number of payouts by result",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
