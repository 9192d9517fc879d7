// Package metrics exposes Prometheus collectors for scans, detections and alerts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the scanner publishes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	scansTotal           *prometheus.CounterVec
	scanDuration         *prometheus.HistogramVec
	tradesAnalyzed       prometheus.Counter
	suspiciousTrades     *prometheus.CounterVec
	duplicateTrades      prometheus.Counter
	alertsTotal          *prometheus.CounterVec
	fetchFailures        *prometheus.CounterVec
	walletAgeResolutions *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		scansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_scans_total",
			Help: "Total number of completed scan runs",
		}, []string{"mode", "status"}),
		scanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polytracker_scan_duration_seconds",
			Help:    "Scan run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),
		tradesAnalyzed: f.NewCounter(prometheus.CounterOpts{
			Name: "polytracker_trades_analyzed_total",
			Help: "Total number of trade candidates analyzed",
		}),
		suspiciousTrades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_suspicious_trades_total",
			Help: "Newly recorded suspicious trades by risk level",
		}, []string{"level"}),
		duplicateTrades: f.NewCounter(prometheus.CounterOpts{
			Name: "polytracker_duplicate_trades_total",
			Help: "Suspicious trades skipped because they were already recorded",
		}),
		alertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_alerts_total",
			Help: "Alert delivery attempts by channel and result",
		}, []string{"channel", "result"}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_fetch_failures_total",
			Help: "Market-data fetches that failed after retries",
		}, []string{"operation"}),
		walletAgeResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_walletage_resolutions_total",
			Help: "Wallet age resolutions by answering source",
		}, []string{"source"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polytracker_api_requests_total",
			Help: "Total number of API requests",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polytracker_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveScan records a finished scan run
func (m *Metrics) ObserveScan(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(mode, status).Inc()
	m.scanDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// TradeAnalyzed counts one analyzed candidate
func (m *Metrics) TradeAnalyzed() {
	if m == nil {
		return
	}
	m.tradesAnalyzed.Inc()
}

// SuspiciousRecorded counts a newly inserted suspicious trade
func (m *Metrics) SuspiciousRecorded(level string) {
	if m == nil {
		return
	}
	m.suspiciousTrades.WithLabelValues(level).Inc()
}

// DuplicateSkipped counts a suspicious trade that was already stored
func (m *Metrics) DuplicateSkipped() {
	if m == nil {
		return
	}
	m.duplicateTrades.Inc()
}

// AlertResult counts one channel delivery
func (m *Metrics) AlertResult(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.alertsTotal.WithLabelValues(channel, result).Inc()
}

// FetchFailed counts a market-data fetch that gave up
func (m *Metrics) FetchFailed(operation string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(operation).Inc()
}

// WalletAgeResolved counts which source answered a wallet age lookup
func (m *Metrics) WalletAgeResolved(source string) {
	if m == nil {
		return
	}
	m.walletAgeResolutions.WithLabelValues(source).Inc()
}

// ObserveRequest records an API request
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
