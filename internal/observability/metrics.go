// Package observability exposes Prometheus instrumentation for the policy
// lifecycle and the weather retrieval path.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the service.
// All recording methods are nil-safe so wiring metrics stays optional in
// tests and tooling binaries.
type Metrics struct {
	PoliciesCreated  prometheus.Counter
	PoliciesReset    prometheus.Counter
	WeatherRefreshes *prometheus.CounterVec // labels: source={open-meteo,synthetic}, outcome={success,error}
	Settlements      *prometheus.CounterVec // labels: result={payout,no_payout}
	ProviderDuration prometheus.Histogram
	HTTPDuration     *prometheus.HistogramVec // labels: method, route, status
}

func newMetrics() *Metrics {
	return &Metrics{
		PoliciesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainguard",
			Name:      "policies_created_total",
			Help:      "Total policies created by purchase requests.",
		}),
		PoliciesReset: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainguard",
			Name:      "policies_reset_total",
			Help:      "Total policy aggregates abandoned by their session.",
		}),
		WeatherRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainguard",
			Name:      "weather_refreshes_total",
			Help:      "Weather summary refreshes by source and outcome.",
		}, []string{"source", "outcome"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainguard",
			Name:      "settlements_total",
			Help:      "Completed settlements by condition result.",
		}, []string{"result"}),
		ProviderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainguard",
			Name:      "provider_fetch_duration_seconds",
			Help:      "Duration of external weather provider round-trips.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rainguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern, and status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PoliciesCreated,
		m.PoliciesReset,
		m.WeatherRefreshes,
		m.Settlements,
		m.ProviderDuration,
		m.HTTPDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics across test packages.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// RecordPolicyCreated increments the creation counter.
func (m *Metrics) RecordPolicyCreated() {
	if m == nil {
		return
	}
	m.PoliciesCreated.Inc()
}

// RecordPolicyReset increments the reset counter.
func (m *Metrics) RecordPolicyReset() {
	if m == nil {
		return
	}
	m.PoliciesReset.Inc()
}

// RecordWeatherRefresh records one refresh attempt for a source.
func (m *Metrics) RecordWeatherRefresh(source string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.WeatherRefreshes.WithLabelValues(source, outcome).Inc()
}

// RecordSettlement records one completed settlement.
func (m *Metrics) RecordSettlement(conditionMet bool) {
	if m == nil {
		return
	}
	result := "no_payout"
	if conditionMet {
		result = "payout"
	}
	m.Settlements.WithLabelValues(result).Inc()
}

// RecordRequest records one HTTP request observation.
func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveProviderDuration records the duration of one provider round-trip in
// seconds.
func (m *Metrics) ObserveProviderDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ProviderDuration.Observe(seconds)
}
