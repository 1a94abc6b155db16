// Package monitoring exports geocoder metrics to Prometheus and raises
// webhook alerts when provider health degrades.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geocoder"

// Metrics holds the Prometheus collectors fed by the geocoder. It implements
// geocode.Recorder.
type Metrics struct {
	Requests           prometheus.Counter
	CacheLookups       *prometheus.CounterVec   // labels: result={hit,miss}
	ProviderRequests   *prometheus.CounterVec   // labels: provider, status
	ProviderDuration   *prometheus.HistogramVec // labels: provider
	BreakerTransitions *prometheus.CounterVec   // labels: provider, to
	BreakerState       *prometheus.GaugeVec     // labels: provider; 0 closed, 1 open, 2 half-open
	BatchSize          prometheus.Histogram
	BatchDuration      prometheus.Histogram
	AlertsSent         *prometheus.CounterVec // labels: type
}

// NewMetrics creates all geocoder metrics and registers them with reg. A nil
// reg uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(
		m.Requests,
		m.CacheLookups,
		m.ProviderRequests,
		m.ProviderDuration,
		m.BreakerTransitions,
		m.BreakerState,
		m.BatchSize,
		m.BatchDuration,
		m.AlertsSent,
	)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func newMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Geocode requests received, including cache hits.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider calls by provider and result status.",
		}, []string{"provider", "status"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Upstream provider call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by provider and target state.",
		}, []string{"provider", "to"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"provider"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Addresses per batch request.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a complete batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alerts delivered to the webhook by type.",
		}, []string{"type"}),
	}
}

// ObserveRequest implements geocode.Recorder.
func (m *Metrics) ObserveRequest() { m.Requests.Inc() }

// ObserveCacheLookup implements geocode.Recorder.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveProviderCall implements geocode.Recorder.
func (m *Metrics) ObserveProviderCall(provider, status string, d time.Duration) {
	m.ProviderRequests.WithLabelValues(provider, status).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveBreakerTransition implements geocode.Recorder.
func (m *Metrics) ObserveBreakerTransition(provider, _, to string) {
	m.BreakerTransitions.WithLabelValues(provider, to).Inc()
	m.BreakerState.WithLabelValues(provider).Set(breakerStateValue(to))
}

// ObserveBatch implements geocode.Recorder.
func (m *Metrics) ObserveBatch(size int, d time.Duration) {
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(d.Seconds())
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
