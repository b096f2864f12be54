// Package metrics exposes HTTP-side Prometheus metrics for the stormguard
// server. Engine-side metrics (decisions, violations, blocks) live in
// internal/observability; this package covers the request surface around
// them.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP bundles the request-level metric set. Endpoint labels must be route
// patterns, never raw paths, to keep cardinality bounded.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	inflight prometheus.Gauge
	panics   prometheus.Counter
}

// NewHTTP registers the request metrics on reg under the given namespace.
func NewHTTP(reg prometheus.Registerer, namespace string) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "endpoint", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route pattern and class.",
		}, []string{"endpoint", "error_type"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Panics recovered in HTTP handlers.",
		}),
	}
}

// ObserveRequest records one completed request.
func (m *HTTP) ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	switch {
	case status >= 500:
		m.errors.WithLabelValues(endpoint, "server_error").Inc()
	case status >= 400:
		m.errors.WithLabelValues(endpoint, "client_error").Inc()
	}
}

// TrackInFlight bumps the in-flight gauge and returns the paired decrement.
func (m *HTTP) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// RecordPanic counts a recovered handler panic.
func (m *HTTP) RecordPanic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
