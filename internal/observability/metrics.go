package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// GuardMetrics exposes admission decisions and engine events as Prometheus
// metrics. It implements guard.DecisionSink and guard.EventSink; both entry
// points only bump in-memory counters, so the engine's non-blocking sink
// contract holds.
type GuardMetrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	violations *prometheus.CounterVec
	blocks     *prometheus.CounterVec
	unblocks   prometheus.Counter
	evictions  prometheus.Counter
	duration   prometheus.Histogram
}

// NewGuardMetrics builds the metric set on a fresh registry, including the
// standard Go runtime and process collectors.
func NewGuardMetrics(namespace string) *GuardMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	return &GuardMetrics{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Admission decisions by result, category and denial reason.",
		}, []string{"result", "category", "reason"}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Recorded violations by type.",
		}, []string{"violation"}),
		blocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Temporary blocks imposed, by triggering violation.",
		}, []string{"violation"}),
		unblocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unblocks_total",
			Help:      "Blocks lifted ahead of expiry.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Client states evicted by capacity pressure or idle sweep.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_seconds",
			Help:      "Latency of admission decisions.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}

// RecordDecision implements guard.DecisionSink.
func (m *GuardMetrics) RecordDecision(d guard.Decision) {
	result := "denied"
	switch {
	case d.Bypassed:
		result = "bypassed"
	case d.Allowed:
		result = "allowed"
	}
	m.decisions.WithLabelValues(result, labelOr(string(d.Category), "none"), labelOr(d.Reason, "none")).Inc()
}

// RecordEvent implements guard.EventSink.
func (m *GuardMetrics) RecordEvent(ev guard.Event) {
	switch ev.Kind {
	case guard.EventViolation:
		m.violations.WithLabelValues(string(ev.Violation)).Inc()
	case guard.EventBlock:
		m.blocks.WithLabelValues(string(ev.Violation)).Inc()
	case guard.EventUnblock:
		m.unblocks.Inc()
	case guard.EventEviction:
		m.evictions.Inc()
	}
}

// ObserveDecisionDuration records how long a single admission decision took.
func (m *GuardMetrics) ObserveDecisionDuration(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

// ObserveEngine registers gauges that read live engine state. Call once per
// engine instance.
func (m *GuardMetrics) ObserveEngine(namespace string, ctrl *guard.Controller) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_clients",
			Help:      "Client states currently tracked.",
		}, func() float64 { return float64(ctrl.TrackedClients()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_blocks",
			Help:      "Blocks currently in force.",
		}, func() float64 { return float64(ctrl.ActiveBlocks()) }),
	)
}

// Handler serves the registry in Prometheus exposition format.
func (m *GuardMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *GuardMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
