package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boardflow"

// Metrics owns the application's Prometheus collectors. It satisfies
// automation.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	runDuration   *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	rateLimitDrop *prometheus.CounterVec
}

// New registers the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "run_duration_seconds",
			Help:      "Time spent evaluating the rules of one event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "actions_total",
			Help:      "Executed automation actions by outcome.",
		}, []string{"trigger", "action", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "queue_depth",
			Help:      "Deferred actions waiting for a worker.",
		}),
		rateLimitDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429 by the rate limiter.",
		}, []string{"prefix"}),
	}
	m.registry.MustRegister(
		m.runDuration, m.outcomes, m.queueDepth, m.rateLimitDrop,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRun(trigger string, d time.Duration) {
	m.runDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (m *Metrics) IncOutcome(trigger, action, status string) {
	m.outcomes.WithLabelValues(trigger, action, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// IncRateLimitDrop counts a 429. Use prefix "global" for the global limiter.
func (m *Metrics) IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	m.rateLimitDrop.WithLabelValues(prefix).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
