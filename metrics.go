package acts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus-compatible counters and gauges for the
// scheduler (teacher's graph/metrics.go, generalized from graph-node
// execution counters to task/process counters). All methods are safe for
// concurrent use; values are only updated when the collector is non-nil,
// so callers can pass a nil *Metrics to disable collection entirely.
type Metrics struct {
	activeTasks prometheus.Gauge
	queueDepth  prometheus.Gauge

	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	catches     *prometheus.CounterVec
	timeouts    *prometheus.CounterVec
	irqs        *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetrics registers the engine's metrics with registry (pass nil to use
// prometheus.DefaultRegisterer).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto(registry)

	m := &Metrics{registry: registry}
	m.activeTasks = factory.NewGauge(prometheus.GaugeOpts{
		Name: "acts_active_tasks",
		Help: "Current number of tasks in the Running or Interrupted state.",
	})
	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "acts_queue_depth",
		Help: "Current number of signals buffered in the scheduler queue.",
	})
	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acts_dispatch_latency_seconds",
		Help:    "Latency of a single scheduler dispatch (one lifecycle phase).",
		Buckets: prometheus.DefBuckets,
	}, []string{"uses", "phase"})
	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "acts_retries_total",
		Help: "Cumulative retry attempts across all tasks.",
	}, []string{"node_ref"})
	m.catches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "acts_catches_total",
		Help: "Cumulative catch resolutions, labeled by matched error key.",
	}, []string{"key"})
	m.timeouts = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "acts_timeouts_total",
		Help: "Cumulative timeout hook firings.",
	}, []string{"node_ref"})
	m.irqs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "acts_irqs_total",
		Help: "Cumulative IRQ interrupts, labeled by resolving action.",
	}, []string{"action"})
	return m
}

func (m *Metrics) RecordDispatch(uses, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(uses, phase).Observe(d.Seconds())
}

func (m *Metrics) IncRetries(nodeRef string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeRef).Inc()
}

func (m *Metrics) IncCatches(key string) {
	if m == nil {
		return
	}
	m.catches.WithLabelValues(key).Inc()
}

func (m *Metrics) IncTimeouts(nodeRef string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(nodeRef).Inc()
}

func (m *Metrics) IncIRQ(action string) {
	if m == nil {
		return
	}
	m.irqs.WithLabelValues(action).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.activeTasks.Set(float64(n))
}

// factory is the subset of promauto.With's behavior we need, indirected so
// this file has no untestable global state.
type metricFactory struct {
	reg prometheus.Registerer
}

func promauto(reg prometheus.Registerer) metricFactory { return metricFactory{reg: reg} }

func (f metricFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	_ = f.reg.Register(g)
	return g
}

func (f metricFactory) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	_ = f.reg.Register(h)
	return h
}

func (f metricFactory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	_ = f.reg.Register(c)
	return c
}
