// Package metrics exposes pool accounting as Prometheus metrics.
//
// # Overview
//
// PoolMetrics implements pool.Observer, so handing it to a registry with
// pool.WithObserver is all the wiring a pool needs:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewPoolMetrics(reg, "spawnpool")
//	registry := pool.NewRegistry[string](catalog, pool.WithObserver(m))
//
// # Metrics
//
//	<ns>_pool_populated{template}              gauge
//	<ns>_pool_active{template}                 gauge
//	<ns>_pool_idle{template}                   gauge
//	<ns>_pool_acquisitions_total{template,outcome} counter
//	<ns>_pool_returns_total{template}          counter
//	<ns>_pool_disposals_total{template,reason} counter
//	<ns>_frame_duration_seconds                histogram
//
// Metrics are registered on the Registerer passed to NewPoolMetrics rather
// than the default registry, so tests and repeated runs can each own one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

var _ pool.Observer = (*PoolMetrics)(nil)

// PoolMetrics records pool accounting. Safe for concurrent use.
type PoolMetrics struct {
	populated     *prometheus.GaugeVec
	active        *prometheus.GaugeVec
	idle          *prometheus.GaugeVec
	acquisitions  *prometheus.CounterVec
	returns       *prometheus.CounterVec
	disposals     *prometheus.CounterVec
	frameDuration prometheus.Histogram
}

// NewPoolMetrics creates the pool metrics and registers them on reg.
func NewPoolMetrics(reg prometheus.Registerer, namespace string) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		populated: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "populated",
				Help:      "Number of live instances per template",
			},
			[]string{"template"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "active",
				Help:      "Number of instances handed out per template",
			},
			[]string{"template"},
		),
		idle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "idle",
				Help:      "Number of instances available for reuse per template",
			},
			[]string{"template"},
		),
		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "acquisitions_total",
				Help:      "Acquisition requests by outcome",
			},
			[]string{"template", "outcome"},
		),
		returns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "returns_total",
				Help:      "Instances returned to their pool",
			},
			[]string{"template"},
		),
		disposals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "disposals_total",
				Help:      "Instances destroyed by reason",
			},
			[]string{"template", "reason"},
		),
		frameDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_seconds",
				Help:      "Wall time spent updating one frame",
				Buckets: []float64{
					1e-5, // 10μs
					1e-4, // 100μs
					1e-3, // 1ms
					4e-3,
					8e-3,
					16e-3, // one 60Hz frame
					33e-3, // one 30Hz frame
					1e-1,
				},
			},
		),
	}
}

// Acquired implements pool.Observer.
func (m *PoolMetrics) Acquired(template, outcome string) {
	m.acquisitions.WithLabelValues(template, outcome).Inc()
}

// Returned implements pool.Observer.
func (m *PoolMetrics) Returned(template string) {
	m.returns.WithLabelValues(template).Inc()
}

// Disposed implements pool.Observer.
func (m *PoolMetrics) Disposed(template, reason string) {
	m.disposals.WithLabelValues(template, reason).Inc()
}

// Counts implements pool.Observer.
func (m *PoolMetrics) Counts(template string, populated, active, idle int) {
	m.populated.WithLabelValues(template).Set(float64(populated))
	m.active.WithLabelValues(template).Set(float64(active))
	m.idle.WithLabelValues(template).Set(float64(idle))
}

// ObserveFrame records how long a frame took.
func (m *PoolMetrics) ObserveFrame(d time.Duration) {
	m.frameDuration.Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer("frame")
//	sim.Step()
//	m.ObserveFrame(timer.Stop())
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
