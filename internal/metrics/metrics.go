// Package metrics exposes Prometheus instrumentation for an engine instance.
//
// Every engine owns its own Metrics registered on a caller supplied
// registry, so several engines in one process never collide. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tensorexec"

// Metrics holds the counters and gauges of one engine.
type Metrics struct {
	// ArenaAllocations counts buffers handed out by the arena.
	// Labels: source (fresh, recycled)
	ArenaAllocations *prometheus.CounterVec

	// ArenaLiveBytes tracks bytes held by live arena buffers.
	ArenaLiveBytes prometheus.Gauge

	// ArenaFailures counts allocations rejected by the byte limit.
	ArenaFailures prometheus.Counter

	// PoolRequests counts temporary buffer requests by result (hit, miss).
	PoolRequests *prometheus.CounterVec

	// PoolCachedBytes tracks bytes parked in the temporary pool.
	PoolCachedBytes prometheus.Gauge

	// TasksScheduled counts scheduled tasks by kernel name.
	TasksScheduled *prometheus.CounterVec

	// BatchesExecuted counts batches run by workers.
	BatchesExecuted prometheus.Counter

	// TasksInFlight tracks tasks scheduled but not yet finished.
	TasksInFlight prometheus.Gauge
}

// New creates the engine metrics and registers them on reg. The engine id is
// attached as a constant label.
func New(reg prometheus.Registerer, engineID string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"engine": engineID}

	return &Metrics{
		ArenaAllocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "arena",
			Name:        "allocations_total",
			Help:        "Buffers allocated by the arena, by slab source",
			ConstLabels: labels,
		}, []string{"source"}),
		ArenaLiveBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "arena",
			Name:        "live_bytes",
			Help:        "Bytes held by live arena buffers",
			ConstLabels: labels,
		}),
		ArenaFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "arena",
			Name:        "out_of_memory_total",
			Help:        "Allocations rejected by the arena byte limit",
			ConstLabels: labels,
		}),
		PoolRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        "requests_total",
			Help:        "Temporary buffer requests, by result",
			ConstLabels: labels,
		}, []string{"result"}),
		PoolCachedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        "cached_bytes",
			Help:        "Bytes parked in the temporary buffer pool",
			ConstLabels: labels,
		}),
		TasksScheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "scheduler",
			Name:        "tasks_total",
			Help:        "Tasks scheduled, by kernel",
			ConstLabels: labels,
		}, []string{"kernel"}),
		BatchesExecuted: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "scheduler",
			Name:        "batches_total",
			Help:        "Batches executed by workers",
			ConstLabels: labels,
		}),
		TasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "scheduler",
			Name:        "tasks_in_flight",
			Help:        "Tasks scheduled and not yet finished",
			ConstLabels: labels,
		}),
	}
}

// Allocated records an arena allocation of size bytes.
func (m *Metrics) Allocated(size int, recycled bool) {
	if m == nil {
		return
	}
	source := "fresh"
	if recycled {
		source = "recycled"
	}
	m.ArenaAllocations.WithLabelValues(source).Inc()
	m.ArenaLiveBytes.Add(float64(size))
}

// Freed records size bytes returned to the arena.
func (m *Metrics) Freed(size int) {
	if m == nil {
		return
	}
	m.ArenaLiveBytes.Sub(float64(size))
}

// OutOfMemory records a rejected allocation.
func (m *Metrics) OutOfMemory() {
	if m == nil {
		return
	}
	m.ArenaFailures.Inc()
}

// PoolRequest records a temporary buffer request.
func (m *Metrics) PoolRequest(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PoolRequests.WithLabelValues(result).Inc()
}

// PoolCached sets the bytes currently parked in the pool.
func (m *Metrics) PoolCached(bytes int64) {
	if m == nil {
		return
	}
	m.PoolCachedBytes.Set(float64(bytes))
}

// TaskScheduled records a task for kernel.
func (m *Metrics) TaskScheduled(kernel string) {
	if m == nil {
		return
	}
	m.TasksScheduled.WithLabelValues(kernel).Inc()
	m.TasksInFlight.Inc()
}

// TaskFinished records the end of a task that ran batches batches.
func (m *Metrics) TaskFinished(batches int) {
	if m == nil {
		return
	}
	m.BatchesExecuted.Add(float64(batches))
	m.TasksInFlight.Dec()
}
