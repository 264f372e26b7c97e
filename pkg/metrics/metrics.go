// Package metrics provides opt-in Prometheus instrumentation for the
// asynchronous I/O layer.
//
// Metrics are disabled by default and carry zero overhead when disabled:
// InitRegistry must be called before collectors are created, constructors
// return nil otherwise, and every collector method is nil-receiver safe.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection with a fresh registry. Calling it
// again replaces the registry (collectors created against the old one keep
// working but are no longer exported).
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	aioShared = nil
}

// GetRegistry returns the active registry, or nil when metrics are disabled.
// Callers embed it into their own exposition endpoint; this library does not
// serve HTTP.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// AIOMetrics instruments the completion-bridging layer: operations issued
// and completed, the in-flight window, and bytes moved. All methods are
// safe on a nil receiver, so disabled metrics cost a single nil check.
type AIOMetrics struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	bytes     *prometheus.CounterVec
}

// aioShared caches the collector set: Prometheus registries reject duplicate
// collector registration, so every stream/sink shares one instance.
var aioShared *AIOMetrics

// NewAIOMetrics returns the shared AIO collector set, or nil when metrics
// are disabled.
func NewAIOMetrics() *AIOMetrics {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		return nil
	}
	if aioShared != nil {
		return aioShared
	}

	reg := registry
	aioShared = &AIOMetrics{
		started: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstream_aio_operations_started_total",
				Help: "Asynchronous operations dispatched, by operation type",
			},
			[]string{"op"},
		),
		completed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstream_aio_operations_completed_total",
				Help: "Asynchronous operations resolved, by operation type and result",
			},
			[]string{"op", "result"}, // result: "ok", "error", "cancelled"
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "objstream_aio_in_flight",
				Help: "Operations currently in flight, by operation type",
			},
			[]string{"op"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstream_aio_bytes_total",
				Help: "Bytes successfully moved, by operation type",
			},
			[]string{"op"},
		),
	}
	return aioShared
}

// OperationStarted records a dispatched operation.
func (m *AIOMetrics) OperationStarted(op string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(op).Inc()
	m.inFlight.WithLabelValues(op).Inc()
}

// OperationCompleted records a resolved operation and its outcome.
func (m *AIOMetrics) OperationCompleted(op, result string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(op, result).Inc()
	m.inFlight.WithLabelValues(op).Dec()
}

// AddBytes records successfully moved bytes.
func (m *AIOMetrics) AddBytes(op string, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(op).Add(float64(n))
}
