// Package metrics holds the Prometheus collectors for the search
// orchestrator. Registration is explicit from main, no init() side effects.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search orchestration Prometheus metrics.
var (
	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knsearch",
			Name:      "cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	CacheWarmupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "knsearch",
			Name:      "cache_warmup_failures_total",
			Help:      "Cache warm-up batches that failed to load",
		},
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "knsearch",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knsearch",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"to"},
	)

	IndexerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "knsearch",
			Name:      "indexer_queue_depth",
			Help:      "Pending events in the batching queue",
		},
	)

	IndexerFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knsearch",
			Name:      "indexer_flush_total",
			Help:      "Batch flush outcomes per workspace",
		},
		[]string{"status"}, // "ok" / "partial" / "error"
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "knsearch",
			Name:      "operation_duration_seconds",
			Help:      "Search and index operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knsearch",
			Name:      "performance_alerts_total",
			Help:      "Performance threshold breaches",
		},
		[]string{"operation", "reason"},
	)
)

var registered bool

// Register registers all orchestrator metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(CacheWarmupFailures)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerTransitions)
	prometheus.MustRegister(IndexerQueueDepth)
	prometheus.MustRegister(IndexerFlushTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(AlertsTotal)
	registered = true
}
