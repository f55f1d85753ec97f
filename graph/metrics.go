package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine monitoring, all namespaced
// under "nodeflow":
//
//   - queue_depth (gauge): pending runs waiting for the executor.
//   - pending_async_nodes (gauge): nodes whose async completion is
//     outstanding in the active run.
//   - node_duration_ms (histogram): node execution latency by class type
//     and status.
//   - cache_hits_total / cache_misses_total (counters): output cache
//     effectiveness across runs.
//   - runs_total (counter): finished runs by terminal status.
//   - run_duration_ms (histogram): wall time per run by terminal status.
//
// Expose via promhttp against the registry passed to NewMetrics.
type Metrics struct {
	queueDepth   prometheus.Gauge
	pendingAsync prometheus.Gauge
	nodeLatency  *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all engine metrics with registry
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nodeflow",
			Name:      "queue_depth",
			Help:      "Number of pending runs waiting for the executor.",
		}),
		pendingAsync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nodeflow",
			Name:      "pending_async_nodes",
			Help:      "Nodes with an outstanding asynchronous completion in the active run.",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodeflow",
			Name:      "node_duration_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"class_type", "status"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Name:      "cache_hits_total",
			Help:      "Output cache hits while seeding runs.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Name:      "cache_misses_total",
			Help:      "Output cache misses while seeding runs.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Name:      "runs_total",
			Help:      "Finished runs by terminal status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodeflow",
			Name:      "run_duration_ms",
			Help:      "Run wall time in milliseconds by terminal status.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 30000, 120000, 600000},
		}, []string{"status"}),
	}
}

// SetQueueDepth records the current submission queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) runFinished(status RunStatus, elapsed time.Duration) {
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(float64(elapsed.Milliseconds()))
}
