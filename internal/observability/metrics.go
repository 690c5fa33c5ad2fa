// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulator.
type Metrics struct {
	// Phase metrics
	PhasesCompleted *prometheus.CounterVec // phase, reason (batch|timeout)
	PhaseDuration   *prometheus.HistogramVec
	CyclesCompleted prometheus.Counter

	// Agent batch metrics
	AgentsDispatched *prometheus.CounterVec // phase
	AgentsSkipped    *prometheus.CounterVec // phase
	AgentsFailed     *prometheus.CounterVec // phase
	DecisionLatency  *prometheus.HistogramVec

	// Market metrics
	TradesCommitted *prometheus.CounterVec // direction
	MessagesPosted  prometheus.Counter
	PoolPrice       prometheus.Gauge
	PoolVersion     prometheus.Gauge

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Persistence metrics
	PersistenceRetries  prometheus.Counter
	PersistenceFailures prometheus.Counter
	SnapshotsSaved      prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_arena"
	}

	return &Metrics{
		PhasesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "phases_completed_total",
			Help:      "Total phases completed, by phase and advance reason",
		}, []string{"phase", "reason"}),
		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of completed phases",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"phase"}),
		CyclesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "cycles_completed_total",
			Help:      "Total full phase cycles completed",
		}),

		AgentsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "agents_dispatched_total",
			Help:      "Total agents dispatched to the decision collaborator",
		}, []string{"phase"}),
		AgentsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "agents_skipped_total",
			Help:      "Total agents skipped on decision timeout or failure",
		}, []string{"phase"}),
		AgentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "agents_failed_total",
			Help:      "Total agent actions rejected during application",
		}, []string{"phase"}),
		DecisionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "decision_latency_seconds",
			Help:      "Latency of decision collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),

		TradesCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "trades_committed_total",
			Help:      "Total trades committed to the pool, by direction",
		}, []string{"direction"}),
		MessagesPosted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "messages_posted_total",
			Help:      "Total social messages posted",
		}),
		PoolPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "pool_price",
			Help:      "Current pool price in base per token",
		}),
		PoolVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "pool_version",
			Help:      "Current pool state version",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses (including version-forced reloads)",
		}),

		PersistenceRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "retries_total",
			Help:      "Total persistence write retries",
		}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "failures_total",
			Help:      "Total persistence writes that exhausted retries",
		}),
		SnapshotsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "snapshots_saved_total",
			Help:      "Total pool snapshots persisted",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPhaseCompleted records a completed phase and its advance reason.
func RecordPhaseCompleted(phase, reason string, durationSeconds float64) {
	DefaultMetrics.PhasesCompleted.WithLabelValues(phase, reason).Inc()
	DefaultMetrics.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordCycleCompleted increments the completed-cycle counter.
func RecordCycleCompleted() {
	DefaultMetrics.CyclesCompleted.Inc()
}

// RecordAgentsDispatched adds dispatched agents for a phase.
func RecordAgentsDispatched(phase string, count int) {
	DefaultMetrics.AgentsDispatched.WithLabelValues(phase).Add(float64(count))
}

// RecordAgentSkipped increments the skipped-agent counter.
func RecordAgentSkipped(phase string) {
	DefaultMetrics.AgentsSkipped.WithLabelValues(phase).Inc()
}

// RecordAgentFailed increments the failed-action counter.
func RecordAgentFailed(phase string) {
	DefaultMetrics.AgentsFailed.WithLabelValues(phase).Inc()
}

// RecordDecisionLatency records one decision collaborator call.
func RecordDecisionLatency(phase string, seconds float64) {
	DefaultMetrics.DecisionLatency.WithLabelValues(phase).Observe(seconds)
}

// RecordTradeCommitted increments the committed-trade counter.
func RecordTradeCommitted(direction string) {
	DefaultMetrics.TradesCommitted.WithLabelValues(direction).Inc()
}

// RecordMessagePosted increments the posted-message counter.
func RecordMessagePosted() {
	DefaultMetrics.MessagesPosted.Inc()
}

// UpdatePoolGauges publishes the current price and version.
func UpdatePoolGauges(price float64, version uint64) {
	DefaultMetrics.PoolPrice.Set(price)
	DefaultMetrics.PoolVersion.Set(float64(version))
}

// RecordCacheLookup records one cache read as a hit or a miss.
func RecordCacheLookup(hit bool) {
	if hit {
		DefaultMetrics.CacheHits.Inc()
	} else {
		DefaultMetrics.CacheMisses.Inc()
	}
}

// RecordPersistenceRetry increments the retry counter.
func RecordPersistenceRetry() {
	DefaultMetrics.PersistenceRetries.Inc()
}

// RecordPersistenceFailure increments the exhausted-retries counter.
func RecordPersistenceFailure() {
	DefaultMetrics.PersistenceFailures.Inc()
}

// RecordSnapshotSaved increments the snapshot counter.
func RecordSnapshotSaved() {
	DefaultMetrics.SnapshotsSaved.Inc()
}
