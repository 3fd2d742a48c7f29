package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnRounds   prometheus.Histogram

	engineCallsTotal   *prometheus.CounterVec
	engineCallDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	cacheOpsTotal     *prometheus.CounterVec
	cacheEntries      prometheus.Gauge
	cacheEvictedTotal prometheus.Counter

	activeSessions        prometheus.Gauge
	sessionsCreatedTotal  prometheus.Counter
	sessionsEvictedTotal  prometheus.Counter
	sessionsArchivedTotal prometheus.Counter

	queueSize    *prometheus.GaugeVec
	queueWaiting *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_turns_total",
					Help: "Total chat turns by agent type and outcome.",
				},
				[]string{"agent_type", "outcome"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chat_turn_duration_seconds",
					Help:    "End-to-end turn duration in seconds by agent type.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent_type"},
			),
			turnRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_turn_rounds",
					Help:    "Reasoning round trips performed per turn.",
					Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
				},
			),
			engineCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engine_calls_total",
					Help: "Total reasoning engine calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			engineCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "engine_call_duration_seconds",
					Help:    "Reasoning engine call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			cacheOpsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "response_cache_ops_total",
					Help: "Response cache operations by op and outcome.",
				},
				[]string{"op", "outcome"},
			),
			cacheEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "response_cache_entries",
					Help: "Current live response cache entries.",
				},
			),
			cacheEvictedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "response_cache_evicted_total",
					Help: "Total expired response cache entries removed.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionsCreatedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			sessionsEvictedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_evicted_total",
					Help: "Total idle sessions evicted.",
				},
			),
			sessionsArchivedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_archived_total",
					Help: "Total evicted sessions archived.",
				},
			),
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "turn_queue_size",
					Help: "Current turn queue size by lane.",
				},
				[]string{"lane"},
			),
			queueWaiting: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_queue_wait_seconds",
					Help:    "Time a turn spent queued before execution by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
		}

		prometheus.MustRegister(
			m.turnsTotal,
			m.turnDuration,
			m.turnRounds,
			m.engineCallsTotal,
			m.engineCallDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.cacheOpsTotal,
			m.cacheEntries,
			m.cacheEvictedTotal,
			m.activeSessions,
			m.sessionsCreatedTotal,
			m.sessionsEvictedTotal,
			m.sessionsArchivedTotal,
			m.queueSize,
			m.queueWaiting,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordTurn records one completed chat turn. Outcome is one of
// final, degraded, exhausted, error.
func RecordTurn(agentType, outcome string, duration time.Duration, rounds int) {
	m := getMetrics()
	m.turnsTotal.WithLabelValues(agentType, outcome).Inc()
	m.turnDuration.WithLabelValues(agentType).Observe(duration.Seconds())
	m.turnRounds.Observe(float64(rounds))
}

// RecordEngineCall records one reasoning engine invocation.
func RecordEngineCall(provider, status string, duration time.Duration) {
	m := getMetrics()
	m.engineCallsTotal.WithLabelValues(provider, status).Inc()
	m.engineCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordToolExecution records one tool execution.
func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCacheOp records a response cache operation outcome, e.g.
// ("get", "hit"), ("get", "miss"), ("set", "ok").
func RecordCacheOp(op, outcome string) {
	getMetrics().cacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

// SetCacheEntries sets the live cache entry gauge.
func SetCacheEntries(count int) {
	getMetrics().cacheEntries.Set(float64(count))
}

// RecordCacheEviction counts expired entries removed by the janitor.
func RecordCacheEviction(count int) {
	getMetrics().cacheEvictedTotal.Add(float64(count))
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordSessionCreated counts a newly created session.
func RecordSessionCreated() {
	getMetrics().sessionsCreatedTotal.Inc()
}

// RecordSessionEvicted counts an idle session eviction, and whether the
// transcript was archived on the way out.
func RecordSessionEvicted(archived bool) {
	m := getMetrics()
	m.sessionsEvictedTotal.Inc()
	if archived {
		m.sessionsArchivedTotal.Inc()
	}
}

// SetQueueSize sets the turn queue size gauge for a lane.
func SetQueueSize(lane string, size int) {
	getMetrics().queueSize.WithLabelValues(lane).Set(float64(size))
}

// RecordQueueWait records how long a turn waited in its lane.
func RecordQueueWait(lane string, wait time.Duration) {
	getMetrics().queueWaiting.WithLabelValues(lane).Observe(wait.Seconds())
}
