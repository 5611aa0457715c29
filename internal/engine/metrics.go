package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// AgentMetrics is the external collaborator the lifecycle reports every
// terminal outcome to (spec §7 Observability).
type AgentMetrics interface {
	RecordRun(success bool, durationMs int64)
	RecordErrorKind(kind arc.AgentErrorKind)
	RecordToolCall(name string, success bool)
	RecordGuardRejection(stage string)
	RecordBreakerTransition(from, to string)
	RecordFallbackAttempt(model string, success bool)
	RecordCacheHit(hit bool)
	RecordCoalesce(shared bool)
}

// PrometheusMetrics implements AgentMetrics over client_golang collectors.
type PrometheusMetrics struct {
	runs             *prometheus.CounterVec
	duration         prometheus.Histogram
	errorKinds       *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
	guardRejections  *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	fallbackAttempts *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	coalesced        *prometheus.CounterVec
}

// NewPrometheusMetrics registers and returns a PrometheusMetrics on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_runs_total",
			Help: "Total agent runs by outcome.",
		}, []string{"success"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arc_engine_run_duration_ms",
			Help:    "Run duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
		errorKinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_errors_total",
			Help: "Terminal errors by kind.",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_tool_calls_total",
			Help: "Tool calls by name and outcome.",
		}, []string{"tool", "success"}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_guard_rejections_total",
			Help: "Guard rejections by stage.",
		}, []string{"stage"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
		fallbackAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_fallback_attempts_total",
			Help: "Fallback model attempts by model and outcome.",
		}, []string{"model", "success"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_cache_lookups_total",
			Help: "Response cache lookups by hit/miss.",
		}, []string{"hit"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arc_engine_react_coalesced_total",
			Help: "ReAct loop executions by whether the result was shared with an in-flight identical request.",
		}, []string{"shared"}),
	}
	reg.MustRegister(m.runs, m.duration, m.errorKinds, m.toolCalls, m.guardRejections, m.breakerTransitions, m.fallbackAttempts, m.cacheHits, m.coalesced)
	return m
}

func (m *PrometheusMetrics) RecordRun(success bool, durationMs int64) {
	m.runs.WithLabelValues(boolLabel(success)).Inc()
	m.duration.Observe(float64(durationMs))
}

func (m *PrometheusMetrics) RecordErrorKind(kind arc.AgentErrorKind) {
	m.errorKinds.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusMetrics) RecordToolCall(name string, success bool) {
	m.toolCalls.WithLabelValues(name, boolLabel(success)).Inc()
}

func (m *PrometheusMetrics) RecordGuardRejection(stage string) {
	m.guardRejections.WithLabelValues(stage).Inc()
}

func (m *PrometheusMetrics) RecordBreakerTransition(from, to string) {
	m.breakerTransitions.WithLabelValues(from, to).Inc()
}

func (m *PrometheusMetrics) RecordFallbackAttempt(model string, success bool) {
	m.fallbackAttempts.WithLabelValues(model, boolLabel(success)).Inc()
}

func (m *PrometheusMetrics) RecordCacheHit(hit bool) {
	m.cacheHits.WithLabelValues(boolLabel(hit)).Inc()
}

func (m *PrometheusMetrics) RecordCoalesce(shared bool) {
	m.coalesced.WithLabelValues(boolLabel(shared)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NopMetrics discards every recording. Used when no metrics registry is
// configured.
type NopMetrics struct{}

func (NopMetrics) RecordRun(bool, int64)                 {}
func (NopMetrics) RecordErrorKind(arc.AgentErrorKind)     {}
func (NopMetrics) RecordToolCall(string, bool)            {}
func (NopMetrics) RecordGuardRejection(string)            {}
func (NopMetrics) RecordBreakerTransition(string, string) {}
func (NopMetrics) RecordFallbackAttempt(string, bool)     {}
func (NopMetrics) RecordCacheHit(bool)                    {}
func (NopMetrics) RecordCoalesce(bool)                    {}
