// Package observability provides process-wide metrics and tracing for the
// conversation orchestrator: Prometheus collectors for turn latency,
// tool-call outcomes, and LLM transport failover, plus an in-process
// OpenTelemetry tracer for one span per router turn and per tool call.
//
// Grounded on the teacher's internal/observability package (Metrics,
// Tracer), trimmed to the handful of signals spec.md actually asks for
// (§5 "Shared state", §9 design notes) rather than the teacher's full
// channel/database/webhook surface, which this system has no equivalent
// of.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the orchestrator reports.
type Metrics struct {
	// TurnDuration measures one full router.Chat call, end to end.
	TurnDuration prometheus.Histogram

	// ToolExecutionDuration measures one executor.Execute call.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool calls by outcome.
	// Labels: tool_name, status (success|error).
	ToolExecutionCounter *prometheus.CounterVec

	// LLMFailoverCounter counts proxy<->direct transport switches.
	// Labels: from, to.
	LLMFailoverCounter *prometheus.CounterVec

	// HTTPRequestDuration measures one HTTP request.
	// Labels: method, path, status.
	HTTPRequestDuration *prometheus.HistogramVec

	// ActiveSessions is a gauge of sessions currently held in memory
	// across every per-user SessionManager.
	ActiveSessions prometheus.Gauge
}

// NewMetrics builds and registers every collector against reg. Passing
// nil registers against the default Prometheus registry, which is what
// promhttp.Handler() serves.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emission_agent",
			Subsystem: "router",
			Name:      "turn_duration_seconds",
			Help:      "Duration of one complete router turn (tool-use loop plus synthesis).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emission_agent",
			Subsystem: "executor",
			Name:      "tool_duration_seconds",
			Help:      "Duration of one tool execution, by tool name.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		}, []string{"tool_name"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission_agent",
			Subsystem: "executor",
			Name:      "tool_calls_total",
			Help:      "Tool calls by name and outcome.",
		}, []string{"tool_name", "status"}),
		LLMFailoverCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emission_agent",
			Subsystem: "llm",
			Name:      "failover_total",
			Help:      "LLM transport failovers, by source and destination transport.",
		}, []string{"from", "to"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emission_agent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration, by method, path, and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emission_agent",
			Subsystem: "sessions",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory across all users.",
		}),
	}
}

// ObserveTurn records the duration of one router turn.
func (m *Metrics) ObserveTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnDuration.Observe(d.Seconds())
}

// ObserveToolCall records one tool execution's duration and outcome.
func (m *Metrics) ObserveToolCall(toolName string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(d.Seconds())
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
}

// ObserveFailover records one LLM transport failover.
func (m *Metrics) ObserveFailover(from, to string) {
	if m == nil {
		return
	}
	m.LLMFailoverCounter.WithLabelValues(from, to).Inc()
}

// ObserveHTTPRequest records one HTTP request's duration and status.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// SetActiveSessions updates the active-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
