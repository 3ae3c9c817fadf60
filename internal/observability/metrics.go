package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized interface for collecting turn-engine metrics,
// built on Prometheus. It tracks node execution, provider latency, tool
// execution, and error rates.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... run a node ...
//	metrics.RecordNode("router", "ok", time.Since(start).Seconds())
type Metrics struct {
	// NodeDuration measures node span duration in seconds.
	// Labels: node_id, status (ok|error)
	NodeDuration *prometheus.HistogramVec

	// NodeCounter counts node executions.
	// Labels: node_id, status (ok|error)
	NodeCounter *prometheus.CounterVec

	// ProviderRequestDuration measures provider completion call latency.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts provider completion calls.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations from the tool loop.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolStepsPerTurn tracks how many tool-loop steps a completion used.
	// Labels: node_id
	ToolStepsPerTurn *prometheus.HistogramVec

	// ErrorCounter tracks errors by code and node.
	// Labels: node_id, code (matches the §7 error taxonomy, e.g. NODE_ERROR)
	ErrorCounter *prometheus.CounterVec

	// TurnDuration measures full-turn duration in seconds.
	// Labels: status (ok|error)
	TurnDuration *prometheus.HistogramVec

	// ActiveTurns is a gauge tracking turns currently running.
	ActiveTurns prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup; they register with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		NodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnengine_node_duration_seconds",
				Help:    "Duration of node span execution in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"node_id", "status"},
		),

		NodeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnengine_node_executions_total",
				Help: "Total number of node executions by node id and status",
			},
			[]string{"node_id", "status"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnengine_provider_request_duration_seconds",
				Help:    "Duration of LLM provider completion calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnengine_provider_requests_total",
				Help: "Total number of provider completion calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnengine_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnengine_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		ToolStepsPerTurn: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnengine_tool_loop_steps",
				Help:    "Number of tool-loop steps a node's completion used",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 12},
			},
			[]string{"node_id"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnengine_errors_total",
				Help: "Total number of errors by node id and error code",
			},
			[]string{"node_id", "code"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnengine_turn_duration_seconds",
				Help:    "Duration of a full turn in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"status"},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "turnengine_active_turns",
				Help: "Current number of turns running concurrently",
			},
		),
	}
}

// RecordNode records a node span's outcome and duration.
func (m *Metrics) RecordNode(nodeID, status string, durationSeconds float64) {
	m.NodeCounter.WithLabelValues(nodeID, status).Inc()
	m.NodeDuration.WithLabelValues(nodeID, status).Observe(durationSeconds)
}

// RecordProviderRequest records metrics for an LLM provider completion call.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordToolExecution records metrics for a single tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordToolLoopSteps records how many stream/execute/continue steps a
// node's tool loop took before settling.
func (m *Metrics) RecordToolLoopSteps(nodeID string, steps int) {
	m.ToolStepsPerTurn.WithLabelValues(nodeID).Observe(float64(steps))
}

// RecordError increments the error counter for a node id and §7 error code.
func (m *Metrics) RecordError(nodeID, code string) {
	m.ErrorCounter.WithLabelValues(nodeID, code).Inc()
}

// TurnStarted increments the active-turns gauge.
func (m *Metrics) TurnStarted() {
	m.ActiveTurns.Inc()
}

// TurnEnded decrements the active-turns gauge and records turn duration.
func (m *Metrics) TurnEnded(status string, durationSeconds float64) {
	m.ActiveTurns.Dec()
	m.TurnDuration.WithLabelValues(status).Observe(durationSeconds)
}
