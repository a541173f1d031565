package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects engine-level Prometheus metrics. A fresh Metrics value
// is registered against its own registry so concurrent test runners never
// collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	// RunCounter counts runs by terminal status.
	// Labels: status (COMPLETED|FAILED)
	RunCounter *prometheus.CounterVec

	// RunDuration measures whole-run duration in seconds.
	RunDuration prometheus.Histogram

	// LLMRequestCounter counts routed LLM calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures provider call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the engine metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexous_runs_total",
			Help: "Completed runs by terminal status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexous_run_duration_seconds",
			Help:    "Whole-run duration.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		LLMRequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexous_llm_requests_total",
			Help: "LLM requests by provider, model and outcome.",
		}, []string{"provider", "model", "status"}),
		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexous_llm_request_duration_seconds",
			Help:    "LLM provider call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexous_llm_tokens_total",
			Help: "Token consumption by provider, model and direction.",
		}, []string{"provider", "model", "type"}),
		ToolExecutionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexous_tool_executions_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexous_tool_execution_duration_seconds",
			Help:    "Tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
	}
	reg.MustRegister(
		m.RunCounter,
		m.RunDuration,
		m.LLMRequestCounter,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.ToolExecutionCounter,
		m.ToolExecutionDuration,
	)
	return m
}

// Registry exposes the metric registry for the HTTP /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
