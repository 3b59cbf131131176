package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and duration (chat_request through done)
//   - Administrator routing decisions and cycle counts
//   - LLM request performance and response times
//   - Tool execution patterns, latencies, and approval outcomes
//   - Error rates by emitted error code
//   - Active turn counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TurnStarted()
//	defer metrics.TurnEnded(time.Since(start).Seconds())
type Metrics struct {
	// TurnsStarted counts turns begun (the IDLE -> RUNNING transition).
	TurnsStarted prometheus.Counter

	// ActiveTurns is a gauge of turns currently RUNNING.
	ActiveTurns prometheus.Gauge

	// TurnDuration measures a full turn's wall-clock time, from
	// chat_request to done.
	TurnDuration prometheus.Histogram

	// AdministratorCycles measures Administrator<->agent routing cycles
	// spent per turn, bounded by MaxTurnsDefault.
	AdministratorCycles prometheus.Histogram

	// RoutingDecisions counts Administrator routing outcomes.
	// Labels: target (agent|user), reason. The session handler records
	// only the decisions made after an agent has spoken, always with
	// reason "lm"; initial-selection decisions are not recorded.
	RoutingDecisions *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai|ollama), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolRounds measures the LM<->tool round count within one
	// agent.Loop.Process call, bounded by MaxToolRounds.
	ToolRounds prometheus.Histogram

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|denied|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalOutcomes counts resolved tool_approval_response outcomes.
	// Labels: outcome (approved|denied|timeout)
	ApprovalOutcomes *prometheus.CounterVec

	// ErrorsEmitted tracks error events sent to clients.
	// Labels: code (BAD_EVENT|VALIDATION|AUTH|NOT_FOUND|PROVIDER|CANCELLED)
	ErrorsEmitted *prometheus.CounterVec

	// ReconnectCounter counts a user's socket being swapped onto an
	// in-flight handler rather than creating a new one.
	ReconnectCounter prometheus.Counter

	// ExternalToolSyncDuration measures one per-user MCP tool-list sync.
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s
	ExternalToolSyncDuration prometheus.Histogram

	// ExternalToolSyncCounter counts MCP sync attempts by outcome.
	// Labels: status (success|error)
	ExternalToolSyncCounter *prometheus.CounterVec

	// FrameSummariesWritten counts successful post-turn frame
	// summarizations.
	FrameSummariesWritten prometheus.Counter

	// AgentMemoryConsolidations counts successful agent-memory rewrites.
	AgentMemoryConsolidations prometheus.Counter

	// StorePersistDuration measures repository write latency.
	// Labels: operation (append_message|create_conversation|create_frame|update_frame_summary|touch_conversation)
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StorePersistDuration *prometheus.HistogramVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// TurnsStuck counts turns detected stuck in RUNNING past their
	// expected lifetime (watchdog-style diagnostics).
	TurnsStuck prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_turns_started_total",
				Help: "Total number of turns started",
			},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_active_turns",
				Help: "Current number of turns in the RUNNING state",
			},
		),

		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_turn_duration_seconds",
				Help:    "Duration of a full turn from chat_request to done",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		AdministratorCycles: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_administrator_cycles",
				Help:    "Administrator <-> agent routing cycles spent per turn",
				Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
			},
		),

		RoutingDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_routing_decisions_total",
				Help: "Administrator routing decisions by target and reason",
			},
			[]string{"target", "reason"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolRounds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_tool_rounds",
				Help:    "LM <-> tool rounds spent per agent.Loop.Process call",
				Buckets: []float64{0, 1, 2, 3, 5, 7, 10},
			},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ApprovalOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_tool_approval_outcomes_total",
				Help: "Tool approval outcomes by resolution",
			},
			[]string{"outcome"},
		),

		ErrorsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_errors_emitted_total",
				Help: "Total number of error events sent to clients by code",
			},
			[]string{"code"},
		),

		ReconnectCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_reconnects_total",
				Help: "Total number of socket swaps onto an in-flight handler",
			},
		),

		ExternalToolSyncDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_external_tool_sync_duration_seconds",
				Help:    "Duration of a per-user MCP tool-list sync",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),

		ExternalToolSyncCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_external_tool_sync_total",
				Help: "Total number of MCP tool-list syncs by outcome",
			},
			[]string{"status"},
		),

		FrameSummariesWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_frame_summaries_written_total",
				Help: "Total number of successful frame summarizations",
			},
		),

		AgentMemoryConsolidations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_agent_memory_consolidations_total",
				Help: "Total number of successful agent memory consolidations",
			},
		),

		StorePersistDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_store_persist_duration_seconds",
				Help:    "Duration of repository write operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_context_window_tokens",
				Help:    "Context window tokens used",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		TurnsStuck: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_turns_stuck_total",
				Help: "Number of turns detected stuck in the RUNNING state",
			},
		),
	}
}

// TurnStarted records a turn's IDLE -> RUNNING transition.
func (m *Metrics) TurnStarted() {
	m.TurnsStarted.Inc()
	m.ActiveTurns.Inc()
}

// TurnEnded records a turn's completion, whatever the outcome
// (done, cancelled, or error), and its total duration.
func (m *Metrics) TurnEnded(durationSeconds float64) {
	m.ActiveTurns.Dec()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordRoutingDecision records one Administrator routing outcome.
//
// Example:
//
//	metrics.RecordRoutingDecision("agent", "lm")
//	metrics.RecordRoutingDecision("user", "lm")
func (m *Metrics) RecordRoutingDecision(target, reason string) {
	m.RoutingDecisions.WithLabelValues(target, reason).Inc()
}

// RecordAdministratorCycles records the routing cycle count spent by
// one turn.
func (m *Metrics) RecordAdministratorCycles(cycles int) {
	m.AdministratorCycles.Observe(float64(cycles))
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolRounds records the LM<->tool round count used by one
// agent.Loop.Process call.
func (m *Metrics) RecordToolRounds(rounds int) {
	m.ToolRounds.Observe(float64(rounds))
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordApprovalOutcome records a resolved tool_approval_response.
//
// Example:
//
//	metrics.RecordApprovalOutcome("approved")
//	metrics.RecordApprovalOutcome("timeout")
func (m *Metrics) RecordApprovalOutcome(outcome string) {
	m.ApprovalOutcomes.WithLabelValues(outcome).Inc()
}

// ErrorEmitted records an error event sent to a client.
//
// Example:
//
//	metrics.ErrorEmitted("NOT_FOUND")
func (m *Metrics) ErrorEmitted(code string) {
	m.ErrorsEmitted.WithLabelValues(code).Inc()
}

// Reconnected records a socket swap onto an in-flight handler.
func (m *Metrics) Reconnected() {
	m.ReconnectCounter.Inc()
}

// RecordExternalToolSync records one mcp.Orchestrator.Sync call.
func (m *Metrics) RecordExternalToolSync(durationSeconds float64, err error) {
	m.ExternalToolSyncDuration.Observe(durationSeconds)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ExternalToolSyncCounter.WithLabelValues(status).Inc()
}

// FrameSummarized records a successful post-turn frame summarization.
func (m *Metrics) FrameSummarized() {
	m.FrameSummariesWritten.Inc()
}

// AgentMemoryConsolidated records a successful agent-memory rewrite.
func (m *Metrics) AgentMemoryConsolidated() {
	m.AgentMemoryConsolidations.Inc()
}

// RecordStorePersist records one repository write's latency.
//
// Example:
//
//	start := time.Now()
//	// ... store.AppendMessage(...) ...
//	metrics.RecordStorePersist("append_message", time.Since(start).Seconds())
func (m *Metrics) RecordStorePersist(operation string, durationSeconds float64) {
	m.StorePersistDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
//
// Example:
//
//	metrics.RecordContextWindow("anthropic", "claude-3-opus", 45000)
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordTurnStuck records a turn detected stuck in the RUNNING state
// past its expected lifetime.
func (m *Metrics) RecordTurnStuck() {
	m.TurnsStuck.Inc()
}
