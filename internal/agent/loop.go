package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscore/fabric/internal/observability"
	"github.com/nexuscore/fabric/internal/view"
	"github.com/nexuscore/fabric/pkg/models"
)

// MaxToolRounds bounds the number of LM-call/tool-execution cycles a
// single Process call will run before giving up.
const MaxToolRounds = 10

// StreamEvent is one unit of output from Process: either a fragment of
// streamed assistant content/thinking or a completed tool result. The
// gateway wraps these into wire-level stream_chunk events
// by attaching conversation_id/frame_id, which Process has no notion of.
type StreamEvent struct {
	Role     string // "assistant" or "tool"
	Content  string
	Thinking string
	Name     string // agent name for role=assistant, tool name for role=tool
	AgentID  string // empty for role=tool
}

// Loop drives one agent's turn: a bounded tool-calling cycle, built
// from the teacher's internal/agent AgenticLoop but narrowed to the
// four-method LLMProvider contract and the pure
// view-builder handoff point. A Loop is single-use per call to
// Process; the same Loop value may be reused across turns as long as
// its Agent/Provider/Registry/Approval fields don't change concurrently.
type Loop struct {
	Agent     models.Agent
	Provider  LLMProvider
	Registry  *ToolRegistry
	Approval  ApprovalRequester
	MaxRounds int // 0 means MaxToolRounds

	// ExtraTools are exposed to this Process call only, alongside
	// whatever Registry.ExposedTo returns — the delegate_to_<agent_id>
	// tools built per-request from the caller's sibling-agent roster,
	// which have no business living in the shared Registry.
	ExtraTools []Tool

	// Metrics is optional; a nil Metrics skips round/execution recording
	// entirely so callers (including tests) can build a Loop without a
	// Prometheus registry.
	Metrics *observability.Metrics

	// LastRawInput/LastRawOutput capture the prepared-messages JSON sent
	// on the final LM round and its raw streamed content, for the
	// Message.raw_input/raw_output debug columns. Populated once
	// Process's returned channel is closed; read-after-close is safe
	// without extra synchronization since the channel close
	// happens-after run() finishes writing them.
	LastRawInput  string
	LastRawOutput string
}

// Process builds the agent's view of history, then alternates LM
// streaming rounds with tool
// execution until either the LM stops requesting tools or MaxRounds is
// reached. Events are sent to the returned channel in strict arrival
// order; the channel is closed when the turn ends, including on error.
func (l *Loop) Process(ctx context.Context, history []models.Message, viewCfg view.Config, conversationID string) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		l.run(ctx, history, viewCfg, conversationID, out)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, history []models.Message, viewCfg view.Config, conversationID string, out chan<- StreamEvent) {
	roundsUsed := 0
	defer func() {
		if r := recover(); r != nil {
			out <- l.errEvent(fmt.Sprintf("%v", r))
		}
		if l.Metrics != nil {
			l.Metrics.RecordToolRounds(roundsUsed)
		}
	}()

	maxRounds := l.MaxRounds
	if maxRounds <= 0 {
		maxRounds = MaxToolRounds
	}

	prepared := toChatMessages(view.Build(history, viewCfg))
	exposed := append(l.Registry.ExposedTo(l.Agent.ExcludedTools), l.ExtraTools...)
	schemas := Schemas(exposed)

	for round := 0; round < maxRounds; round++ {
		roundsUsed = round + 1
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunks, err := l.Provider.Chat(ctx, &ChatRequest{
			Model:    l.Agent.Model,
			Messages: prepared,
			Tools:    schemas,
			Stream:   true,
			Think:    l.Agent.Think,
		})
		if err != nil {
			out <- l.errEvent(err.Error())
			return
		}

		if raw, err := json.Marshal(prepared); err == nil {
			l.LastRawInput = string(raw)
		}

		var content strings.Builder
		var toolCalls []ToolCall
		for chunk := range chunks {
			if chunk.Error != nil {
				out <- l.errEvent(chunk.Error.Error())
				return
			}
			if chunk.Thinking != "" {
				out <- StreamEvent{Role: "assistant", Thinking: chunk.Thinking, Name: l.Agent.Name, AgentID: l.Agent.ID}
			}
			if chunk.Content != "" {
				out <- StreamEvent{Role: "assistant", Content: chunk.Content, Name: l.Agent.Name, AgentID: l.Agent.ID}
				content.WriteString(chunk.Content)
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
		}

		l.LastRawOutput = content.String()

		if len(toolCalls) == 0 {
			return
		}

		prepared = append(prepared, ChatMessage{Role: "assistant", Content: content.String(), ToolCalls: toolCalls})

		for _, tc := range toolCalls {
			result := l.executeOne(ctx, tc, exposed, conversationID)
			out <- StreamEvent{Role: "tool", Content: result.Content, Name: tc.Name}
			prepared = append(prepared, ChatMessage{Role: "tool", Name: tc.Name, ToolCallID: tc.ID, Content: result.Content})
		}
	}
}

func (l *Loop) executeOne(ctx context.Context, tc ToolCall, exposed []Tool, conversationID string) *ToolResult {
	args, err := tc.NormalizedArguments()
	if err != nil {
		l.recordToolExecution(tc.Name, "error", 0)
		return &ToolResult{Content: fmt.Sprintf("Tool execution failed: %s", err), IsError: true}
	}
	started := time.Now()
	result := executeWithApproval(ctx, l.Registry, exposed, l.Approval, tc.Name, args, l.Agent.ID, l.Agent.Name, conversationID)
	status := "success"
	if result.IsError {
		status = "error"
	}
	l.recordToolExecution(tc.Name, status, time.Since(started).Seconds())
	return result
}

func (l *Loop) recordToolExecution(toolName, status string, durationSeconds float64) {
	if l.Metrics != nil {
		l.Metrics.RecordToolExecution(toolName, status, durationSeconds)
	}
}

func (l *Loop) errEvent(msg string) StreamEvent {
	return StreamEvent{Role: "assistant", Content: "Error: " + msg, Name: l.Agent.Name, AgentID: l.Agent.ID}
}

func toChatMessages(prepared []view.PreparedMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(prepared))
	for _, p := range prepared {
		out = append(out, ChatMessage{Role: p.Role, Content: p.Content})
	}
	return out
}
