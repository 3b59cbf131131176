// Package memory implements the post-turn asynchronous work a turn
// requires: frame summarization and agent-memory consolidation.
// Grounded on the teacher's internal/memory package's
// ChatSync/non-streaming LM call convention, generalized from its
// vector-embedding semantic-memory machinery (dropped — see
// DESIGN.md) onto the narrower size-capped text rewrite the runtime names.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

// frameSummaryPromptTemplate asks the model to condense a
// frame's transcript into a short recap a future frame can read
// instead of the full history.
const frameSummaryPromptTemplate = `Summarize the following conversation frame in 2-4 sentences, focusing on decisions made and open threads. Be concise.

Transcript:
%s`

// agentMemoryPromptTemplate asks the model to fold new observations
// into an agent's existing memory string, respecting the size cap.
const agentMemoryPromptTemplate = `You maintain a running memory note for yourself, capped at %d bytes. Merge any new durable facts, preferences, or decisions from the recent exchange into your existing memory, dropping anything stale or no longer useful. Reply with only the updated memory text.

Existing memory:
%s

Recent exchange:
%s`

// Consolidator runs frame summarization and agent-memory consolidation
// as fire-and-forget background work, launched by the session handler
// at the end of every turn. Both operations use the
// non-streaming LLMProvider.ChatSync path and never surface errors to
// the client — only to logs.
type Consolidator struct {
	Provider agent.LLMProvider
	Logger   *slog.Logger
}

// NewConsolidator builds a Consolidator; a nil logger falls back to
// slog.Default().
func NewConsolidator(provider agent.LLMProvider, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{Provider: provider, Logger: logger}
}

// SummarizeFrame condenses a frame's transcript into a short summary
// string for store.UpdateFrameSummary to persist. model is normally
// the caller's resolved per-user override (User.summary_model) or the
// provider's default when unset.
func (c *Consolidator) SummarizeFrame(ctx context.Context, messages []models.Message, model string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	transcript := renderTranscript(messages)
	prompt := fmt.Sprintf(frameSummaryPromptTemplate, transcript)

	resp, err := c.Provider.ChatSync(ctx, &agent.ChatRequest{
		Model:    model,
		Messages: []agent.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("summarize frame: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ConsolidateAgentMemory folds recentExchange into agent.Memory,
// enforcing models.MaxMemoryBytes by truncating the model's reply if
// it overruns the cap.
func (c *Consolidator) ConsolidateAgentMemory(ctx context.Context, a models.Agent, recentExchange, model string) (string, error) {
	prompt := fmt.Sprintf(agentMemoryPromptTemplate, models.MaxMemoryBytes, a.Memory, recentExchange)

	resp, err := c.Provider.ChatSync(ctx, &agent.ChatRequest{
		Model:    model,
		Messages: []agent.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("consolidate agent memory: %w", err)
	}

	updated := strings.TrimSpace(resp.Content)
	if len(updated) > models.MaxMemoryBytes {
		updated = updated[:models.MaxMemoryBytes]
	}
	return updated, nil
}

// RunFrameSummaryAsync launches SummarizeFrame in a background
// goroutine and invokes onDone with the result, logging (never
// panicking or propagating) any error.
func (c *Consolidator) RunFrameSummaryAsync(ctx context.Context, messages []models.Message, model string, onDone func(summary string)) {
	go func() {
		summary, err := c.SummarizeFrame(ctx, messages, model)
		if err != nil {
			c.Logger.Error("frame summarization failed", "error", err)
			return
		}
		if onDone != nil {
			onDone(summary)
		}
	}()
}

// RunAgentMemoryConsolidationAsync launches ConsolidateAgentMemory in a
// background goroutine and invokes onDone with the result.
func (c *Consolidator) RunAgentMemoryConsolidationAsync(ctx context.Context, a models.Agent, recentExchange, model string, onDone func(memory string)) {
	go func() {
		updated, err := c.ConsolidateAgentMemory(ctx, a, recentExchange, model)
		if err != nil {
			c.Logger.Error("agent memory consolidation failed", "agent_id", a.ID, "error", err)
			return
		}
		if onDone != nil {
			onDone(updated)
		}
	}()
}

func renderTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := m.Speaker
		if speaker == "" {
			speaker = string(m.Role)
		}
		fmt.Fprintf(&b, "[%s]: %s\n", speaker, m.Content)
	}
	return b.String()
}
