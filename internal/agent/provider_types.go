// Package agent implements the tool-calling agent loop: the bounded
// LM-call/tool-execution cycle that drives a single agent's turn, the
// tool registry and approval policy it executes against, and the
// narrow adapter interface it speaks to LM backends through.
package agent

import (
	"context"
	"encoding/json"
)

// LLMProvider is the narrow adapter the core speaks to an LM backend
// through. Implementations wrap one concrete backend (Anthropic,
// OpenAI, Ollama, ...) and must be safe for concurrent use.
type LLMProvider interface {
	// Chat streams a completion. The returned channel is closed when the
	// stream ends (success, error, or ctx cancellation).
	Chat(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error)

	// ChatSync performs a non-streaming completion, used by the
	// Administrator's non-streaming routing variant and by post-turn
	// summarization/consolidation.
	ChatSync(ctx context.Context, req *ChatRequest) (*ChatMessage, error)

	// Generate performs a single-shot completion outside the chat
	// message format.
	Generate(ctx context.Context, model, prompt string, opts *GenerateOptions) (string, error)

	// ListModels returns the backend's available model names.
	ListModels(ctx context.Context) ([]string, error)

	// Name identifies the backend for logging and metrics.
	Name() string
}

// ModelPuller is implemented by backends that support downloading a
// model before first use.
type ModelPuller interface {
	PullModel(ctx context.Context, model string) error
}

// GenerateOptions configures a single-shot Generate call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// ChatRequest is one LM call: a model, the prepared message sequence
// (already filtered by the view builder), the tool schemas exposed to
// the calling agent, and think-mode.
type ChatRequest struct {
	Model     string
	Messages  []ChatMessage
	Tools     []ToolSchema
	Stream    bool
	Think     bool
	MaxTokens int
}

// ChatMessage is one turn in the prepared sequence. Role is one of
// "system", "user", "assistant", "tool".
type ChatMessage struct {
	Role       string
	Content    string
	Name       string // tool name, for role="tool"
	ToolCallID string // the ToolCall.ID this result answers, for role="tool"
	Images     []string
	ToolCalls  []ToolCall // assistant messages that requested tools
}

// ToolCall is an LM's request to execute a tool. Arguments is kept as
// raw JSON because providers differ on whether they hand back an
// object or a JSON-encoded string; NormalizedArguments accepts both.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// NormalizedArguments decodes Arguments whether the provider sent a
// JSON object or a JSON-encoded string containing an object.
func (tc ToolCall) NormalizedArguments() (map[string]any, error) {
	raw := tc.Arguments
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatChunk is one element of a streamed chat response.
type ChatChunk struct {
	Content   string
	Thinking  string
	ToolCalls []ToolCall
	Done      bool
	Error     error
}

// ToolSchema is the provider-agnostic tool description handed to an LM
// call: name, description, and a JSON-schema for parameters.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}
