package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nexuscore/fabric/internal/agent"
)

// AnthropicProvider implements agent.LLMProvider against Claude's
// Messages API, grounded on the teacher's
// internal/agent/providers/anthropic.go: same SSE event-accumulation
// approach for streamed tool_use blocks, narrowed to the four-method
// adapter surface (no computer-use beta path — out of scope here).
// Chat wraps createStream in an exponential-backoff retry loop, but
// createStream never returns an error (NewStreaming reports API errors
// through the stream), so no call is retried: an API error reaches the
// caller as the final chunk processStream sends.
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config and wires up the SDK client.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-haiku-20240307",
	}, nil
}

// Chat implements the streaming chat operation.
func (p *AnthropicProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	chunks := make(chan *agent.ChatChunk)

	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}
			wrapped := p.wrapError(err, p.model(req.Model))
			if !isRetryable(wrapped) || attempt == p.maxRetries {
				chunks <- &agent.ChatChunk{Error: wrapped, Done: true}
				return
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				chunks <- &agent.ChatChunk{Error: ctx.Err(), Done: true}
				return
			case <-time.After(backoff):
			}
		}

		p.processStream(stream, chunks, p.model(req.Model))
	}()

	return chunks, nil
}

// ChatSync drains a streamed Chat call and returns the accumulated
// message, used by the Administrator's non-streaming routing variant
// and by post-turn summarization.
func (p *AnthropicProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
	chunks, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	var content strings.Builder
	var toolCalls []agent.ToolCall
	for c := range chunks {
		if c.Error != nil {
			return nil, c.Error
		}
		content.WriteString(c.Content)
		toolCalls = append(toolCalls, c.ToolCalls...)
	}
	return &agent.ChatMessage{Role: "assistant", Content: content.String(), ToolCalls: toolCalls}, nil
}

// Generate performs a single-shot, tool-free completion.
func (p *AnthropicProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
	msg, err := p.ChatSync(ctx, &agent.ChatRequest{
		Model:     model,
		Messages:  []agent.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokensOf(opts),
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func maxTokensOf(opts *agent.GenerateOptions) int {
	if opts == nil {
		return 0
	}
	return opts.MaxTokens
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *agent.ChatRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, system := p.convertMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req.MaxTokens)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.Think {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(10000)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// maxEmptyStreamEvents bounds consecutive no-op SSE events before the
// stream is treated as malformed (teacher's protection against
// flooding streams, see internal/agent/providers/anthropic.go).
const maxEmptyStreamEvents = 300

func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.ChatChunk, model string) {
	var currentTool *agent.ToolCall
	var toolInput strings.Builder
	empty := 0

	for stream.Next() {
		event := stream.Current()
		handled := false

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentTool = &agent.ToolCall{ID: tu.ID, Name: tu.Name}
				toolInput.Reset()
				handled = true
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &agent.ChatChunk{Content: delta.Text}
					handled = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- &agent.ChatChunk{Thinking: delta.Thinking}
					handled = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					handled = true
				}
			}
		case "content_block_stop":
			if currentTool != nil {
				currentTool.Arguments = json.RawMessage(toolInput.String())
				chunks <- &agent.ChatChunk{ToolCalls: []agent.ToolCall{*currentTool}}
				currentTool = nil
				handled = true
			}
		case "message_stop":
			chunks <- &agent.ChatChunk{Done: true}
			return
		case "error":
			chunks <- &agent.ChatChunk{Error: p.wrapError(errors.New("anthropic stream error"), model), Done: true}
			return
		default:
			handled = true
		}

		if handled {
			empty = 0
		} else if empty++; empty >= maxEmptyStreamEvents {
			chunks <- &agent.ChatChunk{Error: fmt.Errorf("anthropic: stream appears malformed after %d empty events", empty), Done: true}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.ChatChunk{Error: p.wrapError(err, model), Done: true}
	}
}

func (p *AnthropicProvider) convertMessages(messages []agent.ChatMessage) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system string
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal(tc.Arguments, &input)
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if m.Role == "tool" {
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}

		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, system
}

func (p *AnthropicProvider) convertTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) maxTokens(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
	}
	return NewProviderError("anthropic", model, err)
}

func isRetryable(err error) bool {
	if pe, ok := GetProviderError(err); ok {
		return pe.Reason.IsRetryable()
	}
	return false
}
