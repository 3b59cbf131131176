package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/fabric/internal/agent"
)

// OpenAIProvider implements agent.LLMProvider against the Chat
// Completions API, grounded on the teacher's
// internal/agent/providers/openai.go (delta-indexed tool-call
// accumulation, retry-with-backoff dial), narrowed to the four-method
// adapter surface.
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIProvider creates a provider bound to apiKey.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{maxRetries: 3, retryDelay: time.Second}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: p.convertMessages(req.Messages),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableText(lastErr.Error()) {
			return nil, fmt.Errorf("openai: non-retryable: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}

	chunks := make(chan *agent.ChatChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
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

func (p *OpenAIProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
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

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.ChatChunk) {
	defer close(chunks)
	defer stream.Close()

	pending := map[int]*agent.ToolCall{}
	flush := func() {
		for _, tc := range pending {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &agent.ChatChunk{ToolCalls: []agent.ToolCall{*tc}}
			}
		}
		pending = map[int]*agent.ToolCall{}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.ChatChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flush()
				chunks <- &agent.ChatChunk{Done: true}
				return
			}
			chunks <- &agent.ChatChunk{Error: err, Done: true}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &agent.ChatChunk{Content: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := pending[idx]
			if !ok {
				cur = &agent.ToolCall{}
				pending[idx] = cur
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				cur.Arguments = append(cur.Arguments, []byte(tc.Function.Arguments)...)
			}
		}

		if choice.FinishReason == "tool_calls" {
			flush()
		}
	}
}

func (p *OpenAIProvider) convertMessages(messages []agent.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		case "tool":
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case "system":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func (p *OpenAIProvider) convertTools(tools []agent.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func isRetryableText(msg string) bool {
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
