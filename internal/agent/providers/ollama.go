package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/fabric/internal/agent"
)

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaProvider implements agent.LLMProvider and agent.ModelPuller
// against a local Ollama daemon's /api/chat and /api/pull endpoints,
// grounded on the teacher's internal/agent/providers/ollama.go
// line-delimited-JSON streaming approach.
type OllamaProvider struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

var (
	_ agent.LLMProvider = (*OllamaProvider)(nil)
	_ agent.ModelPuller = (*OllamaProvider)(nil)
)

// NewOllamaProvider creates a provider pointed at cfg.BaseURL (default
// http://localhost:11434).
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewProviderError("ollama", "", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewProviderError("ollama", "", fmt.Errorf("decode tags: %w", err))
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// PullModel streams an Ollama model download to completion, draining
// progress events without surfacing them.
func (p *OllamaProvider) PullModel(ctx context.Context, model string) error {
	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return NewProviderError("ollama", model, fmt.Errorf("pull status %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.Error != "" {
			return NewProviderError("ollama", model, errors.New(line.Error))
		}
	}
	return scanner.Err()
}

func (p *OllamaProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	model := p.model(req.Model)
	if model == "" {
		return nil, NewProviderError("ollama", "", errors.New("model is required"))
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   true,
		Messages: convertOllamaMessages(req.Messages),
		Tools:    convertOllamaTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	chunks := make(chan *agent.ChatChunk)
	go p.streamResponse(ctx, resp.Body, chunks, model)
	return chunks, nil
}

func (p *OllamaProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
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

func (p *OllamaProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
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

func (p *OllamaProvider) streamResponse(ctx context.Context, body io.ReadCloser, out chan<- *agent.ChatChunk, model string) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	emitted := map[string]struct{}{}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- &agent.ChatChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			out <- &agent.ChatChunk{Error: NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err)), Done: true}
			return
		}
		if resp.Error != "" {
			out <- &agent.ChatChunk{Error: NewProviderError("ollama", model, errors.New(resp.Error)), Done: true}
			return
		}
		if resp.Message != nil {
			if resp.Message.Content != "" {
				out <- &agent.ChatChunk{Content: resp.Message.Content}
			}
			for _, tc := range resp.Message.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = ollamaToolCallKey(tc)
					if id == "" {
						id = uuid.NewString()
					}
				}
				if _, seen := emitted[id]; seen {
					continue
				}
				emitted[id] = struct{}{}
				args := tc.Function.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				out <- &agent.ChatChunk{ToolCalls: []agent.ToolCall{{ID: id, Name: strings.TrimSpace(tc.Function.Name), Arguments: args}}}
			}
		}
		if resp.Done {
			out <- &agent.ChatChunk{Done: true}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- &agent.ChatChunk{Error: NewProviderError("ollama", model, err), Done: true}
	}
}

func (p *OllamaProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message *ollamaChatMessage `json:"message"`
	Done    bool               `json:"done"`
	Error   string             `json:"error"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func convertOllamaTools(tools []agent.ToolSchema) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, len(tools))
	for i, t := range tools {
		out[i] = ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func convertOllamaMessages(messages []agent.ChatMessage) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			msg := ollamaChatMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall{ID: tc.ID, Function: ollamaToolFunction{Name: tc.Name, Arguments: args}})
			}
			out = append(out, msg)
		case "tool":
			out = append(out, ollamaChatMessage{Role: "tool", Content: m.Content, ToolName: m.Name})
		case "system":
			out = append(out, ollamaChatMessage{Role: "system", Content: m.Content})
		default:
			out = append(out, ollamaChatMessage{Role: "user", Content: m.Content})
		}
	}
	return out
}

func ollamaToolCallKey(tc ollamaToolCall) string {
	if id := strings.TrimSpace(tc.ID); id != "" {
		return id
	}
	name := strings.TrimSpace(tc.Function.Name)
	args := strings.TrimSpace(string(tc.Function.Arguments))
	if name == "" && args == "" {
		return ""
	}
	return name + ":" + args
}
