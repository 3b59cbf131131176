package providers

import (
	"encoding/json"
	"testing"

	"github.com/nexuscore/fabric/internal/agent"
)

func TestConvertOllamaMessages_ToolCallsAndResults(t *testing.T) {
	msgs := convertOllamaMessages([]agent.ChatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []agent.ToolCall{{ID: "call-1", Name: "lookup", Arguments: json.RawMessage(`{"q":"test"}`)}}},
		{Role: "tool", Name: "lookup", Content: "ok"},
	})

	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "sys" {
		t.Fatalf("system message mismatch: %+v", msgs[0])
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("assistant tool calls missing: %+v", msgs[2])
	}
	if msgs[2].ToolCalls[0].Function.Name != "lookup" {
		t.Errorf("tool name = %q, want %q", msgs[2].ToolCalls[0].Function.Name, "lookup")
	}
	if string(msgs[2].ToolCalls[0].Function.Arguments) != `{"q":"test"}` {
		t.Errorf("tool args = %s, want %s", msgs[2].ToolCalls[0].Function.Arguments, `{"q":"test"}`)
	}
	if msgs[3].Role != "tool" || msgs[3].ToolName != "lookup" || msgs[3].Content != "ok" {
		t.Errorf("tool result message mismatch: %+v", msgs[3])
	}
}

func TestOllamaToolCallKey_FallsBackToNameAndArgs(t *testing.T) {
	key := ollamaToolCallKey(ollamaToolCall{Function: ollamaToolFunction{Name: "lookup", Arguments: json.RawMessage(`{"q":1}`)}})
	if key != `lookup:{"q":1}` {
		t.Errorf("key = %q, want composed name:args fallback", key)
	}
	if ollamaToolCallKey(ollamaToolCall{ID: "abc"}) != "abc" {
		t.Errorf("expected explicit ID to win over fallback")
	}
}

func TestNewOllamaProvider_DefaultsBaseURL(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default", p.baseURL)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q, want ollama", p.Name())
	}
}
