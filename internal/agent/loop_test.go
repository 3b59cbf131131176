package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nexuscore/fabric/internal/view"
	"github.com/nexuscore/fabric/pkg/models"
)

// scriptedProvider returns one canned *ChatChunk stream per call,
// advancing through responses in order. It implements LLMProvider
// minimally: only Chat is exercised by Loop.
type scriptedProvider struct {
	responses [][]*ChatChunk
	calls     int
}

func (s *scriptedProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error) {
	resp := s.responses[s.calls]
	s.calls++
	ch := make(chan *ChatChunk, len(resp))
	for _, c := range resp {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) ChatSync(ctx context.Context, req *ChatRequest) (*ChatMessage, error) {
	return nil, nil
}
func (s *scriptedProvider) Generate(ctx context.Context, model, prompt string, opts *GenerateOptions) (string, error) {
	return "", nil
}
func (s *scriptedProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (s *scriptedProvider) Name() string                                    { return "scripted" }

type stubTool struct {
	name     string
	approval bool
	result   string
}

func (t *stubTool) Name() string                 { return t.name }
func (t *stubTool) Description() string          { return "stub" }
func (t *stubTool) Schema() json.RawMessage      { return nil }
func (t *stubTool) BuiltIn() bool                { return true }
func (t *stubTool) RequiresApproval() bool       { return t.approval }
func (t *stubTool) RiskLevel() RiskLevel         { return RiskLow }
func (t *stubTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	return &ToolResult{Content: t.result}, nil
}

func drain(ch <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestLoop_NoToolCallsEndsAfterOneRound(t *testing.T) {
	provider := &scriptedProvider{responses: [][]*ChatChunk{
		{{Content: "hello "}, {Content: "there"}},
	}}
	reg := NewToolRegistry()
	l := &Loop{Agent: models.Agent{ID: "a1", Name: "Scribe"}, Provider: provider, Registry: reg}

	events := drain(l.Process(context.Background(), nil, view.Config{Viewer: l.Agent, Now: time.Now()}, "conv-1"))
	if len(events) != 2 {
		t.Fatalf("expected 2 content events, got %d: %+v", len(events), events)
	}
	if events[0].Content != "hello " || events[1].Content != "there" {
		t.Errorf("unexpected content events: %+v", events)
	}
	if provider.calls != 1 {
		t.Errorf("expected exactly 1 LM call, got %d", provider.calls)
	}
}

func TestLoop_ExecutesToolThenStops(t *testing.T) {
	provider := &scriptedProvider{responses: [][]*ChatChunk{
		{{ToolCalls: []ToolCall{{ID: "1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)}}}},
		{{Content: "done"}},
	}}
	reg := NewToolRegistry()
	if err := reg.Register(&stubTool{name: "lookup", result: "found it"}); err != nil {
		t.Fatal(err)
	}
	l := &Loop{Agent: models.Agent{ID: "a1", Name: "Scribe"}, Provider: provider, Registry: reg}

	events := drain(l.Process(context.Background(), nil, view.Config{Viewer: l.Agent, Now: time.Now()}, "conv-1"))
	if len(events) != 2 {
		t.Fatalf("expected tool event then final content, got %d: %+v", len(events), events)
	}
	if events[0].Role != "tool" || events[0].Content != "found it" {
		t.Errorf("unexpected tool event: %+v", events[0])
	}
	if events[1].Role != "assistant" || events[1].Content != "done" {
		t.Errorf("unexpected final event: %+v", events[1])
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 LM calls (one per round), got %d", provider.calls)
	}
}

func TestLoop_UnapprovedToolDenied(t *testing.T) {
	provider := &scriptedProvider{responses: [][]*ChatChunk{
		{{ToolCalls: []ToolCall{{ID: "1", Name: "danger", Arguments: json.RawMessage(`{}`)}}}},
		{{Content: "ok"}},
	}}
	reg := NewToolRegistry()
	if err := reg.Register(&stubTool{name: "danger", approval: true, result: "should not run"}); err != nil {
		t.Fatal(err)
	}
	l := &Loop{Agent: models.Agent{ID: "a1", Name: "Scribe"}, Provider: provider, Registry: reg, Approval: nil}

	events := drain(l.Process(context.Background(), nil, view.Config{Viewer: l.Agent, Now: time.Now()}, "conv-1"))
	if len(events) != 2 {
		t.Fatalf("expected denial event then final content, got %d: %+v", len(events), events)
	}
	if events[0].Content != "Tool execution denied by user: danger" {
		t.Errorf("expected denial message, got %+v", events[0])
	}
}

func TestLoop_ExtraToolsAreCallableAlongsideRegistry(t *testing.T) {
	provider := &scriptedProvider{responses: [][]*ChatChunk{
		{{ToolCalls: []ToolCall{{ID: "1", Name: "delegate_to_a2", Arguments: json.RawMessage(`{}`)}}}},
		{{Content: "done"}},
	}}
	reg := NewToolRegistry()
	l := &Loop{
		Agent:      models.Agent{ID: "a1", Name: "Scribe"},
		Provider:   provider,
		Registry:   reg,
		ExtraTools: []Tool{&stubTool{name: "delegate_to_a2", result: "sub-agent done"}},
	}

	events := drain(l.Process(context.Background(), nil, view.Config{Viewer: l.Agent, Now: time.Now()}, "conv-1"))
	if len(events) != 2 {
		t.Fatalf("expected tool event then final content, got %d: %+v", len(events), events)
	}
	if events[0].Role != "tool" || events[0].Content != "sub-agent done" {
		t.Errorf("expected the ExtraTools entry to run since it's not in Registry, got %+v", events[0])
	}
}

func TestLoop_StopsAfterMaxRounds(t *testing.T) {
	responses := make([][]*ChatChunk, 3)
	for i := range responses {
		responses[i] = []*ChatChunk{{ToolCalls: []ToolCall{{ID: "1", Name: "lookup", Arguments: json.RawMessage(`{}`)}}}}
	}
	provider := &scriptedProvider{responses: responses}
	reg := NewToolRegistry()
	if err := reg.Register(&stubTool{name: "lookup", result: "again"}); err != nil {
		t.Fatal(err)
	}
	l := &Loop{Agent: models.Agent{ID: "a1", Name: "Scribe"}, Provider: provider, Registry: reg, MaxRounds: 3}

	drain(l.Process(context.Background(), nil, view.Config{Viewer: l.Agent, Now: time.Now()}, "conv-1"))
	if provider.calls != 3 {
		t.Errorf("expected loop to stop at MaxRounds=3, got %d calls", provider.calls)
	}
}
