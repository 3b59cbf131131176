package multiagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

// scriptedProvider returns one canned ChatSync/Chat response per call,
// mirroring internal/agent/loop_test.go's scriptedProvider.
type scriptedProvider struct {
	syncResponses [][]agent.ToolCall
	calls         int

	streamResponses [][]*agent.ChatChunk
	streamCalls     int
}

func (s *scriptedProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
	tc := s.syncResponses[s.calls]
	s.calls++
	return &agent.ChatMessage{Role: "assistant", ToolCalls: tc}, nil
}

func (s *scriptedProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	resp := s.streamResponses[s.streamCalls]
	s.streamCalls++
	ch := make(chan *agent.ChatChunk, len(resp))
	for _, c := range resp {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
	return "", nil
}
func (s *scriptedProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (s *scriptedProvider) Name() string                                    { return "scripted" }

func toolCallArgs(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInitialSelection_EmptyAgentsRoutesToUserWithoutLMCall(t *testing.T) {
	p := &scriptedProvider{}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}

	decisions, err := a.InitialSelection(context.Background(), "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Target != models.RouteToUser {
		t.Fatalf("expected single route-to-user decision, got %+v", decisions)
	}
	if p.calls != 0 {
		t.Errorf("expected no LM call for zero agents, got %d", p.calls)
	}
}

func TestInitialSelection_SingleAgentSelectedWithoutLMCall(t *testing.T) {
	p := &scriptedProvider{}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{{ID: "a1", Name: "Alice"}}

	decisions, err := a.InitialSelection(context.Background(), "hi", available)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Target != models.RouteToAgent || decisions[0].AgentID != "a1" {
		t.Fatalf("expected deterministic selection of the only agent, got %+v", decisions)
	}
	if p.calls != 0 {
		t.Errorf("expected no LM call for one agent, got %d", p.calls)
	}
}

func TestInitialSelection_MultipleAgentsCallsLMAndQueuesInOrder(t *testing.T) {
	p := &scriptedProvider{syncResponses: [][]agent.ToolCall{
		{
			{Name: "route_to_agent", Arguments: toolCallArgs(t, map[string]any{"agent_name": "Alice", "reason": "addressed"})},
			{Name: "route_to_agent", Arguments: toolCallArgs(t, map[string]any{"agent_name": "Bob", "reason": "chiming in"})},
		},
	}}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{{ID: "a1", Name: "Alice"}, {ID: "a2", Name: "Bob"}}

	decisions, err := a.InitialSelection(context.Background(), "Alice and Bob, weigh in", available)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected two queued decisions, got %+v", decisions)
	}
	if decisions[0].AgentName != "Alice" || decisions[1].AgentName != "Bob" {
		t.Errorf("expected Alice then Bob in order, got %+v", decisions)
	}
	if p.calls != 1 {
		t.Errorf("expected exactly one LM call, got %d", p.calls)
	}
}

func TestInitialSelection_TriggerPhraseSelectsAgentWithoutLMCall(t *testing.T) {
	p := &scriptedProvider{}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{
		{ID: "a1", Name: "Alice", TriggerPhrase: "hey jarvis"},
		{ID: "a2", Name: "Bob"},
	}

	decisions, err := a.InitialSelection(context.Background(), "Hey Jarvis, what's the weather?", available)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Target != models.RouteToAgent || decisions[0].AgentID != "a1" {
		t.Fatalf("expected deterministic trigger-phrase selection of Alice, got %+v", decisions)
	}
	if p.calls != 0 {
		t.Errorf("expected no LM call when a trigger phrase matches, got %d", p.calls)
	}
}

func TestInitialSelection_NoToolCallsDefaultsToUser(t *testing.T) {
	p := &scriptedProvider{syncResponses: [][]agent.ToolCall{nil}}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{{ID: "a1", Name: "Alice"}, {ID: "a2", Name: "Bob"}}

	decisions, err := a.InitialSelection(context.Background(), "hi", available)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Target != models.RouteToUser {
		t.Fatalf("expected default route-to-user, got %+v", decisions)
	}
}

func TestDecideRouting_UnknownAgentNameRoutesToUserWithReason(t *testing.T) {
	p := &scriptedProvider{syncResponses: [][]agent.ToolCall{
		{{Name: "route_to_agent", Arguments: toolCallArgs(t, map[string]any{"agent_name": "Carol", "reason": "x"})}},
	}}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{{ID: "a1", Name: "Alice"}}

	decision, err := a.DecideRouting(context.Background(), models.Message{Speaker: "Alice", Content: "done"}, nil, available)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Target != models.RouteToUser || decision.Reason != "Agent 'Carol' not found" {
		t.Fatalf("expected not-found fallback, got %+v", decision)
	}
}

func TestStreamInitialSelection_EmitsAdministratorNamedChunks(t *testing.T) {
	p := &scriptedProvider{streamResponses: [][]*agent.ChatChunk{
		{{ToolCalls: []agent.ToolCall{{Name: "route_to_agent", Arguments: toolCallArgs(t, map[string]any{"agent_name": "Alice", "reason": "hi"})}}}},
	}}
	a := &Administrator{Provider: p, Model: "gemma3:4b"}
	available := []models.Agent{{ID: "a1", Name: "Alice"}, {ID: "a2", Name: "Bob"}}

	events, result := a.StreamInitialSelection(context.Background(), "hi", available)
	var seen []agent.StreamEvent
	for e := range events {
		seen = append(seen, e)
	}
	decisions := <-result

	if len(decisions) != 1 || decisions[0].AgentName != "Alice" {
		t.Fatalf("expected routing to Alice, got %+v", decisions)
	}
	if len(seen) != 1 || seen[0].Role != "tool" || seen[0].Name != "route_to_agent" {
		t.Fatalf("expected one tool-result chunk, got %+v", seen)
	}
}

func TestBuildChatMessages_AdministratorOwnMessagesBecomeAssistant(t *testing.T) {
	history := []models.Message{
		{Speaker: "", Content: "hello"},
		{Speaker: models.AdministratorName, Content: "→ Routing to Alice"},
		{Speaker: "Alice", Content: "hi there"},
	}
	messages := buildChatMessages(history, "instruction")

	if messages[0].Role != "system" {
		t.Fatalf("expected system prompt first, got %+v", messages[0])
	}
	if messages[1].Role != "user" || messages[1].Content != "[User]: hello" {
		t.Errorf("expected user message prefixed, got %+v", messages[1])
	}
	if messages[2].Role != "assistant" || messages[2].Content != "→ Routing to Alice" {
		t.Errorf("expected Administrator's own message to become assistant, got %+v", messages[2])
	}
	if messages[3].Role != "user" || messages[3].Content != "[Alice]: hi there" {
		t.Errorf("expected other agent's message prefixed as user, got %+v", messages[3])
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "instruction" {
		t.Errorf("expected instruction as final user message, got %+v", last)
	}
}
