package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

// recordingSocket captures every payload sent to it for assertions.
type recordingSocket struct {
	events chan []byte
}

func newRecordingSocket() *recordingSocket {
	return &recordingSocket{events: make(chan []byte, 64)}
}

func (s *recordingSocket) Send(payload []byte) error {
	s.events <- payload
	return nil
}

func (s *recordingSocket) drainUntilDone(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-s.events:
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			out = append(out, decoded)
			if decoded["type"] == string(EventDone) {
				return out
			}
		case <-deadline:
			t.Fatal("timed out waiting for done event")
		}
	}
}

// singleReplyProvider answers every ChatSync/Chat call with one fixed
// textual reply and no tool calls, enough to drive the Administrator's
// one-agent fast path and a single agent turn with no tool rounds.
type singleReplyProvider struct {
	reply string
}

func (p *singleReplyProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
	return &agent.ChatMessage{Role: "assistant", Content: p.reply}, nil
}

func (p *singleReplyProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	ch := make(chan *agent.ChatChunk, 1)
	ch <- &agent.ChatChunk{Content: p.reply, Done: true}
	close(ch)
	return ch, nil
}

func (p *singleReplyProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
	return "", nil
}
func (p *singleReplyProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (p *singleReplyProvider) Name() string                                    { return "single-reply" }

type fixedAgentLister struct {
	agents []models.Agent
}

func (f *fixedAgentLister) AvailableAgents(ctx context.Context, userID, conversationID string) ([]models.Agent, error) {
	return f.agents, nil
}

type fixedProviderResolver struct {
	provider agent.LLMProvider
	model    string
}

func (f *fixedProviderResolver) ProviderFor(user models.User, a models.Agent) (agent.LLMProvider, string) {
	return f.provider, f.model
}

func TestSessionHandler_SingleAgentTurnEndsWithDone(t *testing.T) {
	store := sessions.NewMemoryStore()
	socket := newRecordingSocket()

	oneAgent := models.Agent{ID: "agent-1", Name: "Debugger"}
	handler := NewSessionHandler("user-1", models.User{ID: "user-1", Username: "alice"}, socket, SessionHandler{
		Store:     store,
		Registry:  agent.NewToolRegistry(),
		Agents:    &fixedAgentLister{agents: []models.Agent{oneAgent}},
		Providers: &fixedProviderResolver{provider: &singleReplyProvider{reply: "hi there"}, model: "test-model"},
	})

	handler.HandleChatRequest(context.Background(), ChatRequestPayload{Text: "hello"})

	events := socket.drainUntilDone(t)

	var sawAssistantChunk, sawDone bool
	for _, ev := range events {
		switch ev["type"] {
		case string(EventStreamChunk):
			if ev["content"] == "hi there" && ev["name"] == "Debugger" {
				sawAssistantChunk = true
			}
		case string(EventDone):
			sawDone = true
		}
	}
	if !sawAssistantChunk {
		t.Error("expected a stream_chunk from the sole available agent")
	}
	if !sawDone {
		t.Error("expected a done event")
	}
}

func TestSessionHandler_RequestApproval_AutoDeniedOnCancel(t *testing.T) {
	store := sessions.NewMemoryStore()
	socket := newRecordingSocket()

	handler := NewSessionHandler("user-1", models.User{ID: "user-1"}, socket, SessionHandler{
		Store:     store,
		Registry:  agent.NewToolRegistry(),
		Agents:    &fixedAgentLister{},
		Providers: &fixedProviderResolver{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan bool, 1)
	go func() {
		approved, _, err := handler.RequestApproval(ctx, agent.ApprovalRequest{ToolName: "do_thing"})
		resultCh <- approved
		_ = err
	}()

	// Let RequestApproval register its future, then send the approval
	// request it emits, before cancelling.
	select {
	case <-socket.events:
	case <-time.After(time.Second):
		t.Fatal("expected a tool_approval_request event")
	}
	cancel()

	select {
	case approved := <-resultCh:
		if approved {
			t.Error("expected cancellation to result in a denied approval")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RequestApproval to return")
	}
}

func TestSessionHandler_ResolveApproval_CompletesMatchingFuture(t *testing.T) {
	store := sessions.NewMemoryStore()
	socket := newRecordingSocket()

	handler := NewSessionHandler("user-1", models.User{ID: "user-1"}, socket, SessionHandler{
		Store:     store,
		Registry:  agent.NewToolRegistry(),
		Agents:    &fixedAgentLister{},
		Providers: &fixedProviderResolver{},
	})

	resultCh := make(chan bool, 1)
	go func() {
		approved, _, _ := handler.RequestApproval(context.Background(), agent.ApprovalRequest{ToolName: "do_thing"})
		resultCh <- approved
	}()

	var approvalID string
	select {
	case raw := <-socket.events:
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		approvalID, _ = decoded["approval_id"].(string)
	case <-time.After(time.Second):
		t.Fatal("expected a tool_approval_request event")
	}
	if approvalID == "" {
		t.Fatal("expected a non-empty approval_id")
	}

	handler.ResolveApproval(approvalID, true, nil)

	select {
	case approved := <-resultCh:
		if !approved {
			t.Error("expected approval to be granted")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RequestApproval to return")
	}
}
