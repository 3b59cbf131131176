package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/auth"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

// gatedProvider blocks its Chat response on release so a test can hold
// a turn in flight while it exercises the socket.
type gatedProvider struct {
	release chan struct{}
	reply   string
}

func (p *gatedProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	ch := make(chan *agent.ChatChunk, 1)
	go func() {
		defer close(ch)
		select {
		case <-p.release:
		case <-ctx.Done():
			return
		}
		ch <- &agent.ChatChunk{Content: p.reply, Done: true}
	}()
	return ch, nil
}

func (p *gatedProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
	return &agent.ChatMessage{Role: "assistant", Content: p.reply}, nil
}
func (p *gatedProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
	return "", nil
}
func (p *gatedProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (p *gatedProvider) Name() string                                    { return "gated" }

// TestServer_ReadErrorDoesNotCancelInFlightTurn exercises the fix for
// pump() treating every ReadMessage error as a cancel: dropping the
// client socket mid-turn must let runTurn finish and persist its
// result, not abort it the way the explicit cancel event does.
func TestServer_ReadErrorDoesNotCancelInFlightTurn(t *testing.T) {
	store := sessions.NewMemoryStore()
	release := make(chan struct{})
	provider := &gatedProvider{release: release, reply: "finished despite disconnect"}

	jwtSvc := auth.NewJWTService("test-secret", time.Hour)
	connRegistry := NewConnectionRegistry()
	oneAgent := models.Agent{ID: "agent-1", Name: "Debugger"}

	build := func(userID string, user models.User) SessionHandler {
		return SessionHandler{
			Store:     store,
			Registry:  agent.NewToolRegistry(),
			Agents:    &fixedAgentLister{agents: []models.Agent{oneAgent}},
			Providers: &fixedProviderResolver{provider: provider, model: "test-model"},
		}
	}
	srv := NewServer(jwtSvc, connRegistry, build, nil)
	httpServer := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer httpServer.Close()

	user := &models.User{ID: "user-1", Username: "alice"}
	token, err := jwtSvc.Generate(user)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.WriteJSON(map[string]any{"type": "chat_request", "text": "hello"}); err != nil {
		t.Fatalf("write chat_request: %v", err)
	}

	// Give the server time to read the request and start the turn,
	// which blocks inside the gated provider, before dropping the
	// connection out from under it.
	time.Sleep(100 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}

	// Give pump's ReadMessage a moment to observe the drop before the
	// turn is allowed to finish, so the ordering this test guards
	// against (read error racing the in-flight turn) is exercised.
	time.Sleep(100 * time.Millisecond)
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, convErr := latestConversationMessages(store, "user-1")
		if convErr == nil {
			for _, m := range msgs {
				if m.Role == models.RoleAssistant && m.Content == "finished despite disconnect" {
					return
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn never persisted its assistant reply after the socket dropped (messages: %+v, err: %v)", msgs, convErr)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func latestConversationMessages(store sessions.Store, userID string) ([]models.Message, error) {
	convs, err := store.ListConversations(context.Background(), userID, sessions.ListOptions{})
	if err != nil || len(convs) == 0 {
		return nil, err
	}
	frame, err := store.LatestFrame(context.Background(), convs[0].ID)
	if err != nil {
		return nil, err
	}
	return store.GetMessages(context.Background(), frame.ID, 0)
}
