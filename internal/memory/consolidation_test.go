package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

type scriptedSyncProvider struct {
	reply string
	err   error
}

func (p *scriptedSyncProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	panic("not used")
}

func (p *scriptedSyncProvider) ChatSync(ctx context.Context, req *agent.ChatRequest) (*agent.ChatMessage, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &agent.ChatMessage{Role: "assistant", Content: p.reply}, nil
}

func (p *scriptedSyncProvider) Generate(ctx context.Context, model, prompt string, opts *agent.GenerateOptions) (string, error) {
	panic("not used")
}

func (p *scriptedSyncProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (p *scriptedSyncProvider) Name() string                                    { return "scripted" }

func TestSummarizeFrame(t *testing.T) {
	provider := &scriptedSyncProvider{reply: "The user asked for help debugging a crash."}
	c := NewConsolidator(provider, slog.Default())

	messages := []models.Message{
		{Role: models.RoleUser, Content: "my server keeps crashing"},
		{Role: models.RoleAssistant, Speaker: "Debugger", Content: "can you share the stack trace?"},
	}

	summary, err := c.SummarizeFrame(context.Background(), messages, "claude-sonnet")
	if err != nil {
		t.Fatalf("SummarizeFrame() error = %v", err)
	}
	if summary != "The user asked for help debugging a crash." {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestSummarizeFrame_EmptyMessages(t *testing.T) {
	c := NewConsolidator(&scriptedSyncProvider{reply: "should not be called"}, slog.Default())
	summary, err := c.SummarizeFrame(context.Background(), nil, "claude-sonnet")
	if err != nil {
		t.Fatalf("SummarizeFrame() error = %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for no messages, got %q", summary)
	}
}

func TestConsolidateAgentMemory_TruncatesToCap(t *testing.T) {
	oversized := strings.Repeat("x", models.MaxMemoryBytes+500)
	c := NewConsolidator(&scriptedSyncProvider{reply: oversized}, slog.Default())

	updated, err := c.ConsolidateAgentMemory(context.Background(), models.Agent{ID: "agent-1"}, "recent exchange", "claude-sonnet")
	if err != nil {
		t.Fatalf("ConsolidateAgentMemory() error = %v", err)
	}
	if len(updated) != models.MaxMemoryBytes {
		t.Errorf("expected truncation to %d bytes, got %d", models.MaxMemoryBytes, len(updated))
	}
}

func TestRunFrameSummaryAsync_InvokesCallbackWithoutBlocking(t *testing.T) {
	c := NewConsolidator(&scriptedSyncProvider{reply: "summary text"}, slog.Default())

	var mu sync.Mutex
	var got string
	done := make(chan struct{})

	c.RunFrameSummaryAsync(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}}, "claude-sonnet", func(summary string) {
		mu.Lock()
		got = summary
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if got != "summary text" {
		t.Errorf("got %q, want %q", got, "summary text")
	}
}

func TestRunAgentMemoryConsolidationAsync_LogsErrorWithoutCallback(t *testing.T) {
	c := NewConsolidator(&scriptedSyncProvider{err: context.DeadlineExceeded}, slog.Default())

	called := make(chan struct{}, 1)
	c.RunAgentMemoryConsolidationAsync(context.Background(), models.Agent{ID: "agent-1"}, "exchange", "claude-sonnet", func(memory string) {
		called <- struct{}{}
	})

	select {
	case <-called:
		t.Fatal("onDone should not be invoked on error")
	case <-time.After(200 * time.Millisecond):
	}
}
