package sessiontools

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

func seedConversation(t *testing.T, store sessions.Store) (conversationID, frameID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	conv := &models.Conversation{ID: "conv-1", UserID: "user-1", Title: "Debugging session", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	frame := &models.Frame{ID: "frame-1", ConversationID: conv.ID, Summary: "discussed the panic", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateFrame(ctx, frame); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	msgs := []models.Message{
		{ID: "m1", FrameID: frame.ID, Role: models.RoleUser, Content: "why does it panic on nil?", CreatedAt: now},
		{ID: "m2", FrameID: frame.ID, Role: models.RoleAssistant, Speaker: "Debugger", Content: "because the pointer is never initialized", CreatedAt: now},
	}
	for i := range msgs {
		if err := store.AppendMessage(ctx, &msgs[i]); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	return conv.ID, frame.ID
}

func TestConversationInfoTool(t *testing.T) {
	store := sessions.NewMemoryStore()
	convID, _ := seedConversation(t, store)
	tool := NewConversationInfoTool(store)

	result, err := tool.Execute(context.Background(), map[string]any{"conversation_id": convID})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestFrameSummariesTool(t *testing.T) {
	store := sessions.NewMemoryStore()
	convID, _ := seedConversation(t, store)
	tool := NewFrameSummariesTool(store)

	result, err := tool.Execute(context.Background(), map[string]any{"conversation_id": convID})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestFrameMessagesTool(t *testing.T) {
	store := sessions.NewMemoryStore()
	_, frameID := seedConversation(t, store)
	tool := NewFrameMessagesTool(store)

	result, err := tool.Execute(context.Background(), map[string]any{"frame_id": frameID})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestSearchMessagesTool_FindsMatch(t *testing.T) {
	store := sessions.NewMemoryStore()
	convID, _ := seedConversation(t, store)
	tool := NewSearchMessagesTool(store)

	result, err := tool.Execute(context.Background(), map[string]any{
		"query":           "nil",
		"conversation_id": convID,
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
}

func TestSearchMessagesTool_MissingQueryIsError(t *testing.T) {
	store := sessions.NewMemoryStore()
	convID, _ := seedConversation(t, store)
	tool := NewSearchMessagesTool(store)

	result, err := tool.Execute(context.Background(), map[string]any{"conversation_id": convID})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing query")
	}
}
