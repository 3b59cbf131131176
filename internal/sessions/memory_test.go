package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/fabric/pkg/models"
)

func TestMemoryStore_ConversationFrameMessageLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	conv := &models.Conversation{ID: "c1", UserID: "u1", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	frame := &models.Frame{ID: "f1", ConversationID: "c1", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateFrame(ctx, frame); err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}

	msg := &models.Message{ID: "m1", FrameID: "f1", Role: models.RoleUser, Content: "hi", CreatedAt: now}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := store.GetConversationHistory(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("GetConversationHistory: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("expected 1 message 'hi', got %+v", got)
	}

	latest, err := store.LatestFrame(ctx, "c1")
	if err != nil || latest.ID != "f1" {
		t.Fatalf("LatestFrame() = %+v, %v", latest, err)
	}

	if err := store.UpdateFrameSummary(ctx, "f1", "summary text"); err != nil {
		t.Fatalf("UpdateFrameSummary: %v", err)
	}
	f, err := store.GetFrame(ctx, "f1")
	if err != nil || f.Summary != "summary text" {
		t.Fatalf("GetFrame() summary = %q, err %v", f.Summary, err)
	}
}

func TestMemoryStore_AppendMessageUnknownFrameFails(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage(context.Background(), &models.Message{ID: "m1", FrameID: "missing"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListConversations_PaginatesAndFiltersByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		store.CreateConversation(ctx, &models.Conversation{
			ID: id, UserID: "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	store.CreateConversation(ctx, &models.Conversation{ID: "other", UserID: "u2", CreatedAt: base, UpdatedAt: base})

	out, err := store.ListConversations(ctx, "u1", ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 conversations (limited), got %d", len(out))
	}
	// most recently updated first
	if out[0].ID != "c" {
		t.Fatalf("expected most recent first, got %q", out[0].ID)
	}
}

func TestMemoryStore_GetConversation_NotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetConversation(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_GetOrCreateUser_CreatesOnceThenReturnsSameRow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	u, err := store.GetOrCreateUser(ctx, "u1", "alice", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("expected username alice, got %q", u.Username)
	}

	again, err := store.GetOrCreateUser(ctx, "u1", "someone-else", "Someone Else")
	if err != nil {
		t.Fatalf("GetOrCreateUser (second call): %v", err)
	}
	if again.Username != "alice" {
		t.Fatalf("expected existing row preserved, got username %q", again.Username)
	}
}

func TestMemoryStore_AgentLifecycleAndMemoryConsolidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := &models.Agent{ID: "a1", UserID: "u1", Name: "Researcher", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	list, err := store.ListAgents(ctx, "u1")
	if err != nil || len(list) != 1 || list[0].Name != "Researcher" {
		t.Fatalf("ListAgents() = %+v, %v", list, err)
	}

	if err := store.UpdateAgentMemory(ctx, "a1", "likes concise answers"); err != nil {
		t.Fatalf("UpdateAgentMemory: %v", err)
	}
	got, err := store.GetAgent(ctx, "a1")
	if err != nil || got.Memory != "likes concise answers" {
		t.Fatalf("GetAgent() memory = %q, err %v", got.Memory, err)
	}
}

func TestMemoryStore_SkillLookupByName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.CreateSkill(ctx, &models.Skill{ID: "s1", UserID: "u1", Name: "changelog", Instructions: "summarize diffs", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateSkill: %v", err)
	}

	sk, err := store.GetSkillByName(ctx, "u1", "changelog")
	if err != nil || sk.Instructions != "summarize diffs" {
		t.Fatalf("GetSkillByName() = %+v, %v", sk, err)
	}
	if _, err := store.GetSkillByName(ctx, "u1", "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ToolServersScopedByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	store.CreateToolServer(ctx, &models.ToolServer{ID: "t1", UserID: "u1", Name: "filesystem", Transport: models.TransportStdio, Enabled: true, CreatedAt: now, UpdatedAt: now})
	store.CreateToolServer(ctx, &models.ToolServer{ID: "t2", UserID: "u2", Name: "other-user", Transport: models.TransportStdio, Enabled: true, CreatedAt: now, UpdatedAt: now})

	out, err := store.ListToolServers(ctx, "u1")
	if err != nil || len(out) != 1 || out[0].ID != "t1" {
		t.Fatalf("ListToolServers() = %+v, %v", out, err)
	}
}
