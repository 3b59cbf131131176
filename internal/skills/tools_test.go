package skills

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

func newTestStoreWithSkill(t *testing.T, userID, name, instructions string) sessions.Store {
	t.Helper()
	store := sessions.NewMemoryStore()
	now := time.Now().UTC()
	if err := store.CreateSkill(context.Background(), &models.Skill{
		ID: "sk-" + name, UserID: userID, Name: name, Instructions: instructions,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateSkill: %v", err)
	}
	return store
}

func TestInstructionsTool_ReturnsSkillContent(t *testing.T) {
	store := newTestStoreWithSkill(t, "u1", "alpha", "# Alpha\nDo the thing.\n")
	tool := NewInstructionsTool(store, "u1")

	result, err := tool.Execute(context.Background(), map[string]any{"skill_name": "alpha"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content == "" {
		t.Error("expected non-empty instructions content")
	}
}

func TestInstructionsTool_UnknownSkillIsError(t *testing.T) {
	store := newTestStoreWithSkill(t, "u1", "alpha", "# Alpha\n")
	tool := NewInstructionsTool(store, "u1")

	result, err := tool.Execute(context.Background(), map[string]any{"skill_name": "missing"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown skill")
	}
}

func TestInstructionsTool_ScopedToUser(t *testing.T) {
	store := newTestStoreWithSkill(t, "u1", "alpha", "# Alpha\n")
	tool := NewInstructionsTool(store, "u2")

	result, err := tool.Execute(context.Background(), map[string]any{"skill_name": "alpha"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for a different user's skill")
	}
}

func TestInstructionsTool_MissingNameIsError(t *testing.T) {
	tool := NewInstructionsTool(nil, "u1")
	result, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for missing skill_name")
	}
}
