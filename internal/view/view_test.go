package view

import (
	"strings"
	"testing"
	"time"

	"github.com/nexuscore/fabric/pkg/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
}

func TestBuild_PreambleAlwaysFirst(t *testing.T) {
	cfg := Config{
		Viewer: models.Agent{Name: "Scribe", SystemPrompt: "You write things down."},
		User:   models.User{Username: "jordan"},
		Now:    fixedNow(),
	}
	out := Build(nil, cfg)
	if len(out) != 1 {
		t.Fatalf("expected exactly the preamble for empty history, got %d messages", len(out))
	}
	if out[0].Role != "system" {
		t.Fatalf("expected first message role system, got %q", out[0].Role)
	}
	if !strings.Contains(out[0].Content, "Scribe") {
		t.Errorf("preamble missing viewer name: %q", out[0].Content)
	}
	if !strings.Contains(out[0].Content, "You write things down.") {
		t.Errorf("preamble missing viewer system prompt")
	}
	if !strings.Contains(out[0].Content, "2026-01-02T15:04:05Z") {
		t.Errorf("preamble missing injected timestamp: %q", out[0].Content)
	}
}

func TestBuild_PreferredNameAndUserPrompt(t *testing.T) {
	cfg := Config{
		Viewer: models.Agent{Name: "Scribe"},
		User:   models.User{Username: "jordan", DisplayName: "Jo", SystemPrompt: "Keep it brief."},
		Now:    fixedNow(),
	}
	out := Build(nil, cfg)
	if !strings.Contains(out[0].Content, "Jo") {
		t.Errorf("preamble should use display name over username: %q", out[0].Content)
	}
	if !strings.Contains(out[0].Content, "Keep it brief.") {
		t.Errorf("preamble missing user system prompt")
	}
}

func TestBuild_SiblingRosterTruncated(t *testing.T) {
	longPrompt := strings.Repeat("x", 300)
	cfg := Config{
		Viewer: models.Agent{Name: "Scribe"},
		User:   models.User{Username: "jordan"},
		Siblings: []models.Agent{
			{Name: "Scribe", SystemPrompt: "self, must be excluded"},
			{Name: "Cartographer", SystemPrompt: longPrompt},
		},
		Now: fixedNow(),
	}
	out := Build(nil, cfg)
	preamble := out[0].Content
	if strings.Contains(preamble, "self, must be excluded") {
		t.Errorf("preamble should not list the viewer itself among siblings")
	}
	if !strings.Contains(preamble, "- Cartographer: "+longPrompt[:150]) {
		t.Errorf("sibling description not truncated to 150 chars: %q", preamble)
	}
	if strings.Contains(preamble, longPrompt) {
		t.Errorf("sibling description should be truncated, found full prompt")
	}
}

func TestBuild_DropsAdministratorAssistantMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleAssistant, Speaker: models.AdministratorName, Content: "routing to Scribe"},
		{Role: models.RoleAssistant, Speaker: "Scribe", Content: "hello"},
	}
	cfg := Config{Viewer: models.Agent{Name: "Scribe"}, Now: fixedNow()}
	out := Build(history, cfg)
	if len(out) != 2 {
		t.Fatalf("expected preamble + 1 surviving message, got %d: %+v", len(out), out)
	}
	if out[1].Role != "assistant" || out[1].Content != "hello" {
		t.Errorf("expected viewer's own assistant message retagged, got %+v", out[1])
	}
}

func TestBuild_DropsAdministratorOwnedToolMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleAssistant, Speaker: models.AdministratorName, Content: "calling route_to_agent"},
		{Role: models.RoleTool, Speaker: "route_to_agent", Content: "routed"},
		{Role: models.RoleAssistant, Speaker: "Scribe", Content: "continuing"},
		{Role: models.RoleTool, Speaker: "search", Content: "results"},
	}
	cfg := Config{Viewer: models.Agent{Name: "Scribe"}, Now: fixedNow()}
	out := Build(history, cfg)
	// preamble, "continuing" (assistant), "results" (tool) -- the
	// Administrator-owned tool call must be dropped entirely.
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(out), out)
	}
	if out[1].Content != "continuing" || out[1].Role != "assistant" {
		t.Errorf("unexpected second message: %+v", out[1])
	}
	if out[2].Role != "tool" || out[2].Content != "results" {
		t.Errorf("expected viewer-owned tool message retagged to tool, got %+v", out[2])
	}
}

func TestBuild_OtherAgentMessagesBecomeUserWithPrefix(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleAssistant, Speaker: "Cartographer", Content: "I mapped the region."},
		{Role: models.RoleUser, Content: "what's next?"},
	}
	cfg := Config{Viewer: models.Agent{Name: "Scribe"}, Now: fixedNow()}
	out := Build(history, cfg)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(out), out)
	}
	if out[1].Role != "user" || out[1].Content != "[Cartographer]: I mapped the region." {
		t.Errorf("expected sibling message retagged to prefixed user, got %+v", out[1])
	}
	if out[2].Role != "user" || out[2].Content != "[User]: what's next?" {
		t.Errorf("expected raw user message prefixed with [User], got %+v", out[2])
	}
}

func TestBuild_SystemMessagesNeverSurviveIntoBody(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "some injected directive"},
		{Role: models.RoleUser, Content: "hi"},
	}
	cfg := Config{Viewer: models.Agent{Name: "Scribe"}, Now: fixedNow()}
	out := Build(history, cfg)
	for _, m := range out[1:] {
		if m.Role == "system" {
			t.Errorf("a raw system message leaked past the preamble: %+v", m)
		}
	}
	if len(out) != 2 {
		t.Fatalf("expected preamble + 1 message, got %d: %+v", len(out), out)
	}
}

func TestBuild_ToolOwnershipTracksLastAssistantNotToolName(t *testing.T) {
	// A tool named after another agent's convention but triggered by the
	// viewer must still be attributed to the viewer via last-speaker
	// tracking, not by inspecting the tool's own Speaker field naming.
	history := []models.Message{
		{Role: models.RoleAssistant, Speaker: "Scribe", Content: "let me check"},
		{Role: models.RoleTool, Speaker: "websearch", Content: "found it"},
	}
	cfg := Config{Viewer: models.Agent{Name: "Scribe"}, Now: fixedNow()}
	out := Build(history, cfg)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[2].Role != "tool" {
		t.Errorf("expected tool role preserved for viewer-owned tool result, got %+v", out[2])
	}
}
