// Package skills implements the get_skill_instructions built-in: given
// a skill name, returns the skill's full instructions content so an
// agent can follow it for the rest of the turn.
//
// Grounded on the teacher's skillTool (internal/skills/tools.go), which
// loaded skill packages from a workspace filesystem/git source. This
// runtime's Skill entity (pkg/models.Skill) is a per-user row created
// through the API rather than a bundled filesystem package, so the
// tool is rebuilt against sessions.Store instead of the teacher's
// filesystem/git discovery engine (Manager, DiscoverySource, gating) —
// see DESIGN.md for why that engine was dropped rather than adapted.
package skills

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/sessions"
)

// InstructionsTool implements get_skill_instructions by looking up a
// named skill owned by UserID. One instance is built per connected
// user (alongside the rest of that user's tool registry), the same
// way the teacher scoped a skillTool to one workspace.
type InstructionsTool struct {
	Store  sessions.Store
	UserID string
}

// NewInstructionsTool builds the get_skill_instructions tool scoped to
// userID.
func NewInstructionsTool(store sessions.Store, userID string) *InstructionsTool {
	return &InstructionsTool{Store: store, UserID: userID}
}

func (t *InstructionsTool) Name() string { return "get_skill_instructions" }

func (t *InstructionsTool) Description() string {
	return "Load the full instructions for a named skill so you can follow them for the rest of this turn."
}

func (t *InstructionsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"skill_name": {"type": "string", "description": "Name of the skill to load"}
		},
		"required": ["skill_name"]
	}`)
}

func (t *InstructionsTool) BuiltIn() bool              { return true }
func (t *InstructionsTool) RequiresApproval() bool     { return false }
func (t *InstructionsTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }

func (t *InstructionsTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	name, _ := args["skill_name"].(string)
	if name == "" {
		return &agent.ToolResult{Content: "skill_name is required", IsError: true}, nil
	}
	if t.Store == nil {
		return &agent.ToolResult{Content: "skills store unavailable", IsError: true}, nil
	}
	sk, err := t.Store.GetSkillByName(ctx, t.UserID, name)
	if err != nil {
		if err == sessions.ErrNotFound {
			return &agent.ToolResult{Content: "skill not found: " + name, IsError: true}, nil
		}
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: sk.Instructions}, nil
}
