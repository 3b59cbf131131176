package multiagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

// delegationDescriptionLen matches original_source/agents/router.py's
// _build_delegation_tools_for_user, which truncates the target's system
// prompt to 100 characters in the tool description.
const delegationDescriptionLen = 100

// Runner drives one full agent turn on behalf of a delegation tool call,
// forwarding every chunk to sink as it streams, and returns the target
// agent's final accumulated assistant content once its loop ends.
type Runner interface {
	RunAgent(ctx context.Context, target models.Agent, task, taskContext, conversationID string, sink func(agent.StreamEvent)) (string, error)
}

// DelegationTool implements one `delegate_to_<agent_id>` tool, grounded
// on original_source/agents/router.py's
// _build_delegation_tools_for_user/_handle_delegation pair. Unlike an
// ordinary tool it doesn't perform a side effect and return a result —
// it hands the current turn to another agent and streams that agent's
// output inline into the caller's event stream.
type DelegationTool struct {
	from     models.Agent
	target   models.Agent
	runner   Runner
	sink     func(agent.StreamEvent)
	onSwitch func(models.AgentSwitchEvent)
}

// NewDelegationTool builds the delegation tool for one target sibling.
// sink receives every chunk the target agent streams; onSwitch (if
// non-nil) is called once before the target starts, so the session
// handler can emit the agent_switch event.
func NewDelegationTool(from, target models.Agent, runner Runner, sink func(agent.StreamEvent), onSwitch func(models.AgentSwitchEvent)) *DelegationTool {
	return &DelegationTool{from: from, target: target, runner: runner, sink: sink, onSwitch: onSwitch}
}

func (d *DelegationTool) Name() string { return "delegate_to_" + d.target.ID }

func (d *DelegationTool) Description() string {
	return fmt.Sprintf("Delegate task to %s. %s", d.target.Name, d.target.DescriptionSnippet(delegationDescriptionLen))
}

func (d *DelegationTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":    map[string]any{"type": "string", "description": "The task to delegate"},
			"context": map[string]any{"type": "string", "description": "Additional context for the agent"},
		},
		"required": []string{"task"},
	}
	data, _ := json.Marshal(schema)
	return data
}

// BuiltIn is false: delegation tools are per-request, per-sibling tools
// built from the user's agent roster, not fixed built-ins, so they
// remain subject to the delegating agent's ExcludedTools.
func (d *DelegationTool) BuiltIn() bool { return false }

// RequiresApproval is false: delegation reassigns the current turn
// rather than performing an external side effect, so it bypasses the
// approval round-trip the way the original's _handle_delegation does.
func (d *DelegationTool) RequiresApproval() bool     { return false }
func (d *DelegationTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }

// Execute sends the agent_switch notification, then synchronously
// drives the target agent's full turn via Runner, forwarding every
// chunk to sink and returning its final content as this tool's result
// so it is recorded in the delegating agent's own history.
func (d *DelegationTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	task, _ := args["task"].(string)
	taskContext, _ := args["context"].(string)

	if d.onSwitch != nil {
		d.onSwitch(models.AgentSwitchEvent{
			FromAgentID:   d.from.ID,
			FromAgentName: d.from.Name,
			ToAgentID:     d.target.ID,
			ToAgentName:   d.target.Name,
			Reason:        task,
		})
	}

	content, err := d.runner.RunAgent(ctx, d.target, task, taskContext, "", d.sink)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Delegation failed: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: content}, nil
}

// BuildDelegationTools returns one delegate_to_<agent_id> tool per
// sibling agent available to "from", grounded on
// original_source/agents/router.py's per-user delegation tool list.
func BuildDelegationTools(from models.Agent, siblings []models.Agent, runner Runner, sink func(agent.StreamEvent), onSwitch func(models.AgentSwitchEvent)) []agent.Tool {
	tools := make([]agent.Tool, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == from.ID {
			continue
		}
		tools = append(tools, NewDelegationTool(from, sibling, runner, sink, onSwitch))
	}
	return tools
}
