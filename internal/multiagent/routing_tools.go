// Package multiagent implements the Administrator: the router agent
// that decides, after every message, which agent (if any) speaks next.
// It is grounded on original_source/agents/administrator.py
// and original_source/tools/routing.py, reshaped into Go using the
// teacher's Tool/ToolRegistry interfaces from internal/agent.
package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuscore/fabric/internal/agent"
)

// RouteToAgentTool is the Administrator-only tool that names the next
// speaker. Its Execute result is parsed by parseRoutingResult rather
// than shown to a user, so it never requires approval and never
// reaches an ordinary agent's tool registry.
type RouteToAgentTool struct {
	availableAgents []string
}

// NewRouteToAgentTool builds the tool with the agent names currently
// eligible to be routed to, so the schema's description can list them.
func NewRouteToAgentTool(availableAgents []string) *RouteToAgentTool {
	return &RouteToAgentTool{availableAgents: availableAgents}
}

func (t *RouteToAgentTool) Name() string               { return "route_to_agent" }
func (t *RouteToAgentTool) BuiltIn() bool               { return true }
func (t *RouteToAgentTool) RequiresApproval() bool      { return false }
func (t *RouteToAgentTool) RiskLevel() agent.RiskLevel  { return agent.RiskLow }

func (t *RouteToAgentTool) Description() string {
	return "Route the conversation to a specific agent. Use this when the current message should be handled by another agent."
}

func (t *RouteToAgentTool) Schema() json.RawMessage {
	names := "any"
	if len(t.availableAgents) > 0 {
		names = strings.Join(t.availableAgents, ", ")
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("Name of the agent to route to. Available agents: %s", names),
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Brief explanation of why this agent should handle the message",
			},
		},
		"required": []string{"agent_name", "reason"},
	}
	data, _ := json.Marshal(schema)
	return data
}

// Execute encodes the routing choice as a tagged string, mirroring the
// original's "ROUTE_TO_AGENT:name:reason" sentinel so the rest of the
// pipeline (parseRoutingResult) stays a pure function of the tool
// result text.
func (t *RouteToAgentTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	name, _ := args["agent_name"].(string)
	reason, _ := args["reason"].(string)
	return &agent.ToolResult{Content: "ROUTE_TO_AGENT:" + name + ":" + reason}, nil
}

// RouteToUserTool is the Administrator-only tool that ends the current
// routing queue and returns control to the user.
type RouteToUserTool struct{}

func NewRouteToUserTool() *RouteToUserTool { return &RouteToUserTool{} }

func (t *RouteToUserTool) Name() string              { return "route_to_user" }
func (t *RouteToUserTool) BuiltIn() bool              { return true }
func (t *RouteToUserTool) RequiresApproval() bool     { return false }
func (t *RouteToUserTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }

func (t *RouteToUserTool) Description() string {
	return "End the agent conversation loop and return control to the user. Use this when the agent's response is complete and ready for the user."
}

func (t *RouteToUserTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Brief explanation of why the conversation should return to the user",
			},
		},
		"required": []string{"reason"},
	}
	data, _ := json.Marshal(schema)
	return data
}

func (t *RouteToUserTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	reason, _ := args["reason"].(string)
	return &agent.ToolResult{Content: "ROUTE_TO_USER:" + reason}, nil
}

// routingTools returns both reserved routing tools, scoped to the
// agent names currently available for this turn.
func routingTools(availableAgentNames []string) []agent.Tool {
	return []agent.Tool{
		NewRouteToAgentTool(availableAgentNames),
		NewRouteToUserTool(),
	}
}

// routingResult is the parsed form of a routing tool's Execute output.
type routingResult struct {
	routeToAgent bool
	agentName    string
	reason       string
}

// parseRoutingResult decodes a routing tool's sentinel-tagged result
// string. An unparseable result defaults to route_to_user, the same
// fail-safe the original implementation applies.
func parseRoutingResult(result string) routingResult {
	switch {
	case strings.HasPrefix(result, "ROUTE_TO_AGENT:"):
		rest := strings.TrimPrefix(result, "ROUTE_TO_AGENT:")
		parts := strings.SplitN(rest, ":", 2)
		r := routingResult{routeToAgent: true, agentName: parts[0]}
		if len(parts) > 1 {
			r.reason = parts[1]
		}
		return r
	case strings.HasPrefix(result, "ROUTE_TO_USER:"):
		return routingResult{reason: strings.TrimPrefix(result, "ROUTE_TO_USER:")}
	default:
		return routingResult{reason: "Could not parse routing decision"}
	}
}
