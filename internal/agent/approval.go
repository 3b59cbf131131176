package agent

import (
	"context"
	"fmt"
)

// ApprovalDecision is the outcome of checking a tool call against
// approval policy, grounded on the teacher's
// internal/agent/approval.go ApprovalDecision/ApprovalPolicy pair.
type ApprovalDecision string

const (
	ApprovalAllowed ApprovalDecision = "allowed"
	ApprovalDenied  ApprovalDecision = "denied"
	ApprovalPending ApprovalDecision = "pending"
)

// ApprovalRequester is supplied by the session handler so the tool
// loop can suspend on a real client round-trip instead of a local
// policy decision. Request blocks until the client
// responds, the handler's 5-minute timeout elapses (auto-deny), or ctx
// is cancelled (treated as denied).
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (approved bool, modifiedArgs map[string]any, err error)
}

// ApprovalRequest describes a pending tool call awaiting user sign-off.
type ApprovalRequest struct {
	ToolName    string
	ToolArgs    map[string]any
	AgentID     string
	AgentName   string
	Description string
	RiskLevel   RiskLevel
}

// approvalDenied is the fixed message for a denied tool call.
func approvalDenied(name string) *ToolResult {
	return &ToolResult{Content: "Tool execution denied by user: " + name, IsError: true}
}

// executeWithApproval runs a single tool call: exposure check, approval
// round-trip (with argument substitution on approval-with-modifications),
// context injection, and error-to-string conversion.
func executeWithApproval(
	ctx context.Context,
	registry *ToolRegistry,
	exposed []Tool,
	requester ApprovalRequester,
	toolName string,
	args map[string]any,
	agentID, agentName, conversationID string,
) *ToolResult {
	var target Tool
	for _, t := range exposed {
		if t.Name() == toolName {
			target = t
			break
		}
	}
	if target == nil {
		return notAvailable(toolName)
	}

	if args == nil {
		args = map[string]any{}
	}
	if ca, ok := target.(ContextAwareTool); ok && ca.ContextAware() && conversationID != "" {
		args["conversation_id"] = conversationID
	}

	if target.RequiresApproval() {
		if requester == nil {
			return approvalDenied(toolName)
		}
		approved, modified, err := requester.RequestApproval(ctx, ApprovalRequest{
			ToolName:    toolName,
			ToolArgs:    args,
			AgentID:     agentID,
			AgentName:   agentName,
			Description: target.Description(),
			RiskLevel:   target.RiskLevel(),
		})
		if err != nil || !approved {
			return approvalDenied(toolName)
		}
		if modified != nil {
			args = modified
		}
	}

	res, err := target.Execute(ctx, args)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("Tool execution failed: %s", err), IsError: true}
	}
	if res == nil {
		res = &ToolResult{}
	}
	return res
}
