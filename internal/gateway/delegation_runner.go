package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/multiagent"
	"github.com/nexuscore/fabric/internal/view"
	"github.com/nexuscore/fabric/pkg/models"
)

// delegationRunner implements multiagent.Runner by driving one full
// sub-agent turn through agent.Loop, grounded on
// original_source/agents/router.py's _handle_delegation (which appends
// a synthetic "Task: ...\nContext: ..." message to the delegating
// agent's own history and streams the target's reply inline). Built
// fresh per driveAgent call so conversationID/frameID/history/siblings
// close over that call's turn.
type delegationRunner struct {
	h              *SessionHandler
	siblings       []models.Agent
	history        []models.Message
	conversationID string
	frameID        string
}

// RunAgent resolves target's provider, wires its own sibling delegation
// tools so nesting (spec.md §4.7) works at any depth, and drives its
// loop to completion, forwarding every StreamEvent to sink as it
// arrives. The conversationID parameter is unused: RunAgent always
// delegates within the turn r was built for.
func (r *delegationRunner) RunAgent(ctx context.Context, target models.Agent, task, taskContext, _ string, sink func(agent.StreamEvent)) (string, error) {
	h := r.h
	provider, model := h.Providers.ProviderFor(h.User, target)
	resolved := target
	if resolved.Model == "" {
		resolved.Model = model
	}

	onSwitch := func(ev models.AgentSwitchEvent) { h.sendAgentSwitch(ev) }
	nested := multiagent.BuildDelegationTools(resolved, r.siblings, r, sink, onSwitch)

	loop := &agent.Loop{
		Agent:      resolved,
		Provider:   provider,
		Registry:   h.Registry,
		Approval:   h,
		Metrics:    h.Metrics,
		ExtraTools: nested,
	}
	viewCfg := view.Config{Viewer: resolved, User: h.User, Siblings: r.siblings, Now: time.Now()}

	taskMsg := models.Message{
		ID:        uuid.NewString(),
		FrameID:   r.frameID,
		Role:      models.RoleUser,
		Content:   delegationTaskContent(task, taskContext),
		CreatedAt: time.Now().UTC(),
	}
	delegatedHistory := append(append([]models.Message{}, r.history...), taskMsg)

	var content strings.Builder
	for ev := range loop.Process(ctx, delegatedHistory, viewCfg, r.conversationID) {
		sink(ev)
		if ev.Role == "assistant" {
			content.WriteString(ev.Content)
		}
	}
	return content.String(), nil
}

// delegationTaskContent matches original_source/agents/router.py's
// delegation_msg formatting.
func delegationTaskContent(task, taskContext string) string {
	if taskContext == "" {
		return "Task: " + task
	}
	return "Task: " + task + "\nContext: " + taskContext
}
