package multiagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

// systemPrompt is the Administrator's fixed instruction set, carried
// over from original_source/agents/administrator.py almost verbatim —
// the wording is load-bearing (it is what keeps smaller routing models
// calling tools instead of replying with prose).
const systemPrompt = `You moderate a group chat. Everyone — the user and the agents — are equal participants. Your only job is to decide who speaks next using the routing tools.

Tools:
- route_to_agent: Let an agent speak. Call multiple times to queue several.
- route_to_user: Let the user speak (it's their turn).

Guidelines:
- If someone is addressed or mentioned by name, let them speak.
- If multiple people would naturally want to chime in, queue them.
- When the conversation needs user input or feels like the user's turn, route to user.
- Not every message needs a reply from everyone — let it flow naturally.

You MUST call a routing tool. Do not reply with text.`

// Administrator is the router agent: a specialized agent whose only
// output is a routing-tool call. It
// speaks through the same LLMProvider adapter as ordinary agents but
// never runs through the general-purpose tool loop, since its tool
// calls are consumed locally rather than executed against external
// effects.
type Administrator struct {
	Provider agent.LLMProvider
	Model    string
	Think    bool
}

// buildChatMessages converts a frame's persisted history into the
// Administrator's own chat-message view: its own prior messages become
// "assistant" turns, everything else — the user and every other agent —
// becomes a speaker-prefixed "user" turn, grounded on
// original_source/agents/administrator.py's _build_chat_messages.
func buildChatMessages(history []models.Message, instruction string) []agent.ChatMessage {
	out := make([]agent.ChatMessage, 0, len(history)+2)
	out = append(out, agent.ChatMessage{Role: "system", Content: systemPrompt})

	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		content := m.Content
		switch {
		case m.IsAdministrator():
			out = append(out, agent.ChatMessage{Role: "assistant", Content: content})
			continue
		case m.Speaker != "":
			content = fmt.Sprintf("[%s]: %s", m.Speaker, content)
		default:
			content = fmt.Sprintf("[User]: %s", content)
		}
		out = append(out, agent.ChatMessage{Role: "user", Content: content})
	}

	out = append(out, agent.ChatMessage{Role: "user", Content: instruction})
	return out
}

func initialSelectionInstruction(agentNames []string, userMessage string) string {
	return fmt.Sprintf("People in this chat: %s, User\n\nUser just said:\n%s\n\nWho speaks next? Use a routing tool.",
		strings.Join(agentNames, ", "), userMessage)
}

func routingInstruction(agentNames []string, speaker, content string) string {
	return fmt.Sprintf("People in this chat: %s, User\n\n%s just said:\n%s\n\nWho speaks next? Use a routing tool.",
		strings.Join(agentNames, ", "), speaker, content)
}

// agentNames extracts the Name field of each available agent, in order.
func agentNames(available []models.Agent) []string {
	names := make([]string, len(available))
	for i, a := range available {
		names[i] = a.Name
	}
	return names
}

// matchTriggerPhrase returns the first available agent whose
// TriggerPhrase appears (case-insensitively) in userMessage. Agents
// without a trigger phrase never match.
func matchTriggerPhrase(userMessage string, available []models.Agent) (models.Agent, bool) {
	lower := strings.ToLower(userMessage)
	for _, a := range available {
		phrase := strings.ToLower(strings.TrimSpace(a.TriggerPhrase))
		if phrase != "" && strings.Contains(lower, phrase) {
			return a, true
		}
	}
	return models.Agent{}, false
}

func findAgentByName(available []models.Agent, name string) (models.Agent, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, a := range available {
		if strings.ToLower(a.Name) == lower {
			return a, true
		}
	}
	return models.Agent{}, false
}

// runRoutingCall issues one non-streaming LM call against the routing
// tools and returns every route_to_agent/route_to_user decision the LM
// requested, in the order it requested them. An LM call that returns no
// tool calls at all defaults to a single route-to-user decision.
func (a *Administrator) runRoutingCall(ctx context.Context, messages []agent.ChatMessage, available []models.Agent) ([]models.RouteDecision, error) {
	tools := agent.Schemas(routingTools(agentNames(available)))

	msg, err := a.Provider.ChatSync(ctx, &agent.ChatRequest{
		Model:    a.Model,
		Messages: messages,
		Tools:    tools,
		Think:    a.Think,
	})
	if err != nil {
		return []models.RouteDecision{{Target: models.RouteToUser, Reason: fmt.Sprintf("Error: %v", err)}}, nil
	}

	if len(msg.ToolCalls) == 0 {
		return []models.RouteDecision{{Target: models.RouteToUser, Reason: "No routing decision made"}}, nil
	}

	decisions := make([]models.RouteDecision, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args, _ := tc.NormalizedArguments()
		var raw string
		switch tc.Name {
		case "route_to_agent":
			name, _ := args["agent_name"].(string)
			reason, _ := args["reason"].(string)
			raw = "ROUTE_TO_AGENT:" + name + ":" + reason
		case "route_to_user":
			reason, _ := args["reason"].(string)
			raw = "ROUTE_TO_USER:" + reason
		default:
			continue
		}
		decisions = append(decisions, toRouteDecision(parseRoutingResult(raw), available))
	}
	if len(decisions) == 0 {
		decisions = append(decisions, models.RouteDecision{Target: models.RouteToUser, Reason: "No routing decision made"})
	}
	return decisions, nil
}

func toRouteDecision(r routingResult, available []models.Agent) models.RouteDecision {
	if !r.routeToAgent {
		return models.RouteDecision{Target: models.RouteToUser, Reason: r.reason}
	}
	target, ok := findAgentByName(available, r.agentName)
	if !ok {
		return models.RouteDecision{Target: models.RouteToUser, Reason: fmt.Sprintf("Agent '%s' not found", r.agentName)}
	}
	return models.RouteDecision{Target: models.RouteToAgent, AgentID: target.ID, AgentName: target.Name, Reason: r.reason, Persist: true}
}

// InitialSelection picks the first speaker for a turn: the zero/one-agent
// fast paths are deterministic and never call the LM or get persisted
// as an Administrator decision (an Open Question, resolved in
// DESIGN.md); a trigger-phrase direct address is a third fast path
// (a supplemented feature grounded on original_source/agents/router.py),
// checked before falling back to the LM routing call.
func (a *Administrator) InitialSelection(ctx context.Context, userMessage string, available []models.Agent) ([]models.RouteDecision, error) {
	switch len(available) {
	case 0:
		return []models.RouteDecision{{Target: models.RouteToUser, Reason: "No agents available"}}, nil
	case 1:
		return []models.RouteDecision{{Target: models.RouteToAgent, AgentID: available[0].ID, AgentName: available[0].Name, Reason: "only available agent"}}, nil
	}

	if target, ok := matchTriggerPhrase(userMessage, available); ok {
		return []models.RouteDecision{{Target: models.RouteToAgent, AgentID: target.ID, AgentName: target.Name, Reason: "trigger phrase match"}}, nil
	}

	instruction := initialSelectionInstruction(agentNames(available), userMessage)
	messages := buildChatMessages(nil, instruction)
	return a.runRoutingCall(ctx, messages, available)
}

// DecideRouting (non-streaming variant) decides, given the latest
// message and the agents available, whether another agent should
// speak next or control returns to the user. Unlike InitialSelection
// this always returns exactly one decision — the turn algorithm treats
// it as one queue entry at a time.
func (a *Administrator) DecideRouting(ctx context.Context, latest models.Message, history []models.Message, available []models.Agent) (models.RouteDecision, error) {
	speaker := latest.Speaker
	if speaker == "" {
		speaker = "User"
	}
	instruction := routingInstruction(agentNames(available), speaker, latest.Content)
	messages := buildChatMessages(history, instruction)

	decisions, err := a.runRoutingCall(ctx, messages, available)
	if err != nil {
		return models.RouteDecision{}, err
	}
	return decisions[0], nil
}

// StreamInitialSelection is the streaming variant of InitialSelection.
// It emits the Administrator's own thinking/content/tool-result chunks
// on the returned channel, and returns the final decision queue once
// the channel is drained.
func (a *Administrator) StreamInitialSelection(ctx context.Context, userMessage string, available []models.Agent) (<-chan agent.StreamEvent, <-chan []models.RouteDecision) {
	events := make(chan agent.StreamEvent)
	result := make(chan []models.RouteDecision, 1)

	go func() {
		defer close(events)
		defer close(result)

		switch len(available) {
		case 0:
			events <- administratorChunk("→ No agents available", "assistant", "")
			result <- []models.RouteDecision{{Target: models.RouteToUser, Reason: "No agents available"}}
			return
		case 1:
			events <- administratorChunk(fmt.Sprintf("→ Selected %s (only available agent)", available[0].Name), "assistant", "")
			result <- []models.RouteDecision{{Target: models.RouteToAgent, AgentID: available[0].ID, AgentName: available[0].Name, Reason: "only available agent"}}
			return
		}

		if target, ok := matchTriggerPhrase(userMessage, available); ok {
			events <- administratorChunk(fmt.Sprintf("→ Selected %s (trigger phrase match)", target.Name), "assistant", "")
			result <- []models.RouteDecision{{Target: models.RouteToAgent, AgentID: target.ID, AgentName: target.Name, Reason: "trigger phrase match"}}
			return
		}

		instruction := initialSelectionInstruction(agentNames(available), userMessage)
		messages := buildChatMessages(nil, instruction)
		decisions := a.streamRoutingCall(ctx, messages, available, events)
		result <- decisions
	}()

	return events, result
}

// StreamDecideRouting is the streaming variant of DecideRouting.
func (a *Administrator) StreamDecideRouting(ctx context.Context, latest models.Message, history []models.Message, available []models.Agent) (<-chan agent.StreamEvent, <-chan models.RouteDecision) {
	events := make(chan agent.StreamEvent)
	result := make(chan models.RouteDecision, 1)

	go func() {
		defer close(events)
		defer close(result)

		speaker := latest.Speaker
		if speaker == "" {
			speaker = "User"
		}
		instruction := routingInstruction(agentNames(available), speaker, latest.Content)
		messages := buildChatMessages(history, instruction)
		decisions := a.streamRoutingCall(ctx, messages, available, events)
		result <- decisions[0]
	}()

	return events, result
}

// streamRoutingCall drives one streaming LM call, forwarding content
// and thinking chunks as they arrive and emitting a role="tool" chunk
// per routing decision once the stream completes, then returns the
// decisions for the caller to act on.
func (a *Administrator) streamRoutingCall(ctx context.Context, messages []agent.ChatMessage, available []models.Agent, events chan<- agent.StreamEvent) []models.RouteDecision {
	tools := agent.Schemas(routingTools(agentNames(available)))

	chunks, err := a.Provider.Chat(ctx, &agent.ChatRequest{
		Model:    a.Model,
		Messages: messages,
		Tools:    tools,
		Think:    a.Think,
		Stream:   true,
	})
	if err != nil {
		events <- administratorChunk(fmt.Sprintf("→ Error: %v", err), "assistant", "")
		return []models.RouteDecision{{Target: models.RouteToUser, Reason: fmt.Sprintf("Error: %v", err)}}
	}

	var toolCalls []agent.ToolCall
	for c := range chunks {
		if c.Error != nil {
			events <- administratorChunk(fmt.Sprintf("→ Error: %v", c.Error), "assistant", "")
			return []models.RouteDecision{{Target: models.RouteToUser, Reason: fmt.Sprintf("Error: %v", c.Error)}}
		}
		if c.Thinking != "" {
			events <- administratorChunk("", "assistant", c.Thinking)
		}
		if c.Content != "" {
			events <- administratorChunk(c.Content, "assistant", "")
		}
		toolCalls = append(toolCalls, c.ToolCalls...)
	}

	if len(toolCalls) == 0 {
		events <- administratorChunk("→ No routing decision made, returning to user", "tool", "")
		return []models.RouteDecision{{Target: models.RouteToUser, Reason: "No routing decision made"}}
	}

	decisions := make([]models.RouteDecision, 0, len(toolCalls))
	for _, tc := range toolCalls {
		args, _ := tc.NormalizedArguments()
		var raw string
		switch tc.Name {
		case "route_to_agent":
			name, _ := args["agent_name"].(string)
			reason, _ := args["reason"].(string)
			raw = "ROUTE_TO_AGENT:" + name + ":" + reason
		case "route_to_user":
			reason, _ := args["reason"].(string)
			raw = "ROUTE_TO_USER:" + reason
		default:
			continue
		}
		decision := toRouteDecision(parseRoutingResult(raw), available)

		var text string
		if decision.Target == models.RouteToAgent {
			text = fmt.Sprintf("→ Routing to %s: %s\n", decision.AgentName, decision.Reason)
		} else {
			text = fmt.Sprintf("→ Returning to user: %s\n", decision.Reason)
		}
		events <- agent.StreamEvent{Role: "tool", Content: text, Name: tc.Name}
		decisions = append(decisions, decision)
	}
	if len(decisions) == 0 {
		decisions = append(decisions, models.RouteDecision{Target: models.RouteToUser, Reason: "No routing decision made"})
	}
	return decisions
}

// administratorChunk builds a StreamEvent tagged with the reserved
// Administrator speaker name, so the session handler can persist it as
// such and the view builder can filter it from sub-agents.
func administratorChunk(content, role, thinking string) agent.StreamEvent {
	return agent.StreamEvent{Role: role, Content: content, Thinking: thinking, Name: models.AdministratorName}
}
