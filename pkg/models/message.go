package models

import "time"

// Role identifies the author kind of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// AdministratorName is the reserved speaker name for the router agent.
// Messages authored under this name are never shown to sub-agents.
const AdministratorName = "Administrator"

// Message is a single entry in a frame's transcript. Messages are
// append-only; Thinking may be backfilled by the same writer once the
// full reasoning trace is available.
type Message struct {
	ID         string    `json:"id"`
	FrameID    string    `json:"frame_id"`
	Role       Role      `json:"role"`
	Speaker    string    `json:"speaker,omitempty"` // agent name (assistant), tool name (tool), empty for user
	Content    string    `json:"content"`
	Thinking   string    `json:"thinking,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	RawInput   string    `json:"raw_input,omitempty"`  // debug: exact prepared messages sent to the LM
	RawOutput  string    `json:"raw_output,omitempty"` // debug: raw streamed LM output
	CreatedAt  time.Time `json:"created_at"`
}

// IsAdministrator reports whether the message was authored by the
// Administrator (by name, not by agent id — the Administrator may run
// without a persisted Agent row).
func (m *Message) IsAdministrator() bool {
	return m != nil && m.Speaker == AdministratorName
}
