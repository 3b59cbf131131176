package models

import "time"

// Agent is a persona: a named configuration over a system prompt, model,
// and tool access that a user can route turns to.
type Agent struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	SystemPrompt   string    `json:"system_prompt,omitempty"`
	VoiceRef       string    `json:"voice_ref,omitempty"`
	AvatarHandle   string    `json:"avatar_handle,omitempty"`
	Model          string    `json:"model,omitempty"`
	ExcludedTools  []string  `json:"excluded_tools,omitempty"`
	Think          bool      `json:"think"`
	Memory         string    `json:"memory,omitempty"` // persistent agent memory, <= MaxMemoryBytes
	TriggerPhrase  string    `json:"trigger_phrase,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MaxMemoryBytes is the hard cap on an agent's persistent memory text,
// enforced by the memory-consolidation task.
const MaxMemoryBytes = 4096

// ExcludesTool reports whether name is in the agent's exclusion set.
// The check does not know which tools are built-in: it reports true for
// any listed name, so callers must apply the built_in override themselves.
func (a *Agent) ExcludesTool(name string) bool {
	if a == nil {
		return false
	}
	for _, t := range a.ExcludedTools {
		if t == name {
			return true
		}
	}
	return false
}

// DescriptionSnippet returns the first n characters of the system prompt,
// used when listing sibling agents in another agent's preamble.
func (a *Agent) DescriptionSnippet(n int) string {
	if a == nil || a.SystemPrompt == "" {
		return "General assistant"
	}
	r := []rune(a.SystemPrompt)
	if len(r) <= n {
		return a.SystemPrompt
	}
	return string(r[:n])
}
