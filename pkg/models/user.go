// Package models defines the shared data model for the conversational
// runtime: users, agents, conversations, frames, messages, skills, and
// external tool servers.
package models

import "time"

// User is an owner of agents, conversations, skills, and tool servers.
type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name,omitempty"`
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	LMBackendURL    string    `json:"lm_backend_url,omitempty"`
	SummaryModel    string    `json:"summary_model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PreferredName returns the name the user wants to be addressed by,
// falling back to the username when no display name is set.
func (u *User) PreferredName() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
