package models

import "time"

// Skill is a named block of instructions an agent can pull into context
// on demand via the get_skill_instructions tool.
type Skill struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
