package models

import "time"

// ToolTransport identifies how an external tool server is reached.
type ToolTransport string

const (
	TransportStdio ToolTransport = "stdio"
	TransportSSE   ToolTransport = "sse"
)

// ToolServer is a user-owned external tool provider reachable over one
// of the supported transports.
type ToolServer struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Name      string        `json:"name"`
	Transport ToolTransport `json:"transport"`

	// SSE transport fields.
	URL string `json:"url,omitempty"`

	// Stdio transport fields.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	Enabled   bool      `json:"enabled"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolSummary describes one tool available from an external tool
// server, flattened for listing to a client or an LM's tool roster.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      []byte `json:"-"`
	Source      string `json:"source"`    // "mcp"
	Namespace   string `json:"namespace"` // tool server id
	Canonical   string `json:"canonical"` // stable id independent of name-collision suffixing
}
