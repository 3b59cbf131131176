package gateway

import (
	"context"
	"sync/atomic"

	"github.com/nexuscore/fabric/internal/config"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

// ToolServerLister resolves the external tool servers (MCP) available
// to a user so HandleChatRequest can hand them to
// mcp.Orchestrator.Sync at the top of every turn.
type ToolServerLister interface {
	ToolServersFor(ctx context.Context, userID string) ([]models.ToolServer, error)
}

// SharedToolServers holds the operator's config-defined tool-server
// list behind an atomic pointer so a config.Watcher can swap in a
// freshly reloaded list without a lock and without racing a
// concurrently running ToolServersFor call.
type SharedToolServers struct {
	servers atomic.Pointer[[]config.ToolServerConfig]
}

// NewSharedToolServers wraps an initial list.
func NewSharedToolServers(initial []config.ToolServerConfig) *SharedToolServers {
	s := &SharedToolServers{}
	s.Store(initial)
	return s
}

// Store atomically replaces the list, picked up by the next turn's
// ToolServersFor call.
func (s *SharedToolServers) Store(servers []config.ToolServerConfig) {
	cp := append([]config.ToolServerConfig(nil), servers...)
	s.servers.Store(&cp)
}

// Load returns the current list.
func (s *SharedToolServers) Load() []config.ToolServerConfig {
	if s == nil {
		return nil
	}
	if p := s.servers.Load(); p != nil {
		return *p
	}
	return nil
}

// ConfiguredToolServers resolves a user's tool servers as the
// operator's shared, config-defined servers plus that user's own
// self-service DB-persisted rows. This settles the tension between
// config.Config.ToolServers (one static, process-wide list) and
// models.ToolServer (a per-user table): config entries are treated as
// defaults assigned to every connecting user, never owned by one, and
// are merged ahead of the user's own rows. When a personal row reuses a
// shared server's id, mcp.Manager.Connect takes the first config with
// that id, so the shared server is the one connected and the personal
// row is not.
type ConfiguredToolServers struct {
	Shared *SharedToolServers
	Store  sessions.Store
}

func (c ConfiguredToolServers) ToolServersFor(ctx context.Context, userID string) ([]models.ToolServer, error) {
	shared := c.Shared.Load()
	out := make([]models.ToolServer, 0, len(shared))
	for _, s := range shared {
		out = append(out, sharedToolServer(userID, s))
	}
	if c.Store != nil {
		own, err := c.Store.ListToolServers(ctx, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, own...)
	}
	return out, nil
}

// sharedToolServer adapts one operator-configured server into the
// models.ToolServer shape mcp.Orchestrator.Sync expects. Its UpdatedAt
// stays the zero value: a config-defined server's identity is its
// position in the static config file, not a mutation timestamp, so
// Sync's change-detection fingerprint is stable for it across turns.
func sharedToolServer(userID string, s config.ToolServerConfig) models.ToolServer {
	transport := models.TransportStdio
	if s.Transport == "sse" {
		transport = models.TransportSSE
	}
	return models.ToolServer{
		ID:        s.ID,
		UserID:    userID,
		Name:      s.Name,
		Transport: transport,
		URL:       s.URL,
		Command:   s.Command,
		Args:      s.Args,
		Env:       s.Env,
		Enabled:   s.Enabled,
	}
}
