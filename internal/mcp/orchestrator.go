package mcp

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/pkg/models"
)

// schemaCacheTTL bounds how long a user's flattened external-tool list
// is trusted before Sync re-lists it from the connected servers.
const schemaCacheTTL = 30 * time.Second

// Orchestrator is the per-user external-tool connector pool: it owns
// one Manager per user instead of the
// teacher's single process-wide Manager bound to one static Config,
// and keeps each user's flattened tool schema cached for
// schemaCacheTTL before reconnecting, grounded on
// internal/mcp/manager.go's connect/disconnect locking.
type Orchestrator struct {
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]*userPool
}

// userPool is one user's connector state: the Manager driving their
// enabled tool servers, a fingerprint of the server set it was built
// from, and the tool names most recently registered into that user's
// ToolRegistry (so a refresh can unregister ones no longer advertised).
type userPool struct {
	manager     *Manager
	signature   string
	registered  []string
	refreshedAt time.Time
}

// NewOrchestrator builds an empty per-user connector pool.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger.With("component", "mcp_orchestrator"), users: make(map[string]*userPool)}
}

// Invalidate drops userID's cached manager and schema freshness,
// disconnecting its servers and forcing a full reconnect and
// re-registration on the next Sync call. Callers invoke this when the
// user mutates their tool-server configuration.
func (o *Orchestrator) Invalidate(userID string) {
	o.mu.Lock()
	pool, ok := o.users[userID]
	delete(o.users, userID)
	o.mu.Unlock()
	if ok {
		_ = pool.manager.Stop()
	}
}

// Close disconnects every pooled user's servers. Callers use this on
// process shutdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	pools := make([]*userPool, 0, len(o.users))
	for _, p := range o.users {
		pools = append(pools, p)
	}
	o.users = make(map[string]*userPool)
	o.mu.Unlock()
	for _, p := range pools {
		_ = p.manager.Stop()
	}
}

// Sync connects userID's enabled tool servers and registers their
// flattened tools into reg, skipping all of this when the server set
// is unchanged and the cache is still within schemaCacheTTL. On a cache
// miss, servers not yet connected are connected and servers already
// connected are re-listed, not reconnected. The session handler calls
// it at the top of every turn. RegisterTools registers tools in
// server-ID, then tool-name order, and safeToolName gives a name that
// is already taken a hash suffix, so tools of different servers never
// shadow one another; the order of servers does not decide which tool
// keeps a name.
func (o *Orchestrator) Sync(ctx context.Context, userID string, servers []models.ToolServer, reg *agent.ToolRegistry) error {
	enabled := make([]models.ToolServer, 0, len(servers))
	for _, s := range servers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	signature := poolSignature(enabled)

	o.mu.Lock()
	pool, ok := o.users[userID]
	if ok && pool.signature == signature && time.Since(pool.refreshedAt) < schemaCacheTTL {
		o.mu.Unlock()
		return nil
	}
	if !ok {
		pool = &userPool{manager: NewManager(&Config{Enabled: true}, o.logger)}
		o.users[userID] = pool
	}
	o.mu.Unlock()

	for _, stale := range pool.registered {
		reg.Unregister(stale)
	}

	configs := make([]*ServerConfig, 0, len(enabled))
	for _, s := range enabled {
		cfg := toServerConfig(s)
		if err := cfg.Validate(); err != nil {
			o.logger.Warn("mcp server config rejected", "user_id", userID, "server_id", s.ID, "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	pool.manager.config = &Config{Enabled: true, Servers: configs}

	for _, cfg := range configs {
		if client, ok := pool.manager.Client(cfg.ID); ok {
			_ = client.RefreshCapabilities(ctx)
			continue
		}
		if err := pool.manager.Connect(ctx, cfg.ID); err != nil {
			o.logger.Warn("mcp server connect failed", "user_id", userID, "server_id", cfg.ID, "error", err)
		}
	}
	for _, staleID := range disconnectedServerIDs(pool.manager, configs) {
		_ = pool.manager.Disconnect(staleID)
	}

	registered, err := RegisterTools(reg, pool.manager)
	if err != nil {
		return err
	}

	o.mu.Lock()
	pool.signature = signature
	pool.registered = registered
	pool.refreshedAt = time.Now()
	o.mu.Unlock()
	return nil
}

// disconnectedServerIDs returns the IDs of currently connected clients
// that no longer appear in want, so Sync can drop servers the user
// removed or disabled.
func disconnectedServerIDs(mgr *Manager, want []*ServerConfig) []string {
	keep := make(map[string]struct{}, len(want))
	for _, cfg := range want {
		keep[cfg.ID] = struct{}{}
	}
	var stale []string
	for id := range mgr.Clients() {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

// toServerConfig translates a persisted models.ToolServer row into the
// transport-level ServerConfig Manager.Connect expects. models.ToolServer
// names the streaming transport "sse"; Manager names
// the same transport "http" (see TransportType in types.go), so the two
// enums are mapped explicitly here rather than unified, keeping each
// package's vocabulary native to its own layer.
func toServerConfig(s models.ToolServer) *ServerConfig {
	cfg := &ServerConfig{
		ID:        s.ID,
		Name:      s.Name,
		Command:   s.Command,
		Args:      s.Args,
		Env:       s.Env,
		AutoStart: true,
		Timeout:   30 * time.Second,
	}
	if s.Transport == models.TransportSSE {
		cfg.Transport = TransportHTTP
		cfg.URL = s.URL
	} else {
		cfg.Transport = TransportStdio
	}
	return cfg
}

// poolSignature fingerprints a server set by id and last-updated time
// so Sync can detect "nothing changed" without a deep comparison.
func poolSignature(servers []models.ToolServer) string {
	var b strings.Builder
	for _, s := range servers {
		b.WriteString(s.ID)
		b.WriteByte(':')
		b.WriteString(s.UpdatedAt.UTC().Format(time.RFC3339Nano))
		b.WriteByte(';')
	}
	return b.String()
}
