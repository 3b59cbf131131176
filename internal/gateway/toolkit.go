package gateway

import (
	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/skills"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/internal/tools/sessiontools"
	"github.com/nexuscore/fabric/internal/tools/websearch"
)

// BuildToolRegistry assembles the built-in tools every agent's registry
// carries regardless of per-agent exclusion: conversation
// introspection (internal/tools/sessiontools), skill lookup
// (internal/skills), and web search (internal/tools/websearch). External
// MCP tools are layered on top of the same registry per turn by
// mcp.Orchestrator.Sync (internal/mcp/orchestrator.go).
//
// search may be nil (no web search backend configured); the other
// built-ins are unconditional.
func BuildToolRegistry(store sessions.Store, userID string, search *websearch.WebSearchTool) (*agent.ToolRegistry, error) {
	reg := agent.NewToolRegistry()

	builtins := []agent.Tool{
		sessiontools.NewConversationInfoTool(store),
		sessiontools.NewFrameSummariesTool(store),
		sessiontools.NewFrameMessagesTool(store),
		sessiontools.NewSearchMessagesTool(store),
		skills.NewInstructionsTool(store, userID),
	}
	if search != nil {
		builtins = append(builtins, search)
	}

	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
