package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry maps tool name to descriptor, grounded on the teacher's
// internal/agent/tool_registry.go. Registration validates that a tool's
// advertised parameter schema is itself a syntactically valid
// JSON-schema document, so a malformed external-tool schema never
// reaches an LM call.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	// order preserves external-tool registration order so name
	// collisions resolve deterministically: later registrations shadow
	// earlier ones.
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name. If the tool's schema isn't
// valid JSON-schema, Register returns an error and the tool is not
// added.
func (r *ToolRegistry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool registry: nil tool")
	}
	if schema := t.Schema(); len(schema) > 0 {
		if _, err := jsonschema.CompileString(t.Name(), string(schema)); err != nil {
			return fmt.Errorf("tool registry: invalid schema for %q: %w", t.Name(), err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in stable registration order.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ExposedTo returns the tools visible to an agent with the given
// exclusion set, implementing rule exactly:
//
//	{ t ∈ R | t.built_in ∨ t.name ∉ E }
func (r *ToolRegistry) ExposedTo(excluded []string) []Tool {
	excludedSet := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		excludedSet[name] = struct{}{}
	}
	all := r.All()
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		if t.BuiltIn() {
			out = append(out, t)
			continue
		}
		if _, excl := excludedSet[t.Name()]; !excl {
			out = append(out, t)
		}
	}
	return out
}

// Schemas converts tools to the provider-agnostic ToolSchema form.
func Schemas(tools []Tool) []ToolSchema {
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// notAvailable is the fixed message for a tool not exposed to the
// calling agent.
func notAvailable(name string) *ToolResult {
	return &ToolResult{Content: "Tool not available: " + name, IsError: true}
}

// Execute runs name with args against this registry without applying
// any approval or exposure policy; callers that need approval gating
// or per-agent exposure should check ExposedTo and the approval
// checker first (see executeWithApproval in approval.go).
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return notAvailable(name), nil
	}
	res, err := t.Execute(ctx, args)
	if err != nil {
		return &ToolResult{Content: "Tool execution failed: " + err.Error(), IsError: true}, nil
	}
	return res, nil
}
