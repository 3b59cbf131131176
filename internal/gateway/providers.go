package gateway

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/agent/providers"
	"github.com/nexuscore/fabric/internal/config"
	"github.com/nexuscore/fabric/pkg/models"
)

// LLMResolver implements ProviderResolver against the three backends
// names (): every configured backend is built
// once at startup so a bad API key is a startup error, not a mid-turn
// one, grounded on the teacher's provider-factory wiring in
// cmd/nexus/main.go but narrowed to the three adapters this runtime
// carries.
type LLMResolver struct {
	cfg       config.LLMConfig
	providers map[string]agent.LLMProvider
	logger    *slog.Logger
}

// NewLLMResolver builds an LLMResolver from cfg. Ollama is always
// available (it needs no API key) so a zero-config deployment still
// has a working backend; anthropic/openai are built only when an
// api_key is configured for them.
func NewLLMResolver(cfg config.LLMConfig, logger *slog.Logger) (*LLMResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &LLMResolver{cfg: cfg, providers: make(map[string]agent.LLMProvider), logger: logger}

	if pc, ok := cfg.Providers["anthropic"]; ok && pc.APIKey != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		r.providers["anthropic"] = p
	}
	if pc, ok := cfg.Providers["openai"]; ok && pc.APIKey != "" {
		r.providers["openai"] = providers.NewOpenAIProvider(pc.APIKey)
	}
	ollamaCfg := cfg.Providers["ollama"]
	r.providers["ollama"] = providers.NewOllamaProvider(providers.OllamaConfig{
		BaseURL: ollamaCfg.BaseURL, DefaultModel: ollamaCfg.DefaultModel,
	})

	return r, nil
}

// Default returns the configured default backend, for callers (like
// post-turn consolidation) that need one fixed provider rather than a
// per-agent resolution.
func (r *LLMResolver) Default() (agent.LLMProvider, string) {
	name := r.cfg.DefaultProvider
	if name == "" {
		name = "ollama"
	}
	p, ok := r.providers[name]
	if !ok {
		p = r.providers["ollama"]
		name = "ollama"
	}
	return p, r.cfg.Providers[name].DefaultModel
}

// ProviderFor implements gateway.ProviderResolver. A per-user custom
// backend URL (models.User.LMBackendURL, a supplemented field) always
// wins: it points at that user's own self-hosted Ollama endpoint,
// overriding the operator's configured default provider entirely.
func (r *LLMResolver) ProviderFor(user models.User, a models.Agent) (agent.LLMProvider, string) {
	if url := strings.TrimSpace(user.LMBackendURL); url != "" {
		p := providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: url})
		return p, r.modelFor("ollama", a)
	}

	name := r.cfg.DefaultProvider
	if name == "" {
		name = "ollama"
	}
	p, ok := r.providers[name]
	if !ok {
		r.logger.Warn("llm provider not configured, falling back to ollama", "provider", name)
		p = r.providers["ollama"]
		name = "ollama"
	}
	return p, r.modelFor(name, a)
}

// modelFor resolves providerName's model for agent a: the agent's own
// override, then a per-agent-name profile override, then the
// provider's configured default.
func (r *LLMResolver) modelFor(providerName string, a models.Agent) string {
	if a.Model != "" {
		return a.Model
	}
	pc := r.cfg.Providers[providerName]
	if profile, ok := pc.Profiles[a.Name]; ok && profile.DefaultModel != "" {
		return profile.DefaultModel
	}
	return pc.DefaultModel
}
