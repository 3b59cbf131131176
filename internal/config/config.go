// Package config loads the gateway process's configuration from a
// YAML (or JSON5) file, grounded on the teacher's internal/config
// package: $include-resolving, env-var expansion, and strict
// (KnownFields) decoding via gopkg.in/yaml.v3 (loader.go), generalized
// from the teacher's channel/plugin-heavy Config onto the narrower
// surface this runtime needs.
package config

import (
	"fmt"
	"time"
)

// Config is the gateway process's full configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	LLM          LLMConfig          `yaml:"llm"`
	ToolServers  []ToolServerConfig `yaml:"tool_servers"`
	Logging      LoggingConfig      `yaml:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	WebSearch    WebSearchConfig    `yaml:"web_search"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

// TracingConfig configures OpenTelemetry span export,
// grounded on the teacher's internal/observability.TraceConfig. A
// blank Endpoint disables export and yields a no-op tracer.
type TracingConfig struct {
	Endpoint       string            `yaml:"endpoint,omitempty"`
	Environment    string            `yaml:"environment,omitempty"`
	SamplingRate   float64           `yaml:"sampling_rate,omitempty"`
	Attributes     map[string]string `yaml:"attributes,omitempty"`
	EnableInsecure bool              `yaml:"enable_insecure"`
}

// WebSearchConfig configures the web_search built-in,
// grounded on the teacher's internal/tools/websearch.Config. When
// SearXNGURL, BraveAPIKey and DefaultBackend are all blank, web_search
// is not registered; DefaultBackend "duckduckgo" alone selects
// DuckDuckGo's keyless Instant Answer API.
type WebSearchConfig struct {
	SearXNGURL         string `yaml:"searxng_url,omitempty"`
	BraveAPIKey        string `yaml:"brave_api_key,omitempty"`
	DefaultBackend     string `yaml:"default_backend,omitempty"`
	ExtractContent     bool   `yaml:"extract_content"`
	DefaultResultCount int    `yaml:"default_result_count"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
}

// ServerConfig configures the WebSocket gateway's listen address.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AuthConfig configures JWT handshake verification,
// grounded on internal/auth/jwt.go.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// DatabaseConfig configures the Postgres-backed persistence store.
// A blank URL selects the in-memory store instead.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ToolServerConfig configures one external tool server reachable over
// the MCP stdio or sse transport.
type ToolServerConfig struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" | "sse"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Enabled   bool              `yaml:"enabled"`
}

// LoggingConfig configures the log/slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
}

// OrchestratorConfig configures turn-level bounds.
type OrchestratorConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// DefaultConfig returns the gateway's zero-config defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, MetricsPort: 9090},
		Auth:   AuthConfig{TokenExpiry: 24 * time.Hour},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging:      LoggingConfig{Level: "info", Format: "json"},
		Orchestrator: OrchestratorConfig{MaxTurns: 10},
	}
}

// Load reads and merges path (resolving $include directives) into a
// Config seeded with DefaultConfig's values.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Orchestrator.MaxTurns <= 0 {
		cfg.Orchestrator.MaxTurns = 10
	}
	return cfg, nil
}
