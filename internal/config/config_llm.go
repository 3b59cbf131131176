package config

// LLMConfig configures the three LM backend adapters this runtime
// supports, grounded on the teacher's config_llm.go LLMProviderConfig
// shape (stripped of Bedrock discovery and provider-routing, which no
// component here exercises — see DESIGN.md).
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures one named backend (anthropic, openai, or
// ollama). Profiles are keyed by agent name and override DefaultModel
// for that agent; a profile's APIKey and BaseURL are not read.
type LLMProviderConfig struct {
	APIKey       string                              `yaml:"api_key"`
	DefaultModel string                              `yaml:"default_model"`
	BaseURL      string                              `yaml:"base_url"`
	Profiles     map[string]LLMProviderProfileConfig `yaml:"profiles"`
}

type LLMProviderProfileConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}
