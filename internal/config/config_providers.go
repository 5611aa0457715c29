package config

// ProvidersConfig configures the primary ChatModel and its fallback chain
// (spec §4.9). Secrets (APIKey) are left blank in the file and filled by
// applyEnvOverrides from ANTHROPIC_API_KEY/OPENAI_API_KEY.
type ProvidersConfig struct {
	Default   string               `yaml:"default"` // "anthropic" or "openai"
	Anthropic LLMProviderConfig    `yaml:"anthropic"`
	OpenAI    LLMProviderConfig    `yaml:"openai"`
	Fallbacks []string             `yaml:"fallbacks"` // provider names tried in order after Default
}

// LLMProviderConfig is the shape common to every concrete ChatModel adapter.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}
