package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the arc server's YAML configuration tree. Each
// field corresponds to one concern of the Agent Run Lifecycle.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Guards        GuardsConfig        `yaml:"guards"`
	Hooks         HooksConfig         `yaml:"hooks"`
	Cache         CacheConfig         `yaml:"cache"`
	Retry         RetryConfig         `yaml:"retry"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Observability ObservabilityConfig `yaml:"observability"`
	Approval      ApprovalConfig      `yaml:"approval"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ConfigValidationError collects every validation issue found in a Config so
// an operator sees all of them in one pass instead of fixing them one at a
// time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Issues, "; "))
}

// Load reads, expands, decodes, defaults, and validates the config file at
// path. Env vars are expanded in the raw file text before YAML decoding, and
// ARC_CONFIG overrides path when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ARC_CONFIG")
	}
	if path == "" {
		path = "arc.yaml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Engine.DefaultToolTimeout == 0 {
		cfg.Engine.DefaultToolTimeout = 30 * time.Second
	}
	if cfg.Engine.ApprovalTimeout == 0 {
		cfg.Engine.ApprovalTimeout = 5 * time.Minute
	}

	if cfg.Providers.Default == "" {
		cfg.Providers.Default = "anthropic"
	}
	if cfg.Providers.Anthropic.DefaultModel == "" {
		cfg.Providers.Anthropic.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.Providers.Anthropic.MaxTokens == 0 {
		cfg.Providers.Anthropic.MaxTokens = 4096
	}
	if cfg.Providers.OpenAI.DefaultModel == "" {
		cfg.Providers.OpenAI.DefaultModel = "gpt-4o"
	}
	if cfg.Providers.OpenAI.MaxTokens == 0 {
		cfg.Providers.OpenAI.MaxTokens = 4096
	}

	if cfg.Guards.RateLimit.RequestsPerSecond == 0 {
		cfg.Guards.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Guards.RateLimit.BurstSize == 0 {
		cfg.Guards.RateLimit.BurstSize = 10
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 500
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 200 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 5 * time.Second
	}
	if cfg.Retry.Factor == 0 {
		cfg.Retry.Factor = 2
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = 30 * time.Second
	}

	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "arc"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Approval.Addr == "" {
		cfg.Approval.Addr = ":8081"
	}
}

// applyEnvOverrides lets deployment secrets live outside the YAML file.
// NEXUS_-style per-field env vars were a teacher convention we keep for the
// handful of fields that need it; secrets always win over whatever the file
// says.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("ARC_JWT_SECRET"); v != "" {
		cfg.Approval.JWTSecret = v
	}
	if v := os.Getenv("ARC_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("ARC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch cfg.Providers.Default {
	case "anthropic":
		if cfg.Providers.Anthropic.APIKey == "" {
			issues = append(issues, "providers.default is \"anthropic\" but providers.anthropic.api_key is empty")
		}
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			issues = append(issues, "providers.default is \"openai\" but providers.openai.api_key is empty")
		}
	default:
		issues = append(issues, fmt.Sprintf("providers.default must be \"anthropic\" or \"openai\", got %q", cfg.Providers.Default))
	}

	for _, fb := range cfg.Providers.Fallbacks {
		if fb != "anthropic" && fb != "openai" {
			issues = append(issues, fmt.Sprintf("providers.fallbacks entry %q must be \"anthropic\" or \"openai\"", fb))
		}
	}

	if cfg.Engine.MaxConcurrentRuns < 0 {
		issues = append(issues, "engine.max_concurrent_runs must be >= 0")
	}
	if cfg.Engine.HistoryBudgetChars < 0 {
		issues = append(issues, "engine.history_budget_chars must be >= 0")
	}

	if cfg.Retry.MaxAttempts < 1 {
		issues = append(issues, "retry.max_attempts must be >= 1")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		issues = append(issues, "breaker.failure_threshold must be >= 1")
	}

	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Endpoint == "" {
		issues = append(issues, "observability.tracing.endpoint is required when tracing is enabled")
	}

	if cfg.Approval.Enabled && cfg.Approval.JWTSecret == "" {
		issues = append(issues, "approval.jwt_secret is required when approval.enabled is true")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level must be one of debug|info|warn|error, got %q", cfg.Logging.Level))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
