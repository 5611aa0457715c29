package config

// LoggingConfig controls the slog JSON handler installed at bootstrap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls the OpenTelemetry tracer provider, exported via
// OTLP/gRPC -- one span per run with Input Guard / LLM call / Tool
// Orchestrator / Output Guard child spans.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Insecure       bool    `yaml:"insecure"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

// ApprovalConfig configures the optional remote HTTP approval-response
// endpoint (spec §12 supplemented feature).
type ApprovalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}
