package config

import "time"

// BreakerConfig configures the circuit breaker guarding each ChatModel,
// one instance per model name via internal/infra.CircuitBreakerRegistry.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig configures the retry policy wrapping each primary model call.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
	Jitter       bool          `yaml:"jitter"`
}
