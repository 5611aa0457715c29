package config

import "github.com/StarkFactory/arc-reactor-sub012/internal/ratelimit"

// GuardsConfig toggles and configures the built-in input/output guard
// stages (internal/engine/stages.go). External guard stages a deployment
// wires in via code are not config-driven.
type GuardsConfig struct {
	RateLimit       ratelimit.Config `yaml:"rate_limit"`
	PromptInjection bool             `yaml:"prompt_injection"`
	PIIMaskOutput   bool             `yaml:"pii_mask_output"`
	MinOutputChars  int              `yaml:"min_output_chars"`
}
