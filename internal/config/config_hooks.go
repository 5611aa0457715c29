package config

// HooksConfig toggles the built-in hooks the CLI registers at startup.
// Hooks themselves are Go closures (internal/engine.AgentHook/ToolHook) and
// are not otherwise config-driven; a deployment that needs a custom hook
// registers it in code.
type HooksConfig struct {
	AuditLog        HookToggle `yaml:"audit_log"`
	ToolUsageMetric HookToggle `yaml:"tool_usage_metric"`
}

// HookToggle enables a built-in hook and picks its fail mode.
type HookToggle struct {
	Enabled     bool `yaml:"enabled"`
	FailOnError bool `yaml:"fail_on_error"`
}
