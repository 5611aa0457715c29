package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "arc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

const minimalValidConfig = `
version: 1
providers:
  default: anthropic
  anthropic:
    api_key: sk-test-key
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalValidConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host default = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("Server.HTTPPort default = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts default = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Cache.TTL == 0 {
		t.Error("Cache.TTL should have a nonzero default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level default = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadEnvOverrideWinsOverFileValue(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
  anthropic:
    api_key: sk-from-file
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env override to win over file value", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	path := writeConfig(t, `
providers:
  default: anthropic
  anthropic:
    api_key: sk-test
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing version, got nil")
	}
	var verr *VersionError
	if !isVersionError(err, &verr) {
		t.Errorf("expected *VersionError, got %T: %v", err, err)
	}
}

func isVersionError(err error, target **VersionError) bool {
	ve, ok := err.(*VersionError)
	if ok {
		*target = ve
	}
	return ok
}

func TestLoadRejectsMissingAPIKeyForDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing api_key, got nil")
	}
	if _, ok := err.(*ConfigValidationError); !ok {
		t.Errorf("expected *ConfigValidationError, got %T: %v", err, err)
	}
}

func TestLoadRejectsUnknownDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: nonsense
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unknown provider, got nil")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
  anthropic:
    api_key: sk-test
typo_field: true
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected decode error for unknown field, got nil")
	}
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("TEST_ARC_API_KEY", "sk-expanded")
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
  anthropic:
    api_key: ${TEST_ARC_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-expanded" {
		t.Errorf("APIKey = %q, want expanded env var", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadApprovalRequiresJWTSecretWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
version: 1
providers:
  default: anthropic
  anthropic:
    api_key: sk-test
approval:
  enabled: true
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing jwt_secret, got nil")
	}
}
