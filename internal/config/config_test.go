package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "is_test: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.AuthSkewSec != 60 {
		t.Fatalf("auth_expires_skew_sec = %d, want 60", cfg.API.AuthSkewSec)
	}
	if cfg.Transport.SendBufferLimit != 1000 {
		t.Fatalf("send_buffer_limit = %d, want 1000", cfg.Transport.SendBufferLimit)
	}
	if !cfg.Symbols.MappingEnabled {
		t.Fatal("symbols.mapping_enabled should default true")
	}
	if cfg.WSURL() != testnetWSURL {
		t.Fatalf("WSURL() = %q, want testnet", cfg.WSURL())
	}
	if cfg.RestBaseURL() != testnetRestURL {
		t.Fatalf("RestBaseURL() = %q, want testnet", cfg.RestBaseURL())
	}
}

func TestLoadSelectsMainnetByDefault(t *testing.T) {
	path := writeTempConfig(t, "api:\n  api_key: k\n  api_secret: s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSURL() != mainnetWSURL {
		t.Fatalf("WSURL() = %q, want mainnet", cfg.WSURL())
	}
	if cfg.RestBaseURL() != mainnetRestURL {
		t.Fatalf("RestBaseURL() = %q, want mainnet", cfg.RestBaseURL())
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	path := writeTempConfig(t, "api:\n  api_key: file-key\n  api_secret: file-secret\n")

	t.Setenv("BITMEX_API_KEY", "env-key")
	t.Setenv("BITMEX_API_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ApiKey != "env-key" || cfg.API.ApiSecret != "env-secret" {
		t.Fatalf("env override not applied: %+v", cfg.API)
	}
}

func TestValidateRejectsMismatchedCredentials(t *testing.T) {
	path := writeTempConfig(t, "api:\n  api_key: only-key\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for api_key without api_secret")
	}
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	path := writeTempConfig(t, "is_test: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
