package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCLIConfigFlagOverridesFile(t *testing.T) {
	t.Setenv("CREDIT_RPC_URL", "")
	t.Setenv("CREDIT_RPC_TOKEN", "")
	path := filepath.Join(t.TempDir(), "cli.toml")
	contents := "RPCURL = \"http://file-host:8661\"\nAuthToken = \"file-token\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, args, err := loadCLIConfig([]string{"--config", path, "--rpc", "http://flag-host:8661", "market"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://flag-host:8661" {
		t.Fatalf("expected flag override, got %q", cfg.RPCURL)
	}
	if cfg.AuthToken != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.AuthToken)
	}
	if len(args) != 1 || args[0] != "market" {
		t.Fatalf("unexpected remaining args %v", args)
	}
}

func TestLoadCLIConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("CREDIT_RPC_URL", "http://env-host:8661")
	t.Setenv("CREDIT_RPC_TOKEN", "env-token")
	path := filepath.Join(t.TempDir(), "cli.toml")
	contents := "RPCURL = \"http://file-host:8661\"\nAuthToken = \"file-token\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := loadCLIConfig([]string{"--config=" + path, "status", "cred1xyz"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://env-host:8661" {
		t.Fatalf("expected env override, got %q", cfg.RPCURL)
	}
	if cfg.AuthToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.AuthToken)
	}
}

func TestLoadCLIConfigDefaults(t *testing.T) {
	t.Setenv("CREDIT_RPC_URL", "")
	t.Setenv("CREDIT_RPC_TOKEN", "")
	cfg, args, err := loadCLIConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "market"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://127.0.0.1:8661" {
		t.Fatalf("expected default url, got %q", cfg.RPCURL)
	}
	if len(args) != 1 {
		t.Fatalf("unexpected args %v", args)
	}
}
