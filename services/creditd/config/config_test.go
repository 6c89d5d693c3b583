package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validAddresses = `
vault: "cred1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqp9fynd4"
authority: "cred1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzt639r2"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validAddresses)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8661" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.MarketID != "credit/default" {
		t.Fatalf("unexpected market id %q", cfg.MarketID)
	}
	if cfg.RateModel.Kink != 0.85 {
		t.Fatalf("unexpected kink %v", cfg.RateModel.Kink)
	}
}

func TestLoadRejectsMissingVault(t *testing.T) {
	path := writeConfig(t, `
authority: "cred1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzt639r2"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "vault") {
		t.Fatalf("expected vault error, got %v", err)
	}
}

func TestLoadRejectsFeeWithoutRecipient(t *testing.T) {
	path := writeConfig(t, validAddresses+`
fee_rate_bps: 500
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "fee_recipient") {
		t.Fatalf("expected fee_recipient error, got %v", err)
	}
}

func TestLoadRejectsInvalidKink(t *testing.T) {
	path := writeConfig(t, validAddresses+`
rate_model:
  base_rate: 0.02
  slope1: 0.1
  slope2: 0.75
  kink: 1.5
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "kink") {
		t.Fatalf("expected kink error, got %v", err)
	}
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	path := writeConfig(t, `
vault: "not-bech32"
authority: "cred1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzt639r2"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "vault") {
		t.Fatalf("expected vault decode error, got %v", err)
	}
}
