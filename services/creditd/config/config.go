package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"creditnet/crypto"
)

// Config captures the runtime settings for the credit service daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DataDir       string          `yaml:"data_dir"`
	MarketID      string          `yaml:"market_id"`
	Vault         string          `yaml:"vault"`
	Authority     string          `yaml:"authority"`
	FeeRecipient  string          `yaml:"fee_recipient"`
	FeeRateBps    uint64          `yaml:"fee_rate_bps"`
	RateModel     RateModelConfig `yaml:"rate_model"`
}

// RateModelConfig parameterises the kinked base rate curve. All rates are
// annual fractions, utilisation thresholds are in [0, 1].
type RateModelConfig struct {
	BaseRate float64 `yaml:"base_rate"`
	Slope1   float64 `yaml:"slope1"`
	Slope2   float64 `yaml:"slope2"`
	Kink     float64 `yaml:"kink"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8661",
		DataDir:       "./creditd-data",
		MarketID:      "credit/default",
		RateModel: RateModelConfig{
			BaseRate: 0.02,
			Slope1:   0.1,
			Slope2:   0.75,
			Kink:     0.85,
		},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8661"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./creditd-data"
	}
	cfg.MarketID = strings.TrimSpace(cfg.MarketID)
	if cfg.MarketID == "" {
		cfg.MarketID = "credit/default"
	}
	cfg.Vault = strings.TrimSpace(cfg.Vault)
	cfg.Authority = strings.TrimSpace(cfg.Authority)
	cfg.FeeRecipient = strings.TrimSpace(cfg.FeeRecipient)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Vault == "" {
		return fmt.Errorf("vault address required")
	}
	if _, err := crypto.DecodeAddress(cfg.Vault); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if cfg.Authority == "" {
		return fmt.Errorf("authority address required")
	}
	if _, err := crypto.DecodeAddress(cfg.Authority); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if cfg.FeeRecipient != "" {
		if _, err := crypto.DecodeAddress(cfg.FeeRecipient); err != nil {
			return fmt.Errorf("fee_recipient: %w", err)
		}
	}
	if cfg.FeeRateBps > 10_000 {
		return fmt.Errorf("fee_rate_bps must not exceed 10000")
	}
	if cfg.FeeRateBps > 0 && cfg.FeeRecipient == "" {
		return fmt.Errorf("fee_rate_bps requires fee_recipient")
	}
	if err := cfg.RateModel.validate(); err != nil {
		return fmt.Errorf("rate_model: %w", err)
	}
	return nil
}

func (cfg RateModelConfig) validate() error {
	if cfg.BaseRate < 0 || cfg.Slope1 < 0 || cfg.Slope2 < 0 {
		return fmt.Errorf("rates must not be negative")
	}
	if cfg.Kink <= 0 || cfg.Kink >= 1 {
		return fmt.Errorf("kink must be inside (0, 1)")
	}
	return nil
}

// VaultAddress returns the decoded vault address. Call after Load.
func (cfg Config) VaultAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(cfg.Vault)
}

// AuthorityAddress returns the decoded authority address. Call after Load.
func (cfg Config) AuthorityAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(cfg.Authority)
}

// FeeRecipientAddress returns the decoded fee recipient and whether one is
// configured.
func (cfg Config) FeeRecipientAddress() (crypto.Address, bool, error) {
	if cfg.FeeRecipient == "" {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.DecodeAddress(cfg.FeeRecipient)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}
