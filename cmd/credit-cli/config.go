package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// cliConfig carries the connection settings for the command line client. The
// config file is optional; flags and environment variables override it.
type cliConfig struct {
	RPCURL    string `toml:"RPCURL"`
	AuthToken string `toml:"AuthToken"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".credit-cli.toml")
}

// loadCLIConfig resolves the client configuration and strips the global flags
// from the argument list. Precedence: flags, then environment, then the TOML
// file, then defaults.
func loadCLIConfig(args []string) (cliConfig, []string, error) {
	cfg := cliConfig{RPCURL: "http://127.0.0.1:8661"}

	configPath := defaultConfigPath()
	var rpcOverride string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			if i+1 >= len(args) {
				return cfg, nil, fmt.Errorf("--config requires a path")
			}
			i++
			configPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return cfg, nil, fmt.Errorf("--rpc requires a url")
			}
			i++
			rpcOverride = args[i]
		case strings.HasPrefix(args[i], "--rpc="):
			rpcOverride = strings.TrimPrefix(args[i], "--rpc=")
		default:
			remaining = append(remaining, args[i])
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("decode config %s: %w", configPath, err)
			}
		}
	}

	if env := strings.TrimSpace(os.Getenv("CREDIT_RPC_URL")); env != "" {
		cfg.RPCURL = env
	}
	if env := strings.TrimSpace(os.Getenv("CREDIT_RPC_TOKEN")); env != "" {
		cfg.AuthToken = env
	}
	if rpcOverride != "" {
		cfg.RPCURL = rpcOverride
	}
	if strings.TrimSpace(cfg.RPCURL) == "" {
		cfg.RPCURL = "http://127.0.0.1:8661"
	}
	return cfg, remaining, nil
}
