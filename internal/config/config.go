// Package config loads the process-wide typed configuration once at
// startup (addressing the "global credentials" re-architecture note:
// no component reads the environment or a config file at request
// time).
package config

import (
	"fmt"
	"os"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration for both agents plus the
// shared HTTP surface.
type Config struct {
	Trading types.TradingConfig `yaml:"trading"`
	Farming types.FarmingConfig `yaml:"farming"`
	Server  types.ServerConfig  `yaml:"server"`

	StateDir          string `yaml:"stateDir"`
	CredentialsPath   string `yaml:"credentialsPath"`
	DryRun            bool   `yaml:"dryRun"`
}

// Default returns the canonical configuration (see
// pkg/types.DefaultTradingConfig / DefaultFarmingConfig).
func Default() Config {
	return Config{
		Trading:         types.DefaultTradingConfig(),
		Farming:         types.DefaultFarmingConfig(),
		Server:          types.DefaultServerConfig(),
		StateDir:        "./state",
		CredentialsPath: "",
	}
}

// Load builds a Config by layering, in order: built-in defaults, an
// optional YAML file (chain list / asset universe overrides, the
// ChoSanghyuk-blackholedex "To*Config" idiom of a flat struct loaded
// straight from YAML), then environment variables via viper (the
// teacher's own configuration library) for the handful of scalar
// operational knobs an operator commonly overrides at deploy time.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ATLAS")
	v.AutomaticEnv()
	if v.IsSet("STATE_DIR") {
		cfg.StateDir = v.GetString("STATE_DIR")
	}
	if v.IsSet("DRY_RUN") {
		cfg.DryRun = v.GetBool("DRY_RUN")
	}
	if v.IsSet("CREDENTIALS_PATH") {
		cfg.CredentialsPath = v.GetString("CREDENTIALS_PATH")
	}

	return cfg, nil
}
