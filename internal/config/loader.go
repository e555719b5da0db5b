// Package config provides configuration management for the allocation
// research toolkit.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix("RISKTOOL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional
// fields. A missing config file is not an error: defaults plus environment
// variables alone form a runnable configuration.
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("RISKTOOL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers the documented defaults for every optional knob.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "risktool")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("simulation.rebalance_freq_days", 21)
	v.SetDefault("simulation.tx_cost_rate", 0.001)
	v.SetDefault("simulation.eq_min", 0.0)
	v.SetDefault("simulation.eq_max", 1.0)

	v.SetDefault("mapping.method", "sigmoid")
	v.SetDefault("mapping.steepness", 5.0)

	v.SetDefault("optimization.in_sample_pct", 0.70)
	v.SetDefault("optimization.grid_step", 0.10)
	v.SetDefault("optimization.random_samples", 2000)
	v.SetDefault("optimization.num_thresholds", 3)
	v.SetDefault("optimization.folds", 5)
	v.SetDefault("optimization.reopt_freq_days", 252)
	v.SetDefault("optimization.objective.alpha", 1.0)
	v.SetDefault("optimization.objective.beta", 0.5)
	v.SetDefault("optimization.objective.gamma", 1.0)
	v.SetDefault("optimization.objective.lambda", 0.1)
	v.SetDefault("optimization.objective.kappa", 0.05)
	v.SetDefault("optimization.constraints.eq_max", 1.0)
	v.SetDefault("optimization.constraints.priority", "none")

	v.SetDefault("schedule.reoptimize_cron", "0 18 * * 5")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}

// ReloadFromEnv reloads the configuration from the path named by
// RISKTOOL_CONFIG_PATH, when set.
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv("RISKTOOL_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}
