// Package config handles configuration loading for the orchestrator core.
// It supports XDG config paths, project-level overrides, and environment
// variables, with viper-based layering (user config < project config <
// environment) carrying the recognized option set and named
// budget-allocation profiles instead of a fixed tier/timeout/quality-gate
// settings shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/context-foundry/core/internal/budget"
	"github.com/context-foundry/core/pkg/model"
)

// Config holds all configuration for the orchestrator CLI.
type Config struct {
	Anthropic      AnthropicConfig                `mapstructure:"anthropic"`
	Options        model.Options                  `mapstructure:",squash"`
	BudgetProfiles map[string]BudgetProfileConfig `mapstructure:"budget_profiles"`
}

// AnthropicConfig holds LLM provider credentials, direct API key or AWS
// Bedrock, mirroring internal/provider.AnthropicConfig's fields so Load's
// output can be passed straight through to provider.NewAnthropicBackend.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// BudgetProfileConfig is one named allocation table, keyed in YAML by
// BudgetPhase string values ("system", "scout", "builder", ...).
type BudgetProfileConfig struct {
	Pct map[string]float64 `mapstructure:"pct"`
}

// Profile resolves a named budget profile into a budget.Profile. An unknown
// name, or a profile with an empty pct table, resolves to
// budget.DefaultAllocationPct; any other configured profile, including one
// named "default", is used as configured.
func (c *Config) Profile(name string) budget.Profile {
	bpc, ok := c.BudgetProfiles[name]
	if !ok || len(bpc.Pct) == 0 {
		return budget.Profile{Name: "default", Pct: budget.DefaultAllocationPct}
	}
	pct := make(map[model.BudgetPhase]float64, len(bpc.Pct))
	for k, v := range bpc.Pct {
		pct[model.BudgetPhase(k)] = v
	}
	return budget.Profile{Name: name, Pct: pct}
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
//  1. Environment variables (ANTHROPIC_API_KEY, CONTEXT_FOUNDRY_*)
//  2. Project config (.context-foundry.yaml in the current directory or a parent)
//  3. User config (~/.config/context-foundry/config.yaml)
//  4. Built-in defaults (model.DefaultOptions)
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("context_foundry")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("incremental", string(cfg.Options.Incremental))
	v.Set("max_parallel_scouts", cfg.Options.MaxParallelScouts)
	v.Set("max_parallel_builders", cfg.Options.MaxParallelBuilders)
	v.Set("max_heal_attempts", cfg.Options.MaxHealAttempts)
	v.Set("context_window", cfg.Options.ContextWindow)
	v.Set("budget_profile", cfg.Options.BudgetProfile)
	v.Set("compaction_threshold_pct", cfg.Options.CompactionThresholdPct)
	v.Set("emergency_stop_pct", cfg.Options.EmergencyStopPct)
	v.Set("artifact_ttl", cfg.Options.ArtifactTTL.String())
	v.Set("provider_retries", cfg.Options.ProviderRetries)
	v.Set("validator_thresholds", cfg.Options.ValidatorThresholds)
	v.Set("deadline", cfg.Options.Deadline.String())
	profiles := make(map[string]interface{}, len(cfg.BudgetProfiles))
	for name, p := range cfg.BudgetProfiles {
		profiles[name] = map[string]interface{}{"pct": p.Pct}
	}
	v.Set("budget_profiles", profiles)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file, if any.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// Default returns a Config carrying model.DefaultOptions and no profiles
// beyond the implicit "default" one.
func Default() *Config {
	return &Config{Options: model.DefaultOptions()}
}

// setDefaults seeds viper with model.DefaultOptions so an absent config file
// or env var still produces the documented default option set.
func setDefaults(v *viper.Viper) {
	d := model.DefaultOptions()
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("incremental", string(d.Incremental))
	v.SetDefault("max_parallel_scouts", d.MaxParallelScouts)
	v.SetDefault("max_parallel_builders", d.MaxParallelBuilders)
	v.SetDefault("max_heal_attempts", d.MaxHealAttempts)
	v.SetDefault("context_window", d.ContextWindow)
	v.SetDefault("budget_profile", d.BudgetProfile)
	v.SetDefault("compaction_threshold_pct", d.CompactionThresholdPct)
	v.SetDefault("emergency_stop_pct", d.EmergencyStopPct)
	v.SetDefault("artifact_ttl", d.ArtifactTTL.String())
	v.SetDefault("provider_retries", d.ProviderRetries)
	v.SetDefault("validator_thresholds", d.ValidatorThresholds)
}

// getUserConfigDir returns the XDG config directory for context-foundry.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "context-foundry")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "context-foundry")
	}
	return filepath.Join(home, ".config", "context-foundry")
}

// findProjectConfig searches for .context-foundry.yaml in the current
// directory and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".context-foundry.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
