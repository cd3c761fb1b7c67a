package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/context-foundry/core/internal/config"
	"github.com/context-foundry/core/pkg/model"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify foundry configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/context-foundry/config.yaml
Project-specific overrides can be placed in .context-foundry.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("incremental: %s\n", cfg.Options.Incremental)
	fmt.Printf("max_parallel_scouts: %d\n", cfg.Options.MaxParallelScouts)
	fmt.Printf("max_parallel_builders: %d\n", cfg.Options.MaxParallelBuilders)
	fmt.Printf("max_heal_attempts: %d\n", cfg.Options.MaxHealAttempts)
	fmt.Printf("context_window: %d\n", cfg.Options.ContextWindow)
	fmt.Printf("budget_profile: %s\n", cfg.Options.BudgetProfile)
	fmt.Printf("compaction_threshold_pct: %g\n", cfg.Options.CompactionThresholdPct)
	fmt.Printf("emergency_stop_pct: %g\n", cfg.Options.EmergencyStopPct)
	fmt.Printf("artifact_ttl: %s\n", cfg.Options.ArtifactTTL)
	fmt.Printf("provider_retries: %d\n", cfg.Options.ProviderRetries)
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "incremental":
		return string(cfg.Options.Incremental), nil
	case "max_parallel_scouts":
		return strconv.Itoa(cfg.Options.MaxParallelScouts), nil
	case "max_parallel_builders":
		return strconv.Itoa(cfg.Options.MaxParallelBuilders), nil
	case "max_heal_attempts":
		return strconv.Itoa(cfg.Options.MaxHealAttempts), nil
	case "context_window":
		return strconv.FormatInt(cfg.Options.ContextWindow, 10), nil
	case "budget_profile":
		return cfg.Options.BudgetProfile, nil
	case "artifact_ttl":
		return cfg.Options.ArtifactTTL.String(), nil
	case "provider_retries":
		return strconv.Itoa(cfg.Options.ProviderRetries), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for anthropic.use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "incremental":
		cfg.Options.Incremental = model.IncrementalMode(value)
	case "max_parallel_scouts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_parallel_scouts: %w", err)
		}
		cfg.Options.MaxParallelScouts = n
	case "max_parallel_builders":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_parallel_builders: %w", err)
		}
		cfg.Options.MaxParallelBuilders = n
	case "max_heal_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_heal_attempts: %w", err)
		}
		cfg.Options.MaxHealAttempts = n
	case "context_window":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for context_window: %w", err)
		}
		cfg.Options.ContextWindow = n
	case "budget_profile":
		cfg.Options.BudgetProfile = value
	case "artifact_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for artifact_ttl: %w", err)
		}
		cfg.Options.ArtifactTTL = d
	case "provider_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for provider_retries: %w", err)
		}
		cfg.Options.ProviderRetries = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
