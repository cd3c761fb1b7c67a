package main

import (
	"testing"

	"github.com/context-foundry/core/internal/config"
	"github.com/context-foundry/core/pkg/model"
)

func TestGetConfigValue(t *testing.T) {
	cfg := config.Default()
	cfg.Options.MaxParallelScouts = 4
	cfg.Options.BudgetProfile = "aggressive"

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"api key unset", "anthropic.api_key", "(not set)"},
		{"max parallel scouts", "max_parallel_scouts", "4"},
		{"budget profile", "budget_profile", "aggressive"},
		{"key is case insensitive", "Budget_Profile", "aggressive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue(%q) returned error: %v", tt.key, err)
			}
			if result != tt.expected {
				t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, result, tt.expected)
			}
		})
	}
}

func TestGetConfigValueUnknownKey(t *testing.T) {
	cfg := config.Default()
	if _, err := getConfigValue(cfg, "not.a.real.key"); err == nil {
		t.Error("getConfigValue with an unknown key returned nil error, want an error")
	}
}

func TestSetConfigValue(t *testing.T) {
	t.Run("max_parallel_builders", func(t *testing.T) {
		cfg := config.Default()
		if err := setConfigValue(cfg, "max_parallel_builders", "7"); err != nil {
			t.Fatalf("setConfigValue returned error: %v", err)
		}
		if cfg.Options.MaxParallelBuilders != 7 {
			t.Errorf("MaxParallelBuilders = %d, want 7", cfg.Options.MaxParallelBuilders)
		}
	})

	t.Run("incremental", func(t *testing.T) {
		cfg := config.Default()
		if err := setConfigValue(cfg, "incremental", "strict"); err != nil {
			t.Fatalf("setConfigValue returned error: %v", err)
		}
		if cfg.Options.Incremental != model.IncrementalMode("strict") {
			t.Errorf("Incremental = %q, want %q", cfg.Options.Incremental, "strict")
		}
	})

	t.Run("invalid int rejected", func(t *testing.T) {
		cfg := config.Default()
		if err := setConfigValue(cfg, "max_parallel_builders", "not-a-number"); err == nil {
			t.Error("setConfigValue with a non-numeric value returned nil error, want an error")
		}
	})

	t.Run("invalid duration rejected", func(t *testing.T) {
		cfg := config.Default()
		if err := setConfigValue(cfg, "artifact_ttl", "not-a-duration"); err == nil {
			t.Error("setConfigValue with a malformed duration returned nil error, want an error")
		}
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		cfg := config.Default()
		if err := setConfigValue(cfg, "not.a.real.key", "x"); err == nil {
			t.Error("setConfigValue with an unknown key returned nil error, want an error")
		}
	})
}
