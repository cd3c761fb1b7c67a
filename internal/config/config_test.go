package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/pkg/model"
)

func TestDefaultMatchesModelDefaultOptions(t *testing.T) {
	cfg := Default()
	require.Equal(t, model.DefaultOptions(), cfg.Options)
}

func TestLoadFromPathAppliesOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
max_parallel_scouts: 8
max_heal_attempts: 1
context_window: 50000
budget_profile: lean
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	require.Equal(t, "test-key", cfg.Anthropic.APIKey)
	require.Equal(t, 8, cfg.Options.MaxParallelScouts)
	require.Equal(t, 1, cfg.Options.MaxHealAttempts)
	require.Equal(t, int64(50000), cfg.Options.ContextWindow)
	require.Equal(t, "lean", cfg.Options.BudgetProfile)
	// Unset fields keep model.DefaultOptions' values.
	require.Equal(t, model.DefaultOptions().MaxParallelBuilders, cfg.Options.MaxParallelBuilders)
}

func TestLoadFromPathResolvesBudgetProfile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
budget_profiles:
  lean:
    pct:
      system: 10
      builder: 40
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	profile := cfg.Profile("lean")
	require.Equal(t, "lean", profile.Name)
	require.Equal(t, 40.0, profile.Pct[model.BudgetBuilder])

	fallback := cfg.Profile("does-not-exist")
	require.Equal(t, "default", fallback.Name)
}

func TestGetUserConfigDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	require.Equal(t, "/custom/config/context-foundry", dir)
}

func TestSaveThenLoadFromPathRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-round-trip"
	cfg.Options.MaxParallelBuilders = 9
	cfg.Options.ArtifactTTL = 2 * time.Hour

	require.NoError(t, Save(cfg))

	loaded, err := LoadFromPath(GetUserConfigPath())
	require.NoError(t, err)
	require.Equal(t, "sk-ant-round-trip", loaded.Anthropic.APIKey)
	require.Equal(t, 9, loaded.Options.MaxParallelBuilders)
	require.Equal(t, 2*time.Hour, loaded.Options.ArtifactTTL)
}
