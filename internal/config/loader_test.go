package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Embedding.Dim)
	assert.Equal(t, 1024, cfg.Embedding.MaxDim)
	assert.Equal(t, 600, cfg.WorkingMemory.TTLSeconds)
	assert.Equal(t, 100, cfg.WorkingMemory.MaxItems)
	assert.Equal(t, 0.3, cfg.Consolidation.ScoreThreshold)
	assert.Equal(t, 0.1, cfg.Forgetting.Threshold)
	assert.Equal(t, 1000, cfg.Forgetting.BatchSize)
	assert.Equal(t, 3, cfg.Synthesizer.MinClusterSize)
	assert.Equal(t, 0.75, cfg.Synthesizer.SimilarityThreshold)
	assert.Equal(t, 24, cfg.ActivityTracker.InactivityThresholdHours)
	assert.Equal(t, "memory", cfg.Database.Store.Backend)
	assert.Equal(t, "log", cfg.Telemetry.Backend)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "working_memory:\n  max_items: 42\ndatabase:\n  store:\n    backend: postgres\n    dsn: postgres://x\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.WorkingMemory.MaxItems)
	assert.Equal(t, "postgres", cfg.Database.Store.Backend)
	assert.Equal(t, "postgres://x", cfg.Database.Store.DSN)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}
