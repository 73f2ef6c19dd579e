package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	v, err := NewValidator()
	require.NoError(t, err)
	require.NoError(t, v.ValidateConfig(cfg))

	assert.Equal(t, 0.95, cfg.Experiments.ConfidenceLevel)
	assert.Equal(t, 0.80, cfg.Experiments.Power)
	assert.Equal(t, 5.0, cfg.Experiments.MinImprovementPercent)
	assert.Equal(t, 0.9, cfg.Experiments.MaxDurationFraction)
	assert.True(t, cfg.Experiments.AutoConclude)
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "confidence level above 1",
			mutate: func(c *Config) { c.Experiments.ConfidenceLevel = 1.5 },
		},
		{
			name:   "zero power",
			mutate: func(c *Config) { c.Experiments.Power = 0 },
		},
		{
			name:   "ceiling below floor",
			mutate: func(c *Config) { c.Experiments.SampleSizeCeiling = 1; c.Experiments.SampleSizeFloor = 100 },
		},
		{
			name:   "unknown storage driver",
			mutate: func(c *Config) { c.Storage.Driver = "postgres" },
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "TRACE" },
		},
		{
			name:   "zero scheduler concurrency",
			mutate: func(c *Config) { c.Scheduler.MaxConcurrent = 0 },
		},
	}

	v, err := NewValidator()
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, v.ValidateConfig(cfg))
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.ValidateConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abtest.yaml")
	content := `
experiments:
  confidence_level: 0.99
  power: 0.9
storage:
  driver: sqlite
  path: /tmp/exp.db
scheduler:
  analyze_every_n: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.99, cfg.Experiments.ConfidenceLevel)
	assert.Equal(t, 0.9, cfg.Experiments.Power)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 500, cfg.Scheduler.AnalyzeEveryN)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5.0, cfg.Experiments.MinImprovementPercent)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrent)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("experiments:\n  confidence_level: 2.0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
