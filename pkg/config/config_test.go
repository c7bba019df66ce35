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
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative temporal window", func(c *Config) { c.Correlation.TemporalWindow = -time.Minute }},
		{"zero spatial radius", func(c *Config) { c.Correlation.SpatialRadiusKM = 0 }},
		{"min strength above 1", func(c *Config) { c.Correlation.MinStrength = 1.5 }},
		{"zero workers", func(c *Config) { c.Correlation.WorkerCount = 0 }},
		{"zero support threshold", func(c *Config) { c.Patterns.SupportThreshold = 0 }},
		{"negative anomaly sigma", func(c *Config) { c.Patterns.AnomalySigma = -1 }},
		{"confidence floor above 1", func(c *Config) { c.Patterns.ConfidenceFloor = 2 }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"sqlite without path", func(c *Config) {
			c.Storage.Backend = "sqlite"
			c.Storage.SQLitePath = ""
		}},
		{"neo4j without uri", func(c *Config) { c.Storage.Backend = "neo4j" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestLoaderFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "causeway.yaml")
	yaml := `
correlation:
  temporal_window: 90m
  spatial_radius_km: 3.5
patterns:
  support_threshold: 6
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("CAUSEWAY_MIN_STRENGTH", "0.25")

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, cfg.Correlation.TemporalWindow)
	assert.Equal(t, 3.5, cfg.Correlation.SpatialRadiusKM)
	assert.Equal(t, 6, cfg.Patterns.SupportThreshold)
	assert.Equal(t, 0.25, cfg.Correlation.MinStrength)

	// Untouched fields keep defaults
	assert.Equal(t, DefaultConfig().Correlation.MaxLateness, cfg.Correlation.MaxLateness)
}

func TestLoaderMissingFileAllowed(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile("/nonexistent/causeway.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Correlation.TemporalWindow, cfg.Correlation.TemporalWindow)
}

func TestLoaderMissingFileRequired(t *testing.T) {
	_, err := NewLoader().WithConfigFile("/nonexistent/causeway.yaml").RequireConfigFile().Load()
	assert.Error(t, err)
}

func TestLoaderInvalidConfigFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correlation:\n  min_strength: 7\n"), 0o644))

	_, err := NewLoader().WithConfigFile(path).Load()
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, "correlation.min_strength", ce.Field)
}
