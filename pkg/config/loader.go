package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from defaults, an optional YAML file,
// and environment variable overrides, in that priority order.
type Loader struct {
	configFile   string
	envPrefix    string
	allowMissing bool
}

// NewLoader creates a loader with the standard environment prefix
func NewLoader() *Loader {
	return &Loader{
		envPrefix:    "CAUSEWAY_",
		allowMissing: true,
	}
}

// WithConfigFile sets a specific configuration file to load
func (l *Loader) WithConfigFile(file string) *Loader {
	l.configFile = file
	return l
}

// WithEnvPrefix overrides the environment variable prefix
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// RequireConfigFile makes the configuration file mandatory
func (l *Loader) RequireConfigFile() *Loader {
	l.allowMissing = false
	return l
}

// Load resolves and validates the configuration
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configFile != "" {
		data, err := os.ReadFile(l.configFile)
		if err != nil {
			if !os.IsNotExist(err) || !l.allowMissing {
				return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, NewConfigError("file", fmt.Sprintf("failed to parse %s: %v", l.configFile, err),
				"check YAML syntax")
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the supported environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(l.envPrefix + "TEMPORAL_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.TemporalWindow = d
		}
	}
	if v := os.Getenv(l.envPrefix + "SPATIAL_RADIUS_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Correlation.SpatialRadiusKM = f
		}
	}
	if v := os.Getenv(l.envPrefix + "MIN_STRENGTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Correlation.MinStrength = f
		}
	}
	if v := os.Getenv(l.envPrefix + "MAX_LATENESS"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.MaxLateness = d
		}
	}
	if v := os.Getenv(l.envPrefix + "NATS_URL"); v != "" {
		cfg.Ingest.URL = v
	}
	if v := os.Getenv(l.envPrefix + "STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv(l.envPrefix + "SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv(l.envPrefix + "NEO4J_URI"); v != "" {
		cfg.Storage.Neo4jURI = v
	}
	if v := os.Getenv(l.envPrefix + "NEO4J_PASSWORD"); v != "" {
		cfg.Storage.Neo4jPassword = v
	}
}
