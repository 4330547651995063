// Package config loads the orchestrator's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds the tunables of the orchestration core.
type Config struct {
	// DatabasePath is the location of the session database. Defaults to a
	// file under the OS user config directory.
	DatabasePath string `yaml:"database_path"`

	// MaxConcurrent bounds how many agents execute at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxSteps caps model turns per execution.
	MaxSteps int `yaml:"max_steps"`

	// LockTTL and CommonLockTTL govern path lock expiry.
	LockTTL       time.Duration `yaml:"lock_ttl"`
	CommonLockTTL time.Duration `yaml:"common_lock_ttl"`

	// CommonPaths are basename patterns that get the short lock TTL.
	CommonPaths []string `yaml:"common_paths"`

	// IgnorePatterns are skipped during file search.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// StepTimeout is reserved. The core has no per-step wall clock; the
	// model stream's own timeout governs liveness.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxConcurrent: 3,
		MaxSteps:      50,
		LockTTL:       30 * time.Second,
		CommonLockTTL: 5 * time.Second,
		LogLevel:      "warn",
	}
}

// Load reads a YAML config file and overlays it on the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.LockTTL < 0 || c.CommonLockTTL < 0 {
		return fmt.Errorf("lock TTLs must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// DatabaseFile returns the configured database path, falling back to the
// default location under the OS user config directory.
func (c *Config) DatabaseFile() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	return DefaultDatabasePath()
}

// DefaultDatabasePath is the standard database location.
func DefaultDatabasePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "loom", "loom.db"), nil
}

// DefaultConfigPath is the standard config file location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "loom", "config.yaml"), nil
}
