// Package config loads the agent configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full agent configuration.
type Config struct {
	// DataDir is where the local SQLite database lives.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the localhost address the UI-facing HTTP/WebSocket
	// surface binds to.
	ListenAddr string `yaml:"listen_addr"`

	Remote RemoteConfig `yaml:"remote"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
}

// RemoteConfig describes the remote row backend.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SyncConfig controls background synchronization behavior.
type SyncConfig struct {
	// Auto enables opportunistic sync after local writes and on
	// reconnect. Manual "sync now" works regardless.
	Auto bool `yaml:"auto"`

	// IntervalMinutes is the periodic reconcile cadence while online.
	IntervalMinutes int `yaml:"interval_minutes"`

	// ProbeIntervalSeconds is the connectivity poll cadence.
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		ListenAddr: "localhost:8091",
		Remote: RemoteConfig{
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			Auto:                 true,
			IntervalMinutes:      15,
			ProbeIntervalSeconds: 20,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// Load reads a YAML configuration file, applying defaults for absent
// fields and validating the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
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

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: remote.timeout_seconds must be positive")
	}
	if c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("config: sync.interval_minutes must be positive")
	}
	if c.Sync.ProbeIntervalSeconds <= 0 {
		return fmt.Errorf("config: sync.probe_interval_seconds must be positive")
	}
	switch c.Log.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// RemoteTimeout returns the remote request timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// SyncInterval returns the periodic sync cadence as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// ProbeInterval returns the connectivity poll cadence as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Sync.ProbeIntervalSeconds) * time.Second
}
