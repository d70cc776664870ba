// Package config loads the YAML file that drives the rtspcam-dump
// command: which camera to dial, how hard to retry a dropped
// connection, and how verbosely to log.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RekadzeAV/rtspcam/client"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CameraConfig names the stream to connect to and the credentials to
// offer if the server challenges for them.
type CameraConfig struct {
	URL     string        `yaml:"url"`
	User    string        `yaml:"user"`
	Pass    string        `yaml:"pass"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReconnectConfig mirrors client.ReconnectPolicy field for field, with
// snake_case YAML keys.
type ReconnectConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ToPolicy converts the YAML-friendly ReconnectConfig into the
// client.ReconnectPolicy the session accepts.
func (r ReconnectConfig) ToPolicy() client.ReconnectPolicy {
	return client.ReconnectPolicy{
		Enabled:           r.Enabled,
		MaxRetries:        r.MaxRetries,
		InitialDelay:      r.InitialDelay,
		MaxDelay:          r.MaxDelay,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}

// LoggingConfig selects the minimum level the logger emits.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.Timeout <= 0 {
		c.Camera.Timeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.InitialDelay <= 0 {
			c.Reconnect.InitialDelay = 100 * time.Millisecond
		}
		if c.Reconnect.MaxDelay <= 0 {
			c.Reconnect.MaxDelay = 30 * time.Second
		}
		if c.Reconnect.BackoffMultiplier <= 0 {
			c.Reconnect.BackoffMultiplier = 2
		}
	}
}

func (c *Config) validate() error {
	if c.Camera.URL == "" {
		return fmt.Errorf("camera.url is required")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	ok := false
	for _, l := range validLevels {
		if strings.EqualFold(c.Logging.Level, l) {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid logging.level %q (must be one of %v)", c.Logging.Level, validLevels)
	}

	if c.Reconnect.MaxRetries < -1 {
		return fmt.Errorf("invalid reconnect.max_retries %d (use -1 for unbounded)", c.Reconnect.MaxRetries)
	}

	return nil
}

// SlogLevel converts the configured level name to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
