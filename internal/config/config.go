// Package config holds the built-in configuration: peripheral profiles,
// scan parameters, operator key chords and the log level.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/ble-notify/internal/ble"
)

//go:embed defaults.yaml
var builtin []byte

// Config holds all application configuration.
type Config struct {
	LogLevel    string                 `yaml:"log_level"`
	Operator    OperatorConfig         `yaml:"operator"`
	Scan        ble.ScanParameters     `yaml:"scan"`
	ConnectScan ble.ScanParameters     `yaml:"connect_scan"`
	Profiles    map[string]ble.Profile `yaml:"profiles"`
}

// OperatorConfig holds the key chords mapped to operator intents.
type OperatorConfig struct {
	ToggleKeys []string `yaml:"toggle_keys"`
	QuitKeys   []string `yaml:"quit_keys"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	if err := decode(builtin, cfg); err != nil {
		panic(fmt.Sprintf("config: built-in defaults: %v", err))
	}
	return cfg
}

// Parse overlays data onto the built-in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// decode parses YAML into cfg. Fields absent from data keep their values.
func decode(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Validate checks the config for invalid values and canonicalises profile
// UUIDs.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if len(c.Operator.ToggleKeys) == 0 {
		return fmt.Errorf("operator.toggle_keys must not be empty")
	}
	if len(c.Operator.QuitKeys) == 0 {
		return fmt.Errorf("operator.quit_keys must not be empty")
	}

	if err := validateScan("scan", c.Scan); err != nil {
		return err
	}
	if err := validateScan("connect_scan", c.ConnectScan); err != nil {
		return err
	}

	if len(c.Profiles) == 0 {
		return fmt.Errorf("profiles must not be empty")
	}
	for name, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profiles.%s: %w", name, err)
		}
		c.Profiles[name] = p
	}
	return nil
}

func validateScan(key string, p ble.ScanParameters) error {
	if p.Interval <= 0 || p.Window <= 0 {
		return fmt.Errorf("%s.interval and %s.window must be > 0", key, key)
	}
	if p.Window > p.Interval {
		return fmt.Errorf("%s.window (%s) must not exceed %s.interval (%s)", key, p.Window, key, p.Interval)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%s.timeout must be >= 0", key)
	}
	return nil
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (ble.Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		names := make([]string, 0, len(c.Profiles))
		for n := range c.Profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return ble.Profile{}, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// SessionOptions returns the scan settings for a ble.Session.
func (c *Config) SessionOptions() ble.SessionOptions {
	return ble.SessionOptions{Scan: c.Scan, ConnectScan: c.ConnectScan}
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
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
