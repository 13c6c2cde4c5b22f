// Package config loads and validates the YAML configuration for a HAP
// accessory server binary: accessory identity, setup code, storage
// paths, and which transports to bring up.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hapcore/hap/internal/setupinfo"
)

// Config holds all application configuration.
type Config struct {
	Accessory AccessoryConfig `yaml:"accessory"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	LogLevel  string          `yaml:"log_level"`
}

// AccessoryConfig identifies the accessory and its out-of-band pairing
// material.
type AccessoryConfig struct {
	Name            string `yaml:"name"`
	Category        uint8  `yaml:"category"`
	SetupCode       string `yaml:"setup_code,omitempty"` // "XXX-XX-XXX"; generated at first run if empty
	SetupID         string `yaml:"setup_id,omitempty"`   // 4 chars; generated at first run if empty
	FirmwareVersion string `yaml:"firmware_version"`
	MaxPairings     int    `yaml:"max_pairings"`
}

// StorageConfig locates the persistent key-value store backing the
// accessory's configuration and pairing domains.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// TransportConfig selects which transports the server brings up.
type TransportConfig struct {
	BLE TransportEnable `yaml:"ble"`
	IP  TransportEnable `yaml:"ip"`
}

// TransportEnable toggles one transport.
type TransportEnable struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hapd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the default data directory for the persistent
// key-value store.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "hapd")
}

// Default returns a Config with sensible default values. The setup code
// and setup ID are left empty: cmd/hapd generates and persists both on
// first run rather than baking a fixed pairing secret into every
// installation's default config.
func Default() *Config {
	return &Config{
		Accessory: AccessoryConfig{
			Name:            "HAP Accessory",
			Category:        1, // "Other", per the Apple-assigned accessory category table
			FirmwareVersion: "1.0.0",
			MaxPairings:     16,
		},
		Storage: StorageConfig{
			Path: filepath.Join(DefaultDataDir(), "store"),
		},
		Transport: TransportConfig{
			BLE: TransportEnable{Enabled: true},
			IP:  TransportEnable{Enabled: false},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in Storage.Path is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Storage.Path = expandTilde(cfg.Storage.Path)
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Accessory.Name == "" {
		return fmt.Errorf("accessory.name must not be empty")
	}
	if c.Accessory.FirmwareVersion == "" {
		return fmt.Errorf("accessory.firmware_version must not be empty")
	}
	if c.Accessory.MaxPairings <= 0 {
		return fmt.Errorf("accessory.max_pairings must be > 0")
	}
	if c.Accessory.SetupCode != "" && !setupinfo.ValidateSetupCode(c.Accessory.SetupCode) {
		return fmt.Errorf("accessory.setup_code %q is not a valid XXX-XX-XXX setup code", c.Accessory.SetupCode)
	}
	if c.Accessory.SetupID != "" && !setupinfo.ValidateSetupID(c.Accessory.SetupID) {
		return fmt.Errorf("accessory.setup_id %q must be 4 alphanumeric characters", c.Accessory.SetupID)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if !c.Transport.BLE.Enabled && !c.Transport.IP.Enabled {
		return fmt.Errorf("at least one of transport.ble.enabled or transport.ip.enabled must be true")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// WriteDefault creates the default config file with documented defaults.
// It creates the parent directory if needed. Returns the path written to.
// If the file already exists, it returns ("", nil) without overwriting.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil // already exists
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}

	header := "# hapd configuration\n# setup_code and setup_id are generated and persisted on first run if left blank\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return path, nil
}

// ParseLogLevel converts a log level string to a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default: // "info"
		return slog.LevelInfo
	}
}
