// Package config loads the walletbridge YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/gatt"
)

var ErrInvalid = errors.New("config: invalid value")

// Config holds all application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	HTTP        HTTPConfig        `yaml:"http"`
	BLE         BLEConfig         `yaml:"ble"`
	SecurityKey SecurityKeyConfig `yaml:"security_key"`
	Emulator    EmulatorConfig    `yaml:"emulator"`
}

type BridgeConfig struct {
	// Name of the page global.
	Name               string `yaml:"name"`
	VisualizeInjection bool   `yaml:"visualize_injection"`
	// Endpoint the injected script calls when the global is missing.
	// Empty derives it from http.listen.
	Endpoint string `yaml:"endpoint,omitempty"`
}

type HTTPConfig struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
}

type BLEConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // "MDoc" or "MDocReader"
}

type SecurityKeyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type EmulatorConfig struct {
	Enabled bool `yaml:"enabled"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "walletbridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bridge: BridgeConfig{
			Name: bridge.DefaultName,
		},
		HTTP: HTTPConfig{
			Listen:  "127.0.0.1:8790",
			Metrics: true,
		},
		BLE: BLEConfig{
			Enabled: true,
			Mode:    gatt.ModeReader.String(),
		},
		SecurityKey: SecurityKeyConfig{
			PollInterval: 500 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes c to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	if !identifier.MatchString(c.Bridge.Name) {
		return fmt.Errorf("%w: bridge.name must be a JavaScript identifier, got %q", ErrInvalid, c.Bridge.Name)
	}

	if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
		return fmt.Errorf("%w: http.listen: %w", ErrInvalid, err)
	}

	if c.Bridge.Endpoint != "" &&
		!strings.HasPrefix(c.Bridge.Endpoint, "http://") && !strings.HasPrefix(c.Bridge.Endpoint, "https://") {
		return fmt.Errorf("%w: bridge.endpoint must be an http(s) URL, got %q", ErrInvalid, c.Bridge.Endpoint)
	}

	if _, ok := gatt.ParseMode(c.BLE.Mode); !ok {
		return fmt.Errorf("%w: ble.mode must be \"MDoc\" or \"MDocReader\", got %q", ErrInvalid, c.BLE.Mode)
	}

	if c.SecurityKey.PollInterval <= 0 {
		return fmt.Errorf("%w: security_key.poll_interval must be > 0", ErrInvalid)
	}

	return nil
}

// Level maps log_level to a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log_level must be debug, info, warn, or error, got %q", ErrInvalid, c.LogLevel)
	}
}

// Mode is the parsed ble.mode; Validate must have passed.
func (c *Config) Mode() gatt.Mode {
	mode, _ := gatt.ParseMode(c.BLE.Mode)
	return mode
}

// ScriptEndpoint is the base URL the injected script falls back to.
func (c *Config) ScriptEndpoint() string {
	if c.Bridge.Endpoint != "" {
		return c.Bridge.Endpoint
	}
	return "http://" + c.HTTP.Listen
}
