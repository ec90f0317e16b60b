package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel     string           `yaml:"log_level"`
	TickInterval time.Duration    `yaml:"tick_interval"`
	MaxLength    int              `yaml:"max_length"`
	Read         ReadConfig       `yaml:"read"`
	Scan         ScanConfig       `yaml:"scan"`
	Host         HostConfig       `yaml:"host"`
	Peripheral   PeripheralConfig `yaml:"peripheral"`
	Input        InputConfig      `yaml:"input"`
}

// ReadConfig selects how bound characteristics are read.
type ReadConfig struct {
	Mode       string        `yaml:"mode"` // "direct" or "buffered"
	Timeout    time.Duration `yaml:"timeout"`
	BufferSize int           `yaml:"buffer_size"`
}

// ScanConfig bounds host-mode scans. The defaults keep the result set
// small enough for a microcontroller's memory.
type ScanConfig struct {
	MaxResults  int           `yaml:"max_results"`
	BufferSize  int           `yaml:"buffer_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
	Window      time.Duration `yaml:"window"`
	MinRSSI     int           `yaml:"min_rssi"`
	RequireName bool          `yaml:"require_name"`
	Active      bool          `yaml:"active"`
	Extended    bool          `yaml:"extended"`
}

// HostConfig holds host-role settings.
type HostConfig struct {
	SettleDelay   time.Duration `yaml:"settle_delay"`
	ServiceFilter []string      `yaml:"service_filter"`
}

// PeripheralConfig describes the service advertised in peripheral mode.
type PeripheralConfig struct {
	LocalName          string   `yaml:"local_name"`
	ServiceUUID        string   `yaml:"service_uuid"`
	CharacteristicUUID string   `yaml:"characteristic_uuid"`
	Properties         []string `yaml:"properties"`
	FixedLength        bool     `yaml:"fixed_length"`
	Description        string   `yaml:"description"`
}

// InputConfig maps the board's switch and buttons to global hotkeys.
type InputConfig struct {
	ConnectKeys     []string `yaml:"connect_keys"`
	DisconnectKeys  []string `yaml:"disconnect_keys"`
	ModeKeys        []string `yaml:"mode_keys"`
	StartPeripheral bool     `yaml:"start_peripheral"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blerole")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		TickInterval: 2 * time.Millisecond,
		MaxLength:    20,
		Read: ReadConfig{
			Mode:       "direct",
			Timeout:    time.Second,
			BufferSize: 64,
		},
		Scan: ScanConfig{
			MaxResults:  10,
			BufferSize:  50,
			Timeout:     time.Second,
			Interval:    100 * time.Millisecond,
			Window:      100 * time.Millisecond,
			MinRSSI:     -80,
			RequireName: true,
			Active:      true,
		},
		Host: HostConfig{
			SettleDelay: 100 * time.Millisecond,
		},
		Peripheral: PeripheralConfig{
			LocalName:          "blerole",
			ServiceUUID:        "0x185A",
			CharacteristicUUID: "0x2BDE",
			Properties:         []string{"write_no_response", "read", "notify", "broadcast"},
			FixedLength:        true,
		},
		Input: InputConfig{
			ConnectKeys:    []string{"ctrl", "shift", "a"},
			DisconnectKeys: []string{"ctrl", "shift", "b"},
			ModeKeys:       []string{"ctrl", "shift", "s"},
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
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

var knownProperties = map[string]bool{
	"write_no_response": true,
	"write":             true,
	"read":              true,
	"notify":            true,
	"indicate":          true,
	"broadcast":         true,
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must be >= 0")
	}

	if c.MaxLength < 1 || c.MaxLength > 512 {
		return fmt.Errorf("max_length must be between 1 and 512, got %d", c.MaxLength)
	}

	switch c.Read.Mode {
	case "direct", "buffered":
	default:
		return fmt.Errorf("read.mode must be \"direct\" or \"buffered\", got %q", c.Read.Mode)
	}
	if c.Read.Mode == "buffered" {
		if c.Read.Timeout <= 0 {
			return fmt.Errorf("read.timeout must be > 0 in buffered mode")
		}
		if c.Read.BufferSize <= 0 {
			return fmt.Errorf("read.buffer_size must be > 0 in buffered mode")
		}
	}

	if c.Scan.MaxResults <= 0 {
		return fmt.Errorf("scan.max_results must be > 0")
	}
	if c.Scan.BufferSize <= 0 {
		return fmt.Errorf("scan.buffer_size must be > 0")
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0; an unbounded scan can exhaust memory")
	}
	if c.Scan.Window > c.Scan.Interval {
		return fmt.Errorf("scan.window (%s) must be <= scan.interval (%s)", c.Scan.Window, c.Scan.Interval)
	}

	if c.Host.SettleDelay < 0 {
		return fmt.Errorf("host.settle_delay must be >= 0")
	}

	if c.Peripheral.ServiceUUID == "" {
		return fmt.Errorf("peripheral.service_uuid must not be empty")
	}
	if c.Peripheral.CharacteristicUUID == "" {
		return fmt.Errorf("peripheral.characteristic_uuid must not be empty")
	}
	for _, p := range c.Peripheral.Properties {
		if !knownProperties[p] {
			return fmt.Errorf("peripheral.properties: unknown property %q", p)
		}
	}

	if len(c.Input.ConnectKeys) == 0 || len(c.Input.DisconnectKeys) == 0 || len(c.Input.ModeKeys) == 0 {
		return errors.New("input.connect_keys, input.disconnect_keys and input.mode_keys must not be empty")
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog.Level. Unknown values
// default to info.
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

const defaultHeader = "# blerole configuration\n# Durations use Go syntax (e.g. 100ms, 1s).\n\n"

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" without touching anything if a file already
// exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
