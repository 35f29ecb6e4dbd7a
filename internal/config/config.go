package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Hubs        []HubConfig   `yaml:"hubs"`
	Slots       SlotConfig    `yaml:"slots"`
	Timeouts    TimeoutConfig `yaml:"timeouts"`
	CatalogPath string        `yaml:"catalog_path"` // optional YAML action catalog
	LogLevel    string        `yaml:"log_level"`
}

// HubConfig identifies one hub. Address is a MAC on Linux and a
// CoreBluetooth UUID on macOS.
type HubConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// SlotConfig sets the registry's slot layout. The hub's slot storage is
// hardware-limited, so the bound lives here instead of in code.
type SlotConfig struct {
	Base    uint8 `yaml:"base"`    // first catalog slot
	Scratch uint8 `yaml:"scratch"` // slot reused for batched sequences
	Max     int   `yaml:"max"`     // slots available to the catalog
}

// TimeoutConfig holds per-operation deadlines in milliseconds.
type TimeoutConfig struct {
	HandshakeMS int `yaml:"handshake_ms"`
	FlowMS      int `yaml:"flow_ms"`
	ChunkMS     int `yaml:"chunk_ms"`
}

// Handshake returns the handshake deadline as a duration.
func (t TimeoutConfig) Handshake() time.Duration {
	return time.Duration(t.HandshakeMS) * time.Millisecond
}

// Flow returns the flow/clear-slot deadline as a duration.
func (t TimeoutConfig) Flow() time.Duration {
	return time.Duration(t.FlowMS) * time.Millisecond
}

// Chunk returns the per-chunk transfer deadline as a duration.
func (t TimeoutConfig) Chunk() time.Duration {
	return time.Duration(t.ChunkMS) * time.Millisecond
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hublink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Slots: SlotConfig{
			Base:    0,
			Scratch: 18,
			Max:     16,
		},
		Timeouts: TimeoutConfig{
			HandshakeMS: 5000,
			FlowMS:      3000,
			ChunkMS:     10000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in catalog_path is expanded to the home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.CatalogPath = expandTilde(cfg.CatalogPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if len(c.Hubs) == 0 {
		return fmt.Errorf("hubs must not be empty")
	}
	seen := make(map[string]bool, len(c.Hubs))
	for i, h := range c.Hubs {
		if h.Name == "" {
			return fmt.Errorf("hubs[%d].name must not be empty", i)
		}
		if h.Address == "" {
			return fmt.Errorf("hub %q has no address", h.Name)
		}
		if seen[h.Name] {
			return fmt.Errorf("duplicate hub name %q", h.Name)
		}
		seen[h.Name] = true
	}

	if c.Slots.Max <= 0 {
		return fmt.Errorf("slots.max must be > 0")
	}
	if int(c.Slots.Base)+c.Slots.Max > 256 {
		return fmt.Errorf("slots.base %d + slots.max %d exceeds the slot address space", c.Slots.Base, c.Slots.Max)
	}
	if int(c.Slots.Scratch) >= int(c.Slots.Base) && int(c.Slots.Scratch) < int(c.Slots.Base)+c.Slots.Max {
		return fmt.Errorf("slots.scratch %d collides with catalog slots %d-%d",
			c.Slots.Scratch, c.Slots.Base, int(c.Slots.Base)+c.Slots.Max-1)
	}

	if c.Timeouts.HandshakeMS <= 0 || c.Timeouts.FlowMS <= 0 || c.Timeouts.ChunkMS <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Hub returns the named hub's config.
func (c *Config) Hub(name string) (HubConfig, error) {
	for _, h := range c.Hubs {
		if h.Name == name {
			return h, nil
		}
	}
	return HubConfig{}, fmt.Errorf("hub %q not in config", name)
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
