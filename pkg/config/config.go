// Package config holds the per-user driver settings. The settings stand in
// for the registry subtree the Windows side reads: same value names, same
// defaults, same caps.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the snapshot handed to the native side at session init.
type Config struct {
	NumInputs        int32  `yaml:"number_of_inputs"`
	NumOutputs       int32  `yaml:"number_of_outputs"`
	PreferredBufsize int32  `yaml:"preferred_buffersize"`
	FixedBufsize     bool   `yaml:"fixed_buffersize"`
	Autoconnect      bool   `yaml:"connect_to_hardware"`
	ClientName       string `yaml:"client_name"`
}

const (
	defaultChannels = 16
	defaultBufsize  = 1024
	defaultName     = "WineASIO"

	minBufsize = 16
	maxBufsize = 8192

	maxChannels   = 128
	maxNameLength = 63
)

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		NumInputs:        defaultChannels,
		NumOutputs:       defaultChannels,
		PreferredBufsize: defaultBufsize,
		FixedBufsize:     false,
		Autoconnect:      true,
		ClientName:       defaultName,
	}
}

// Normalize clamps out-of-range values in place and returns the receiver.
func (c *Config) Normalize() *Config {
	if c.NumInputs <= 0 {
		c.NumInputs = defaultChannels
	}
	if c.NumOutputs <= 0 {
		c.NumOutputs = defaultChannels
	}
	if c.NumInputs > maxChannels {
		c.NumInputs = maxChannels
	}
	if c.NumOutputs > maxChannels {
		c.NumOutputs = maxChannels
	}
	if c.PreferredBufsize <= 0 {
		c.PreferredBufsize = defaultBufsize
	}
	if c.PreferredBufsize < minBufsize {
		c.PreferredBufsize = minBufsize
	}
	if c.PreferredBufsize > maxBufsize {
		c.PreferredBufsize = maxBufsize
	}
	if c.ClientName == "" {
		c.ClientName = defaultName
	}
	if len(c.ClientName) > maxNameLength {
		c.ClientName = c.ClientName[:maxNameLength]
	}
	return c
}

// Path returns the settings file location: $WINEASIO_CONFIG if set,
// otherwise ~/.config/wineasio/wineasio.yaml.
func Path() string {
	if p := os.Getenv("WINEASIO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wineasio.yaml"
	}
	return filepath.Join(home, ".config", "wineasio", "wineasio.yaml")
}

// Load reads the settings file. A missing or unreadable file yields the
// defaults; a malformed file also yields the defaults so that a broken
// settings file never keeps the driver from loading.
func Load() Config {
	return LoadFile(Path())
}

// LoadFile reads settings from an explicit path.
func LoadFile(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		d := Default()
		return *d.Normalize()
	}
	cfg.Normalize()
	return cfg
}

// SaveFile writes the settings to path, creating parent directories.
func SaveFile(path string, cfg Config) error {
	cfg.Normalize()

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
