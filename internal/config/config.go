// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package config loads jsbridge settings from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aplane-algo/scriptbridge/internal/logging"
)

// EnvPath names the environment variable that points at a config file.
const EnvPath = "SCRIPTBRIDGE_CONFIG"

// DefaultPath is used when neither a flag nor EnvPath names a file.
const DefaultPath = "scriptbridge.yaml"

// DefaultStateFile is the installed-bundle record name inside the bundle dir.
const DefaultStateFile = "installed.cbor"

// ErrUnsupportedFormat indicates a config file extension with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Duration is a time.Duration written as a string such as "120s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// BundleConfig locates bundles for provisioning and watching.
type BundleConfig struct {
	Dir             string   `yaml:"dir" toml:"dir"`
	Fallback        string   `yaml:"fallback" toml:"fallback"`
	StateFile       string   `yaml:"state_file" toml:"state_file"`
	VerifyChecksums bool     `yaml:"verify_checksums" toml:"verify_checksums"`
	Debounce        Duration `yaml:"debounce" toml:"debounce"`
}

// Config holds jsbridge settings.
type Config struct {
	Timeout            Duration       `yaml:"timeout" toml:"timeout"`
	InterruptOnTimeout bool           `yaml:"interrupt_on_timeout" toml:"interrupt_on_timeout"`
	QueueSize          int            `yaml:"queue_size" toml:"queue_size"`
	BridgeGlobal       string         `yaml:"bridge_global" toml:"bridge_global"`
	Bundle             BundleConfig   `yaml:"bundle" toml:"bundle"`
	Log                logging.Config `yaml:"log" toml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Timeout:      Duration{120 * time.Second},
		QueueSize:    64,
		BridgeGlobal: "bridge",
		Bundle: BundleConfig{
			Debounce: Duration{500 * time.Millisecond},
		},
		Log: logging.Config{Level: "info", Format: "console"},
	}
}

// ResolvePath picks the config file.
// Resolution order: --config flag > SCRIPTBRIDGE_CONFIG env var > ./scriptbridge.yaml
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads the config at path. An empty path or a missing file yields
// the defaults. File values overlay the defaults and are then validated.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := cfg.normalize(filepath.Dir(path)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize fills derived defaults, resolves relative paths against baseDir
// and validates the result.
func (c *Config) normalize(baseDir string) error {
	defaults := Default()
	if c.Timeout.Duration == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.BridgeGlobal == "" {
		c.BridgeGlobal = defaults.BridgeGlobal
	}
	if c.Bundle.Debounce.Duration == 0 {
		c.Bundle.Debounce = defaults.Bundle.Debounce
	}

	c.Bundle.Dir = resolve(c.Bundle.Dir, baseDir)
	c.Bundle.Fallback = resolve(c.Bundle.Fallback, baseDir)
	c.Bundle.StateFile = resolve(c.Bundle.StateFile, baseDir)
	if c.Bundle.StateFile == "" && c.Bundle.Dir != "" {
		c.Bundle.StateFile = filepath.Join(c.Bundle.Dir, DefaultStateFile)
	}

	return c.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.Bundle.Debounce.Duration < 0 {
		return fmt.Errorf("bundle.debounce must be positive, got %s", c.Bundle.Debounce)
	}
	if c.Bundle.VerifyChecksums && c.Bundle.Dir == "" {
		return fmt.Errorf("bundle.verify_checksums requires bundle.dir")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// HasBundles reports whether any bundle source is configured.
func (c Config) HasBundles() bool {
	return c.Bundle.Dir != "" || c.Bundle.Fallback != ""
}

// resolve expands ~ and makes p absolute relative to baseDir.
func resolve(p, baseDir string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
