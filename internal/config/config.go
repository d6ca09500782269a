// Package config loads pdbdump settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the home directory.
const DefaultFile = ".pdbdump.yaml"

// Environment variables that override file values.
const (
	EnvLogLevel = "PDBDUMP_LOG_LEVEL"
	EnvFormat   = "PDBDUMP_FORMAT"
	EnvWorkers  = "PDBDUMP_WORKERS"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// Config is the pdbdump configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Output OutputConfig `yaml:"output"`
	Decode DecodeConfig `yaml:"decode"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// OutputConfig configures how results are written.
type OutputConfig struct {
	Format string `yaml:"format"`
	Pretty bool   `yaml:"pretty"`
}

// DecodeConfig configures record decoding.
type DecodeConfig struct {
	// Workers is the number of goroutines used to prefetch records. 0 or 1
	// decodes lazily on the calling goroutine.
	Workers int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "warn", Pretty: true},
		Output: OutputConfig{Format: FormatJSON, Pretty: true},
		Decode: DecodeConfig{Workers: 0},
	}
}

// DefaultPath returns ~/.pdbdump.yaml, or "" if there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFile)
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is the default location.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvFormat); ok && v != "" {
		c.Output.Format = strings.ToLower(v)
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		c.Decode.Workers = n
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatJSON, FormatYAML, FormatCBOR:
	default:
		return fmt.Errorf("unsupported output format %q (want json, yaml or cbor)", c.Output.Format)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("decode.workers must not be negative, got %d", c.Decode.Workers)
	}
	return nil
}
