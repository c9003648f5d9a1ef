// Package config merges built-in defaults, an optional YAML file and command line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/version"
)

// Keys, as spelled in the YAML file.
const (
	KeyPolicy          = "policy"
	KeyPreventClipping = "prevent_clipping"
	KeyClipCeiling     = "clip_ceiling"
	KeyTruePeak        = "true_peak"
	KeyTargetDB        = "target_db"
	KeyWriteMode       = "write_mode"
	KeyPreserveTimes   = "preserve_times"
	KeyResync          = "resync"
	KeyWorkers         = "workers"
	KeyLogLevel        = "log_level"
	KeyStoreTags       = "store_tags"

	fileName  = "config.yaml"
	delimiter = "."
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the effective configuration.
type Config struct {
	Policy          string  `koanf:"policy"`
	PreventClipping bool    `koanf:"prevent_clipping"`
	ClipCeiling     float64 `koanf:"clip_ceiling"`
	TruePeak        bool    `koanf:"true_peak"`
	TargetDB        float64 `koanf:"target_db"`
	WriteMode       string  `koanf:"write_mode"`
	PreserveTimes   bool    `koanf:"preserve_times"`
	Resync          bool    `koanf:"resync"`
	Workers         int     `koanf:"workers"`
	LogLevel        string  `koanf:"log_level"`
	StoreTags       bool    `koanf:"store_tags"`
}

// Defaults are used for any key no other layer sets.
func Defaults() map[string]any {
	return map[string]any{
		KeyPolicy:          gain.PolicyClamp.String(),
		KeyPreventClipping: false,
		KeyClipCeiling:     gain.DefaultCeiling,
		KeyTruePeak:        false,
		KeyTargetDB:        89.0,
		KeyWriteMode:       atomicfile.Rename.String(),
		KeyPreserveTimes:   false,
		KeyResync:          false,
		KeyWorkers:         runtime.NumCPU(),
		KeyLogLevel:        "warn",
		KeyStoreTags:       false,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/tropism/config.yaml, or the platform equivalent.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}

	return filepath.Join(dir, version.Name(), fileName)
}

// Load layers defaults, then the file at path (the default location when empty, skipped when absent there),
// then overrides.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(delimiter)

	if err := k.Load(confmap.Provider(Defaults(), delimiter), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		_, statErr := os.Stat(path)

		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
			}

			slog.Debug("config.Load", "file path", path)
		case explicit:
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, statErr)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, delimiter), nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values no layer can be trusted with.
func (c *Config) Validate() error {
	if _, err := gain.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := atomicfile.ParseMode(c.WriteMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.ClipCeiling <= 0 || c.ClipCeiling > 1 {
		return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidConfig, KeyClipCeiling, c.ClipCeiling)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, KeyWorkers, c.Workers)
	}

	return nil
}

// ParseLevel reads debug, info, warn or error.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return level, fmt.Errorf("%w: %s %q", ErrInvalidConfig, KeyLogLevel, value)
	}

	return level, nil
}

// Level is the configured log level. Validate has already vetted it.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)

	return level
}

// GainPolicy is the configured range policy.
func (c *Config) GainPolicy() gain.Policy {
	policy, _ := gain.ParsePolicy(c.Policy)

	return policy
}

// Mode is the configured write mode.
func (c *Config) Mode() atomicfile.Mode {
	mode, _ := atomicfile.ParseMode(c.WriteMode)

	return mode
}
