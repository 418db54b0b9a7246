// Package config holds the YAML configuration for the marleyaccel tools.
//
// The acceleration profile itself stays in its key=value file; this config
// only says where that file lives and how the tools around it behave.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
	"github.com/arthurfeeney/Marley-Accel/internal/logging"
)

const (
	// DefaultPath is where the tools look for a config when -config is not given.
	DefaultPath = "~/.config/marley-accel/config.yaml"

	// maxSamples caps the preview grid so a typo in step cannot exhaust memory.
	maxSamples = 100000
)

// Key sets accepted by profile.key_set.
const (
	KeySetCanonical = "canonical"
	KeySetLegacy    = "legacy"
)

// Config is the top-level YAML configuration.
type Config struct {
	Profile ProfileConfig `yaml:"profile"`
	Preview PreviewConfig `yaml:"preview"`
	Input   InputConfig   `yaml:"input"`
	Logging LoggingConfig `yaml:"logging"`
}

type ProfileConfig struct {
	Path string `yaml:"path"`
	// KeySet picks which keys are written on save: "canonical" (all) or
	// "legacy" (the six quake accel keys).
	KeySet string `yaml:"key_set"`
}

// PreviewConfig controls the curve grid and the live preview server.
type PreviewConfig struct {
	Listen         string  `yaml:"listen"`
	MinVelocity    float64 `yaml:"min_velocity"`
	MaxVelocity    float64 `yaml:"max_velocity"`
	Step           float64 `yaml:"step"`
	PollIntervalMS int     `yaml:"poll_interval_ms"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Profile: ProfileConfig{
			Path:   "~/.config/marley-accel/accel.cfg",
			KeySet: KeySetCanonical,
		},
		Preview: PreviewConfig{
			Listen:         "127.0.0.1:8099",
			MinVelocity:    0,
			MaxVelocity:    25,
			Step:           0.1,
			PollIntervalMS: 500,
		},
		Input: InputConfig{
			Devices: []string{"/dev/input/event0"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected via KnownFields(true) to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		// An empty file (or one holding only comments) keeps the defaults.
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var trailing yaml.Node
	if err := dec.Decode(&trailing); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Load returns the defaults when path is empty or, for the default path
// only, when the file does not exist. An explicitly named file must exist.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := LoadConfigFile(path)
	if err != nil && path == DefaultPath && errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// FlagOverrides carries command line values to apply on top of a loaded
// config. Each override is applied only when its pointer is non-nil, even if
// it points at a zero value.
type FlagOverrides struct {
	ProfilePath *string
	KeySet      *string

	Listen         *string
	MinVelocity    *float64
	MaxVelocity    *float64
	Step           *float64
	PollIntervalMS *int

	Device *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ProfilePath != nil {
		cfg.Profile.Path = *o.ProfilePath
	}
	if o.KeySet != nil {
		cfg.Profile.KeySet = *o.KeySet
	}

	if o.Listen != nil {
		cfg.Preview.Listen = *o.Listen
	}
	if o.MinVelocity != nil {
		cfg.Preview.MinVelocity = *o.MinVelocity
	}
	if o.MaxVelocity != nil {
		cfg.Preview.MaxVelocity = *o.MaxVelocity
	}
	if o.Step != nil {
		cfg.Preview.Step = *o.Step
	}
	if o.PollIntervalMS != nil {
		cfg.Preview.PollIntervalMS = *o.PollIntervalMS
	}

	if o.Device != nil {
		cfg.Input.Devices = []string{*o.Device}
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// It is meant to run after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Profile
	if c.Profile.Path == "" {
		return errors.New("profile.path must not be empty")
	}
	if c.Profile.KeySet != KeySetCanonical && c.Profile.KeySet != KeySetLegacy {
		return fmt.Errorf("profile.key_set must be %q or %q", KeySetCanonical, KeySetLegacy)
	}

	// Preview
	p := c.Preview
	if p.Listen == "" {
		return errors.New("preview.listen must not be empty")
	}
	for name, v := range map[string]float64{
		"preview.min_velocity": p.MinVelocity,
		"preview.max_velocity": p.MaxVelocity,
		"preview.step":         p.Step,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if p.MinVelocity >= p.MaxVelocity {
		return errors.New("preview.min_velocity must be < preview.max_velocity")
	}
	if p.Step <= 0 {
		return errors.New("preview.step must be > 0")
	}
	if n := (p.MaxVelocity - p.MinVelocity) / p.Step; n > maxSamples {
		return fmt.Errorf("preview range yields %.0f samples (max %d); raise preview.step", math.Ceil(n), maxSamples)
	}
	if p.PollIntervalMS <= 0 {
		return errors.New("preview.poll_interval_ms must be > 0")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ProfilePath is profile.path with a leading "~" expanded.
func (c *Config) ProfilePath() string {
	return ExpandPath(c.Profile.Path)
}

// KeyOrder is the key order used when writing the profile.
func (c *Config) KeyOrder() []accel.Key {
	if c.Profile.KeySet == KeySetLegacy {
		return accel.LegacyKeys()
	}
	return accel.CanonicalKeys()
}

// Velocities is the preview sample grid.
func (c *Config) Velocities() []float64 {
	return accel.VelocityRange(c.Preview.MinVelocity, c.Preview.MaxVelocity, c.Preview.Step)
}

// PollInterval is how often the preview checks the profile file for changes.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Preview.PollIntervalMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
