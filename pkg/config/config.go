package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Config captures module-level configuration knobs. Feature packages (persist,
// sync, migrate) pull from these nested structs.
type Config struct {
	Sync        SyncConfig        `mapstructure:"sync" json:"sync"`
	Crypto      CryptoConfig      `mapstructure:"crypto" json:"crypto"`
	Compression CompressionConfig `mapstructure:"compression" json:"compression"`
	Migration   MigrationConfig   `mapstructure:"migration" json:"migration"`
}

// SyncConfig controls the orchestrator cadence and conflict strategy.
type SyncConfig struct {
	Key            string        `mapstructure:"key" json:"key"`
	Interval       time.Duration `mapstructure:"interval" json:"interval"`
	Strategy       string        `mapstructure:"strategy" json:"strategy"`
	TimestampField string        `mapstructure:"timestamp_field" json:"timestamp_field"`
}

// CryptoConfig toggles the encryption layer. The secret itself is never
// configuration: callers supply it programmatically.
type CryptoConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	Algorithm  string `mapstructure:"algorithm" json:"algorithm"`
	Iterations int    `mapstructure:"iterations" json:"iterations"`
}

// CompressionConfig toggles the compression layer.
type CompressionConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	MinSize int  `mapstructure:"min_size" json:"min_size"`
}

// MigrationConfig controls gap handling in the migration engine.
type MigrationConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Strict  bool `mapstructure:"strict" json:"strict"`
}

var validStrategies = map[string]bool{
	"last-write-wins": true,
	"server-wins":     true,
	"client-wins":     true,
	"merge":           true,
	"custom":          true,
}

var validAlgorithms = map[string]bool{
	"AES-GCM":  true,
	"XSalsa20": true,
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Sync: SyncConfig{
			Key:            "state",
			Interval:       5 * time.Second,
			Strategy:       "last-write-wins",
			TimestampField: "_updatedAt",
		},
		Crypto: CryptoConfig{
			Algorithm:  "AES-GCM",
			Iterations: 10000,
		},
		Compression: CompressionConfig{
			MinSize: 1024,
		},
		Migration: MigrationConfig{},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Sync.Key == "" {
		return errors.New("sync.key is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be > 0")
	}
	if !validStrategies[c.Sync.Strategy] {
		return fmt.Errorf("sync.strategy %q is not supported", c.Sync.Strategy)
	}
	if !validAlgorithms[c.Crypto.Algorithm] {
		return fmt.Errorf("crypto.algorithm %q is not supported", c.Crypto.Algorithm)
	}
	if c.Crypto.Iterations <= 0 {
		return fmt.Errorf("crypto.iterations must be > 0")
	}
	if c.Compression.MinSize < 0 {
		return fmt.Errorf("compression.min_size must be >= 0")
	}
	return nil
}

// Load decodes arbitrary input (struct, map, *Config) using cfgx helpers.
// When cfgx.Build yields a zero config (input shape it does not recognize),
// a lightweight JSON-based decoder fills it instead.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Sync.Key == "" {
		c.Sync.Key = defaults.Sync.Key
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = defaults.Sync.Interval
	}
	if c.Sync.Strategy == "" {
		c.Sync.Strategy = defaults.Sync.Strategy
	}
	if c.Sync.TimestampField == "" {
		c.Sync.TimestampField = defaults.Sync.TimestampField
	}
	if c.Crypto.Algorithm == "" {
		c.Crypto.Algorithm = defaults.Crypto.Algorithm
	}
	if c.Crypto.Iterations == 0 {
		c.Crypto.Iterations = defaults.Crypto.Iterations
	}
	if c.Compression.MinSize == 0 {
		c.Compression.MinSize = defaults.Compression.MinSize
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, cfg)
}
