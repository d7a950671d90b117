// Package config loads and validates the service configuration.
//
// Configuration is read from a YAML or JSON file; the format is detected
// from the file extension. Missing values receive documented defaults so
// an empty file yields a runnable single-node configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format identifies a supported configuration encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const delim = "."

var (
	ErrEmptyPath         = errors.New("config: empty path")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: load failed")
	ErrParseFailed       = errors.New("config: parse failed")
	ErrInvalid           = errors.New("config: invalid value")
)

// Config is the root configuration of the service.
type Config struct {
	Listen    string          `json:"listen" yaml:"listen" koanf:"listen"`
	Redis     RedisConfig     `json:"redis" yaml:"redis" koanf:"redis"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" koanf:"rate_limit"`
	Breakers  BreakersConfig  `json:"breakers" yaml:"breakers" koanf:"breakers"`
	Recovery  RecoveryConfig  `json:"recovery" yaml:"recovery" koanf:"recovery"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" koanf:"logging"`
}

// RedisConfig locates the shared counter store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" koanf:"addr"`
	Password string `json:"password" yaml:"password" koanf:"password"`
	DB       int    `json:"db" yaml:"db" koanf:"db"`
}

// RateLimitConfig configures the admission gate.
type RateLimitConfig struct {
	// Categories overrides per-category limit expressions such as
	// "10 per minute". Unset categories keep built-in defaults.
	Categories map[string]string `json:"categories" yaml:"categories" koanf:"categories"`
	// DefaultLimit applies to endpoints with no category match.
	DefaultLimit string `json:"default_limit" yaml:"default_limit" koanf:"default_limit"`
	// Smooth lists categories admitted via GCRA instead of fixed windows.
	Smooth []string `json:"smooth" yaml:"smooth" koanf:"smooth"`
	// LowTrafficThreshold is the hourly request volume below which the
	// adaptive boost applies.
	LowTrafficThreshold int64 `json:"low_traffic_threshold" yaml:"low_traffic_threshold" koanf:"low_traffic_threshold"`
	// AdaptiveBoost scales limits during low traffic.
	AdaptiveBoost float64 `json:"adaptive_boost" yaml:"adaptive_boost" koanf:"adaptive_boost"`
	// KeyPrefix namespaces quota keys in the shared store.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`
}

// BreakersConfig configures the circuit breaker registry.
type BreakersConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a breaker.
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold" koanf:"failure_threshold"`
	// RecoveryTimeout is how long an open breaker waits before a trial call.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" koanf:"recovery_timeout"`
	// Overrides tunes individual breakers by dependency name.
	Overrides map[string]BreakerOverride `json:"overrides" yaml:"overrides" koanf:"overrides"`
	// PublishState enables publishing transitions to the shared store.
	PublishState bool `json:"publish_state" yaml:"publish_state" koanf:"publish_state"`
}

// BreakerOverride tunes a single named breaker.
type BreakerOverride struct {
	FailureThreshold uint32        `json:"failure_threshold" yaml:"failure_threshold" koanf:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" koanf:"recovery_timeout"`
}

// RecoveryConfig configures the error recovery coordinator.
type RecoveryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" koanf:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay" koanf:"base_delay"`
	// HistoryLimit caps the in-process error history.
	HistoryLimit int `json:"history_limit" yaml:"history_limit" koanf:"history_limit"`
	// Retention is the maximum age of retained error records.
	Retention time.Duration `json:"retention" yaml:"retention" koanf:"retention"`
	// AlertThresholds overrides per-type alert rates in errors per minute.
	AlertThresholds map[string]float64 `json:"alert_thresholds" yaml:"alert_thresholds" koanf:"alert_thresholds"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"`
	File   string `json:"file" yaml:"file" koanf:"file"`
}

// Load reads configuration from a file, detecting the format from its
// extension.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses configuration from raw bytes in the given format.
// Empty data yields the default configuration.
func LoadBytes(data []byte, format Format) (*Config, error) {
	k := koanf.New(delim)
	if len(data) > 0 {
		var parser koanf.Parser
		switch format {
		case FormatYAML:
			parser = kyaml.Parser()
		case FormatJSON:
			parser = kjson.Parser()
		default:
			return nil, ErrUnsupportedFormat
		}
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	cfg := new(Config)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in single-node configuration.
func Default() *Config {
	cfg := new(Config)
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.RateLimit.DefaultLimit == "" {
		c.RateLimit.DefaultLimit = "100 per hour"
	}
	if c.RateLimit.LowTrafficThreshold == 0 {
		c.RateLimit.LowTrafficThreshold = 1000
	}
	if c.RateLimit.AdaptiveBoost == 0 {
		c.RateLimit.AdaptiveBoost = 1.5
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "lugn"
	}
	if c.Breakers.FailureThreshold == 0 {
		c.Breakers.FailureThreshold = 5
	}
	if c.Breakers.RecoveryTimeout == 0 {
		c.Breakers.RecoveryTimeout = 60 * time.Second
	}
	if c.Recovery.MaxRetries == 0 {
		c.Recovery.MaxRetries = 3
	}
	if c.Recovery.BaseDelay == 0 {
		c.Recovery.BaseDelay = 100 * time.Millisecond
	}
	if c.Recovery.HistoryLimit == 0 {
		c.Recovery.HistoryLimit = 1000
	}
	if c.Recovery.Retention == 0 {
		c.Recovery.Retention = 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects values that would produce a misbehaving service.
func (c *Config) Validate() error {
	if c.RateLimit.AdaptiveBoost < 1.0 {
		return fmt.Errorf("%w: adaptive_boost %v below 1.0", ErrInvalid, c.RateLimit.AdaptiveBoost)
	}
	if c.RateLimit.LowTrafficThreshold < 0 {
		return fmt.Errorf("%w: low_traffic_threshold %d negative", ErrInvalid, c.RateLimit.LowTrafficThreshold)
	}
	if c.Recovery.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries %d negative", ErrInvalid, c.Recovery.MaxRetries)
	}
	if c.Recovery.BaseDelay < 0 {
		return fmt.Errorf("%w: base_delay %v negative", ErrInvalid, c.Recovery.BaseDelay)
	}
	if c.Recovery.HistoryLimit < 0 {
		return fmt.Errorf("%w: history_limit %d negative", ErrInvalid, c.Recovery.HistoryLimit)
	}
	if c.Breakers.RecoveryTimeout < 0 {
		return fmt.Errorf("%w: recovery_timeout %v negative", ErrInvalid, c.Breakers.RecoveryTimeout)
	}
	for name, thr := range c.Recovery.AlertThresholds {
		if thr < 0 {
			return fmt.Errorf("%w: alert threshold for %s negative", ErrInvalid, name)
		}
	}
	return nil
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
