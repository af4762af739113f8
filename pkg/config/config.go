package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillcache/quill/pkg/models"
)

// Cache configuration validation errors.
var (
	ErrUnknownBackend = errors.New("cache backend must be 'memory' or 'sqlite'")
	ErrMaxSizeTooLow  = errors.New("cache max_size must be at least 1")
	ErrTTLNotMemory   = errors.New("cache ttl is only supported by the memory backend")
	ErrPathRequired   = errors.New("cache path is required for the sqlite backend")
)

// Config holds all quill configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool               `yaml:"enabled"`
	Backend models.BackendType `yaml:"backend"`
	MaxSize int                `yaml:"max_size"`
	TTL     time.Duration      `yaml:"ttl"`
	Path    string             `yaml:"path"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled: true,
			Backend: models.BackendSQLite,
			MaxSize: 1000,
			Path:    ".quill_cache.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks the cache configuration for invalid combinations. A
// disabled cache is always valid regardless of the other fields.
func (c CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Backend {
	case models.BackendMemory, models.BackendSQLite:
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownBackend, c.Backend)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("%w: got %d", ErrMaxSizeTooLow, c.MaxSize)
	}
	if c.TTL != 0 && c.Backend != models.BackendMemory {
		return fmt.Errorf("%w: got %s", ErrTTLNotMemory, c.TTL)
	}
	if c.Backend == models.BackendSQLite && c.Path == "" {
		return ErrPathRequired
	}
	return nil
}
