// Package config loads the six recognized configuration keys of spec.md §6
// from a YAML file with environment-variable overrides, grounded on the
// teacher's godotenv+yaml.v3 LoadFromEnv(path) idiom. Unknown keys in either
// the YAML file or the environment are ignored rather than rejected.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds exactly the recognized configuration surface.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	RateLimiter RateLimiterConfig `yaml:"ratelimiter"`
	Provider    ProviderConfig    `yaml:"provider"`
	Workers     WorkersConfig     `yaml:"workers"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
}

// StoreConfig carries the Postgres connection string (`store.dsn`).
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// RateLimiterConfig selects the rate limiter backend (`ratelimiter.backend`
// — "redis" or "memory").
type RateLimiterConfig struct {
	Backend string `yaml:"backend"`
}

// ProviderConfig carries the SMS provider credentials and sender identity
// (`provider.credentials`, `provider.senderId`).
type ProviderConfig struct {
	Credentials string `yaml:"credentials"`
	SenderID    string `yaml:"senderId"`
}

// WorkersConfig sizes the worker pool (`workers.count`).
type WorkersConfig struct {
	Count int `yaml:"count"`
}

// ShutdownConfig bounds graceful shutdown (`shutdown.graceSeconds`).
type ShutdownConfig struct {
	GraceSeconds int `yaml:"graceSeconds"`
}

// Load reads and parses the configuration file, applying defaults for any
// zero-valued field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.RateLimiter.Backend == "" {
		cfg.RateLimiter.Backend = "memory"
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Shutdown.GraceSeconds == 0 {
		cfg.Shutdown.GraceSeconds = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads a .env file (if present, no error if missing) then
// applies STORE_DSN / RATELIMITER_BACKEND / PROVIDER_CREDENTIALS /
// PROVIDER_SENDER_ID / WORKERS_COUNT / SHUTDOWN_GRACE_SECONDS overrides on
// top of the YAML file at path, mirroring the teacher's
// file-then-environment precedence.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("RATELIMITER_BACKEND"); v != "" {
		cfg.RateLimiter.Backend = v
	}
	if v := os.Getenv("PROVIDER_CREDENTIALS"); v != "" {
		cfg.Provider.Credentials = v
	}
	if v := os.Getenv("PROVIDER_SENDER_ID"); v != "" {
		cfg.Provider.SenderID = v
	}
	if v := os.Getenv("WORKERS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}
	if v := os.Getenv("SHUTDOWN_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Shutdown.GraceSeconds = n
		}
	}

	if cfg.Store.DSN == "" {
		return nil, fmt.Errorf("config: store.dsn is required")
	}

	return cfg, nil
}
