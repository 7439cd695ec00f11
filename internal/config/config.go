// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then GATEHOUSE_* environment variables. Later layers
// win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "GATEHOUSE_"

// Config is the full server configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Entitlement EntitlementConfig `koanf:"entitlement"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Store       StoreConfig       `koanf:"store"`
	Logging     LoggingConfig     `koanf:"logging"`
	CORS        CORSConfig        `koanf:"cors"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig controls credential verification.
type SecurityConfig struct {
	// SessionSecret signs session tokens; at least 32 characters.
	SessionSecret string `koanf:"session_secret"`

	// SessionTimeout bounds session token lifetime.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// ServiceKeyBcryptCost tunes key-hash verification cost.
	ServiceKeyBcryptCost int `koanf:"service_key_bcrypt_cost"`
}

// RateLimitConfig sets the default fixed-window policy and the pre-auth
// edge throttle.
type RateLimitConfig struct {
	DefaultMax    int64         `koanf:"default_max"`
	DefaultWindow time.Duration `koanf:"default_window"`
	EdgeIPLimit   int           `koanf:"edge_ip_limit"`
	EdgeIPWindow  time.Duration `koanf:"edge_ip_window"`
}

// EntitlementConfig tunes the plan cache.
type EntitlementConfig struct {
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`
}

// IdempotencyConfig tunes replay record retention.
type IdempotencyConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// StoreConfig selects the pipeline-state backend.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// Path is the badger data directory; empty runs badger in memory.
	Path string `koanf:"path"`
}

// LoggingConfig mirrors the logging package's init options.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CORSConfig controls the browser-facing CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
	MaxAge         int      `koanf:"max_age"`
}

// Default returns the built-in defaults, suitable for development against
// the memory backend.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			SessionTimeout:       24 * time.Hour,
			ServiceKeyBcryptCost: 12,
		},
		RateLimit: RateLimitConfig{
			DefaultMax:    60,
			DefaultWindow: time.Minute,
			EdgeIPLimit:   300,
			EdgeIPWindow:  time.Minute,
		},
		Entitlement: EntitlementConfig{
			CacheTTL:  60 * time.Second,
			CacheSize: 10000,
		},
		Idempotency: IdempotencyConfig{
			TTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         300,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment. path == "" skips the file layer; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// GATEHOUSE_SERVER_PORT=9090 → server.port. Section and key names with
	// underscores of their own (session_secret) keep the first segment as
	// the section.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}
	switch c.Store.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("store.backend %q is not one of memory, badger", c.Store.Backend)
	}
	if c.Entitlement.CacheSize < 1 {
		return fmt.Errorf("entitlement.cache_size must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
