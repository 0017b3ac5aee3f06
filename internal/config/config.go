// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then STAYGUARD_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Storage   StorageConfig   `koanf:"storage"`
	Auth      AuthConfig      `koanf:"auth"`
	Authz     AuthzConfig     `koanf:"authz"`
	MFA       MFAConfig       `koanf:"mfa"`
	Lockout   LockoutConfig   `koanf:"lockout"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// Environment gates strict validation ("production" forbids weak
	// secrets).
	Environment string `koanf:"environment"`
}

// LoggingConfig mirrors the logging package's settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	// InMemory runs everything on the memory stores (dev mode).
	InMemory bool `koanf:"in_memory"`

	// BadgerPath is the directory for the entity store.
	BadgerPath string `koanf:"badger_path"`

	// AuditDBPath is the DuckDB file for the audit trail.
	AuditDBPath string `koanf:"audit_db_path"`
}

// AuthConfig holds token and session settings.
type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	SessionLifetime time.Duration `koanf:"session_lifetime"`

	// SessionStore is "memory" or "badger".
	SessionStore string `koanf:"session_store"`
}

// AuthzConfig tunes the permission resolver caches.
type AuthzConfig struct {
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	CatalogTTL time.Duration `koanf:"catalog_ttl"`
}

// MFAConfig names the TOTP issuer shown in authenticator apps.
type MFAConfig struct {
	Issuer string `koanf:"issuer"`
}

// LockoutConfig mirrors auth.LockoutConfig.
type LockoutConfig struct {
	Enabled         bool          `koanf:"enabled"`
	MaxAttempts     int           `koanf:"max_attempts"`
	LockoutDuration time.Duration `koanf:"lockout_duration"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// RateLimitConfig mirrors auth.RateLimitConfig plus the router-level
// requests-per-minute limit.
type RateLimitConfig struct {
	Window            time.Duration `koanf:"window"`
	MaxAttempts       int           `koanf:"max_attempts"`
	DelayThreshold    int           `koanf:"delay_threshold"`
	DelayStep         time.Duration `koanf:"delay_step"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
}

// AuditConfig mirrors audit.Config.
type AuditConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BufferSize    int           `koanf:"buffer_size"`
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// defaultConfig returns the built-in defaults, overridden by file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8472,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Storage: StorageConfig{
			InMemory:    false,
			BadgerPath:  "/data/stayguard/entities",
			AuditDBPath: "/data/stayguard/audit.duckdb",
		},
		Auth: AuthConfig{
			JWTSecret:       "",
			JWTIssuer:       "stayguard",
			SessionLifetime: 24 * time.Hour,
			SessionStore:    "badger",
		},
		Authz: AuthzConfig{
			CacheTTL:   5 * time.Minute,
			CatalogTTL: 10 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer: "StayNest",
		},
		Lockout: LockoutConfig{
			Enabled:         true,
			MaxAttempts:     5,
			LockoutDuration: 24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:            time.Minute,
			MaxAttempts:       20,
			DelayThreshold:    10,
			DelayStep:         200 * time.Millisecond,
			RequestsPerMinute: 300,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1000,
			Retention:     7 * 365 * 24 * time.Hour,
			SweepInterval: 24 * time.Hour,
		},
	}
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Production() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes in production")
	}
	switch c.Auth.SessionStore {
	case "memory", "badger":
	default:
		return fmt.Errorf("auth.session_store %q: want memory or badger", c.Auth.SessionStore)
	}
	if !c.Storage.InMemory {
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("storage.badger_path required unless storage.in_memory")
		}
		if c.Storage.AuditDBPath == "" && c.Audit.Enabled {
			return fmt.Errorf("storage.audit_db_path required when audit.enabled")
		}
	}
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("lockout.max_attempts must be positive")
	}
	if c.RateLimit.MaxAttempts < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit window/max_attempts must be positive")
	}
	return nil
}

// Production reports whether strict checks apply.
func (c *Config) Production() bool {
	return c.Server.Environment == "production"
}
