// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("Lockout.MaxAttempts = %d, want 5", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.LockoutDuration != 24*time.Hour {
		t.Errorf("Lockout.LockoutDuration = %v, want 24h", cfg.Lockout.LockoutDuration)
	}
	if cfg.Authz.CacheTTL != 5*time.Minute {
		t.Errorf("Authz.CacheTTL = %v, want 5m", cfg.Authz.CacheTTL)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"weak production secret", func(c *Config) {
			c.Server.Environment = "production"
			c.Auth.JWTSecret = "short"
		}, "jwt_secret"},
		{"bad session store", func(c *Config) { c.Auth.SessionStore = "redis" }, "session_store"},
		{"missing badger path", func(c *Config) { c.Storage.BadgerPath = "" }, "badger_path"},
		{"zero lockout attempts", func(c *Config) { c.Lockout.MaxAttempts = 0 }, "max_attempts"},
		{"zero rate window", func(c *Config) { c.RateLimit.Window = 0 }, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestInMemorySkipsPathChecks(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.InMemory = true
	cfg.Storage.BadgerPath = ""
	cfg.Storage.AuditDBPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate(in-memory) = %v, want nil", err)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"STAYGUARD_SERVER__PORT", "server.port"},
		{"STAYGUARD_AUTH__JWT_SECRET", "auth.jwt_secret"},
		{"STAYGUARD_RATE_LIMIT__MAX_ATTEMPTS", "rate_limit.max_attempts"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
