// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package main is the entry point for the StayGuard server.
//
// StayGuard is the authorization and security core of the StayNest
// lodging platform: role-based permission resolution, hierarchy-aware
// role administration, MFA enforcement, lockout and rate limiting, and
// an append-only audit trail.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, YAML file, and
//     STAYGUARD_* environment variables (Koanf v2)
//  2. Entity storage: BadgerDB for roles, permissions, users, and MFA
//     devices (or in-memory stores for development)
//  3. Audit storage: DuckDB for the append-only audit trail
//  4. Authorization: permission resolver, decision engine, role
//     hierarchy, and the grant/revoke service
//  5. MFA: TOTP enrollment and verification with per-device lockout
//  6. HTTP server: REST API under /api/v1 plus /metrics
//  7. Supervisor tree: the HTTP server and background sweepers run
//     under suture with restart backoff
//
// # Configuration
//
// Configuration keys use "__" as the path separator in environment
// variables, e.g. STAYGUARD_SERVER__PORT=8472. A config file path may
// be given via STAYGUARD_CONFIG.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the
// supervisor tree stops, in-flight requests get the configured
// shutdown window, and the audit logger drains its buffer before the
// stores close.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/staynest/stayguard/internal/api"
	"github.com/staynest/stayguard/internal/audit"
	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/authz"
	"github.com/staynest/stayguard/internal/config"
	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/mfa"
	"github.com/staynest/stayguard/internal/store"
	"github.com/staynest/stayguard/internal/supervisor"
	"github.com/staynest/stayguard/internal/supervisor/services"
)

// entityStore is the full persistence surface the authorization and
// MFA services consume. Satisfied by both the memory and Badger
// stores.
type entityStore interface {
	store.RoleStore
	store.PermissionStore
	store.AssignmentStore
	store.UserDirectory
	store.DeviceStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("in_memory", cfg.Storage.InMemory).
		Int("port", cfg.Server.Port).
		Msg("Starting StayGuard")

	// Entity storage.
	var entities entityStore
	var badgerDB *badger.DB
	if cfg.Storage.InMemory {
		entities = store.NewMemoryStore()
		logging.Warn().Msg("Running on in-memory stores; all state is lost on restart")
	} else {
		opts := badger.DefaultOptions(cfg.Storage.BadgerPath).WithLogger(nil)
		badgerDB, err = badger.Open(opts)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Storage.BadgerPath).Msg("Failed to open entity store")
		}
		defer func() {
			if err := badgerDB.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing entity store")
			}
		}()
		entities = store.NewBadgerStore(badgerDB)
		logging.Info().Str("path", cfg.Storage.BadgerPath).Msg("Entity store opened")
	}

	// Audit storage and logger.
	auditStore, closeAudit, err := openAuditStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer closeAudit()

	auditLogger := audit.NewLogger(auditStore, audit.Config{
		Enabled:       cfg.Audit.Enabled,
		BufferSize:    cfg.Audit.BufferSize,
		Retention:     cfg.Audit.Retention,
		SweepInterval: cfg.Audit.SweepInterval,
	})
	defer auditLogger.Close()

	// Authorization core.
	resolver := authz.NewResolver(entities, entities, entities, cfg.Authz.CacheTTL)
	defer resolver.Close()
	engine := authz.NewEngine(resolver, entities)
	catalog := authz.NewCatalog(entities, cfg.Authz.CatalogTTL)
	hierarchy := authz.NewHierarchy(entities, catalog)
	authzService := authz.NewService(engine, resolver, hierarchy, catalog,
		entities, entities, entities, auditLogger)

	// Sessions and tokens.
	var sessions auth.SessionStore
	if cfg.Auth.SessionStore == "badger" && badgerDB != nil {
		sessions = auth.NewBadgerSessionStore(badgerDB)
	} else {
		sessions = auth.NewMemorySessionStore()
	}
	tokens, err := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer, cfg.Auth.SessionLifetime)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	// MFA.
	mfaService := mfa.NewService(entities, entities, sessions, catalog, cfg.MFA.Issuer)

	// Lockout and rate limiting.
	lockouts := auth.NewLockoutManager(auth.NewMemoryLockoutStore(), &auth.LockoutConfig{
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		LockoutDuration: cfg.Lockout.LockoutDuration,
		CleanupInterval: cfg.Lockout.CleanupInterval,
		Enabled:         cfg.Lockout.Enabled,
	})
	seclog := logging.NewSecurityLogger("lockout")
	lockouts.SetOnLockout(func(entry *auth.LockoutEntry) {
		seclog.LogAccountLocked(entry.Subject, entry.LastFailedIP, entry.FailedAttempts)
		auditLogger.Record(context.Background(), &audit.Entry{
			ActorID: entry.Subject,
			Action:  audit.ActionAccountLocked,
			Result:  audit.ResultSuccess,
			Request: map[string]interface{}{
				"failed_attempts": entry.FailedAttempts,
				"last_failed_ip":  entry.LastFailedIP,
			},
		})
	})

	limiter := auth.NewRateLimiter(
		auth.NewSlidingWindowStore(cfg.RateLimit.Window, 6),
		&auth.RateLimitConfig{
			Window:         cfg.RateLimit.Window,
			MaxAttempts:    cfg.RateLimit.MaxAttempts,
			DelayThreshold: cfg.RateLimit.DelayThreshold,
			DelayStep:      cfg.RateLimit.DelayStep,
		},
	)

	// HTTP surface.
	server := api.NewServer(api.ServerConfig{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	}, authzService, mfaService, tokens, limiter, lockouts, auditLogger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Supervisor tree.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(services.NewAuditRetentionService(auditLogger))
	if cfg.Lockout.Enabled {
		tree.AddMaintenanceService(services.NewLockoutCleanupService(lockouts))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("StayGuard listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("StayGuard stopped")
}

// openAuditStore opens the configured audit backend and returns it
// with its close function.
func openAuditStore(cfg *config.Config) (audit.Store, func(), error) {
	if cfg.Storage.InMemory {
		return audit.NewMemoryStore(0), func() {}, nil
	}

	db, err := sql.Open("duckdb", cfg.Storage.AuditDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}
	auditStore := audit.NewDuckDBStore(db)
	if err := auditStore.CreateTable(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create audit schema: %w", err)
	}
	closer := func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit database")
		}
	}
	logging.Info().Str("path", cfg.Storage.AuditDBPath).Msg("Audit store opened")
	return auditStore, closer, nil
}
