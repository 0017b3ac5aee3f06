// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/staynest/stayguard/internal/audit"
	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/authz"
	"github.com/staynest/stayguard/internal/mfa"
	"github.com/staynest/stayguard/internal/middleware"
	"github.com/staynest/stayguard/internal/models"
)

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	// CORSOrigins is the explicit allowlist. Empty denies all
	// cross-origin requests.
	CORSOrigins []string

	// RequestsPerMinute is the per-IP global rate limit.
	RequestsPerMinute int
}

// Server holds the handler dependencies and builds the route tree.
type Server struct {
	config    ServerConfig
	engine    *authz.Engine
	service   *authz.Service
	hierarchy *authz.Hierarchy
	mfa       *mfa.Service
	tokens    *auth.TokenManager
	limiter   *auth.RateLimiter
	lockouts  *auth.LockoutManager
	audit     *audit.Logger
}

// NewServer creates the HTTP server handler bundle.
func NewServer(config ServerConfig, service *authz.Service, mfaSvc *mfa.Service,
	tokens *auth.TokenManager, limiter *auth.RateLimiter, lockouts *auth.LockoutManager,
	auditLog *audit.Logger) *Server {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 300
	}
	return &Server{
		config:    config,
		engine:    service.Engine,
		service:   service,
		hierarchy: service.Hierarchy,
		mfa:       mfaSvc,
		tokens:    tokens,
		limiter:   limiter,
		lockouts:  lockouts,
		audit:     auditLog,
	}
}

// Routes builds the chi route tree.
//
// Layout:
//   - /api/v1/health    public liveness probe
//   - /metrics          Prometheus scrape endpoint
//   - /api/v1/authz     authorization checks and grant administration
//   - /api/v1/mfa       device enrollment and verification
//   - /api/v1/audit     audit queries, gated on audit_log:read
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	r.Use(httprate.Limit(
		s.config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	))

	r.Get("/api/v1/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated API surface.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(auth.Middleware(s.tokens))
		r.Use(auth.LockoutMiddleware(s.lockouts, principalSubject))
		r.Use(auth.RateLimitMiddleware(s.limiter))

		r.Route("/authz", func(r chi.Router) {
			r.Post("/check", s.CheckAccess)
			r.Get("/permissions", s.EffectivePermissions)
			r.Get("/roles/assignable", s.AssignableRoles)

			// Grant administration requires role management rights.
			r.Group(func(r chi.Router) {
				r.Use(authz.RequirePermission(s.engine, models.ResourcePermission, models.ActionUpdate))
				r.Post("/permissions/grant", s.GrantPermission)
				r.Post("/permissions/revoke", s.RevokePermission)
			})
			r.Group(func(r chi.Router) {
				r.Use(authz.RequirePermission(s.engine, models.ResourceRole, models.ActionManage))
				r.Post("/roles/assign", s.AssignRole)
				r.Post("/roles/revoke", s.RevokeRole)
			})
		})

		r.Route("/mfa", func(r chi.Router) {
			r.Post("/setup", s.MFASetup)
			r.Post("/verify-setup", s.MFAVerifySetup)
			r.Post("/verify", s.MFAVerify)
			r.Get("/status", s.MFAStatus)
			r.Delete("/devices/{deviceID}", s.MFARemoveDevice)

			// Unlocking someone else's device is an admin operation.
			r.Group(func(r chi.Router) {
				r.Use(authz.RequirePermission(s.engine, models.ResourceUser, models.ActionManage))
				r.Post("/devices/{deviceID}/unlock", s.MFAUnlockDevice)
			})
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(authz.RequirePermission(s.engine, models.ResourceAuditLog, models.ActionRead))
			r.Get("/", s.AuditQuery)
			r.Get("/{entryID}", s.AuditGet)
		})
	})

	return r
}

// principalSubject keys lockout checks by the authenticated user.
func principalSubject(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}
