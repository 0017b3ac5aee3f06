// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/models"
)

// RequestContextFromHTTP derives the decision context from request
// headers and query parameters. Domain handlers that know the resource
// owner pass it explicitly; the generic middleware reads what the
// request carries.
func RequestContextFromHTTP(r *http.Request) RequestContext {
	q := r.URL.Query()
	return RequestContext{
		TargetStateID:   q.Get("state_id"),
		TargetCampusID:  q.Get("campus_id"),
		TargetUserID:    q.Get("user_id"),
		ResourceOwnerID: r.Header.Get("X-Resource-Owner"),
		IPAddress:       clientIP(r),
	}
}

// clientIP reads RemoteAddr only. The router's RealIP middleware has
// already resolved trusted forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequirePermission gates a route on an authorization decision plus,
// when the permission demands it, a current MFA verification.
func RequirePermission(engine *Engine, resource models.Resource, action models.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			// The engine fails closed on operational errors, so the
			// verdict alone carries the outcome.
			decision := engine.HasPermission(r.Context(), principal.UserID, resource, action, RequestContextFromHTTP(r))
			if !decision.Allowed {
				writeDenied(w, http.StatusForbidden, decision.Code, decision.Reason)
				return
			}
			if decision.RequiresMFA && !principal.MFAVerificationCurrent(time.Now()) {
				reason := "mfa verification required"
				if !principal.MFAVerifiedAt.IsZero() {
					reason = "mfa verification expired"
				}
				writeDenied(w, http.StatusForbidden, CodeMFARequired, reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeDenied emits the standard API error envelope. The api package
// imports this one, so the envelope shape is mirrored here rather than
// imported.
func writeDenied(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": reason,
		},
	})
}
