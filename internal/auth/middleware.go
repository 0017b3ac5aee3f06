// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/logging"
)

// writeErrorEnvelope writes the standard API error envelope. The api
// package imports this one, so the shape is mirrored here rather than
// imported.
func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errObj["details"] = details
	}
	body := map[string]interface{}{
		"success": false,
		"error":   errObj,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("encoding error response failed")
	}
}

// writeUnauthorized writes a 401 JSON response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeErrorEnvelope(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware validates the bearer token and attaches the Principal to
// the request context. Requests without a valid token get 401.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					writeUnauthorized(w, "token expired")
					return
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			principal := &Principal{
				UserID:    claims.Subject,
				RoleIDs:   claims.RoleIDs,
				SessionID: claims.SessionID,
			}
			if claims.MFAVerifiedAt != 0 {
				principal.MFAVerifiedAt = time.Unix(claims.MFAVerifiedAt, 0)
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies the sliding-window limiter keyed by
// authenticated user, or client address for anonymous requests.
// Over-limit requests get 429 with Retry-After.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			verdict := limiter.Check(r.Context(), key)
			if !verdict.Allowed {
				seconds := int(verdict.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeErrorEnvelope(w, http.StatusTooManyRequests,
					"TOO_MANY_REQUESTS", "rate limit exceeded",
					map[string]interface{}{"retry_after_seconds": seconds})
				return
			}

			if err := limiter.Wait(r.Context(), key, verdict); err != nil {
				return // client went away during the delay
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey picks the actor-or-IP rate limit key for a request.
func clientKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return "user:" + p.UserID
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip:" + host
}
