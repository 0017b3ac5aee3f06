// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthStatus is the liveness probe payload.
type HealthStatus struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Health handles GET /api/v1/health.
//
// The probe is public and unauthenticated. It reports process
// liveness only; storage health shows up as 500s on real endpoints.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: time.Since(startTime).Seconds(),
	})
}
