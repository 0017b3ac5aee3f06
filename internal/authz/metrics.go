// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts authorization decisions by resource, action,
	// and outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"resource", "action", "decision"},
	)

	// DecisionDuration tracks authorization check latency.
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stayguard_authz_decision_duration_seconds",
			Help:    "Duration of authorization decisions in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"cache_hit"},
	)

	// DeniedTotal tracks denials by machine code, for alerting.
	DeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_authz_denied_total",
			Help: "Total number of authorization denials by code",
		},
		[]string{"code"},
	)

	// CacheHitsTotal counts resolved-permission cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stayguard_authz_cache_hits_total",
			Help: "Total number of permission cache hits",
		},
	)

	// CacheMissesTotal counts resolved-permission cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stayguard_authz_cache_misses_total",
			Help: "Total number of permission cache misses",
		},
	)

	// CacheSize tracks the current permission cache entry count.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stayguard_authz_cache_entries",
			Help: "Current number of entries in the permission cache",
		},
	)

	// CacheEvictionsTotal counts TTL evictions.
	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stayguard_authz_cache_evictions_total",
			Help: "Total number of permission cache evictions (TTL expiry)",
		},
	)

	// CacheInvalidationsTotal counts proactive invalidations by reason.
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_authz_cache_invalidations_total",
			Help: "Total number of permission cache invalidations",
		},
		[]string{"reason"}, // "role_change", "permission_change", "assignment_change", "user_invalidation"
	)

	// CatalogReloadsTotal counts role catalog reloads.
	CatalogReloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stayguard_authz_catalog_reloads_total",
			Help: "Total number of role catalog reloads",
		},
	)

	// GrantsTotal counts assignment grants and revocations.
	GrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_authz_grants_total",
			Help: "Total number of role-permission grant operations",
		},
		[]string{"operation"}, // "grant", "revoke"
	)

	// ErrorsTotal counts operational errors (distinct from denials).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_authz_errors_total",
			Help: "Total number of authorization errors",
		},
		[]string{"error_type"}, // "resolver_error", "user_lookup_error", "catalog_error"
	)
)

// RecordDecision records an authorization decision with its latency.
func RecordDecision(resource, action string, allowed bool, code string, duration time.Duration, cacheHit bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	DecisionsTotal.WithLabelValues(resource, action, decision).Inc()

	hit := "false"
	if cacheHit {
		hit = "true"
	}
	DecisionDuration.WithLabelValues(hit).Observe(duration.Seconds())

	if !allowed {
		DeniedTotal.WithLabelValues(code).Inc()
	}
}

// RecordCacheHit records a permission cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a permission cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheEviction records a TTL eviction.
func RecordCacheEviction() {
	CacheEvictionsTotal.Inc()
}

// RecordCacheInvalidation records a proactive invalidation.
func RecordCacheInvalidation(reason string) {
	CacheInvalidationsTotal.WithLabelValues(reason).Inc()
}

// UpdatePermissionCacheSize updates the cache size gauge.
func UpdatePermissionCacheSize(size int) {
	CacheSize.Set(float64(size))
}

// RecordCatalogReload records a role catalog reload.
func RecordCatalogReload() {
	CatalogReloadsTotal.Inc()
}

// RecordGrant records a grant or revoke operation.
func RecordGrant(operation string) {
	GrantsTotal.WithLabelValues(operation).Inc()
}

// RecordError records an operational authorization error.
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
