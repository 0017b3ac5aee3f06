// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package metrics holds the HTTP-level Prometheus instruments.
// Domain packages register their own instruments next to the code
// they measure.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts requests by method, route, and status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "route", "status"},
	)

	// APIRequestDuration observes request latency by method and route.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stayguard_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// APIActiveRequests gauges in-flight requests.
	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stayguard_api_active_requests",
			Help: "In-flight API requests",
		},
	)

	// SecurityEventsTotal counts notable security outcomes.
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayguard_security_events_total",
			Help: "Security events by kind",
		},
		[]string{"kind"},
	)
)

// RecordAPIRequest records one completed request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSecurityEvent counts a lockout, rate-limit, or MFA event.
func RecordSecurityEvent(kind string) {
	SecurityEventsTotal.WithLabelValues(kind).Inc()
}
