// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package logging

import "github.com/rs/zerolog"

// SecurityEvent is a security-relevant occurrence worth a structured
// log line independent of the audit trail.
type SecurityEvent struct {
	// Event names the occurrence, e.g. "authorization_denied",
	// "mfa_verify_failed", "account_locked".
	Event string
	// UserID identifies the acting user, if known.
	UserID string
	// IPAddress is the client address, if known.
	IPAddress string
	// Resource and Action describe the attempted operation.
	Resource string
	Action   string
	// Success reports whether the operation was allowed/completed.
	Success bool
	// Reason carries the denial or failure reason.
	Reason string
	// Details holds extra fields; sensitive keys are masked.
	Details map[string]interface{}
}

// SecurityLogger emits security events with sanitized identifiers.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on the global logger.
func NewSecurityLogger(component string) *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", component).Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger on a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger, component string) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", component).Logger(),
	}
}

// LogEvent emits a security event. User IDs are partially masked and
// detail fields pass through MaskFields.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info().Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "denied")
	}
	if event.UserID != "" {
		e = e.Str("user_id", SanitizeUserID(event.UserID))
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.Resource != "" {
		e = e.Str("resource", event.Resource)
	}
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.Reason != "" && !event.Success {
		e = e.Str("reason", SanitizeError(event.Reason))
	}
	for k, v := range MaskFields(event.Details) {
		e = e.Interface(k, v)
	}

	e.Send()
}

// LogAuthorizationDenied records a denied permission check.
func (l *SecurityLogger) LogAuthorizationDenied(userID, resource, action, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:    "authorization_denied",
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	})
}

// LogMFAFailure records a failed MFA verification attempt.
func (l *SecurityLogger) LogMFAFailure(userID, deviceID, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:  "mfa_verify_failed",
		UserID: userID,
		Reason: reason,
		Details: map[string]interface{}{
			"device_id": deviceID,
		},
	})
}

// LogDeviceLocked records an MFA device entering the locked state.
func (l *SecurityLogger) LogDeviceLocked(userID, deviceID string, failedAttempts int) {
	l.LogEvent(&SecurityEvent{
		Event:  "mfa_device_locked",
		UserID: userID,
		Reason: "consecutive verification failures",
		Details: map[string]interface{}{
			"device_id":       deviceID,
			"failed_attempts": failedAttempts,
		},
	})
}

// LogAccountLocked records an account lockout after repeated failures.
func (l *SecurityLogger) LogAccountLocked(userID, ip string, attempts int) {
	l.LogEvent(&SecurityEvent{
		Event:     "account_locked",
		UserID:    userID,
		IPAddress: ip,
		Reason:    "failed login attempt limit reached",
		Details: map[string]interface{}{
			"attempts": attempts,
		},
	})
}

// LogRateLimited records a request rejected by rate limiting.
func (l *SecurityLogger) LogRateLimited(userID, ip, path string) {
	l.LogEvent(&SecurityEvent{
		Event:     "rate_limited",
		UserID:    userID,
		IPAddress: ip,
		Details: map[string]interface{}{
			"path": path,
		},
	})
}
