// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package audit records every mutating or failed action as an
// append-only, risk-classified entry. Writes are asynchronous and
// never block or fail the triggering action.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/models"
)

// Action is the closed set of audited action kinds.
type Action string

const (
	// Authentication
	ActionLogin           Action = "auth.login"
	ActionLoginFailed     Action = "auth.login_failed"
	ActionLogout          Action = "auth.logout"
	ActionAccountLocked   Action = "auth.account_locked"
	ActionAccountUnlocked Action = "auth.account_unlocked"

	// Authorization
	ActionAccessDenied      Action = "authz.denied"
	ActionPermissionGranted Action = "authz.permission_granted"
	ActionPermissionRevoked Action = "authz.permission_revoked"
	ActionRoleAssigned      Action = "authz.role_assigned"
	ActionRoleRevoked       Action = "authz.role_revoked"

	// MFA lifecycle
	ActionMFASetup          Action = "mfa.setup"
	ActionMFAVerified       Action = "mfa.verified"
	ActionMFAFailed         Action = "mfa.failed"
	ActionMFADeviceLocked   Action = "mfa.device_locked"
	ActionMFADeviceRemoved  Action = "mfa.device_removed"
	ActionMFADeviceUnlocked Action = "mfa.device_unlocked"

	// Platform administration
	ActionUserCreated   Action = "user.created"
	ActionUserModified  Action = "user.modified"
	ActionUserDeleted   Action = "user.deleted"
	ActionDataExport    Action = "data.export"
	ActionConfigChanged Action = "config.changed"
	ActionAdminOverride Action = "admin.override"
)

// Result indicates the outcome of the audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPartial Result = "partial"
	ResultPending Result = "pending"
)

// SecurityContext captures the security posture at the time of the action.
type SecurityContext struct {
	// RiskLevel is computed from the action kind, never supplied by
	// the caller.
	RiskLevel   models.RiskLevel `json:"risk_level"`
	MFAVerified bool             `json:"mfa_verified"`
	SessionID   string           `json:"session_id,omitempty"`
	IPAddress   string           `json:"ip_address,omitempty"`
	UserAgent   string           `json:"user_agent,omitempty"`
}

// Changes holds the before/after snapshot for update actions.
type Changes struct {
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// Entry is one append-only audit record. The only mutations permitted
// after the write are appending a threat indicator and escalating the
// risk level.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// ActorID is the acting user or "system".
	ActorID    string   `json:"actor_id"`
	ActorRoles []string `json:"actor_roles,omitempty"`

	Action   Action          `json:"action"`
	Resource models.Resource `json:"resource"`

	// ResourceID identifies the affected entity; TargetUserID the
	// affected user, when the action has one.
	ResourceID   string `json:"resource_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`

	Result Result `json:"result"`

	// Request is the sanitized request snapshot. Sensitive fields are
	// masked before the entry enters the write buffer.
	Request map[string]interface{} `json:"request,omitempty"`

	Security SecurityContext `json:"security"`

	Changes *Changes `json:"changes,omitempty"`

	ThreatIndicators []string `json:"threat_indicators,omitempty"`

	// RetentionDate is when the retention sweep may delete this entry.
	RetentionDate time.Time `json:"retention_date"`

	RequestID string `json:"request_id,omitempty"`
}

// Filter selects entries for the admin query surface.
type Filter struct {
	ActorID      string             `json:"actor_id,omitempty"`
	Actions      []Action           `json:"actions,omitempty"`
	Resource     models.Resource    `json:"resource,omitempty"`
	TargetUserID string             `json:"target_user_id,omitempty"`
	Results      []Result           `json:"results,omitempty"`
	RiskLevels   []models.RiskLevel `json:"risk_levels,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Limit     int  `json:"limit,omitempty"`
	Offset    int  `json:"offset,omitempty"`
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultFilter returns the default admin query: most recent first.
func DefaultFilter() Filter {
	return Filter{
		Limit:     100,
		OrderDesc: true,
	}
}

// Store persists audit entries. Save appends; the two mutation methods
// are the only permitted post-write changes.
type Store interface {
	Save(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Query(ctx context.Context, filter Filter) ([]Entry, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// DeleteExpired removes entries whose retention date has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	AppendThreatIndicator(ctx context.Context, id, indicator string) error
	EscalateRisk(ctx context.Context, id string, level models.RiskLevel) error
}
