// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package models

import "time"

// ConditionOverride narrows or replaces a permission's conditions for one
// role-to-permission assignment. Per-state and per-campus allow lists only
// exist at the assignment level.
type ConditionOverride struct {
	// Conditions, when non-nil, replace the permission's own conditions.
	Conditions *PermissionConditions `json:"conditions,omitempty"`

	// AllowedStates/AllowedCampuses limit where the assignment applies.
	// Empty means no geographic restriction beyond the permission scope.
	AllowedStates   []string `json:"allowed_states,omitempty"`
	AllowedCampuses []string `json:"allowed_campuses,omitempty"`
}

// RoleAssignment links one role to one permission with its own override,
// condition, audit, and expiration metadata. The (RoleID, PermissionID)
// pair is unique among assignments.
type RoleAssignment struct {
	ID           string `json:"id"`
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`

	// ScopeOverride, when set, replaces the permission's scope for
	// holders of this role.
	ScopeOverride Scope `json:"scope_override,omitempty"`

	Override ConditionOverride `json:"override"`

	// Granted distinguishes an explicit grant from an explicit denial
	// record kept for audit purposes.
	Granted  bool `json:"granted"`
	IsActive bool `json:"is_active"`

	// ExpiresAt, when non-zero, bounds the assignment's lifetime.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	GrantedBy   string    `json:"granted_by,omitempty"`
	GrantedAt   time.Time `json:"granted_at,omitempty"`
	GrantReason string    `json:"grant_reason,omitempty"`

	RevokedBy    string    `json:"revoked_by,omitempty"`
	RevokedAt    time.Time `json:"revoked_at,omitempty"`
	RevokeReason string    `json:"revoke_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the assignment's expiration has passed.
func (a *RoleAssignment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Usable reports whether the assignment may contribute to a resolved
// permission set: active, granted, and not expired.
func (a *RoleAssignment) Usable(now time.Time) bool {
	return a.IsActive && a.Granted && !a.Expired(now)
}

// EffectiveScope returns the scope override when present, otherwise the
// permission's own scope.
func (a *RoleAssignment) EffectiveScope(p *Permission) Scope {
	if a.ScopeOverride != "" {
		return a.ScopeOverride
	}
	return p.Scope
}

// EffectiveConditions returns the override conditions when present,
// otherwise the permission's own conditions.
func (a *RoleAssignment) EffectiveConditions(p *Permission) PermissionConditions {
	if a.Override.Conditions != nil {
		return *a.Override.Conditions
	}
	return p.Conditions
}

// AppliesToState reports whether the assignment is valid in the given
// state. Empty context or empty allow list passes.
func (a *RoleAssignment) AppliesToState(stateID string) bool {
	if stateID == "" || len(a.Override.AllowedStates) == 0 {
		return true
	}
	for _, s := range a.Override.AllowedStates {
		if s == stateID {
			return true
		}
	}
	return false
}

// AppliesToCampus reports whether the assignment is valid on the given
// campus. Empty context or empty allow list passes.
func (a *RoleAssignment) AppliesToCampus(campusID string) bool {
	if campusID == "" || len(a.Override.AllowedCampuses) == 0 {
		return true
	}
	for _, c := range a.Override.AllowedCampuses {
		if c == campusID {
			return true
		}
	}
	return false
}
