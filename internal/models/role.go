// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package models

import "time"

// Hierarchy level bounds. Lower number means more authority.
const (
	HierarchyLevelMin = 1
	HierarchyLevelMax = 7
)

// MFARequiredMaxLevel is the highest hierarchy level (inclusive) whose
// roles require MFA by policy: the two highest-authority tiers.
const MFARequiredMaxLevel = 2

// RoleCapabilities are operational constraints a role carries.
type RoleCapabilities struct {
	// RequiresMFA forces holders to keep an active, verified MFA device.
	RequiresMFA bool `json:"requires_mfa"`

	// MaxSessionDuration caps session lifetime for holders (0 = platform default).
	MaxSessionDuration time.Duration `json:"max_session_duration"`

	// AllowedIPRanges restricts logins to CIDR ranges (empty = unrestricted).
	AllowedIPRanges []string `json:"allowed_ip_ranges,omitempty"`
}

// Role is a named authority tier in the platform hierarchy.
type Role struct {
	ID string `json:"id"`

	// Name is unique among active roles.
	Name string `json:"name"`

	Description string `json:"description,omitempty"`

	// HierarchyLevel ranks authority, 1 (highest) to 7 (lowest).
	// Within an active role set, duplicate levels per tier are a
	// data-integrity warning, not a hard error.
	HierarchyLevel int `json:"hierarchy_level"`

	// Scope is the default breadth for permissions granted through this role.
	Scope Scope `json:"scope"`

	// DefaultPermissionIDs seed new assignments when the role is created.
	DefaultPermissionIDs []string `json:"default_permission_ids,omitempty"`

	Capabilities RoleCapabilities `json:"capabilities"`

	// IsSystemRole marks roles that cannot be deleted.
	IsSystemRole bool `json:"is_system_role"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequiresMFA reports whether holders of this role must have MFA,
// either by explicit capability or by hierarchy-level policy.
func (r *Role) RequiresMFA() bool {
	if r.Capabilities.RequiresMFA {
		return true
	}
	return r.HierarchyLevel <= MFARequiredMaxLevel
}

// ValidHierarchyLevel reports whether the role's level is in bounds.
func (r *Role) ValidHierarchyLevel() bool {
	return r.HierarchyLevel >= HierarchyLevelMin && r.HierarchyLevel <= HierarchyLevelMax
}

// RoleSummary is the read-model returned by assignable-role queries.
type RoleSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	HierarchyLevel int    `json:"hierarchy_level"`
	Scope          Scope  `json:"scope"`
	RequiresMFA    bool   `json:"requires_mfa"`
}

// Summary converts a role to its summary read-model.
func (r *Role) Summary() RoleSummary {
	return RoleSummary{
		ID:             r.ID,
		Name:           r.Name,
		HierarchyLevel: r.HierarchyLevel,
		Scope:          r.Scope,
		RequiresMFA:    r.RequiresMFA(),
	}
}
