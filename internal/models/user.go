// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package models

import "time"

// User is the slice of platform identity this core consumes. The booking
// platform owns the full profile; StayGuard only reads role membership,
// scope context, and the security counters it maintains.
type User struct {
	ID string `json:"id"`

	// RoleIDs are the roles the user holds; PrimaryRoleID designates one
	// of them (may be empty).
	RoleIDs       []string `json:"role_ids"`
	PrimaryRoleID string   `json:"primary_role_id,omitempty"`

	// StateID and CampusID anchor scope checks for state/campus
	// permissions.
	StateID  string `json:"state_id,omitempty"`
	CampusID string `json:"campus_id,omitempty"`

	MFAEnabled bool `json:"mfa_enabled"`

	// Lockout counters maintained by the lockout manager.
	LoginAttempts      int       `json:"login_attempts"`
	AccountLocked      bool      `json:"account_locked"`
	AccountLockedUntil time.Time `json:"account_locked_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HoldsRole reports whether the user holds the given role ID.
func (u *User) HoldsRole(roleID string) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// AllRoleIDs returns held roles plus the primary role, deduplicated.
func (u *User) AllRoleIDs() []string {
	ids := make([]string, 0, len(u.RoleIDs)+1)
	ids = append(ids, u.RoleIDs...)
	if u.PrimaryRoleID != "" && !u.HoldsRole(u.PrimaryRoleID) {
		ids = append(ids, u.PrimaryRoleID)
	}
	return ids
}

// LockedOut reports whether the account lock is currently in force.
func (u *User) LockedOut(now time.Time) bool {
	return u.AccountLocked && now.Before(u.AccountLockedUntil)
}
