// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// ScopeContext carries the geographic context a resolution runs under.
// Empty fields leave state/campus allow lists unfiltered on that axis.
type ScopeContext struct {
	StateID  string
	CampusID string
}

// EffectivePermission is one resolved (resource, action) capability
// after merging across the user's roles.
type EffectivePermission struct {
	Permission *models.Permission
	// Scope is the effective scope after any assignment override and
	// the most-permissive-wins merge.
	Scope models.Scope
	// Conditions are the effective conditions of the winning assignment.
	Conditions models.PermissionConditions
	// RequiresMFA is the winning permission's MFA flag.
	RequiresMFA bool
	// RoleID and AssignmentID identify the winning grant, for audit.
	RoleID       string
	AssignmentID string
}

// Resolver reduces a user's role assignments to one effective
// permission per (resource, action) key. When several roles grant the
// same pair, the most permissive scope wins: a user with two roles
// gets the union of capability, not the intersection.
type Resolver struct {
	users       store.UserDirectory
	assignments store.AssignmentStore
	permissions store.PermissionStore
	cache       *permissionCache
	now         func() time.Time
}

// NewResolver creates a permission resolver with a per-user TTL cache.
func NewResolver(users store.UserDirectory, assignments store.AssignmentStore, permissions store.PermissionStore, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		users:       users,
		assignments: assignments,
		permissions: permissions,
		cache:       newPermissionCache(cacheTTL),
		now:         time.Now,
	}
}

// EffectivePermissions resolves the user's full capability set for the
// given scope context, keyed "resource:action".
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string, scope ScopeContext) (map[string]EffectivePermission, error) {
	if cached, ok := r.cache.get(userID, scope.StateID, scope.CampusID); ok {
		RecordCacheHit()
		return cached, nil
	}
	RecordCacheMiss()

	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}

	now := r.now()
	resolved := make(map[string]EffectivePermission)

	for _, roleID := range user.AllRoleIDs() {
		assignments, err := r.assignments.ListAssignmentsForRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
		}

		for _, a := range assignments {
			if !a.Usable(now) {
				continue
			}
			if !a.AppliesToState(scope.StateID) || !a.AppliesToCampus(scope.CampusID) {
				continue
			}

			perm, err := r.permissions.GetPermission(ctx, a.PermissionID)
			if err != nil {
				if errors.Is(err, store.ErrPermissionNotFound) {
					continue // dangling assignment
				}
				return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
			}
			if !perm.IsActive {
				continue
			}

			key := perm.Key()
			candidate := EffectivePermission{
				Permission:   perm,
				Scope:        a.EffectiveScope(perm),
				Conditions:   a.EffectiveConditions(perm),
				RequiresMFA:  perm.RequiresMFA,
				RoleID:       roleID,
				AssignmentID: a.ID,
			}

			existing, ok := resolved[key]
			if !ok || candidate.Scope.Outranks(existing.Scope) {
				resolved[key] = candidate
			}
		}
	}

	r.cache.set(userID, scope.StateID, scope.CampusID, resolved)
	return resolved, nil
}

// InvalidateUser drops cached permission sets for one user. Call when
// the user's role memberships change.
func (r *Resolver) InvalidateUser(userID string) {
	r.cache.invalidateUser(userID)
	RecordCacheInvalidation("user_invalidation")
}

// InvalidateAll drops every cached set. Call after any role,
// permission, or assignment mutation whose blast radius is unknown.
func (r *Resolver) InvalidateAll(reason string) {
	r.cache.clear()
	RecordCacheInvalidation(reason)
}

// Close stops the cache janitor.
func (r *Resolver) Close() {
	r.cache.stop()
}
