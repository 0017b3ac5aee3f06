// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// ErrNoActiveRole is returned when none of a user's held roles are in
// the active catalog.
var ErrNoActiveRole = errors.New("user holds no active role")

// Hierarchy answers role-authority questions. Authority runs strictly
// downward: a lower hierarchy level number means more authority, and
// equal levels cannot manage each other. Self-management is the sole
// exception.
type Hierarchy struct {
	users   store.UserDirectory
	catalog *Catalog
}

// NewHierarchy creates a role hierarchy manager.
func NewHierarchy(users store.UserDirectory, catalog *Catalog) *Hierarchy {
	return &Hierarchy{users: users, catalog: catalog}
}

// GetUserHighestRole returns the user's most authoritative role: the
// held role with the lowest hierarchy level number.
func (h *Hierarchy) GetUserHighestRole(ctx context.Context, userID string) (*models.Role, error) {
	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("highest role for %s: %w", userID, err)
	}

	var highest *models.Role
	for _, roleID := range user.AllRoleIDs() {
		role, err := h.catalog.RoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrRoleNotFound) {
				continue // held role no longer active
			}
			return nil, fmt.Errorf("highest role for %s: %w", userID, err)
		}
		if highest == nil || role.HierarchyLevel < highest.HierarchyLevel {
			highest = role
		}
	}
	if highest == nil {
		return nil, ErrNoActiveRole
	}
	return highest, nil
}

// CanManageUser reports whether manager may manage target. Self is
// always manageable; otherwise the manager's highest role must have a
// strictly lower level than the target's. Lateral and upward management
// are denied.
func (h *Hierarchy) CanManageUser(ctx context.Context, managerID, targetID string) (bool, string, error) {
	if managerID == targetID {
		return true, "self-management", nil
	}

	managerRole, err := h.GetUserHighestRole(ctx, managerID)
	if err != nil {
		return false, "", fmt.Errorf("can-manage check: %w", err)
	}
	targetRole, err := h.GetUserHighestRole(ctx, targetID)
	if err != nil {
		return false, "", fmt.Errorf("can-manage check: %w", err)
	}

	if managerRole.HierarchyLevel < targetRole.HierarchyLevel {
		return true, "", nil
	}
	return false, fmt.Sprintf("role %s cannot manage users at equal or higher authority (%s)",
		managerRole.Name, targetRole.Name), nil
}

// CanAssignRole reports whether assigner may grant the named role,
// optionally to a specific target user. The assigner's highest role
// must sit strictly above the role being granted; when a target is
// given, CanManageUser must also hold.
func (h *Hierarchy) CanAssignRole(ctx context.Context, assignerID, roleName, targetID string) (bool, string, error) {
	role, err := h.catalog.RoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) {
			return false, fmt.Sprintf("role %q not found", roleName), nil
		}
		return false, "", fmt.Errorf("can-assign check: %w", err)
	}

	assignerRole, err := h.GetUserHighestRole(ctx, assignerID)
	if err != nil {
		return false, "", fmt.Errorf("can-assign check: %w", err)
	}

	if assignerRole.HierarchyLevel >= role.HierarchyLevel {
		return false, "cannot assign role with equal or higher authority", nil
	}

	if targetID != "" {
		ok, reason, err := h.CanManageUser(ctx, assignerID, targetID)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, reason, nil
		}
	}
	return true, "", nil
}

// GetAssignableRoles returns the active roles the user may grant:
// every role with a strictly greater hierarchy level than the user's
// highest, ascending by level.
func (h *Hierarchy) GetAssignableRoles(ctx context.Context, userID string) ([]models.RoleSummary, error) {
	highest, err := h.GetUserHighestRole(ctx, userID)
	if err != nil {
		return nil, err
	}

	roles, err := h.catalog.ActiveRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("assignable roles for %s: %w", userID, err)
	}

	var out []models.RoleSummary
	for _, role := range roles {
		if role.HierarchyLevel > highest.HierarchyLevel {
			out = append(out, role.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].HierarchyLevel < out[j].HierarchyLevel
	})
	return out, nil
}
