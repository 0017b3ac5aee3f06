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

	"github.com/google/uuid"

	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// Recorder receives authorization side effects for the audit trail.
// Implementations must never block or fail the calling operation.
type Recorder interface {
	RecordChange(ctx context.Context, actorID, action string, resource models.Resource, resourceID string, success bool, details map[string]interface{})
}

// nopRecorder discards audit events; used when no sink is wired.
type nopRecorder struct{}

func (nopRecorder) RecordChange(context.Context, string, string, models.Resource, string, bool, map[string]interface{}) {
}

// Service bundles the authorization collaborators and implements the
// mutating grant/revoke operations with hierarchy checks, cache
// invalidation, and audit recording.
type Service struct {
	Engine    *Engine
	Resolver  *Resolver
	Hierarchy *Hierarchy
	Catalog   *Catalog

	users       store.UserDirectory
	assignments store.AssignmentStore
	permissions store.PermissionStore
	recorder    Recorder
	now         func() time.Time
}

// NewService wires the authorization service. recorder may be nil.
func NewService(engine *Engine, resolver *Resolver, hierarchy *Hierarchy, catalog *Catalog,
	users store.UserDirectory, assignments store.AssignmentStore, permissions store.PermissionStore,
	recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		Engine:      engine,
		Resolver:    resolver,
		Hierarchy:   hierarchy,
		Catalog:     catalog,
		users:       users,
		assignments: assignments,
		permissions: permissions,
		recorder:    recorder,
		now:         time.Now,
	}
}

// GrantPermission grants a permission to a role. Re-granting a revoked
// pair reactivates the existing assignment, restoring the original
// effective permission set.
func (s *Service) GrantPermission(ctx context.Context, actorID, roleID, permissionID string, scopeOverride models.Scope, reason string) error {
	if _, err := s.Catalog.RoleByID(ctx, roleID); err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	if _, err := s.permissions.GetPermission(ctx, permissionID); err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}

	now := s.now()
	existing, err := s.assignments.GetAssignment(ctx, roleID, permissionID)
	switch {
	case err == nil:
		existing.Granted = true
		existing.IsActive = true
		existing.ScopeOverride = scopeOverride
		existing.GrantedBy = actorID
		existing.GrantedAt = now
		existing.GrantReason = reason
		existing.RevokedBy = ""
		existing.RevokedAt = time.Time{}
		existing.RevokeReason = ""
		existing.UpdatedAt = now
		if err := s.assignments.UpdateAssignment(ctx, existing); err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}

	case errors.Is(err, store.ErrAssignmentNotFound):
		a := &models.RoleAssignment{
			ID:            uuid.New().String(),
			RoleID:        roleID,
			PermissionID:  permissionID,
			ScopeOverride: scopeOverride,
			Granted:       true,
			IsActive:      true,
			GrantedBy:     actorID,
			GrantedAt:     now,
			GrantReason:   reason,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.assignments.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}

	default:
		return fmt.Errorf("grant permission: %w", err)
	}

	s.Resolver.InvalidateAll("assignment_change")
	RecordGrant("grant")
	s.recorder.RecordChange(ctx, actorID, "permission_granted", models.ResourcePermission, permissionID, true, map[string]interface{}{
		"role_id": roleID,
		"reason":  reason,
	})
	return nil
}

// RevokePermission revokes a role's permission. The assignment record
// is kept as an explicit denial for the audit trail.
func (s *Service) RevokePermission(ctx context.Context, actorID, roleID, permissionID, reason string) error {
	a, err := s.assignments.GetAssignment(ctx, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}

	now := s.now()
	a.Granted = false
	a.RevokedBy = actorID
	a.RevokedAt = now
	a.RevokeReason = reason
	a.UpdatedAt = now
	if err := s.assignments.UpdateAssignment(ctx, a); err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}

	s.Resolver.InvalidateAll("assignment_change")
	RecordGrant("revoke")
	s.recorder.RecordChange(ctx, actorID, "permission_revoked", models.ResourcePermission, permissionID, true, map[string]interface{}{
		"role_id": roleID,
		"reason":  reason,
	})
	return nil
}

// AssignRoleToUser grants a role to a user after the hierarchy check.
// A denial is returned as (false, reason, nil); an unknown role name
// surfaces as store.ErrRoleNotFound, not as a denial.
func (s *Service) AssignRoleToUser(ctx context.Context, actorID, targetID, roleName string) (bool, string, error) {
	role, err := s.Catalog.RoleByName(ctx, roleName)
	if err != nil {
		return false, "", fmt.Errorf("assign role: %w", err)
	}

	ok, reason, err := s.Hierarchy.CanAssignRole(ctx, actorID, roleName, targetID)
	if err != nil {
		return false, "", fmt.Errorf("assign role: %w", err)
	}
	if !ok {
		s.recorder.RecordChange(ctx, actorID, "role_assigned", models.ResourceRole, roleName, false, map[string]interface{}{
			"target_user_id": targetID,
			"reason":         reason,
		})
		return false, reason, nil
	}

	user, err := s.users.GetUser(ctx, targetID)
	if err != nil {
		return false, "", fmt.Errorf("assign role: %w", err)
	}

	if !user.HoldsRole(role.ID) {
		user.RoleIDs = append(user.RoleIDs, role.ID)
		if user.PrimaryRoleID == "" {
			user.PrimaryRoleID = role.ID
		}
		if err := s.users.SaveUser(ctx, user); err != nil {
			return false, "", fmt.Errorf("assign role: %w", err)
		}
	}

	s.Resolver.InvalidateUser(targetID)
	s.recorder.RecordChange(ctx, actorID, "role_assigned", models.ResourceRole, role.ID, true, map[string]interface{}{
		"target_user_id": targetID,
		"role_name":      roleName,
	})
	return true, "", nil
}

// RevokeRoleFromUser removes a role from a user after the management
// check.
func (s *Service) RevokeRoleFromUser(ctx context.Context, actorID, targetID, roleName string) (bool, string, error) {
	ok, reason, err := s.Hierarchy.CanManageUser(ctx, actorID, targetID)
	if err != nil {
		return false, "", fmt.Errorf("revoke role: %w", err)
	}
	if !ok {
		return false, reason, nil
	}

	role, err := s.Catalog.RoleByName(ctx, roleName)
	if err != nil {
		return false, "", fmt.Errorf("revoke role: %w", err)
	}
	user, err := s.users.GetUser(ctx, targetID)
	if err != nil {
		return false, "", fmt.Errorf("revoke role: %w", err)
	}

	kept := user.RoleIDs[:0]
	for _, id := range user.RoleIDs {
		if id != role.ID {
			kept = append(kept, id)
		}
	}
	user.RoleIDs = kept
	if user.PrimaryRoleID == role.ID {
		user.PrimaryRoleID = ""
		if len(user.RoleIDs) > 0 {
			user.PrimaryRoleID = user.RoleIDs[0]
		}
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return false, "", fmt.Errorf("revoke role: %w", err)
	}

	s.Resolver.InvalidateUser(targetID)
	s.recorder.RecordChange(ctx, actorID, "role_revoked", models.ResourceRole, role.ID, true, map[string]interface{}{
		"target_user_id": targetID,
		"role_name":      roleName,
	})
	return true, "", nil
}
