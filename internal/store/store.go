// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package store defines persistence interfaces for the four security
// collections (roles, permissions, role-assignments, mfa-devices) plus
// the consumed user directory, with BadgerDB implementations for
// production and in-memory implementations for tests and dev mode.
package store

import (
	"context"
	"errors"

	"github.com/staynest/stayguard/internal/models"
)

// Store errors
var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrAssignmentNotFound = errors.New("role assignment not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDeviceNotFound     = errors.New("mfa device not found")

	// ErrDuplicateAssignment is returned when creating a second
	// assignment for the same (role, permission) pair.
	ErrDuplicateAssignment = errors.New("assignment already exists for role/permission pair")

	// ErrSystemRole is returned when deleting an undeletable system role.
	ErrSystemRole = errors.New("system role cannot be deleted")

	// ErrSystemPermission is returned when deleting a system permission.
	ErrSystemPermission = errors.New("system permission cannot be deleted")
)

// RoleStore persists roles.
type RoleStore interface {
	GetRole(ctx context.Context, id string) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListActiveRoles(ctx context.Context) ([]*models.Role, error)
	SaveRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id string) error
}

// PermissionStore persists permissions.
type PermissionStore interface {
	GetPermission(ctx context.Context, id string) (*models.Permission, error)
	ListActivePermissions(ctx context.Context) ([]*models.Permission, error)
	SavePermission(ctx context.Context, perm *models.Permission) error
	DeletePermission(ctx context.Context, id string) error
}

// AssignmentStore persists role-to-permission assignments. The
// (RoleID, PermissionID) pair is unique; Create fails with
// ErrDuplicateAssignment on a second insert for the same pair.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, roleID, permissionID string) (*models.RoleAssignment, error)
	ListAssignmentsForRole(ctx context.Context, roleID string) ([]*models.RoleAssignment, error)
	CreateAssignment(ctx context.Context, a *models.RoleAssignment) error
	UpdateAssignment(ctx context.Context, a *models.RoleAssignment) error
	DeleteAssignment(ctx context.Context, roleID, permissionID string) error
}

// UserDirectory is the consumed lookup into the platform's user service.
// StayGuard reads identity and writes only the security counters it owns.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

// DeviceStore persists MFA devices, including the write-only TOTP secret.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*models.MFADevice, error)
	ListDevicesForUser(ctx context.Context, userID string) ([]*models.MFADevice, error)
	SaveDevice(ctx context.Context, device *models.MFADevice) error
	DeleteDevice(ctx context.Context, id string) error
}
