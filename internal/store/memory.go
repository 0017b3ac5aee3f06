// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/staynest/stayguard/internal/models"
)

// MemoryStore implements every store interface in memory. Suitable for
// tests and single-instance development deployments; all methods copy on
// read and write so callers never share internal state.
type MemoryStore struct {
	mu          sync.RWMutex
	roles       map[string]*models.Role
	permissions map[string]*models.Permission
	assignments map[string]*models.RoleAssignment // keyed roleID:permissionID
	users       map[string]*models.User
	devices     map[string]*models.MFADevice
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]*models.Role),
		permissions: make(map[string]*models.Permission),
		assignments: make(map[string]*models.RoleAssignment),
		users:       make(map[string]*models.User),
		devices:     make(map[string]*models.MFADevice),
	}
}

func assignmentKey(roleID, permissionID string) string {
	return roleID + ":" + permissionID
}

// --- RoleStore ---

// GetRole retrieves a role by ID.
func (s *MemoryStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return copyRole(role), nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *MemoryStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, role := range s.roles {
		if role.Name == name {
			return copyRole(role), nil
		}
	}
	return nil, ErrRoleNotFound
}

// ListActiveRoles returns all active roles ordered by hierarchy level.
func (s *MemoryStore) ListActiveRoles(ctx context.Context) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roles []*models.Role
	for _, role := range s.roles {
		if role.IsActive {
			roles = append(roles, copyRole(role))
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		return roles[i].HierarchyLevel < roles[j].HierarchyLevel
	})
	return roles, nil
}

// SaveRole creates or replaces a role.
func (s *MemoryStore) SaveRole(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = copyRole(role)
	return nil
}

// DeleteRole removes a role. System roles are undeletable.
func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return ErrRoleNotFound
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	delete(s.roles, id)
	return nil
}

// --- PermissionStore ---

// GetPermission retrieves a permission by ID.
func (s *MemoryStore) GetPermission(ctx context.Context, id string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perm, ok := s.permissions[id]
	if !ok {
		return nil, ErrPermissionNotFound
	}
	return copyPermission(perm), nil
}

// ListActivePermissions returns all active permissions.
func (s *MemoryStore) ListActivePermissions(ctx context.Context) ([]*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var perms []*models.Permission
	for _, perm := range s.permissions {
		if perm.IsActive {
			perms = append(perms, copyPermission(perm))
		}
	}
	return perms, nil
}

// SavePermission creates or replaces a permission.
func (s *MemoryStore) SavePermission(ctx context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[perm.ID] = copyPermission(perm)
	return nil
}

// DeletePermission removes a permission. System permissions are undeletable.
func (s *MemoryStore) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perm, ok := s.permissions[id]
	if !ok {
		return ErrPermissionNotFound
	}
	if perm.IsSystemPermission {
		return ErrSystemPermission
	}
	delete(s.permissions, id)
	return nil
}

// --- AssignmentStore ---

// GetAssignment retrieves the assignment for a (role, permission) pair.
func (s *MemoryStore) GetAssignment(ctx context.Context, roleID, permissionID string) (*models.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey(roleID, permissionID)]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	return copyAssignment(a), nil
}

// ListAssignmentsForRole returns all assignments for a role.
func (s *MemoryStore) ListAssignmentsForRole(ctx context.Context, roleID string) ([]*models.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RoleAssignment
	for _, a := range s.assignments {
		if a.RoleID == roleID {
			out = append(out, copyAssignment(a))
		}
	}
	return out, nil
}

// CreateAssignment inserts a new assignment, enforcing pair uniqueness.
func (s *MemoryStore) CreateAssignment(ctx context.Context, a *models.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(a.RoleID, a.PermissionID)
	if _, exists := s.assignments[key]; exists {
		return ErrDuplicateAssignment
	}
	s.assignments[key] = copyAssignment(a)
	return nil
}

// UpdateAssignment replaces an existing assignment.
func (s *MemoryStore) UpdateAssignment(ctx context.Context, a *models.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(a.RoleID, a.PermissionID)
	if _, exists := s.assignments[key]; !exists {
		return ErrAssignmentNotFound
	}
	s.assignments[key] = copyAssignment(a)
	return nil
}

// DeleteAssignment removes an assignment.
func (s *MemoryStore) DeleteAssignment(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(roleID, permissionID)
	if _, exists := s.assignments[key]; !exists {
		return ErrAssignmentNotFound
	}
	delete(s.assignments, key)
	return nil
}

// --- UserDirectory ---

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// SaveUser creates or replaces a user.
func (s *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = copyUser(user)
	return nil
}

// --- DeviceStore ---

// GetDevice retrieves a device by ID.
func (s *MemoryStore) GetDevice(ctx context.Context, id string) (*models.MFADevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(device), nil
}

// ListDevicesForUser returns all devices enrolled by a user.
func (s *MemoryStore) ListDevicesForUser(ctx context.Context, userID string) ([]*models.MFADevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MFADevice
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, copyDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveDevice creates or replaces a device.
func (s *MemoryStore) SaveDevice(ctx context.Context, device *models.MFADevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = copyDevice(device)
	return nil
}

// DeleteDevice removes a device.
func (s *MemoryStore) DeleteDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(s.devices, id)
	return nil
}

// --- copy helpers ---

func copyRole(r *models.Role) *models.Role {
	copied := *r
	copied.DefaultPermissionIDs = append([]string(nil), r.DefaultPermissionIDs...)
	copied.Capabilities.AllowedIPRanges = append([]string(nil), r.Capabilities.AllowedIPRanges...)
	return &copied
}

func copyPermission(p *models.Permission) *models.Permission {
	copied := *p
	copied.Conditions = copyConditions(p.Conditions)
	return &copied
}

func copyConditions(c models.PermissionConditions) models.PermissionConditions {
	copied := c
	if c.TimeStart != nil {
		v := *c.TimeStart
		copied.TimeStart = &v
	}
	if c.TimeEnd != nil {
		v := *c.TimeEnd
		copied.TimeEnd = &v
	}
	copied.AllowedDays = append([]time.Weekday(nil), c.AllowedDays...)
	copied.AllowedIPs = append([]string(nil), c.AllowedIPs...)
	copied.BlockedIPs = append([]string(nil), c.BlockedIPs...)
	copied.ReadFields = append([]string(nil), c.ReadFields...)
	copied.WriteFields = append([]string(nil), c.WriteFields...)
	return copied
}

func copyAssignment(a *models.RoleAssignment) *models.RoleAssignment {
	copied := *a
	if a.Override.Conditions != nil {
		conds := copyConditions(*a.Override.Conditions)
		copied.Override.Conditions = &conds
	}
	copied.Override.AllowedStates = append([]string(nil), a.Override.AllowedStates...)
	copied.Override.AllowedCampuses = append([]string(nil), a.Override.AllowedCampuses...)
	return &copied
}

func copyUser(u *models.User) *models.User {
	copied := *u
	copied.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &copied
}

func copyDevice(d *models.MFADevice) *models.MFADevice {
	copied := *d
	copied.BackupCodes = append([]models.BackupCode(nil), d.BackupCodes...)
	return &copied
}
