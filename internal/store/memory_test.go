// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staynest/stayguard/internal/models"
)

func TestMemoryStoreRoles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	role := &models.Role{
		ID:             "role-1",
		Name:           "campus_manager",
		HierarchyLevel: 4,
		Scope:          models.ScopeCampus,
		IsActive:       true,
	}
	if err := s.SaveRole(ctx, role); err != nil {
		t.Fatalf("SaveRole() error = %v", err)
	}

	got, err := s.GetRole(ctx, "role-1")
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if got.Name != "campus_manager" {
		t.Errorf("GetRole().Name = %q, want %q", got.Name, "campus_manager")
	}

	byName, err := s.GetRoleByName(ctx, "campus_manager")
	if err != nil {
		t.Fatalf("GetRoleByName() error = %v", err)
	}
	if byName.ID != "role-1" {
		t.Errorf("GetRoleByName().ID = %q, want %q", byName.ID, "role-1")
	}

	if _, err := s.GetRole(ctx, "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("GetRole(missing) error = %v, want ErrRoleNotFound", err)
	}
}

func TestMemoryStoreRoleCopyOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	role := &models.Role{ID: "role-1", Name: "auditor", HierarchyLevel: 5, IsActive: true}
	if err := s.SaveRole(ctx, role); err != nil {
		t.Fatalf("SaveRole() error = %v", err)
	}

	got, _ := s.GetRole(ctx, "role-1")
	got.Name = "mutated"

	again, _ := s.GetRole(ctx, "role-1")
	if again.Name != "auditor" {
		t.Errorf("stored role mutated through read copy: Name = %q", again.Name)
	}
}

func TestMemoryStoreListActiveRolesOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	roles := []*models.Role{
		{ID: "r-low", Name: "guest_services", HierarchyLevel: 6, IsActive: true},
		{ID: "r-top", Name: "platform_admin", HierarchyLevel: 1, IsActive: true},
		{ID: "r-mid", Name: "state_director", HierarchyLevel: 3, IsActive: true},
		{ID: "r-off", Name: "retired", HierarchyLevel: 2, IsActive: false},
	}
	for _, r := range roles {
		if err := s.SaveRole(ctx, r); err != nil {
			t.Fatalf("SaveRole(%s) error = %v", r.ID, err)
		}
	}

	active, err := s.ListActiveRoles(ctx)
	if err != nil {
		t.Fatalf("ListActiveRoles() error = %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("ListActiveRoles() len = %d, want 3", len(active))
	}
	wantOrder := []string{"r-top", "r-mid", "r-low"}
	for i, want := range wantOrder {
		if active[i].ID != want {
			t.Errorf("ListActiveRoles()[%d].ID = %q, want %q", i, active[i].ID, want)
		}
	}
}

func TestMemoryStoreDeleteSystemRole(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.SaveRole(ctx, &models.Role{ID: "sys", Name: "platform_admin", IsSystemRole: true, IsActive: true}); err != nil {
		t.Fatalf("SaveRole() error = %v", err)
	}
	if err := s.DeleteRole(ctx, "sys"); !errors.Is(err, ErrSystemRole) {
		t.Errorf("DeleteRole(system) error = %v, want ErrSystemRole", err)
	}
	if _, err := s.GetRole(ctx, "sys"); err != nil {
		t.Errorf("system role removed despite ErrSystemRole: %v", err)
	}
}

func TestMemoryStorePermissions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	perm := &models.Permission{
		ID:       "perm-1",
		Resource: models.ResourceBooking,
		Action:   models.ActionRead,
		Scope:    models.ScopeCampus,
		IsActive: true,
	}
	if err := s.SavePermission(ctx, perm); err != nil {
		t.Fatalf("SavePermission() error = %v", err)
	}

	got, err := s.GetPermission(ctx, "perm-1")
	if err != nil {
		t.Fatalf("GetPermission() error = %v", err)
	}
	if got.Key() != "booking:read" {
		t.Errorf("Key() = %q, want %q", got.Key(), "booking:read")
	}

	if _, err := s.GetPermission(ctx, "nope"); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("GetPermission(nope) error = %v, want ErrPermissionNotFound", err)
	}

	sys := &models.Permission{ID: "perm-sys", Resource: models.ResourceRole, Action: models.ActionManage, IsSystemPermission: true, IsActive: true}
	if err := s.SavePermission(ctx, sys); err != nil {
		t.Fatalf("SavePermission() error = %v", err)
	}
	if err := s.DeletePermission(ctx, "perm-sys"); !errors.Is(err, ErrSystemPermission) {
		t.Errorf("DeletePermission(system) error = %v, want ErrSystemPermission", err)
	}
}

func TestMemoryStoreAssignments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := &models.RoleAssignment{
		ID:           "assign-1",
		RoleID:       "role-1",
		PermissionID: "perm-1",
		Granted:      true,
		IsActive:     true,
	}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("CreateAssignment() error = %v", err)
	}

	if err := s.CreateAssignment(ctx, a); !errors.Is(err, ErrDuplicateAssignment) {
		t.Errorf("CreateAssignment(dup) error = %v, want ErrDuplicateAssignment", err)
	}

	got, err := s.GetAssignment(ctx, "role-1", "perm-1")
	if err != nil {
		t.Fatalf("GetAssignment() error = %v", err)
	}
	if !got.Granted {
		t.Errorf("GetAssignment().Granted = false, want true")
	}

	got.Granted = false
	if err := s.UpdateAssignment(ctx, got); err != nil {
		t.Fatalf("UpdateAssignment() error = %v", err)
	}
	updated, _ := s.GetAssignment(ctx, "role-1", "perm-1")
	if updated.Granted {
		t.Errorf("assignment not updated: Granted = true")
	}

	if err := s.UpdateAssignment(ctx, &models.RoleAssignment{RoleID: "x", PermissionID: "y"}); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("UpdateAssignment(missing) error = %v, want ErrAssignmentNotFound", err)
	}

	list, err := s.ListAssignmentsForRole(ctx, "role-1")
	if err != nil {
		t.Fatalf("ListAssignmentsForRole() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListAssignmentsForRole() len = %d, want 1", len(list))
	}

	if err := s.DeleteAssignment(ctx, "role-1", "perm-1"); err != nil {
		t.Fatalf("DeleteAssignment() error = %v", err)
	}
	if _, err := s.GetAssignment(ctx, "role-1", "perm-1"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("GetAssignment(deleted) error = %v, want ErrAssignmentNotFound", err)
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	user := &models.User{ID: "user-1", RoleIDs: []string{"role-1"}, PrimaryRoleID: "role-1"}
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	got, err := s.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	got.RoleIDs[0] = "mutated"

	again, _ := s.GetUser(ctx, "user-1")
	if again.RoleIDs[0] != "role-1" {
		t.Errorf("stored user mutated through read copy: RoleIDs[0] = %q", again.RoleIDs[0])
	}

	if _, err := s.GetUser(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(ghost) error = %v, want ErrUserNotFound", err)
	}
}

func TestMemoryStoreDevices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	devices := []*models.MFADevice{
		{ID: "dev-2", UserID: "user-1", Type: models.DeviceAuthenticatorApp, CreatedAt: base.Add(time.Hour)},
		{ID: "dev-1", UserID: "user-1", Type: models.DeviceSMS, CreatedAt: base},
		{ID: "dev-3", UserID: "user-2", Type: models.DeviceEmail, CreatedAt: base},
	}
	for _, d := range devices {
		if err := s.SaveDevice(ctx, d); err != nil {
			t.Fatalf("SaveDevice(%s) error = %v", d.ID, err)
		}
	}

	list, err := s.ListDevicesForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListDevicesForUser() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListDevicesForUser() len = %d, want 2", len(list))
	}
	if list[0].ID != "dev-1" || list[1].ID != "dev-2" {
		t.Errorf("ListDevicesForUser() order = [%s %s], want [dev-1 dev-2]", list[0].ID, list[1].ID)
	}

	if err := s.DeleteDevice(ctx, "dev-1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := s.GetDevice(ctx, "dev-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(deleted) error = %v, want ErrDeviceNotFound", err)
	}
	remaining, _ := s.ListDevicesForUser(ctx, "user-1")
	if len(remaining) != 1 {
		t.Errorf("ListDevicesForUser() after delete len = %d, want 1", len(remaining))
	}
}
