// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// fixture wires the authorization collaborators over an in-memory store.
type fixture struct {
	store     *store.MemoryStore
	catalog   *Catalog
	resolver  *Resolver
	engine    *Engine
	hierarchy *Hierarchy
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := store.NewMemoryStore()
	catalog := NewCatalog(ms, time.Minute)
	resolver := NewResolver(ms, ms, ms, time.Minute)
	t.Cleanup(resolver.Close)
	engine := NewEngine(resolver, ms)
	hierarchy := NewHierarchy(ms, catalog)
	service := NewService(engine, resolver, hierarchy, catalog, ms, ms, ms, nil)
	return &fixture{
		store:     ms,
		catalog:   catalog,
		resolver:  resolver,
		engine:    engine,
		hierarchy: hierarchy,
		service:   service,
	}
}

func (f *fixture) addRole(t *testing.T, id, name string, level int) {
	t.Helper()
	err := f.store.SaveRole(context.Background(), &models.Role{
		ID:             id,
		Name:           name,
		HierarchyLevel: level,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("SaveRole(%s) error = %v", id, err)
	}
}

func (f *fixture) addPermission(t *testing.T, id string, resource models.Resource, action models.Action, scope models.Scope) {
	t.Helper()
	err := f.store.SavePermission(context.Background(), &models.Permission{
		ID:       id,
		Resource: resource,
		Action:   action,
		Scope:    scope,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("SavePermission(%s) error = %v", id, err)
	}
}

func (f *fixture) addAssignment(t *testing.T, roleID, permID string, mutate func(*models.RoleAssignment)) {
	t.Helper()
	a := &models.RoleAssignment{
		ID:           roleID + "-" + permID,
		RoleID:       roleID,
		PermissionID: permID,
		Granted:      true,
		IsActive:     true,
	}
	if mutate != nil {
		mutate(a)
	}
	if err := f.store.CreateAssignment(context.Background(), a); err != nil {
		t.Fatalf("CreateAssignment(%s) error = %v", a.ID, err)
	}
}

func (f *fixture) addUser(t *testing.T, id string, roleIDs []string, stateID, campusID string) {
	t.Helper()
	err := f.store.SaveUser(context.Background(), &models.User{
		ID:       id,
		RoleIDs:  roleIDs,
		StateID:  stateID,
		CampusID: campusID,
	})
	if err != nil {
		t.Fatalf("SaveUser(%s) error = %v", id, err)
	}
}

func TestResolverMostPermissiveScopeWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-state", "state_director", 3)
	f.addRole(t, "role-global", "platform_admin", 1)
	f.addPermission(t, "perm-state", models.ResourceBooking, models.ActionRead, models.ScopeState)
	f.addPermission(t, "perm-global", models.ResourceBooking, models.ActionRead, models.ScopeGlobal)
	f.addAssignment(t, "role-state", "perm-state", nil)
	f.addAssignment(t, "role-global", "perm-global", nil)
	f.addUser(t, "user-1", []string{"role-state", "role-global"}, "TS", "")

	resolved, err := f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{StateID: "TS"})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	got, ok := resolved["booking:read"]
	if !ok {
		t.Fatal("resolved set missing booking:read")
	}
	if got.Scope != models.ScopeGlobal {
		t.Errorf("merged scope = %v, want %v (union keeps most permissive)", got.Scope, models.ScopeGlobal)
	}
}

func TestResolverExcludesExpiredAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "campus_manager", 4)
	f.addPermission(t, "perm-1", models.ResourceBooking, models.ActionUpdate, models.ScopeCampus)
	f.addAssignment(t, "role-1", "perm-1", func(a *models.RoleAssignment) {
		a.ExpiresAt = time.Now().Add(-time.Hour)
	})
	f.addUser(t, "user-1", []string{"role-1"}, "", "C1")

	resolved, err := f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{CampusID: "C1"})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if _, ok := resolved["booking:update"]; ok {
		t.Error("expired assignment contributed to resolved set")
	}
}

func TestResolverScopeContextFiltering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "state_director", 3)
	f.addPermission(t, "perm-1", models.ResourceReport, models.ActionExport, models.ScopeState)
	f.addAssignment(t, "role-1", "perm-1", func(a *models.RoleAssignment) {
		a.Override.AllowedStates = []string{"TS"}
	})
	f.addUser(t, "user-1", []string{"role-1"}, "OS", "")

	resolved, err := f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{StateID: "OS"})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if _, ok := resolved["report:export"]; ok {
		t.Error("assignment limited to state TS applied in state OS")
	}
}

func TestEngineStateScopeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "state_director", 3)
	f.addPermission(t, "perm-1", models.ResourceBooking, models.ActionRead, models.ScopeState)
	f.addAssignment(t, "role-1", "perm-1", nil)
	f.addUser(t, "user-1", []string{"role-1"}, "TS", "")

	d := f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{TargetStateID: "OS"})
	if d.Allowed {
		t.Error("cross-state request allowed, want denied")
	}
	if d.Code != CodeScopeMismatch {
		t.Errorf("Code = %q, want %q", d.Code, CodeScopeMismatch)
	}

	d = f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{TargetStateID: "TS"})
	if !d.Allowed {
		t.Errorf("matching-state request denied: %s", d.Reason)
	}

	d = f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{})
	if !d.Allowed {
		t.Errorf("omitted-state request denied: %s", d.Reason)
	}
}

func TestEngineOwnRecordsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "guest", 7)
	f.addPermission(t, "perm-1", models.ResourceBooking, models.ActionRead, models.ScopeOwnRecords)
	f.addAssignment(t, "role-1", "perm-1", nil)
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	d := f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{ResourceOwnerID: "user-1"})
	if !d.Allowed {
		t.Errorf("own-record request denied: %s", d.Reason)
	}

	d = f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{ResourceOwnerID: "user-2"})
	if d.Allowed {
		t.Error("foreign-record request allowed under own_records scope")
	}

	d = f.engine.HasPermission(ctx, "user-1", models.ResourceBooking, models.ActionRead, RequestContext{})
	if d.Allowed {
		t.Error("ownerless request allowed under own_records scope")
	}
}

func TestEnginePermissionNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "guest", 7)
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	d := f.engine.HasPermission(ctx, "user-1", models.ResourcePayment, models.ActionDelete, RequestContext{})
	if d.Allowed {
		t.Error("unknown permission allowed")
	}
	if d.Code != CodePermissionNotFound {
		t.Errorf("Code = %q, want %q", d.Code, CodePermissionNotFound)
	}
}

func TestEngineTimeCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "night_auditor", 5)
	f.addPermission(t, "perm-1", models.ResourceReport, models.ActionRead, models.ScopeGlobal)
	start, end := 22, 6
	f.addAssignment(t, "role-1", "perm-1", func(a *models.RoleAssignment) {
		a.Override.Conditions = &models.PermissionConditions{TimeStart: &start, TimeEnd: &end}
	})
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	f.engine.now = func() time.Time {
		return time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC) // inside 22..6
	}
	d := f.engine.HasPermission(ctx, "user-1", models.ResourceReport, models.ActionRead, RequestContext{})
	if !d.Allowed {
		t.Errorf("request inside wrap-around window denied: %s", d.Reason)
	}

	f.engine.now = func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // outside
	}
	d = f.engine.HasPermission(ctx, "user-1", models.ResourceReport, models.ActionRead, RequestContext{})
	if d.Allowed {
		t.Error("request outside time window allowed")
	}
	if d.Code != CodeConditionTime {
		t.Errorf("Code = %q, want %q", d.Code, CodeConditionTime)
	}
}

func TestEngineIPCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "ops", 2)
	f.addPermission(t, "perm-1", models.ResourceSystemSetting, models.ActionUpdate, models.ScopeGlobal)
	f.addAssignment(t, "role-1", "perm-1", func(a *models.RoleAssignment) {
		a.Override.Conditions = &models.PermissionConditions{
			AllowedIPs: []string{"10.0.0.0/8"},
			BlockedIPs: []string{"10.1.2.3"},
		}
	})
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	d := f.engine.HasPermission(ctx, "user-1", models.ResourceSystemSetting, models.ActionUpdate, RequestContext{IPAddress: "10.9.9.9"})
	if !d.Allowed {
		t.Errorf("allow-listed IP denied: %s", d.Reason)
	}

	// Block list wins even when the allow list also matches.
	d = f.engine.HasPermission(ctx, "user-1", models.ResourceSystemSetting, models.ActionUpdate, RequestContext{IPAddress: "10.1.2.3"})
	if d.Allowed {
		t.Error("block-listed IP allowed")
	}
	if d.Code != CodeConditionIP {
		t.Errorf("Code = %q, want %q", d.Code, CodeConditionIP)
	}
}

func TestEngineMFAFlagDoesNotDeny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "finance", 2)
	err := f.store.SavePermission(ctx, &models.Permission{
		ID:          "perm-1",
		Resource:    models.ResourcePayment,
		Action:      models.ActionApprove,
		Scope:       models.ScopeGlobal,
		RequiresMFA: true,
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("SavePermission() error = %v", err)
	}
	f.addAssignment(t, "role-1", "perm-1", nil)
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	d := f.engine.HasPermission(ctx, "user-1", models.ResourcePayment, models.ActionApprove, RequestContext{})
	if !d.Allowed {
		t.Errorf("MFA-gated permission denied by engine: %s", d.Reason)
	}
	if !d.RequiresMFA {
		t.Error("RequiresMFA = false, want true")
	}
}

func TestHierarchyCanManageUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-a", "role_a", 1)
	f.addRole(t, "role-b", "role_b", 3)
	f.addUser(t, "user-a", []string{"role-a"}, "", "")
	f.addUser(t, "user-b", []string{"role-b"}, "", "")

	tests := []struct {
		name      string
		managerID string
		targetID  string
		want      bool
	}{
		{"self always manageable", "user-b", "user-b", true},
		{"downward allowed", "user-a", "user-b", true},
		{"upward denied", "user-b", "user-a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := f.hierarchy.CanManageUser(ctx, tt.managerID, tt.targetID)
			if err != nil {
				t.Fatalf("CanManageUser() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanManageUser(%s, %s) = %v (%s), want %v", tt.managerID, tt.targetID, got, reason, tt.want)
			}
		})
	}
}

func TestHierarchyLateralManagementDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-a", "campus_manager_east", 4)
	f.addRole(t, "role-b", "campus_manager_west", 4)
	f.addUser(t, "user-a", []string{"role-a"}, "", "")
	f.addUser(t, "user-b", []string{"role-b"}, "", "")

	got, _, err := f.hierarchy.CanManageUser(ctx, "user-a", "user-b")
	if err != nil {
		t.Fatalf("CanManageUser() error = %v", err)
	}
	if got {
		t.Error("lateral management allowed, want denied")
	}
}

func TestHierarchyCanAssignRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-a", "role_a_name", 1)
	f.addRole(t, "role-b", "role_b_name", 3)
	f.addUser(t, "user-a", []string{"role-a"}, "", "")
	f.addUser(t, "user-b", []string{"role-b"}, "", "")

	ok, _, err := f.hierarchy.CanAssignRole(ctx, "user-a", "role_b_name", "user-b")
	if err != nil {
		t.Fatalf("CanAssignRole() error = %v", err)
	}
	if !ok {
		t.Error("higher-authority assigner denied assigning a lower role")
	}

	ok, reason, err := f.hierarchy.CanAssignRole(ctx, "user-b", "role_a_name", "user-a")
	if err != nil {
		t.Fatalf("CanAssignRole() error = %v", err)
	}
	if ok {
		t.Error("lower-authority assigner allowed assigning a higher role")
	}
	if reason != "cannot assign role with equal or higher authority" {
		t.Errorf("reason = %q, want authority wording", reason)
	}
}

func TestHierarchyGetAssignableRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "platform_admin", 1)
	f.addRole(t, "role-3", "state_director", 3)
	f.addRole(t, "role-5", "staff", 5)
	f.addRole(t, "role-7", "guest", 7)
	f.addUser(t, "user-1", []string{"role-3"}, "", "")

	roles, err := f.hierarchy.GetAssignableRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAssignableRoles() error = %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("GetAssignableRoles() len = %d, want 2", len(roles))
	}
	if roles[0].Name != "staff" || roles[1].Name != "guest" {
		t.Errorf("assignable = [%s %s], want [staff guest]", roles[0].Name, roles[1].Name)
	}
}

func TestGrantRevokeRegrantRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "campus_manager", 4)
	f.addPermission(t, "perm-1", models.ResourceAccommodation, models.ActionUpdate, models.ScopeCampus)
	f.addUser(t, "user-1", []string{"role-1"}, "", "C1")

	snapshot := func() map[string]EffectivePermission {
		resolved, err := f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{CampusID: "C1"})
		if err != nil {
			t.Fatalf("EffectivePermissions() error = %v", err)
		}
		return resolved
	}

	if err := f.service.GrantPermission(ctx, "admin", "role-1", "perm-1", "", "initial"); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}
	granted := snapshot()
	if _, ok := granted["accommodation:update"]; !ok {
		t.Fatal("grant did not surface in resolved set")
	}

	if err := f.service.RevokePermission(ctx, "admin", "role-1", "perm-1", "temporary"); err != nil {
		t.Fatalf("RevokePermission() error = %v", err)
	}
	if _, ok := snapshot()["accommodation:update"]; ok {
		t.Fatal("revoked permission still in resolved set")
	}

	if err := f.service.GrantPermission(ctx, "admin", "role-1", "perm-1", "", "restored"); err != nil {
		t.Fatalf("GrantPermission(re-grant) error = %v", err)
	}
	regranted := snapshot()
	got, ok := regranted["accommodation:update"]
	if !ok {
		t.Fatal("re-grant did not restore the permission")
	}
	want := granted["accommodation:update"]
	if got.Scope != want.Scope || got.Permission.ID != want.Permission.ID {
		t.Errorf("re-granted permission = %+v, want original %+v", got, want)
	}
}

func TestResolverCacheInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-1", "staff", 5)
	f.addPermission(t, "perm-1", models.ResourceMessage, models.ActionRead, models.ScopePersonal)
	f.addUser(t, "user-1", []string{"role-1"}, "", "")

	resolved, err := f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("resolved set before grant len = %d, want 0", len(resolved))
	}

	// GrantPermission must proactively invalidate the cached empty set.
	if err := f.service.GrantPermission(ctx, "admin", "role-1", "perm-1", "", ""); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}
	resolved, err = f.resolver.EffectivePermissions(ctx, "user-1", ScopeContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if _, ok := resolved["message:read"]; !ok {
		t.Error("grant not visible after invalidation; stale cache served")
	}
}

func TestAssignRoleToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-a", "state_director", 3)
	f.addRole(t, "role-b", "staff", 5)
	f.addUser(t, "user-a", []string{"role-a"}, "", "")
	f.addUser(t, "user-b", []string{"role-b"}, "", "")

	ok, reason, err := f.service.AssignRoleToUser(ctx, "user-a", "user-b", "staff")
	if err != nil {
		t.Fatalf("AssignRoleToUser() error = %v", err)
	}
	if !ok {
		t.Fatalf("AssignRoleToUser() denied: %s", reason)
	}

	// Upward assignment must be denied.
	ok, reason, err = f.service.AssignRoleToUser(ctx, "user-b", "user-a", "state_director")
	if err != nil {
		t.Fatalf("AssignRoleToUser() error = %v", err)
	}
	if ok {
		t.Error("upward role assignment allowed")
	}
	if reason == "" {
		t.Error("denial carried no reason")
	}
}

func TestAssignRoleToUserUnknownRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRole(t, "role-a", "state_director", 3)
	f.addUser(t, "user-a", []string{"role-a"}, "", "")
	f.addUser(t, "user-b", nil, "", "")

	// An unknown role name is a lookup failure, not a hierarchy denial.
	_, _, err := f.service.AssignRoleToUser(ctx, "user-a", "user-b", "ghost")
	if !errors.Is(err, store.ErrRoleNotFound) {
		t.Fatalf("AssignRoleToUser(unknown role) error = %v, want ErrRoleNotFound", err)
	}
}

// deniedEnvelope mirrors the API error envelope emitted by the
// middleware writers.
type deniedEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestRequirePermissionMiddleware(t *testing.T) {
	f := newFixture(t)

	f.addRole(t, "role-staff", "staff", 5)
	f.addPermission(t, "perm-booking-read", models.ResourceBooking, models.ActionRead, models.ScopeGlobal)
	f.addAssignment(t, "role-staff", "perm-booking-read", nil)
	f.addUser(t, "user-staff", []string{"role-staff"}, "", "")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	gate := RequirePermission(f.engine, models.ResourceBooking, models.ActionRead)(next)

	// No principal on the context gets 401 in the standard envelope.
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without principal = %d, want 401", rec.Code)
	}
	var body deniedEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 401 body: %v", err)
	}
	if body.Success || body.Error.Code != "UNAUTHORIZED" {
		t.Errorf("401 envelope = %+v", body)
	}

	// A principal holding the permission passes through.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &auth.Principal{UserID: "user-staff"}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with permission = %d, want 200", rec.Code)
	}

	// A different resource is denied with the decision code.
	deny := RequirePermission(f.engine, models.ResourcePayment, models.ActionManage)(next)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &auth.Principal{UserID: "user-staff"}))
	rec = httptest.NewRecorder()
	deny.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without permission = %d, want 403", rec.Code)
	}
	body = deniedEnvelope{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 403 body: %v", err)
	}
	if body.Success || body.Error.Code != CodePermissionNotFound {
		t.Errorf("403 envelope = %+v", body)
	}
}

func TestRequestContextUsesRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?state_id=st-1", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")

	reqCtx := RequestContextFromHTTP(req)
	if reqCtx.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q, want RemoteAddr host", reqCtx.IPAddress)
	}
	if reqCtx.TargetStateID != "st-1" {
		t.Errorf("TargetStateID = %q, want st-1", reqCtx.TargetStateID)
	}
}
