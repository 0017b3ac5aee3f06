// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/audit"
	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/authz"
	"github.com/staynest/stayguard/internal/mfa"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiFixture struct {
	server     *httptest.Server
	store      *store.MemoryStore
	auditStore *audit.MemoryStore
	auditLog   *audit.Logger
	tokens     *auth.TokenManager
	mfaSvc     *mfa.Service
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ms := store.NewMemoryStore()
	seedFixtureData(t, ms)

	resolver := authz.NewResolver(ms, ms, ms, time.Minute)
	t.Cleanup(resolver.Close)
	engine := authz.NewEngine(resolver, ms)
	catalog := authz.NewCatalog(ms, time.Minute)
	hierarchy := authz.NewHierarchy(ms, catalog)

	auditStore := audit.NewMemoryStore(1000)
	auditLog := audit.NewLogger(auditStore, audit.Config{Enabled: true, BufferSize: 100, Retention: audit.DefaultRetention})
	t.Cleanup(func() { _ = auditLog.Close() })

	service := authz.NewService(engine, resolver, hierarchy, catalog, ms, ms, ms, auditLog)

	sessions := auth.NewMemorySessionStore()
	mfaSvc := mfa.NewService(ms, ms, sessions, catalog, "StayNest")

	tokens, err := auth.NewTokenManager([]byte(testSecret), "stayguard-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	limiter := auth.NewRateLimiter(auth.NewSlidingWindowStore(time.Minute, 6), nil)
	lockouts := auth.NewLockoutManager(auth.NewMemoryLockoutStore(), nil)

	srv := NewServer(ServerConfig{RequestsPerMinute: 10000}, service, mfaSvc, tokens, limiter, lockouts, auditLog)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &apiFixture{
		server:     ts,
		store:      ms,
		auditStore: auditStore,
		auditLog:   auditLog,
		tokens:     tokens,
		mfaSvc:     mfaSvc,
	}
}

// seedFixtureData creates the minimal role/permission/user graph the
// handler tests exercise.
func seedFixtureData(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	roles := []*models.Role{
		{ID: "role-admin", Name: "platform_admin", HierarchyLevel: 1, Scope: models.ScopeGlobal, IsActive: true, CreatedAt: now},
		{ID: "role-host", Name: "host", HierarchyLevel: 5, Scope: models.ScopePersonal, IsActive: true, CreatedAt: now},
		{ID: "role-guest", Name: "guest", HierarchyLevel: 7, Scope: models.ScopeOwnRecords, IsActive: true, CreatedAt: now},
	}
	for _, role := range roles {
		if err := ms.SaveRole(ctx, role); err != nil {
			t.Fatalf("SaveRole(%s) error = %v", role.ID, err)
		}
	}

	perms := []*models.Permission{
		{ID: "perm-permission-update", Resource: models.ResourcePermission, Action: models.ActionUpdate, Scope: models.ScopeGlobal, IsActive: true},
		{ID: "perm-role-manage", Resource: models.ResourceRole, Action: models.ActionManage, Scope: models.ScopeGlobal, IsActive: true},
		{ID: "perm-user-manage", Resource: models.ResourceUser, Action: models.ActionManage, Scope: models.ScopeGlobal, IsActive: true},
		{ID: "perm-audit-read", Resource: models.ResourceAuditLog, Action: models.ActionRead, Scope: models.ScopeGlobal, IsActive: true},
		{ID: "perm-booking-read", Resource: models.ResourceBooking, Action: models.ActionRead, Scope: models.ScopeOwnRecords, IsActive: true},
	}
	for _, p := range perms {
		if err := ms.SavePermission(ctx, p); err != nil {
			t.Fatalf("SavePermission(%s) error = %v", p.ID, err)
		}
	}

	adminPerms := []string{"perm-permission-update", "perm-role-manage", "perm-user-manage", "perm-audit-read"}
	for _, pid := range adminPerms {
		a := &models.RoleAssignment{
			ID: "assign-admin-" + pid, RoleID: "role-admin", PermissionID: pid,
			Granted: true, IsActive: true, GrantedAt: now, CreatedAt: now,
		}
		if err := ms.CreateAssignment(ctx, a); err != nil {
			t.Fatalf("CreateAssignment(%s) error = %v", a.ID, err)
		}
	}
	guestAssign := &models.RoleAssignment{
		ID: "assign-guest-booking", RoleID: "role-guest", PermissionID: "perm-booking-read",
		Granted: true, IsActive: true, GrantedAt: now, CreatedAt: now,
	}
	if err := ms.CreateAssignment(ctx, guestAssign); err != nil {
		t.Fatalf("CreateAssignment(guest) error = %v", err)
	}

	users := []*models.User{
		{ID: "user-admin", RoleIDs: []string{"role-admin"}, PrimaryRoleID: "role-admin", CreatedAt: now},
		{ID: "user-guest", RoleIDs: []string{"role-guest"}, PrimaryRoleID: "role-guest", CreatedAt: now},
	}
	for _, u := range users {
		if err := ms.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser(%s) error = %v", u.ID, err)
		}
	}
}

// token issues a bearer token for the user with a current MFA stamp.
func (f *apiFixture) token(t *testing.T, userID string, roleIDs ...string) string {
	t.Helper()
	session := auth.NewSession(userID, roleIDs, time.Hour)
	session.MFAVerifiedAt = time.Now()
	signed, err := f.tokens.Issue(session)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (*http.Response, APIResponse) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do(%s %s) error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response for %s %s: %v", method, path, err)
		}
	}
	return resp, envelope
}

func dataField(t *testing.T, envelope APIResponse, key string) interface{} {
	t.Helper()
	m, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("response data is %T, want object", envelope.Data)
	}
	return m[key]
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !envelope.Success {
		t.Error("Success = false, want true")
	}
	if got := dataField(t, envelope, "status"); got != "healthy" {
		t.Errorf("status = %v, want healthy", got)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/authz/check", "",
		`{"user_id":"user-guest","resource":"booking","action":"read"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestCheckAccess(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-guest", "role-guest")

	tests := []struct {
		name        string
		body        string
		wantAllowed bool
		wantCode    string
	}{
		{
			name:        "guest can read own bookings",
			body:        `{"user_id":"user-guest","resource":"booking","action":"read","resource_owner_id":"user-guest"}`,
			wantAllowed: true,
		},
		{
			name:        "guest cannot manage payments",
			body:        `{"user_id":"user-guest","resource":"payment","action":"manage"}`,
			wantAllowed: false,
			wantCode:    authz.CodePermissionNotFound,
		},
		{
			name:        "guest cannot read another user's bookings",
			body:        `{"user_id":"user-guest","resource":"booking","action":"read","resource_owner_id":"user-admin"}`,
			wantAllowed: false,
			wantCode:    authz.CodeScopeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, envelope := f.do(t, http.MethodPost, "/api/v1/authz/check", token, tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if got := dataField(t, envelope, "allowed"); got != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", got, tt.wantAllowed)
			}
			if tt.wantCode != "" {
				if got := dataField(t, envelope, "code"); got != tt.wantCode {
					t.Errorf("code = %v, want %v", got, tt.wantCode)
				}
			}
		})
	}
}

func TestCheckAccessValidation(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-guest", "role-guest")

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/authz/check", token,
		`{"user_id":"user-guest","resource":"spaceship","action":"read"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want code %s", envelope.Error, ErrCodeValidationFailed)
	}
}

func TestGrantGatedOnPermission(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/authz/permissions/grant", guestToken,
		`{"role_id":"role-guest","permission_id":"perm-audit-read","reason":"testing"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestGrantAndRevokePermission(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.token(t, "user-admin", "role-admin")
	guestToken := f.token(t, "user-guest", "role-guest")

	checkBody := `{"user_id":"user-guest","resource":"audit_log","action":"read"}`
	_, envelope := f.do(t, http.MethodPost, "/api/v1/authz/check", guestToken, checkBody)
	if got := dataField(t, envelope, "allowed"); got != false {
		t.Fatalf("allowed before grant = %v, want false", got)
	}

	resp, _ := f.do(t, http.MethodPost, "/api/v1/authz/permissions/grant", adminToken,
		`{"role_id":"role-guest","permission_id":"perm-audit-read","reason":"incident review access"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	_, envelope = f.do(t, http.MethodPost, "/api/v1/authz/check", guestToken, checkBody)
	if got := dataField(t, envelope, "allowed"); got != true {
		t.Errorf("allowed after grant = %v, want true", got)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/authz/permissions/revoke", adminToken,
		`{"role_id":"role-guest","permission_id":"perm-audit-read","reason":"review complete"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	_, envelope = f.do(t, http.MethodPost, "/api/v1/authz/check", guestToken, checkBody)
	if got := dataField(t, envelope, "allowed"); got != false {
		t.Errorf("allowed after revoke = %v, want false", got)
	}
}

func TestAssignRole(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.token(t, "user-admin", "role-admin")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/authz/roles/assign", adminToken,
		`{"user_id":"user-guest","role_name":"host"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	user, err := f.store.GetUser(context.Background(), "user-guest")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if !user.HoldsRole("role-host") {
		t.Errorf("user roles = %v, want role-host held", user.RoleIDs)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/authz/roles/assign", adminToken,
		`{"user_id":"user-guest","role_name":"no_such_role"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown role status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAssignableRoles(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.token(t, "user-admin", "role-admin")

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/authz/roles/assignable", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	list, ok := envelope.Data.([]interface{})
	if !ok {
		t.Fatalf("data is %T, want array", envelope.Data)
	}
	// Level-1 admin can assign the level-5 and level-7 roles, not itself.
	if len(list) != 2 {
		t.Errorf("assignable roles = %d, want 2", len(list))
	}
}

func TestAuditEndpointGated(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")

	resp, _ := f.do(t, http.MethodGet, "/api/v1/audit/", guestToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestAuditQueryAndGet(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.token(t, "user-admin", "role-admin")

	ctx := context.Background()
	now := time.Now().UTC()
	seed := []*audit.Entry{
		{ID: "entry-1", Timestamp: now.Add(-2 * time.Minute), ActorID: "user-admin", Action: audit.ActionRoleAssigned, Resource: models.ResourceRole, Result: audit.ResultSuccess, RetentionDate: now.Add(time.Hour), Security: audit.SecurityContext{RiskLevel: models.RiskHigh}},
		{ID: "entry-2", Timestamp: now.Add(-time.Minute), ActorID: "user-guest", Action: audit.ActionLoginFailed, Resource: models.ResourceUser, Result: audit.ResultFailure, RetentionDate: now.Add(time.Hour), Security: audit.SecurityContext{RiskLevel: models.RiskMedium}},
	}
	for _, e := range seed {
		if err := f.auditStore.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.ID, err)
		}
	}

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/audit/?actor_id=user-guest", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	list, ok := envelope.Data.([]interface{})
	if !ok {
		t.Fatalf("data is %T, want array", envelope.Data)
	}
	if len(list) != 1 {
		t.Fatalf("entries = %d, want 1", len(list))
	}

	resp, envelope = f.do(t, http.MethodGet, "/api/v1/audit/entry-1", adminToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := dataField(t, envelope, "id"); got != "entry-1" {
		t.Errorf("entry id = %v, want entry-1", got)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/audit/no-such-entry", adminToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAuditQueryRejectsBadParams(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.token(t, "user-admin", "role-admin")

	for _, path := range []string{
		"/api/v1/audit/?limit=0",
		"/api/v1/audit/?limit=5000",
		"/api/v1/audit/?start_time=yesterday",
		"/api/v1/audit/?order=sideways",
	} {
		resp, _ := f.do(t, http.MethodGet, path, adminToken, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestMFASetupFlow(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/mfa/setup", guestToken,
		`{"type":"authenticator_app","name":"Personal phone"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("setup status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	deviceID, _ := dataField(t, envelope, "device_id").(string)
	if deviceID == "" {
		t.Fatal("setup response missing device_id")
	}
	uri, _ := dataField(t, envelope, "provisioning_uri").(string)
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Errorf("provisioning_uri = %q, want otpauth://totp/ prefix", uri)
	}
	codes, ok := dataField(t, envelope, "backup_codes").([]interface{})
	if !ok || len(codes) != 10 {
		t.Errorf("backup_codes = %v, want 10 codes", codes)
	}

	// A wrong activation code is a 400 with attempt details.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/mfa/verify-setup", guestToken,
		`{"device_id":"`+deviceID+`","code":"000000"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad activation status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/mfa/verify-setup", guestToken,
		`{"device_id":"no-such-device","code":"000000"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing device status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestMFAStatus(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/mfa/status", guestToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := dataField(t, envelope, "has_active_device"); got != false {
		t.Errorf("has_active_device = %v, want false", got)
	}
}

func TestMFAVerifyWithoutDevice(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/mfa/verify", guestToken, `{"code":"123456"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestMFAUnlockRequiresManageRights(t *testing.T) {
	f := newAPIFixture(t)
	guestToken := f.token(t, "user-guest", "role-guest")
	adminToken := f.token(t, "user-admin", "role-admin")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/mfa/devices/some-device/unlock", guestToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("guest unlock status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/mfa/devices/some-device/unlock", adminToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("admin unlock of missing device status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
