// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"errors"
	"net/http"

	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/authz"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// CheckAccess handles POST /api/v1/authz/check.
//
// It evaluates whether the named user may perform the action and
// returns the decision. Denials are 200 responses with allowed=false;
// the endpoint reports verdicts, it does not enforce them.
func (s *Server) CheckAccess(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CheckAccessRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	reqCtx := authz.RequestContext{
		TargetStateID:   req.StateID,
		TargetCampusID:  req.CampusID,
		ResourceOwnerID: req.ResourceOwnerID,
		IPAddress:       req.ClientIP,
	}
	if reqCtx.IPAddress == "" {
		reqCtx.IPAddress = r.RemoteAddr
	}

	decision := s.engine.HasPermission(r.Context(), req.UserID,
		models.Resource(req.Resource), models.Action(req.Action), reqCtx)
	rw.Success(decision)
}

// effectivePermissionView is the client-facing shape of one resolved
// capability.
type effectivePermissionView struct {
	Resource    models.Resource `json:"resource"`
	Action      models.Action   `json:"action"`
	Scope       models.Scope    `json:"scope"`
	RequiresMFA bool            `json:"requires_mfa"`
	RoleID      string          `json:"role_id"`
}

// EffectivePermissions handles GET /api/v1/authz/permissions.
//
// It returns the caller's own resolved capability set. Query params
// state_id and campus_id narrow the scope context.
func (s *Server) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	scope := authz.ScopeContext{
		StateID:  r.URL.Query().Get("state_id"),
		CampusID: r.URL.Query().Get("campus_id"),
	}
	resolved, err := s.service.Resolver.EffectivePermissions(r.Context(), principal.UserID, scope)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			rw.NotFound("user not found")
			return
		}
		rw.StorageError(err)
		return
	}

	views := make([]effectivePermissionView, 0, len(resolved))
	for _, ep := range resolved {
		views = append(views, effectivePermissionView{
			Resource:    ep.Permission.Resource,
			Action:      ep.Permission.Action,
			Scope:       ep.Scope,
			RequiresMFA: ep.RequiresMFA,
			RoleID:      ep.RoleID,
		})
	}
	rw.Success(views)
}

// AssignableRoles handles GET /api/v1/authz/roles/assignable.
//
// It lists the roles the caller may assign to others: active roles
// strictly below the caller's own hierarchy level.
func (s *Server) AssignableRoles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	roles, err := s.hierarchy.GetAssignableRoles(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrRoleNotFound) {
			rw.NotFound("user or role not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(roles)
}

// GrantPermission handles POST /api/v1/authz/permissions/grant.
func (s *Server) GrantPermission(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req GrantPermissionRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	err := s.service.GrantPermission(r.Context(), principal.UserID, req.RoleID,
		req.PermissionID, models.Scope(req.ScopeOverride), req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) || errors.Is(err, store.ErrPermissionNotFound) {
			rw.NotFound("role or permission not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(map[string]string{"status": "granted"})
}

// RevokePermission handles POST /api/v1/authz/permissions/revoke.
func (s *Server) RevokePermission(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req RevokePermissionRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	err := s.service.RevokePermission(r.Context(), principal.UserID, req.RoleID,
		req.PermissionID, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrAssignmentNotFound) {
			rw.NotFound("assignment not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(map[string]string{"status": "revoked"})
}

// AssignRole handles POST /api/v1/authz/roles/assign.
//
// Hierarchy refusals (assigner below the role's level) come back as
// 403 with the refusal reason.
func (s *Server) AssignRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req AssignRoleRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	assigned, reason, err := s.service.AssignRoleToUser(r.Context(), principal.UserID, req.UserID, req.RoleName)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrRoleNotFound) {
			rw.NotFound("user or role not found")
			return
		}
		rw.StorageError(err)
		return
	}
	if !assigned {
		rw.Forbidden(reason)
		return
	}
	rw.Success(map[string]string{"status": "assigned"})
}

// RevokeRole handles POST /api/v1/authz/roles/revoke.
func (s *Server) RevokeRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req RevokeRoleRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	revoked, reason, err := s.service.RevokeRoleFromUser(r.Context(), principal.UserID, req.UserID, req.RoleName)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrRoleNotFound) {
			rw.NotFound("user or role not found")
			return
		}
		rw.StorageError(err)
		return
	}
	if !revoked {
		rw.Forbidden(reason)
		return
	}
	rw.Success(map[string]string{"status": "revoked"})
}
