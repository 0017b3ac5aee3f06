// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/validation"
)

// maxRequestBody caps request bodies at 1 MiB. Every StayGuard request
// payload is small structured JSON.
const maxRequestBody = 1 << 20

// CheckAccessRequest asks whether a user may perform an action.
type CheckAccessRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Resource string `json:"resource" validate:"required,resource"`
	Action   string `json:"action" validate:"required,authz_action"`

	// Optional request context for scope and condition checks.
	StateID         string `json:"state_id,omitempty"`
	CampusID        string `json:"campus_id,omitempty"`
	ResourceOwnerID string `json:"resource_owner_id,omitempty"`
	ClientIP        string `json:"client_ip,omitempty"`
}

// GrantPermissionRequest grants a permission to a role.
type GrantPermissionRequest struct {
	RoleID        string `json:"role_id" validate:"required"`
	PermissionID  string `json:"permission_id" validate:"required"`
	ScopeOverride string `json:"scope_override,omitempty" validate:"omitempty,scope"`
	Reason        string `json:"reason" validate:"required,max=500"`
}

// RevokePermissionRequest revokes a role's permission.
type RevokePermissionRequest struct {
	RoleID       string `json:"role_id" validate:"required"`
	PermissionID string `json:"permission_id" validate:"required"`
	Reason       string `json:"reason" validate:"required,max=500"`
}

// AssignRoleRequest assigns a role to a user by role name.
type AssignRoleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	RoleName string `json:"role_name" validate:"required,max=100"`
}

// RevokeRoleRequest removes a role from a user by role name.
type RevokeRoleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	RoleName string `json:"role_name" validate:"required,max=100"`
}

// MFASetupRequest starts enrollment of a new MFA device.
type MFASetupRequest struct {
	Type string `json:"type" validate:"required,device_type"`
	Name string `json:"name" validate:"required,max=100"`
}

// MFAVerifySetupRequest activates a pending device with its first code.
type MFAVerifySetupRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Code     string `json:"code" validate:"required,min=6,max=8"`
}

// MFAVerifyRequest verifies a TOTP or backup code for the current user.
// DeviceID is optional; when empty the primary device is tried first.
type MFAVerifyRequest struct {
	Code     string `json:"code" validate:"required,min=6,max=8"`
	DeviceID string `json:"device_id,omitempty"`
}

// decodeAndValidate decodes a JSON request body into dst and runs
// struct validation. It returns a client-facing error message plus
// field details suitable for ValidationError.
func decodeAndValidate(r *http.Request, dst interface{}) (string, interface{}, bool) {
	body := http.MaxBytesReader(nil, r.Body, maxRequestBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return "request body is required", nil, false
		default:
			return fmt.Sprintf("invalid JSON: %v", err), nil, false
		}
	}

	if reqErr := validation.ValidateStruct(dst); reqErr != nil {
		return "request validation failed", reqErr.Details(), false
	}
	return "", nil, true
}
