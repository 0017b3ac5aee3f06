// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/authz"
	"github.com/staynest/stayguard/internal/metrics"
	"github.com/staynest/stayguard/internal/mfa"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// MFASetup handles POST /api/v1/mfa/setup.
//
// It starts enrollment of a new device for the caller. The response
// carries the provisioning URI and backup codes; both are shown
// exactly once and never stored in recoverable form.
func (s *Server) MFASetup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req MFASetupRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	result, err := s.mfa.SetupDevice(r.Context(), principal.UserID, models.DeviceType(req.Type), req.Name)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			rw.NotFound("user not found")
			return
		}
		rw.StorageError(err)
		return
	}
	metrics.RecordSecurityEvent("mfa_setup_started")
	rw.Created(result)
}

// MFAVerifySetup handles POST /api/v1/mfa/verify-setup.
//
// A valid first code activates the pending device.
func (s *Server) MFAVerifySetup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req MFAVerifySetupRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	result, err := s.mfa.VerifySetup(r.Context(), req.DeviceID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceNotFound):
			rw.NotFound("device not found")
		case errors.Is(err, mfa.ErrAlreadyVerified):
			rw.Conflict("device is already verified")
		default:
			rw.StorageError(err)
		}
		return
	}
	if !result.Success {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeBadRequest, "verification code rejected", result)
		return
	}
	metrics.RecordSecurityEvent("mfa_device_activated")
	rw.Success(result)
}

// MFAVerify handles POST /api/v1/mfa/verify.
//
// On success the caller's session is stamped, opening the MFA
// verification window. Failed attempts count toward the per-device
// lock; a locked device answers 403 with the remaining lock time.
func (s *Server) MFAVerify(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req MFAVerifyRequest
	if msg, details, ok := decodeAndValidate(r, &req); !ok {
		rw.ValidationError(msg, details)
		return
	}

	result, err := s.mfa.Verify(r.Context(), principal.UserID, principal.SessionID, req.Code, req.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrNoUsableDevice):
			rw.ErrorWithDetails(http.StatusConflict, ErrCodeConflict,
				"no usable MFA device enrolled", nil)
		case errors.Is(err, store.ErrDeviceNotFound):
			rw.NotFound("device not found")
		default:
			rw.StorageError(err)
		}
		return
	}
	if result.Locked {
		metrics.RecordSecurityEvent("mfa_device_locked")
		rw.ErrorWithDetails(http.StatusForbidden, ErrCodeDeviceLocked,
			"device locked after repeated failures", result)
		return
	}
	if !result.Success {
		metrics.RecordSecurityEvent("mfa_verify_failed")
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeBadRequest,
			"verification code rejected", result)
		return
	}
	metrics.RecordSecurityEvent("mfa_verified")
	rw.Success(result)
}

// MFAStatus handles GET /api/v1/mfa/status.
func (s *Server) MFAStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	status, err := s.mfa.GetStatus(r.Context(), principal.UserID, principal.MFAVerifiedAt)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			rw.NotFound("user not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(status)
}

// MFARemoveDevice handles DELETE /api/v1/mfa/devices/{deviceID}.
//
// Removing the last active device of an MFA-required user is refused
// unless the caller holds user management rights and passes
// ?override=true. The override disables MFA for the account.
func (s *Server) MFARemoveDevice(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	override := r.URL.Query().Get("override") == "true"
	if override {
		decision := s.engine.HasPermission(r.Context(), principal.UserID,
			models.ResourceUser, models.ActionManage, authz.RequestContextFromHTTP(r))
		if !decision.Allowed {
			rw.ForbiddenWithCode(decision.Code, "override requires user management rights")
			return
		}
	}

	err := s.mfa.RemoveDevice(r.Context(), principal.UserID, deviceID, override)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceNotFound):
			rw.NotFound("device not found")
		case errors.Is(err, mfa.ErrLastDevice):
			rw.Conflict("cannot remove the last active device of an MFA-required account")
		default:
			rw.StorageError(err)
		}
		return
	}
	metrics.RecordSecurityEvent("mfa_device_removed")
	rw.NoContent()
}

// MFAUnlockDevice handles POST /api/v1/mfa/devices/{deviceID}/unlock.
// Admin-gated by the router.
func (s *Server) MFAUnlockDevice(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	deviceID := chi.URLParam(r, "deviceID")
	if err := s.mfa.AdminUnlockDevice(r.Context(), deviceID); err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			rw.NotFound("device not found")
			return
		}
		rw.StorageError(err)
		return
	}
	metrics.RecordSecurityEvent("mfa_device_unlocked")
	rw.Success(map[string]string{"status": "unlocked"})
}
