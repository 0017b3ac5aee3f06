// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// Machine codes returned with structural denials.
const (
	CodePermissionNotFound = "PERMISSION_NOT_FOUND"
	CodeScopeMismatch      = "SCOPE_MISMATCH"
	CodeConditionTime      = "CONDITION_TIME"
	CodeConditionDay       = "CONDITION_DAY"
	CodeConditionIP        = "CONDITION_IP"
	CodeMFARequired        = "MFA_REQUIRED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// RequestContext carries the per-request facts a decision depends on.
type RequestContext struct {
	// TargetStateID / TargetCampusID, when supplied, name the scope
	// the request wants to act in; they must match the actor's own.
	TargetStateID  string `json:"target_state_id,omitempty"`
	TargetCampusID string `json:"target_campus_id,omitempty"`

	// TargetUserID / ResourceOwnerID identify whose records the
	// request touches, for own_records scoped permissions.
	TargetUserID    string `json:"target_user_id,omitempty"`
	ResourceOwnerID string `json:"resource_owner_id,omitempty"`

	// IPAddress is the client address, checked against IP conditions.
	IPAddress string `json:"ip_address,omitempty"`
}

// Decision is the verdict of a single authorization check. Expected
// denials are values, never errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
	// RequiresMFA is set when the matched permission is MFA-gated.
	// The engine never denies on it; the MFA gate is applied by the
	// caller.
	RequiresMFA bool `json:"requires_mfa"`
}

func deny(code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// Engine evaluates authorization requests against resolved permission
// sets. Operational failures fail closed: a broken lookup denies.
type Engine struct {
	resolver *Resolver
	users    store.UserDirectory
	seclog   *logging.SecurityLogger
	now      func() time.Time
}

// NewEngine creates an authorization engine.
func NewEngine(resolver *Resolver, users store.UserDirectory) *Engine {
	return &Engine{
		resolver: resolver,
		users:    users,
		seclog:   logging.NewSecurityLogger("authz"),
		now:      time.Now,
	}
}

// HasPermission evaluates one (resource, action, context) request.
func (e *Engine) HasPermission(ctx context.Context, userID string, resource models.Resource, action models.Action, reqCtx RequestContext) Decision {
	start := time.Now()
	d := e.evaluate(ctx, userID, resource, action, reqCtx)
	RecordDecision(string(resource), string(action), d.Allowed, d.Code, time.Since(start), false)

	if !d.Allowed {
		e.seclog.LogAuthorizationDenied(userID, string(resource), string(action), d.Reason)
	}
	return d
}

func (e *Engine) evaluate(ctx context.Context, userID string, resource models.Resource, action models.Action, reqCtx RequestContext) Decision {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		RecordError("user_lookup_error")
		logging.Ctx(ctx).Error().Err(err).Str("user_id", logging.SanitizeUserID(userID)).Msg("user lookup failed during authorization")
		return deny(CodeInternalError, "authorization unavailable")
	}

	resolved, err := e.resolver.EffectivePermissions(ctx, userID, ScopeContext{
		StateID:  user.StateID,
		CampusID: user.CampusID,
	})
	if err != nil {
		RecordError("resolver_error")
		logging.Ctx(ctx).Error().Err(err).Str("user_id", logging.SanitizeUserID(userID)).Msg("permission resolution failed")
		return deny(CodeInternalError, "authorization unavailable")
	}

	perm, ok := resolved[models.PermissionKey(resource, action)]
	if !ok {
		return deny(CodePermissionNotFound,
			fmt.Sprintf("no permission for %s on %s", action, resource))
	}

	if d := e.checkScope(user, perm.Scope, reqCtx); !d.Allowed {
		return d
	}
	if d := e.checkConditions(perm.Conditions, reqCtx); !d.Allowed {
		return d
	}

	return Decision{Allowed: true, RequiresMFA: perm.RequiresMFA}
}

// checkScope validates the request context against the permission's
// effective scope.
func (e *Engine) checkScope(user *models.User, scope models.Scope, reqCtx RequestContext) Decision {
	switch scope {
	case models.ScopeGlobal, models.ScopeNational, models.ScopePersonal:
		return Decision{Allowed: true}

	case models.ScopeState:
		if user.StateID == "" {
			return deny(CodeScopeMismatch, "user has no state assignment")
		}
		if reqCtx.TargetStateID != "" && reqCtx.TargetStateID != user.StateID {
			return deny(CodeScopeMismatch,
				fmt.Sprintf("state mismatch: permission limited to state %s", user.StateID))
		}
		return Decision{Allowed: true}

	case models.ScopeCampus:
		if user.CampusID == "" {
			return deny(CodeScopeMismatch, "user has no campus assignment")
		}
		if reqCtx.TargetCampusID != "" && reqCtx.TargetCampusID != user.CampusID {
			return deny(CodeScopeMismatch,
				fmt.Sprintf("campus mismatch: permission limited to campus %s", user.CampusID))
		}
		return Decision{Allowed: true}

	case models.ScopeOwnRecords:
		if reqCtx.TargetUserID == user.ID || reqCtx.ResourceOwnerID == user.ID {
			return Decision{Allowed: true}
		}
		return deny(CodeScopeMismatch, "permission limited to own records")

	default:
		return deny(CodeScopeMismatch, "unknown permission scope")
	}
}

// checkConditions validates time, weekday, and IP conditions.
func (e *Engine) checkConditions(cond models.PermissionConditions, reqCtx RequestContext) Decision {
	now := e.now()

	if !cond.HourAllowed(now.Hour()) {
		return deny(CodeConditionTime, "outside the allowed time window")
	}
	if !cond.DayAllowed(now.Weekday()) {
		return deny(CodeConditionDay, "not allowed on this day")
	}
	if !cond.IPAllowed(reqCtx.IPAddress) {
		return deny(CodeConditionIP, "request address not permitted")
	}
	return Decision{Allowed: true}
}
