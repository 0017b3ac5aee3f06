// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package auth

import (
	"context"
	"time"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID        string
	RoleIDs       []string
	SessionID     string
	MFAVerifiedAt time.Time
}

// MFAVerificationCurrent reports whether this principal's MFA
// verification is within the verification window.
func (p *Principal) MFAVerificationCurrent(now time.Time) bool {
	if p.MFAVerifiedAt.IsZero() {
		return false
	}
	return now.Sub(p.MFAVerifiedAt) <= MFAVerificationWindow
}

type principalKey struct{}

// ContextWithPrincipal attaches the principal to a request context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
