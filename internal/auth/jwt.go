// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the JWT claims carried on StayGuard session tokens. The
// mfa_verified_at claim lets stateless callers apply the 30 minute
// verification window without a session lookup.
type Claims struct {
	RoleIDs       []string `json:"role_ids,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	MFAVerifiedAt int64    `json:"mfa_verified_at,omitempty"`
	jwt.RegisteredClaims
}

// MFAVerificationCurrent reports whether the claim's MFA verification
// time is within the verification window.
func (c *Claims) MFAVerificationCurrent(now time.Time) bool {
	if c.MFAVerifiedAt == 0 {
		return false
	}
	return now.Sub(time.Unix(c.MFAVerifiedAt, 0)) <= MFAVerificationWindow
}

// TokenManager issues and validates HS256 session tokens.
type TokenManager struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

// NewTokenManager creates a token manager. The secret must be at least
// 32 bytes.
func NewTokenManager(secret []byte, issuer string, lifetime time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &TokenManager{
		secret:   secret,
		issuer:   issuer,
		lifetime: lifetime,
	}, nil
}

// Issue creates a signed token for the session.
func (m *TokenManager) Issue(session *Session) (string, error) {
	now := time.Now()
	claims := Claims{
		RoleIDs:   session.RoleIDs,
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			ID:        session.ID,
		},
	}
	if !session.MFAVerifiedAt.IsZero() {
		claims.MFAVerifiedAt = session.MFAVerifiedAt.Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
