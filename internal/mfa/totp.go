// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package mfa implements multi-factor authentication: TOTP device
// enrollment and verification, backup codes, device lockout, and the
// session-level verification window.
package mfa

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpSkew is the accepted clock drift in 30 second steps on either
// side of the current one.
const totpSkew = 2

// generateTOTPKey creates a new TOTP secret and provisioning URI for
// an authenticator app.
func generateTOTPKey(issuer, accountName string) (secret, provisioningURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// validateTOTP checks a 6-digit code against the secret, tolerating
// totpSkew steps of clock drift in both directions.
func validateTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// backupCodeCount is how many single-use backup codes a setup issues.
const backupCodeCount = 10

// generateBackupCode returns one random 8-character hex code.
func generateBackupCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
