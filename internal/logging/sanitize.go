// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package logging

import "strings"

// sensitiveKeyFragments are substrings that mark a field name as holding
// secret material. Any field whose lowercased name contains one of these
// is masked before it reaches a log line or an audit record.
var sensitiveKeyFragments = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"cookie",
	"backup_code",
}

// SensitiveKey reports whether a field name refers to secret material.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// MaskValue replaces a sensitive value with a fixed marker. Masking is
// total rather than partial so that value length leaks nothing.
func MaskValue() string {
	return "[REDACTED]"
}

// MaskFields returns a copy of fields with every sensitive value masked.
// Nested maps are masked recursively. The input map is never modified.
func MaskFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if SensitiveKey(k) {
			out[k] = MaskValue()
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = MaskFields(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeToken masks a token, keeping only the first and last 4
// characters. Short tokens are masked entirely.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a user ID for log privacy.
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeError replaces error text that may embed secret material with
// a generic message, and truncates long errors.
func SanitizeError(err string) string {
	lower := strings.ToLower(err)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return "security error"
		}
	}
	if len(err) > 200 {
		return err[:200] + "..."
	}
	return err
}
