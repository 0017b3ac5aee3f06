// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"Password", true},
		{"user_password", true},
		{"access_token", true},
		{"api_key", true},
		{"client_secret", true},
		{"Authorization", true},
		{"backup_code", true},
		{"user_id", false},
		{"resource", false},
		{"campus_id", false},
	}

	for _, tt := range tests {
		if got := SensitiveKey(tt.key); got != tt.want {
			t.Errorf("SensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestMaskFields(t *testing.T) {
	in := map[string]interface{}{
		"user_id":  "user-1",
		"password": "hunter2",
		"nested": map[string]interface{}{
			"api_key": "abc",
			"count":   3,
		},
	}

	out := MaskFields(in)

	if out["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", out["user_id"])
	}
	if out["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want [REDACTED]", out["password"])
	}
	nested, ok := out["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("nested field type = %T, want map", out["nested"])
	}
	if nested["api_key"] != "[REDACTED]" {
		t.Errorf("nested api_key = %v, want [REDACTED]", nested["api_key"])
	}
	if nested["count"] != 3 {
		t.Errorf("nested count = %v, want 3", nested["count"])
	}

	// Input must stay untouched.
	if in["password"] != "hunter2" {
		t.Errorf("input mutated: password = %v", in["password"])
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"short", "***"},
		{"abcdefghijkl", "***"},
		{"abcdefghijklmnop", "abcd...mnop"},
	}

	for _, tt := range tests {
		if got := SanitizeToken(tt.token); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	if got := SanitizeError("invalid password for user"); got != "security error" {
		t.Errorf("SanitizeError(sensitive) = %q, want %q", got, "security error")
	}
	if got := SanitizeError("store unavailable"); got != "store unavailable" {
		t.Errorf("SanitizeError(plain) = %q, want unchanged", got)
	}
	long := strings.Repeat("x", 300)
	if got := SanitizeError(long); len(got) != 203 {
		t.Errorf("SanitizeError(long) len = %d, want 203", len(got))
	}
}

func TestSecurityLoggerMasksDetails(t *testing.T) {
	var buf bytes.Buffer
	l := NewSecurityLoggerWithLogger(NewTestLogger(&buf), "authz")

	l.LogEvent(&SecurityEvent{
		Event:  "authorization_denied",
		UserID: "user-12345678",
		Reason: "scope mismatch",
		Details: map[string]interface{}{
			"session_token": "supersecretvalue",
			"resource":      "booking",
		},
	})

	out := buf.String()
	if strings.Contains(out, "supersecretvalue") {
		t.Errorf("log output leaked sensitive detail: %s", out)
	}
	if !strings.Contains(out, "authorization_denied") {
		t.Errorf("log output missing event name: %s", out)
	}
	if strings.Contains(out, "user-12345678") {
		t.Errorf("log output leaked full user ID: %s", out)
	}
}
