// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/logging"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var envelope APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return envelope
}

func TestResponseWriterSuccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-123"))
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Success(map[string]string{"hello": "world"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	envelope := decodeEnvelope(t, rec)
	if !envelope.Success {
		t.Error("Success = false, want true")
	}
	if envelope.Error != nil {
		t.Errorf("Error = %+v, want nil", envelope.Error)
	}
	if envelope.Meta == nil || envelope.Meta.RequestID != "req-123" {
		t.Errorf("Meta = %+v, want request ID req-123", envelope.Meta)
	}
}

func TestResponseWriterError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-456"))
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Forbidden("not yours")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	envelope := decodeEnvelope(t, rec)
	if envelope.Success {
		t.Error("Success = true, want false")
	}
	if envelope.Error == nil {
		t.Fatal("Error = nil, want populated")
	}
	if envelope.Error.Code != ErrCodeForbidden {
		t.Errorf("Error.Code = %q, want %q", envelope.Error.Code, ErrCodeForbidden)
	}
	if envelope.Error.Message != "not yours" {
		t.Errorf("Error.Message = %q", envelope.Error.Message)
	}
	if envelope.Error.RequestID != "req-456" {
		t.Errorf("Error.RequestID = %q, want req-456", envelope.Error.RequestID)
	}
}

func TestValidationErrorCarriesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	details := []map[string]string{{"field": "user_id", "message": "user_id is required"}}
	NewResponseWriter(rec, req).ValidationError("request validation failed", details)

	envelope := decodeEnvelope(t, rec)
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("Error = %+v, want code %s", envelope.Error, ErrCodeValidationFailed)
	}
	if envelope.Error.Details == nil {
		t.Error("Error.Details = nil, want validation details")
	}
}
