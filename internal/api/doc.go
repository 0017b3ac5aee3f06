// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package api exposes the StayGuard HTTP surface: authorization checks,
// permission and role administration, MFA enrollment and verification,
// and the audit query endpoint. All endpoints share the standardized
// response envelope in response.go.
package api
