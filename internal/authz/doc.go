// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package authz implements the authorization core: permission
// resolution, decision evaluation, and role hierarchy management.
//
// The package is organized around four collaborators:
//
//   - Catalog caches the active role set with a TTL and serves
//     name and ID lookups for the hierarchy manager.
//   - Resolver reduces a user's role assignments to one effective
//     permission per (resource, action), keeping the most permissive
//     scope when several roles grant the same pair.
//   - Engine evaluates a single (resource, action, context) request
//     against the resolved set: scope check, condition check, MFA
//     requirement flag. Denials are verdict values, never errors.
//   - Hierarchy answers user-management questions: highest role,
//     downward-only management, role assignability.
//
// All reads go through TTL caches; any mutation to roles, permissions,
// or assignments must call the matching invalidation hook so stale
// grants never outlive the change by more than the cache TTL.
package authz
