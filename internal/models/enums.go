// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package models defines the security domain model: roles, permissions,
// role-to-permission assignments, MFA devices, and the closed enumerations
// (scope, action, risk level) the authorization engine reasons about.
//
// Scope and risk level carry an explicit total ordering via Rank(); all
// comparisons go through Rank() rather than ad hoc string-to-number maps.
package models

import "strings"

// Scope is the breadth of records a permission or role applies to.
// The order is total: global > national > state > campus > personal > own_records.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeNational   Scope = "national"
	ScopeState      Scope = "state"
	ScopeCampus     Scope = "campus"
	ScopePersonal   Scope = "personal"
	ScopeOwnRecords Scope = "own_records"
)

// scopeRanks maps each scope to its position in the total order.
// Higher rank means more permissive.
var scopeRanks = map[Scope]int{
	ScopeGlobal:     5,
	ScopeNational:   4,
	ScopeState:      3,
	ScopeCampus:     2,
	ScopePersonal:   1,
	ScopeOwnRecords: 0,
}

// Rank returns the scope's position in the total order.
// Unknown scopes rank below own_records so they never win a merge.
func (s Scope) Rank() int {
	if rank, ok := scopeRanks[s]; ok {
		return rank
	}
	return -1
}

// Outranks returns true if s is strictly more permissive than other.
func (s Scope) Outranks(other Scope) bool {
	return s.Rank() > other.Rank()
}

// IsValid returns true if the scope is a known value.
func (s Scope) IsValid() bool {
	_, ok := scopeRanks[s]
	return ok
}

// ParseScope parses a scope string, case-insensitively.
// Returns the scope and true on success.
func ParseScope(raw string) (Scope, bool) {
	s := Scope(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// Action is an operation a permission grants on a resource.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionApprove  Action = "approve"
	ActionExport   Action = "export"
	ActionManage   Action = "manage"
	ActionModerate Action = "moderate"
)

// validActions is the closed set of permission actions.
var validActions = map[Action]bool{
	ActionCreate:   true,
	ActionRead:     true,
	ActionUpdate:   true,
	ActionDelete:   true,
	ActionApprove:  true,
	ActionExport:   true,
	ActionManage:   true,
	ActionModerate: true,
}

// IsValid returns true if the action is a known value.
func (a Action) IsValid() bool {
	return validActions[a]
}

// Resource is a domain noun a permission applies to.
type Resource string

const (
	ResourceAccommodation Resource = "accommodation"
	ResourceBooking       Resource = "booking"
	ResourcePayment       Resource = "payment"
	ResourceReview        Resource = "review"
	ResourceMessage       Resource = "message"
	ResourceUser          Resource = "user"
	ResourceRole          Resource = "role"
	ResourcePermission    Resource = "permission"
	ResourceAuditLog      Resource = "audit_log"
	ResourceReport        Resource = "report"
	ResourceSystemSetting Resource = "system_setting"
)

// validResources is the closed set of domain resources.
var validResources = map[Resource]bool{
	ResourceAccommodation: true,
	ResourceBooking:       true,
	ResourcePayment:       true,
	ResourceReview:        true,
	ResourceMessage:       true,
	ResourceUser:          true,
	ResourceRole:          true,
	ResourcePermission:    true,
	ResourceAuditLog:      true,
	ResourceReport:        true,
	ResourceSystemSetting: true,
}

// IsValid returns true if the resource is a known value.
func (r Resource) IsValid() bool {
	return validResources[r]
}

// RiskLevel classifies how sensitive a permission or audited action is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskRanks orders risk levels; higher rank means more severe.
var riskRanks = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the risk level's position in the total order.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRanks[r]; ok {
		return rank
	}
	return -1
}

// AtLeast returns true if r is at least as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// IsValid returns true if the risk level is a known value.
func (r RiskLevel) IsValid() bool {
	_, ok := riskRanks[r]
	return ok
}

// MaxRisk returns the more severe of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
