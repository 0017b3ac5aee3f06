// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package models

import (
	"net"
	"time"
)

// PermissionConditions restrict when and from where a permission applies.
// Zero values mean unrestricted.
type PermissionConditions struct {
	// TimeStart/TimeEnd bound the allowed hour-of-day window [start, end).
	// A window may wrap midnight (e.g. start=22, end=6). Both nil means
	// no time restriction.
	TimeStart *int `json:"time_start,omitempty"`
	TimeEnd   *int `json:"time_end,omitempty"`

	// AllowedDays lists permitted weekdays (time.Weekday values). Empty
	// means every day.
	AllowedDays []time.Weekday `json:"allowed_days,omitempty"`

	// AllowedIPs and BlockedIPs hold IPs or CIDR ranges. A blocked match
	// wins over an allowed match.
	AllowedIPs []string `json:"allowed_ips,omitempty"`
	BlockedIPs []string `json:"blocked_ips,omitempty"`

	// ReadFields/WriteFields restrict which fields the holder may read
	// or write on the resource. Empty means all fields.
	ReadFields  []string `json:"read_fields,omitempty"`
	WriteFields []string `json:"write_fields,omitempty"`
}

// IsZero reports whether no condition is set.
func (c *PermissionConditions) IsZero() bool {
	return c.TimeStart == nil && c.TimeEnd == nil &&
		len(c.AllowedDays) == 0 &&
		len(c.AllowedIPs) == 0 && len(c.BlockedIPs) == 0 &&
		len(c.ReadFields) == 0 && len(c.WriteFields) == 0
}

// HourAllowed reports whether the given hour falls inside the allowed
// window, honoring wrap-around windows such as 22..6.
func (c *PermissionConditions) HourAllowed(hour int) bool {
	if c.TimeStart == nil || c.TimeEnd == nil {
		return true
	}
	start, end := *c.TimeStart, *c.TimeEnd
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Wrap-around window.
	return hour >= start || hour < end
}

// DayAllowed reports whether the given weekday is permitted.
func (c *PermissionConditions) DayAllowed(day time.Weekday) bool {
	if len(c.AllowedDays) == 0 {
		return true
	}
	for _, d := range c.AllowedDays {
		if d == day {
			return true
		}
	}
	return false
}

// IPAllowed evaluates the allow/deny lists. A blocked match wins over an
// allowed match. With no lists configured, every IP passes. An
// unparseable client IP fails closed when any list is configured.
func (c *PermissionConditions) IPAllowed(clientIP string) bool {
	if len(c.AllowedIPs) == 0 && len(c.BlockedIPs) == 0 {
		return true
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}

	if matchesIPList(ip, c.BlockedIPs) {
		return false
	}

	if len(c.AllowedIPs) == 0 {
		return true
	}
	return matchesIPList(ip, c.AllowedIPs)
}

// matchesIPList reports whether ip matches any entry (exact IP or CIDR).
func matchesIPList(ip net.IP, entries []string) bool {
	for _, entry := range entries {
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if cidr.Contains(ip) {
				return true
			}
			continue
		}
		if other := net.ParseIP(entry); other != nil && other.Equal(ip) {
			return true
		}
	}
	return false
}

// Permission grants an action on a resource at a scope, optionally
// restricted by conditions.
type Permission struct {
	ID string `json:"id"`

	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Scope    Scope    `json:"scope"`

	Conditions PermissionConditions `json:"conditions"`

	RiskLevel        RiskLevel `json:"risk_level"`
	RequiresMFA      bool      `json:"requires_mfa"`
	RequiresApproval bool      `json:"requires_approval"`

	// IsSystemPermission marks permissions that cannot be deleted.
	IsSystemPermission bool `json:"is_system_permission"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the resource:action identity used by the resolver.
func (p *Permission) Key() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// PermissionKey builds a resolver key from parts.
func PermissionKey(resource Resource, action Action) string {
	return string(resource) + ":" + string(action)
}
