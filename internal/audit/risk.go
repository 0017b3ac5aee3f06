// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package audit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/staynest/stayguard/internal/models"
)

// actionRisk is the fixed classification of action kinds. Risk is
// computed from this table, never chosen by the caller.
var actionRisk = map[Action]models.RiskLevel{
	ActionLogin:           models.RiskLow,
	ActionLogout:          models.RiskLow,
	ActionLoginFailed:     models.RiskMedium,
	ActionAccessDenied:    models.RiskMedium,
	ActionMFASetup:        models.RiskMedium,
	ActionMFAVerified:     models.RiskLow,
	ActionMFAFailed:       models.RiskMedium,
	ActionMFADeviceLocked: models.RiskHigh,
	ActionAccountLocked:   models.RiskHigh,

	ActionPermissionGranted: models.RiskHigh,
	ActionPermissionRevoked: models.RiskHigh,
	ActionRoleAssigned:      models.RiskHigh,
	ActionRoleRevoked:       models.RiskHigh,
	ActionUserModified:      models.RiskMedium,
	ActionUserCreated:       models.RiskMedium,
	ActionDataExport:        models.RiskHigh,

	ActionUserDeleted:       models.RiskCritical,
	ActionConfigChanged:     models.RiskCritical,
	ActionAdminOverride:     models.RiskCritical,
	ActionAccountUnlocked:   models.RiskHigh,
	ActionMFADeviceRemoved:  models.RiskHigh,
	ActionMFADeviceUnlocked: models.RiskHigh,
}

// ClassifyAction returns the base risk level for an action kind.
// Unknown actions classify as medium.
func ClassifyAction(action Action) models.RiskLevel {
	if level, ok := actionRisk[action]; ok {
		return level
	}
	return models.RiskMedium
}

// injectionPatterns are heuristics over the sanitized request snapshot.
// A match escalates risk and records a threat indicator; it does not
// block the action.
var injectionPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"script_tag", regexp.MustCompile(`(?i)<\s*script`)},
	{"js_eval", regexp.MustCompile(`(?i)\beval\s*\(`)},
	{"js_protocol", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"sql_union", regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
	{"sql_drop", regexp.MustCompile(`(?i)\bdrop\s+table\b`)},
	{"sql_comment", regexp.MustCompile(`(--|/\*)\s*$`)},
	{"sql_or_true", regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`)},
	{"path_traversal", regexp.MustCompile(`\.\./\.\./`)},
	{"template_expr", regexp.MustCompile(`\{\{.*\}\}|\$\{.*\}`)},
}

// DetectThreatIndicators scans the flattened request snapshot for
// injection-style content.
func DetectThreatIndicators(request map[string]interface{}) []string {
	if len(request) == 0 {
		return nil
	}
	flat := flattenValues(request)
	var indicators []string
	seen := make(map[string]bool)
	for _, value := range flat {
		for _, p := range injectionPatterns {
			if seen[p.name] {
				continue
			}
			if p.pattern.MatchString(value) {
				indicators = append(indicators, p.name)
				seen[p.name] = true
			}
		}
	}
	return indicators
}

// ComputeRisk combines the action classification with the snapshot
// heuristics: any indicator raises the level to at least high, two or
// more to critical.
func ComputeRisk(action Action, request map[string]interface{}) (models.RiskLevel, []string) {
	level := ClassifyAction(action)
	indicators := DetectThreatIndicators(request)
	switch {
	case len(indicators) >= 2:
		level = models.RiskCritical
	case len(indicators) == 1 && level.Rank() < models.RiskHigh.Rank():
		level = models.RiskHigh
	}
	return level, indicators
}

// flattenValues collects every leaf value of a nested snapshot as a string.
func flattenValues(m map[string]interface{}) []string {
	var out []string
	for _, v := range m {
		switch val := v.(type) {
		case string:
			out = append(out, val)
		case map[string]interface{}:
			out = append(out, flattenValues(val)...)
		case []interface{}:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out = append(out, s)
				} else {
					out = append(out, fmt.Sprint(item))
				}
			}
		default:
			out = append(out, strings.TrimSpace(fmt.Sprint(val)))
		}
	}
	return out
}
