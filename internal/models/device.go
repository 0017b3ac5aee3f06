// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package models

import "time"

// DeviceType identifies the kind of MFA device.
type DeviceType string

const (
	DeviceAuthenticatorApp DeviceType = "authenticator_app"
	DeviceSMS              DeviceType = "sms"
	DeviceEmail            DeviceType = "email"
	DeviceHardwareToken    DeviceType = "hardware_token"
)

// validDeviceTypes is the closed set of device types.
var validDeviceTypes = map[DeviceType]bool{
	DeviceAuthenticatorApp: true,
	DeviceSMS:              true,
	DeviceEmail:            true,
	DeviceHardwareToken:    true,
}

// IsValid returns true if the device type is a known value.
func (t DeviceType) IsValid() bool {
	return validDeviceTypes[t]
}

// DeviceState is the tagged state of an MFA device.
type DeviceState string

const (
	// DeviceUnverified: created, secret issued, never verified.
	DeviceUnverified DeviceState = "unverified"
	// DeviceActive: verified and usable.
	DeviceActive DeviceState = "active"
	// DeviceLocked: too many consecutive failed checks; time-bound.
	DeviceLocked DeviceState = "locked"
	// DeviceDeactivated: disabled by the user or an admin.
	DeviceDeactivated DeviceState = "deactivated"
)

// BackupCode is a single-use recovery code. Only the bcrypt hash is
// stored; the plaintext is shown exactly once at setup.
type BackupCode struct {
	Hash   string    `json:"hash"`
	Used   bool      `json:"used"`
	UsedAt time.Time `json:"used_at,omitempty"`
}

// MFADevice is one enrolled second factor for a user.
type MFADevice struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Type DeviceType `json:"type"`
	Name string     `json:"name"`

	// Secret is the TOTP shared secret. Write-only: excluded from JSON
	// serialization; the store persists it separately.
	Secret string `json:"-"`

	// ContactAddress holds the phone number or email for sms/email devices.
	ContactAddress string `json:"contact_address,omitempty"`

	BackupCodes []BackupCode `json:"backup_codes,omitempty"`

	IsPrimary  bool `json:"is_primary"`
	IsActive   bool `json:"is_active"`
	IsVerified bool `json:"is_verified"`

	// FailedAttempts counts consecutive failed verifications; LockedUntil
	// is set when the threshold is reached.
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until,omitempty"`

	UsageCount int       `json:"usage_count"`
	LastUsed   time.Time `json:"last_used,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the tagged device state. Lock expiry is evaluated against
// now, so a lapsed lock reads as active without a store write.
func (d *MFADevice) State(now time.Time) DeviceState {
	switch {
	case !d.IsActive && d.IsVerified:
		return DeviceDeactivated
	case !d.IsVerified:
		return DeviceUnverified
	case now.Before(d.LockedUntil):
		return DeviceLocked
	default:
		return DeviceActive
	}
}

// Locked reports whether the device lock is currently in force.
func (d *MFADevice) Locked(now time.Time) bool {
	return now.Before(d.LockedUntil)
}

// Usable reports whether the device can accept a verification attempt.
func (d *MFADevice) Usable(now time.Time) bool {
	return d.IsActive && d.IsVerified && !d.Locked(now)
}

// UnusedBackupCodes counts backup codes not yet consumed.
func (d *MFADevice) UnusedBackupCodes() int {
	n := 0
	for _, c := range d.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}
