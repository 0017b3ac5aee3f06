// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package mfa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// Policy constants.
const (
	// MaxFailedAttempts locks a device on the Nth consecutive failure.
	MaxFailedAttempts = 5
	// DeviceLockDuration is the device lock window.
	DeviceLockDuration = 30 * time.Minute
)

// Service errors.
var (
	ErrNoUsableDevice  = errors.New("no usable mfa device")
	ErrDeviceLocked    = errors.New("mfa device locked")
	ErrLastDevice      = errors.New("cannot remove the last active device of an mfa-required user")
	ErrAlreadyVerified = errors.New("device already verified")
)

// RoleLookup resolves held roles for the MFA requirement check.
// *authz.Catalog satisfies it.
type RoleLookup interface {
	RoleByID(ctx context.Context, id string) (*models.Role, error)
}

// SetupResult is returned once at device enrollment. The plaintext
// backup codes and provisioning secret never appear again.
type SetupResult struct {
	DeviceID        string   `json:"device_id"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// VerifyResult is the verdict of one verification attempt.
type VerifyResult struct {
	Success           bool          `json:"success"`
	AttemptsRemaining int           `json:"attempts_remaining"`
	Locked            bool          `json:"locked"`
	LockedFor         time.Duration `json:"locked_for,omitempty"`
	UsedBackupCode    bool          `json:"used_backup_code,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// Status reports a user's MFA posture for the role-driven gate.
type Status struct {
	Required            bool `json:"required"`
	HasActiveDevice     bool `json:"has_active_device"`
	Verified            bool `json:"verified"`
	VerificationExpired bool `json:"verification_expired"`
	// SetupRequired is the hard block: an MFA-required role with no
	// active verified device.
	SetupRequired bool `json:"setup_required"`
}

// Service implements MFA enrollment, verification, and the device
// state machine. Failure counters for one device are serialized so
// concurrent attempts never under-count.
type Service struct {
	devices  store.DeviceStore
	users    store.UserDirectory
	sessions auth.SessionStore
	roles    RoleLookup
	issuer   string
	seclog   *logging.SecurityLogger
	now      func() time.Time

	mu          sync.Mutex
	deviceLocks map[string]*sync.Mutex
}

// NewService creates the MFA service. issuer names this deployment in
// provisioning URIs.
func NewService(devices store.DeviceStore, users store.UserDirectory, sessions auth.SessionStore, roles RoleLookup, issuer string) *Service {
	if issuer == "" {
		issuer = "StayNest"
	}
	return &Service{
		devices:     devices,
		users:       users,
		sessions:    sessions,
		roles:       roles,
		issuer:      issuer,
		seclog:      logging.NewSecurityLogger("mfa"),
		now:         time.Now,
		deviceLocks: make(map[string]*sync.Mutex),
	}
}

// deviceLock returns the per-device mutex, creating it on first use.
func (s *Service) deviceLock(deviceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.deviceLocks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		s.deviceLocks[deviceID] = lock
	}
	return lock
}

// SetupDevice enrolls a new device in the unverified state and returns
// the provisioning URI plus single-use backup codes.
func (s *Service) SetupDevice(ctx context.Context, userID string, deviceType models.DeviceType, name string) (*SetupResult, error) {
	if !deviceType.IsValid() {
		return nil, fmt.Errorf("setup device: unknown device type %q", deviceType)
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("setup device: %w", err)
	}

	secret, uri, err := generateTOTPKey(s.issuer, userID)
	if err != nil {
		return nil, fmt.Errorf("setup device: %w", err)
	}

	plaintext := make([]string, 0, backupCodeCount)
	hashed := make([]models.BackupCode, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("setup device: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("setup device: %w", err)
		}
		plaintext = append(plaintext, code)
		hashed = append(hashed, models.BackupCode{Hash: string(hash)})
	}

	now := s.now()
	device := &models.MFADevice{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        deviceType,
		Name:        name,
		Secret:      secret,
		BackupCodes: hashed,
		IsActive:    true,
		IsVerified:  false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.devices.SaveDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("setup device: %w", err)
	}

	return &SetupResult{
		DeviceID:        device.ID,
		ProvisioningURI: uri,
		BackupCodes:     plaintext,
	}, nil
}

// VerifySetup activates an unverified device on its first valid code.
// The user's first verified device becomes primary and switches the
// user's MFAEnabled flag on.
func (s *Service) VerifySetup(ctx context.Context, deviceID, code string) (*VerifyResult, error) {
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("verify setup: %w", err)
	}
	if device.IsVerified {
		return nil, ErrAlreadyVerified
	}

	now := s.now()
	if !validateTOTP(code, device.Secret, now) {
		s.seclog.LogMFAFailure(device.UserID, device.ID, "invalid setup code")
		return &VerifyResult{Success: false, Reason: "invalid code"}, nil
	}

	device.IsVerified = true
	device.UpdatedAt = now

	siblings, err := s.devices.ListDevicesForUser(ctx, device.UserID)
	if err != nil {
		return nil, fmt.Errorf("verify setup: %w", err)
	}
	hasPrimary := false
	for _, d := range siblings {
		if d.ID != device.ID && d.IsPrimary {
			hasPrimary = true
		}
	}
	if !hasPrimary {
		device.IsPrimary = true
	}

	if err := s.devices.SaveDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("verify setup: %w", err)
	}

	user, err := s.users.GetUser(ctx, device.UserID)
	if err != nil {
		return nil, fmt.Errorf("verify setup: %w", err)
	}
	if !user.MFAEnabled {
		user.MFAEnabled = true
		if err := s.users.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("verify setup: %w", err)
		}
	}

	return &VerifyResult{Success: true}, nil
}

// Verify checks a rolling TOTP code or an unused backup code against
// one of the user's devices. deviceID is optional; when empty the
// primary, then any usable, device is tried. sessionID, when given,
// gets its MFA verification timestamp refreshed on success.
func (s *Service) Verify(ctx context.Context, userID, sessionID, code, deviceID string) (*VerifyResult, error) {
	device, err := s.pickDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	lock := s.deviceLock(device.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock so concurrent attempts see each other's
	// counter updates.
	device, err = s.devices.GetDevice(ctx, device.ID)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	now := s.now()
	if device.Locked(now) {
		return &VerifyResult{
			Success:   false,
			Locked:    true,
			LockedFor: device.LockedUntil.Sub(now),
			Reason:    "device locked",
		}, nil
	}
	if !device.Usable(now) {
		return nil, ErrNoUsableDevice
	}

	usedBackup := false
	ok := validateTOTP(code, device.Secret, now)
	if !ok {
		ok, usedBackup = s.tryBackupCode(device, code, now)
	}

	if !ok {
		return s.recordFailure(ctx, device, now)
	}
	return s.recordSuccess(ctx, device, sessionID, usedBackup, now)
}

// pickDevice selects the device to verify against.
func (s *Service) pickDevice(ctx context.Context, userID, deviceID string) (*models.MFADevice, error) {
	if deviceID != "" {
		device, err := s.devices.GetDevice(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		if device.UserID != userID {
			return nil, store.ErrDeviceNotFound
		}
		return device, nil
	}

	devices, err := s.devices.ListDevicesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	now := s.now()
	var fallback *models.MFADevice
	for _, d := range devices {
		if !d.Usable(now) {
			continue
		}
		if d.IsPrimary {
			return d, nil
		}
		if fallback == nil {
			fallback = d
		}
	}
	if fallback == nil {
		return nil, ErrNoUsableDevice
	}
	return fallback, nil
}

// tryBackupCode consumes a matching unused backup code.
func (s *Service) tryBackupCode(device *models.MFADevice, code string, now time.Time) (ok, usedBackup bool) {
	for i := range device.BackupCodes {
		bc := &device.BackupCodes[i]
		if bc.Used {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(bc.Hash), []byte(code)) == nil {
			bc.Used = true
			bc.UsedAt = now
			return true, true
		}
	}
	return false, false
}

// recordFailure increments the counter and locks the device on the
// threshold failure.
func (s *Service) recordFailure(ctx context.Context, device *models.MFADevice, now time.Time) (*VerifyResult, error) {
	device.FailedAttempts++
	device.UpdatedAt = now

	result := &VerifyResult{
		Success:           false,
		AttemptsRemaining: MaxFailedAttempts - device.FailedAttempts,
		Reason:            "invalid code",
	}

	if device.FailedAttempts >= MaxFailedAttempts {
		device.LockedUntil = now.Add(DeviceLockDuration)
		failed := device.FailedAttempts
		device.FailedAttempts = 0
		result.Locked = true
		result.LockedFor = DeviceLockDuration
		result.AttemptsRemaining = 0
		result.Reason = "device locked"
		s.seclog.LogDeviceLocked(device.UserID, device.ID, failed)
	} else {
		s.seclog.LogMFAFailure(device.UserID, device.ID, "invalid code")
	}

	if err := s.devices.SaveDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("record mfa failure: %w", err)
	}
	return result, nil
}

// recordSuccess resets the counter, records usage, and refreshes the
// session verification timestamp.
func (s *Service) recordSuccess(ctx context.Context, device *models.MFADevice, sessionID string, usedBackup bool, now time.Time) (*VerifyResult, error) {
	device.FailedAttempts = 0
	device.LockedUntil = time.Time{}
	device.UsageCount++
	device.LastUsed = now
	device.UpdatedAt = now
	if err := s.devices.SaveDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("record mfa success: %w", err)
	}

	if sessionID != "" && s.sessions != nil {
		session, err := s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			// The verification succeeded but the caller's session
			// keeps its stale stamp. Security-relevant, so it is
			// logged rather than dropped.
			logging.Warn().Err(err).
				Str("user_id", logging.SanitizeUserID(device.UserID)).
				Msg("mfa verification not stamped on session")
		} else {
			session.MFAVerifiedAt = now
			if err := s.sessions.SaveSession(ctx, session); err != nil {
				logging.Error().Err(err).Msg("stamping session mfa verification failed")
			}
		}
	}

	return &VerifyResult{
		Success:           true,
		AttemptsRemaining: MaxFailedAttempts,
		UsedBackupCode:    usedBackup,
	}, nil
}

// GetStatus reports the user's MFA posture. verifiedAt is the caller's
// session verification timestamp (zero when never verified).
func (s *Service) GetStatus(ctx context.Context, userID string, verifiedAt time.Time) (*Status, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mfa status: %w", err)
	}

	required, err := s.requiredByRole(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("mfa status: %w", err)
	}

	devices, err := s.devices.ListDevicesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mfa status: %w", err)
	}
	now := s.now()
	hasActive := false
	for _, d := range devices {
		if d.IsActive && d.IsVerified {
			hasActive = true
			break
		}
	}

	verified := !verifiedAt.IsZero() && now.Sub(verifiedAt) <= auth.MFAVerificationWindow
	expired := !verifiedAt.IsZero() && !verified

	return &Status{
		Required:            required,
		HasActiveDevice:     hasActive,
		Verified:            verified,
		VerificationExpired: expired,
		SetupRequired:       required && !hasActive,
	}, nil
}

// requiredByRole reports whether any held role demands MFA.
func (s *Service) requiredByRole(ctx context.Context, user *models.User) (bool, error) {
	for _, roleID := range user.AllRoleIDs() {
		role, err := s.roles.RoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrRoleNotFound) {
				continue
			}
			return false, err
		}
		if role.RequiresMFA() {
			return true, nil
		}
	}
	return false, nil
}

// RemoveDevice deactivates a device. Removing the last active device
// of an MFA-required user needs adminOverride and flips the user's
// MFAEnabled flag off; otherwise another active device is promoted to
// primary when the primary is removed.
func (s *Service) RemoveDevice(ctx context.Context, userID, deviceID string, adminOverride bool) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	if device.UserID != userID {
		return store.ErrDeviceNotFound
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}

	devices, err := s.devices.ListDevicesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	var others []*models.MFADevice
	for _, d := range devices {
		if d.ID != deviceID && d.IsActive && d.IsVerified {
			others = append(others, d)
		}
	}

	if len(others) == 0 {
		required, err := s.requiredByRole(ctx, user)
		if err != nil {
			return fmt.Errorf("remove device: %w", err)
		}
		if required && !adminOverride {
			return ErrLastDevice
		}
		// MFAEnabled must never stay true with zero devices.
		if user.MFAEnabled {
			user.MFAEnabled = false
			if err := s.users.SaveUser(ctx, user); err != nil {
				return fmt.Errorf("remove device: %w", err)
			}
		}
	} else if device.IsPrimary {
		promoted := others[0]
		promoted.IsPrimary = true
		promoted.UpdatedAt = s.now()
		if err := s.devices.SaveDevice(ctx, promoted); err != nil {
			return fmt.Errorf("remove device: %w", err)
		}
	}

	if err := s.devices.DeleteDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	return nil
}

// AdminUnlockDevice clears a device lock before its window elapses.
func (s *Service) AdminUnlockDevice(ctx context.Context, deviceID string) error {
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("unlock device: %w", err)
	}
	device.LockedUntil = time.Time{}
	device.FailedAttempts = 0
	device.UpdatedAt = s.now()
	if err := s.devices.SaveDevice(ctx, device); err != nil {
		return fmt.Errorf("unlock device: %w", err)
	}
	logging.Info().Str("device_id", deviceID).Msg("device unlocked by admin")
	return nil
}
