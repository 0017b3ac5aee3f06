// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/staynest/stayguard/internal/logging"
)

// Lockout errors.
var (
	// ErrLockoutNotFound is returned when no lockout entry exists.
	ErrLockoutNotFound = errors.New("lockout entry not found")

	// ErrAccountLocked is returned when authentication is blocked by an
	// active lockout.
	ErrAccountLocked = errors.New("account temporarily locked due to too many failed attempts")
)

// LockoutConfig holds account lockout configuration.
type LockoutConfig struct {
	// MaxAttempts is the number of failed attempts before lockout.
	MaxAttempts int `json:"max_attempts"`

	// LockoutDuration is the fixed lock window.
	LockoutDuration time.Duration `json:"lockout_duration"`

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// Enabled controls whether lockout is active.
	Enabled bool `json:"enabled"`
}

// DefaultLockoutConfig returns the default policy: five attempts, then
// a 24 hour lock.
func DefaultLockoutConfig() *LockoutConfig {
	return &LockoutConfig{
		MaxAttempts:     5,
		LockoutDuration: 24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		Enabled:         true,
	}
}

// LockoutEntry tracks failed authentication attempts for one account.
type LockoutEntry struct {
	Subject        string    `json:"subject"`
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	LockedUntil    time.Time `json:"locked_until"`
	LastFailedIP   string    `json:"last_failed_ip,omitempty"`
}

// IsLocked reports whether the entry is inside its lock window.
// Lockouts self-clear once the window elapses.
func (e *LockoutEntry) IsLocked(now time.Time) bool {
	return now.Before(e.LockedUntil)
}

// LockoutStore persists lockout state.
type LockoutStore interface {
	GetEntry(ctx context.Context, subject string) (*LockoutEntry, error)
	SaveEntry(ctx context.Context, entry *LockoutEntry) error
	DeleteEntry(ctx context.Context, subject string) error
	CleanupExpired(ctx context.Context) (int, error)
}

// LockoutManager enforces the account lockout policy. Counter updates
// for one subject are serialized so concurrent failures never
// under-count.
type LockoutManager struct {
	config *LockoutConfig
	store  LockoutStore

	mu       sync.Mutex
	subjects map[string]*sync.Mutex

	onLockout func(entry *LockoutEntry)
}

// NewLockoutManager creates a lockout manager.
func NewLockoutManager(store LockoutStore, config *LockoutConfig) *LockoutManager {
	if config == nil {
		config = DefaultLockoutConfig()
	}
	return &LockoutManager{
		config:   config,
		store:    store,
		subjects: make(map[string]*sync.Mutex),
	}
}

// SetOnLockout registers a callback fired when an account locks.
func (m *LockoutManager) SetOnLockout(fn func(entry *LockoutEntry)) {
	m.onLockout = fn
}

// subjectLock returns the per-subject mutex, creating it on first use.
func (m *LockoutManager) subjectLock(subject string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.subjects[subject]
	if !ok {
		lock = &sync.Mutex{}
		m.subjects[subject] = lock
	}
	return lock
}

// CheckLocked reports whether the subject is currently locked and the
// remaining lock time.
func (m *LockoutManager) CheckLocked(ctx context.Context, subject string) (bool, time.Duration, error) {
	if !m.config.Enabled {
		return false, 0, nil
	}

	entry, err := m.store.GetEntry(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrLockoutNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("check lockout: %w", err)
	}

	now := time.Now()
	if !entry.IsLocked(now) {
		return false, 0, nil
	}
	return true, entry.LockedUntil.Sub(now), nil
}

// RecordFailedAttempt counts one failed attempt. The threshold attempt
// locks the account for the full window and resets the counter. An
// attempt during an active lock is rejected immediately with the
// remaining time.
func (m *LockoutManager) RecordFailedAttempt(ctx context.Context, subject, ip string) (locked bool, remaining time.Duration, err error) {
	if !m.config.Enabled {
		return false, 0, nil
	}

	lock := m.subjectLock(subject)
	lock.Lock()
	defer lock.Unlock()

	entry, err := m.store.GetEntry(ctx, subject)
	if err != nil {
		if !errors.Is(err, ErrLockoutNotFound) {
			return false, 0, fmt.Errorf("record failed attempt: %w", err)
		}
		entry = &LockoutEntry{Subject: subject}
	}

	now := time.Now()
	if entry.IsLocked(now) {
		return true, entry.LockedUntil.Sub(now), nil
	}

	entry.FailedAttempts++
	entry.LastAttempt = now
	entry.LastFailedIP = ip

	if entry.FailedAttempts < m.config.MaxAttempts {
		if err := m.store.SaveEntry(ctx, entry); err != nil {
			return false, 0, fmt.Errorf("record failed attempt: %w", err)
		}
		return false, 0, nil
	}

	entry.LockedUntil = now.Add(m.config.LockoutDuration)
	entry.FailedAttempts = 0

	logging.Warn().
		Str("subject", logging.SanitizeUserID(subject)).
		Dur("duration", m.config.LockoutDuration).
		Msg("account locked")

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		return false, 0, fmt.Errorf("record lockout: %w", err)
	}
	if m.onLockout != nil {
		go m.onLockout(entry)
	}
	return true, m.config.LockoutDuration, nil
}

// RecordSuccess clears failure state after a verified successful
// authentication.
func (m *LockoutManager) RecordSuccess(ctx context.Context, subject string) error {
	if !m.config.Enabled {
		return nil
	}
	if err := m.store.DeleteEntry(ctx, subject); err != nil && !errors.Is(err, ErrLockoutNotFound) {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

// ClearLockout is the administrative override that lifts a lock before
// its window elapses.
func (m *LockoutManager) ClearLockout(ctx context.Context, subject string) error {
	if err := m.store.DeleteEntry(ctx, subject); err != nil && !errors.Is(err, ErrLockoutNotFound) {
		return fmt.Errorf("clear lockout: %w", err)
	}
	logging.Info().Str("subject", logging.SanitizeUserID(subject)).Msg("lockout cleared by admin")
	return nil
}

// Sweep removes expired lockout entries. Run periodically.
func (m *LockoutManager) Sweep(ctx context.Context) {
	count, err := m.store.CleanupExpired(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("lockout cleanup failed")
		return
	}
	if count > 0 {
		logging.Debug().Int("count", count).Msg("removed expired lockout entries")
	}
}

// Config returns the active configuration.
func (m *LockoutManager) Config() LockoutConfig {
	return *m.config
}

// MemoryLockoutStore keeps lockout entries in memory. Suitable for
// tests and single-instance deployments.
type MemoryLockoutStore struct {
	mu      sync.RWMutex
	entries map[string]*LockoutEntry
}

// NewMemoryLockoutStore creates an in-memory lockout store.
func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{entries: make(map[string]*LockoutEntry)}
}

// GetEntry retrieves a lockout entry.
func (s *MemoryLockoutStore) GetEntry(ctx context.Context, subject string) (*LockoutEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[subject]
	if !ok {
		return nil, ErrLockoutNotFound
	}
	copied := *entry
	return &copied, nil
}

// SaveEntry persists a lockout entry.
func (s *MemoryLockoutStore) SaveEntry(ctx context.Context, entry *LockoutEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entry.Subject] = &copied
	return nil
}

// DeleteEntry removes a lockout entry.
func (s *MemoryLockoutStore) DeleteEntry(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[subject]; !ok {
		return ErrLockoutNotFound
	}
	delete(s.entries, subject)
	return nil
}

// CleanupExpired removes entries that are unlocked and stale.
func (s *MemoryLockoutStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	threshold := now.Add(-24 * time.Hour)
	count := 0
	for subject, entry := range s.entries {
		if !entry.IsLocked(now) && entry.LastAttempt.Before(threshold) {
			delete(s.entries, subject)
			count++
		}
	}
	return count, nil
}

// WriteLockedResponse writes the 423 response for an active account or
// device lock, carrying the remaining lock time.
func WriteLockedResponse(w http.ResponseWriter, remaining time.Duration) {
	minutes := int(remaining.Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(remaining.Seconds())))
	writeErrorEnvelope(w, http.StatusLocked, "ACCOUNT_LOCKED",
		fmt.Sprintf("Too many failed attempts. Locked for another %d minutes.", minutes),
		map[string]interface{}{"remaining_minutes": minutes})
}

// LockoutMiddleware rejects requests from locked accounts before
// authentication work happens.
func LockoutMiddleware(manager *LockoutManager, subjectFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := subjectFn(r)
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			locked, remaining, err := manager.CheckLocked(r.Context(), subject)
			if err != nil {
				logging.Error().Err(err).Msg("lockout check failed")
				next.ServeHTTP(w, r)
				return
			}
			if locked {
				WriteLockedResponse(w, remaining)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
