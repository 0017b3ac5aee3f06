// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

// Package auth provides sessions, tokens, account lockout, and request
// rate limiting for the security core.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MFAVerificationWindow is how long a completed MFA verification stays
// current on a session.
const MFAVerificationWindow = 30 * time.Minute

// ErrSessionNotFound is returned when a session does not exist or has
// expired.
var ErrSessionNotFound = errors.New("session not found")

// Session is one authenticated session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleIDs   []string  `json:"role_ids"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// MFAVerifiedAt is the time of the last successful MFA
	// verification on this session. Zero means never verified.
	MFAVerifiedAt time.Time `json:"mfa_verified_at,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Expired reports whether the session itself has expired.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// MFAVerificationCurrent reports whether an MFA verification happened
// within the verification window.
func (s *Session) MFAVerificationCurrent(now time.Time) bool {
	if s.MFAVerifiedAt.IsZero() {
		return false
	}
	return now.Sub(s.MFAVerifiedAt) <= MFAVerificationWindow
}

// NewSession creates a session for a user.
func NewSession(userID string, roleIDs []string, lifetime time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		RoleIDs:   roleIDs,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
}

// SessionStore persists sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in memory. Suitable for tests and
// single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

// GetSession retrieves a session. Expired sessions are treated as
// missing.
func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	out := *session
	out.RoleIDs = append([]string(nil), session.RoleIDs...)
	return &out, nil
}

// SaveSession persists a session.
func (s *MemorySessionStore) SaveSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	stored.RoleIDs = append([]string(nil), session.RoleIDs...)
	s.sessions[session.ID] = &stored
	return nil
}

// DeleteSession removes a session.
func (s *MemorySessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

const sessionKeyPrefix = "session:"

// BadgerSessionStore persists sessions in BadgerDB with TTL expiry.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore creates a BadgerDB-backed session store.
func NewBadgerSessionStore(db *badger.DB) *BadgerSessionStore {
	return &BadgerSessionStore{db: db}
}

// GetSession retrieves a session by ID.
func (s *BadgerSessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// SaveSession persists a session with a Badger TTL matching its expiry.
func (s *BadgerSessionStore) SaveSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+session.ID), data)
		if ttl := time.Until(session.ExpiresAt); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// DeleteSession removes a session.
func (s *BadgerSessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionKeyPrefix + id))
	})
}
