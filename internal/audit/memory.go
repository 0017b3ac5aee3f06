// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/staynest/stayguard/internal/models"
)

// ErrEntryNotFound is returned for lookups of unknown entry IDs.
var ErrEntryNotFound = errors.New("audit entry not found")

// MemoryStore is the in-memory Store used by tests and single-binary
// dev mode. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
}

// NewMemoryStore creates a bounded in-memory store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		entries: make([]Entry, 0, maxLen),
		maxLen:  maxLen,
	}
}

// Save appends an entry, evicting the oldest tenth when full.
func (s *MemoryStore) Save(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.maxLen {
		s.entries = s.entries[s.maxLen/10:]
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Query returns matching entries, most recent first when OrderDesc.
func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	if filter.OrderDesc {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if matchesFilter(&s.entries[i], &filter) {
				matched = append(matched, s.entries[i])
			}
		}
	} else {
		for i := range s.entries {
			if matchesFilter(&s.entries[i], &filter) {
				matched = append(matched, s.entries[i])
			}
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of matching entries.
func (s *MemoryStore) Count(_ context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for i := range s.entries {
		if matchesFilter(&s.entries[i], &filter) {
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes entries whose retention date has passed.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var deleted int64
	for i := range s.entries {
		if s.entries[i].RetentionDate.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, s.entries[i])
	}
	s.entries = kept
	return deleted, nil
}

// AppendThreatIndicator adds an indicator to an existing entry.
func (s *MemoryStore) AppendThreatIndicator(_ context.Context, id, indicator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].ThreatIndicators = append(s.entries[i].ThreatIndicators, indicator)
			return nil
		}
	}
	return ErrEntryNotFound
}

// EscalateRisk raises an entry's risk level; it never lowers it.
func (s *MemoryStore) EscalateRisk(_ context.Context, id string, level models.RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			if level.Rank() > s.entries[i].Security.RiskLevel.Rank() {
				s.entries[i].Security.RiskLevel = level
			}
			return nil
		}
	}
	return ErrEntryNotFound
}

func matchesFilter(entry *Entry, filter *Filter) bool {
	if filter.ActorID != "" && entry.ActorID != filter.ActorID {
		return false
	}
	if filter.Resource != "" && entry.Resource != filter.Resource {
		return false
	}
	if filter.TargetUserID != "" && entry.TargetUserID != filter.TargetUserID {
		return false
	}
	if len(filter.Actions) > 0 && !containsAction(filter.Actions, entry.Action) {
		return false
	}
	if len(filter.Results) > 0 && !containsResult(filter.Results, entry.Result) {
		return false
	}
	if len(filter.RiskLevels) > 0 && !containsRisk(filter.RiskLevels, entry.Security.RiskLevel) {
		return false
	}
	if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

func containsAction(actions []Action, a Action) bool {
	for _, v := range actions {
		if v == a {
			return true
		}
	}
	return false
}

func containsResult(results []Result, r Result) bool {
	for _, v := range results {
		if v == r {
			return true
		}
	}
	return false
}

func containsRisk(levels []models.RiskLevel, l models.RiskLevel) bool {
	for _, v := range levels {
		if v == l {
			return true
		}
	}
	return false
}
