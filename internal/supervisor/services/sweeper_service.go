// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package services

import (
	"context"
	"time"

	"github.com/staynest/stayguard/internal/audit"
	"github.com/staynest/stayguard/internal/auth"
	"github.com/staynest/stayguard/internal/logging"
)

// SweeperService runs a periodic maintenance task under supervision.
//
// The task runs once per interval until the context is canceled. Task
// errors are logged but do not stop the loop; a persistent failure is a
// storage problem, not a reason to kill the sweeper.
type SweeperService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewSweeperService creates a periodic sweeper.
func NewSweeperService(name string, interval time.Duration, task func(ctx context.Context) error) *SweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweeperService{
		name:     name,
		interval: interval,
		task:     task,
	}
}

// NewAuditRetentionService returns a sweeper that deletes audit entries
// past their retention date.
func NewAuditRetentionService(logger *audit.Logger) *SweeperService {
	return NewSweeperService("audit-retention-sweeper", logger.SweepInterval(), func(ctx context.Context) error {
		deleted, err := logger.Sweep(ctx)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logging.Info().
				Int64("deleted", deleted).
				Msg("Audit retention sweep removed expired entries")
		}
		return nil
	})
}

// NewLockoutCleanupService returns a sweeper that removes expired
// lockout entries.
func NewLockoutCleanupService(manager *auth.LockoutManager) *SweeperService {
	return NewSweeperService("lockout-cleanup-sweeper", manager.Config().CleanupInterval, func(ctx context.Context) error {
		manager.Sweep(ctx)
		return nil
	})
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				logging.Error().
					Err(err).
					Str("service", s.name).
					Msg("Sweeper task failed")
			}
		}
	}
}

// String implements fmt.Stringer for logging.
func (s *SweeperService) String() string {
	return s.name
}
