// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/models"
)

// DefaultRetention is how long entries are kept before the retention
// sweep may delete them. Lodging compliance holds security records for
// seven years.
const DefaultRetention = 7 * 365 * 24 * time.Hour

// writeTimeout bounds one store write so a slow sink cannot stall the
// drain loop.
const writeTimeout = 5 * time.Second

// Config holds audit logger settings.
type Config struct {
	Enabled bool `json:"enabled" koanf:"enabled"`

	// BufferSize is the async write buffer; entries are dropped with a
	// warning when it is full.
	BufferSize int `json:"buffer_size" koanf:"buffer_size"`

	// Retention overrides DefaultRetention when positive.
	Retention time.Duration `json:"retention" koanf:"retention"`

	// SweepInterval is how often expired entries are deleted.
	SweepInterval time.Duration `json:"sweep_interval" koanf:"sweep_interval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1000,
		Retention:     DefaultRetention,
		SweepInterval: 24 * time.Hour,
	}
}

// Logger is the asynchronous audit sink. Record never blocks and never
// returns an error; persistence failures are logged and swallowed.
type Logger struct {
	config  Config
	store   Store
	entries chan *Entry
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewLogger creates the logger and starts its writer goroutine.
func NewLogger(store Store, config Config) *Logger {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	l := &Logger{
		config:  config,
		store:   store,
		entries: make(chan *Entry, config.BufferSize),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

func (l *Logger) writer() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stop:
			// Drain whatever is buffered, then exit.
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					return
				}
			}
		case entry := <-l.entries:
			l.write(entry)
		}
	}
}

func (l *Logger) write(entry *Entry) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, entry); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("audit write failed")
	}
}

// Record submits an entry. The request snapshot is masked, the risk
// level computed, and identity fields filled before buffering. A full
// buffer drops the entry with a warning rather than blocking.
func (l *Logger) Record(ctx context.Context, entry *Entry) {
	if !l.config.Enabled || entry == nil {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	if entry.Result == "" {
		entry.Result = ResultSuccess
	}
	if entry.RetentionDate.IsZero() {
		entry.RetentionDate = entry.Timestamp.Add(l.config.Retention)
	}
	if entry.RequestID == "" {
		entry.RequestID = logging.RequestIDFromContext(ctx)
	}

	entry.Request = logging.MaskFields(entry.Request)
	level, indicators := ComputeRisk(entry.Action, entry.Request)
	entry.Security.RiskLevel = level
	if len(indicators) > 0 {
		entry.ThreatIndicators = append(entry.ThreatIndicators, indicators...)
	}

	select {
	case l.entries <- entry:
	default:
		logging.Warn().
			Str("entry_id", entry.ID).
			Str("action", string(entry.Action)).
			Msg("audit buffer full, dropping entry")
	}
}

// changeActions maps the authorization service's action names onto the
// closed audit enum.
var changeActions = map[string]Action{
	"permission_granted": ActionPermissionGranted,
	"permission_revoked": ActionPermissionRevoked,
	"role_assigned":      ActionRoleAssigned,
	"role_revoked":       ActionRoleRevoked,
}

// RecordChange satisfies the authorization service's recorder hook.
func (l *Logger) RecordChange(ctx context.Context, actorID, action string, resource models.Resource, resourceID string, success bool, details map[string]interface{}) {
	audited, ok := changeActions[action]
	if !ok {
		audited = ActionAdminOverride
	}
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	targetUserID := ""
	if details != nil {
		if v, ok := details["target_user_id"].(string); ok {
			targetUserID = v
		}
	}
	l.Record(ctx, &Entry{
		ActorID:      actorID,
		Action:       audited,
		Resource:     resource,
		ResourceID:   resourceID,
		TargetUserID: targetUserID,
		Result:       result,
		Request:      details,
	})
}

// Query reads entries through the masking pass so secrets never leave
// the store unredacted.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	entries, err := l.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Request = logging.MaskFields(entries[i].Request)
	}
	return entries, nil
}

// Count returns the number of entries matching the filter.
func (l *Logger) Count(ctx context.Context, filter Filter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Get returns one masked entry.
func (l *Logger) Get(ctx context.Context, id string) (*Entry, error) {
	entry, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.Request = logging.MaskFields(entry.Request)
	return entry, nil
}

// Sweep deletes entries past their retention date. Run periodically by
// the supervisor.
func (l *Logger) Sweep(ctx context.Context) (int64, error) {
	count, err := l.store.DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logging.Info().Int64("deleted", count).Msg("audit retention sweep")
	}
	return count, nil
}

// SweepInterval exposes the configured sweep cadence.
func (l *Logger) SweepInterval() time.Duration {
	if l.config.SweepInterval <= 0 {
		return DefaultConfig().SweepInterval
	}
	return l.config.SweepInterval
}

// Close stops the writer after draining buffered entries.
func (l *Logger) Close() error {
	l.once.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
	return nil
}
