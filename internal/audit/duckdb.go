// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/models"
)

// DuckDBStore is the durable audit store. The table is append-only;
// the only UPDATE statements touch threat_indicators and risk_level.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore wraps an open DuckDB handle.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_entries table and its indexes.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,

			actor_id TEXT NOT NULL,
			actor_roles JSON,

			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT,
			target_user_id TEXT,

			result TEXT NOT NULL,
			request JSON,

			risk_level TEXT NOT NULL,
			mfa_verified BOOLEAN NOT NULL DEFAULT FALSE,
			session_id TEXT,
			ip_address TEXT,
			user_agent TEXT,

			changes JSON,
			threat_indicators JSON,

			retention_date TIMESTAMPTZ NOT NULL,
			request_id TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_entries(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);
		CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_entries(resource);
		CREATE INDEX IF NOT EXISTS idx_audit_target_user ON audit_entries(target_user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_risk_level ON audit_entries(risk_level);
		CREATE INDEX IF NOT EXISTS idx_audit_retention ON audit_entries(retention_date);
	`
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
	}
	logging.Info().Msg("audit_entries table ready")
	return nil
}

// Save appends one entry.
func (s *DuckDBStore) Save(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("nil audit entry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_entries (
			id, timestamp, actor_id, actor_roles,
			action, resource, resource_id, target_user_id,
			result, request,
			risk_level, mfa_verified, session_id, ip_address, user_agent,
			changes, threat_indicators,
			retention_date, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp,
		entry.ActorID,
		marshalJSONColumn(entry.ActorRoles),
		string(entry.Action),
		string(entry.Resource),
		nullString(entry.ResourceID),
		nullString(entry.TargetUserID),
		string(entry.Result),
		marshalJSONColumn(entry.Request),
		string(entry.Security.RiskLevel),
		entry.Security.MFAVerified,
		nullString(entry.Security.SessionID),
		nullString(entry.Security.IPAddress),
		nullString(entry.Security.UserAgent),
		marshalJSONColumn(entry.Changes),
		marshalJSONColumn(entry.ThreatIndicators),
		entry.RetentionDate,
		nullString(entry.RequestID),
	)
	if err != nil {
		return fmt.Errorf("save audit entry: %w", err)
	}
	return nil
}

// Get retrieves one entry by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" FROM audit_entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// Query returns entries matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("skipping unscannable audit row")
			continue
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, true)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

// DeleteExpired removes entries whose retention date has passed.
func (s *DuckDBStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_entries WHERE retention_date < ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit entries: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted count: %w", err)
	}
	return count, nil
}

// AppendThreatIndicator adds an indicator to an existing entry.
func (s *DuckDBStore) AppendThreatIndicator(ctx context.Context, id, indicator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.getLocked(ctx, id)
	if err != nil {
		return err
	}
	indicators := append(entry.ThreatIndicators, indicator)
	_, err = s.db.ExecContext(ctx,
		"UPDATE audit_entries SET threat_indicators = ? WHERE id = ?",
		marshalJSONColumn(indicators), id)
	if err != nil {
		return fmt.Errorf("append threat indicator: %w", err)
	}
	return nil
}

// EscalateRisk raises an entry's risk level; lower levels are ignored.
func (s *DuckDBStore) EscalateRisk(ctx context.Context, id string, level models.RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if level.Rank() <= entry.Security.RiskLevel.Rank() {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE audit_entries SET risk_level = ? WHERE id = ?",
		string(level), id)
	if err != nil {
		return fmt.Errorf("escalate risk: %w", err)
	}
	return nil
}

func (s *DuckDBStore) getLocked(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM audit_entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// selectColumns casts JSON columns to VARCHAR for scanning.
const selectColumns = `
	SELECT
		id, timestamp, actor_id,
		CAST(actor_roles AS VARCHAR),
		action, resource, resource_id, target_user_id,
		result,
		CAST(request AS VARCHAR),
		risk_level, mfa_verified, session_id, ip_address, user_agent,
		CAST(changes AS VARCHAR),
		CAST(threat_indicators AS VARCHAR),
		retention_date, request_id
`

func buildQuery(filter Filter, countOnly bool) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	appendEq := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	appendEq("actor_id", filter.ActorID)
	appendEq("resource", string(filter.Resource))
	appendEq("target_user_id", filter.TargetUserID)

	if cond := inCondition("action", filter.Actions, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := inCondition("result", filter.Results, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := inCondition("risk_level", filter.RiskLevels, &args); cond != "" {
		conditions = append(conditions, cond)
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	query := "SELECT COUNT(*) FROM audit_entries"
	if !countOnly {
		query = selectColumns + " FROM audit_entries"
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !countOnly {
		if filter.OrderDesc {
			query += " ORDER BY timestamp DESC"
		} else {
			query += " ORDER BY timestamp ASC"
		}
		if filter.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		}
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return query, args
}

func inCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalJSONColumn(v interface{}) *string {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	out := string(data)
	return &out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry        Entry
		action       string
		resource     string
		result       string
		riskLevel    string
		actorRoles   sql.NullString
		resourceID   sql.NullString
		targetUserID sql.NullString
		request      sql.NullString
		sessionID    sql.NullString
		ipAddress    sql.NullString
		userAgent    sql.NullString
		changes      sql.NullString
		indicators   sql.NullString
		requestID    sql.NullString
	)

	err := row.Scan(
		&entry.ID, &entry.Timestamp, &entry.ActorID,
		&actorRoles,
		&action, &resource, &resourceID, &targetUserID,
		&result,
		&request,
		&riskLevel, &entry.Security.MFAVerified, &sessionID, &ipAddress, &userAgent,
		&changes,
		&indicators,
		&entry.RetentionDate, &requestID,
	)
	if err != nil {
		return nil, err
	}

	entry.Action = Action(action)
	entry.Resource = models.Resource(resource)
	entry.Result = Result(result)
	entry.Security.RiskLevel = models.RiskLevel(riskLevel)
	entry.ResourceID = resourceID.String
	entry.TargetUserID = targetUserID.String
	entry.Security.SessionID = sessionID.String
	entry.Security.IPAddress = ipAddress.String
	entry.Security.UserAgent = userAgent.String
	entry.RequestID = requestID.String

	if actorRoles.Valid && actorRoles.String != "" {
		_ = json.Unmarshal([]byte(actorRoles.String), &entry.ActorRoles)
	}
	if request.Valid && request.String != "" {
		_ = json.Unmarshal([]byte(request.String), &entry.Request)
	}
	if changes.Valid && changes.String != "" {
		var c Changes
		if json.Unmarshal([]byte(changes.String), &c) == nil {
			entry.Changes = &c
		}
	}
	if indicators.Valid && indicators.String != "" {
		_ = json.Unmarshal([]byte(indicators.String), &entry.ThreatIndicators)
	}
	return &entry, nil
}
