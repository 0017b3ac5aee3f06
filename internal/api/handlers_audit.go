// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/staynest/stayguard/internal/audit"
	"github.com/staynest/stayguard/internal/models"
)

// maxAuditPageSize caps one audit page. Export jobs paginate.
const maxAuditPageSize = 1000

// AuditQuery handles GET /api/v1/audit.
//
// Filters come from query parameters: actor_id, action, resource,
// target_user_id, result, risk_level, start_time, end_time (RFC 3339),
// limit, offset, order (asc|desc). List parameters take comma-separated
// values.
func (s *Server) AuditQuery(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := auditFilterFromQuery(r.URL.Query())
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	entries, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(entries, &PaginationMeta{
		Count:   len(entries),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: len(entries) == filter.Limit,
	})
}

// AuditGet handles GET /api/v1/audit/{entryID}.
func (s *Server) AuditGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	entry, err := s.audit.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		if errors.Is(err, audit.ErrEntryNotFound) {
			rw.NotFound("audit entry not found")
			return
		}
		rw.StorageError(err)
		return
	}
	rw.Success(entry)
}

// auditFilterFromQuery builds an audit filter from URL query params.
func auditFilterFromQuery(q url.Values) (audit.Filter, error) {
	filter := audit.DefaultFilter()

	filter.ActorID = q.Get("actor_id")
	filter.TargetUserID = q.Get("target_user_id")
	filter.Resource = models.Resource(q.Get("resource"))

	for _, v := range splitList(q.Get("action")) {
		filter.Actions = append(filter.Actions, audit.Action(v))
	}
	for _, v := range splitList(q.Get("result")) {
		filter.Results = append(filter.Results, audit.Result(v))
	}
	for _, v := range splitList(q.Get("risk_level")) {
		filter.RiskLevels = append(filter.RiskLevels, models.RiskLevel(v))
	}

	if raw := q.Get("start_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("start_time must be RFC 3339")
		}
		filter.StartTime = &t
	}
	if raw := q.Get("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("end_time must be RFC 3339")
		}
		filter.EndTime = &t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAuditPageSize {
			return filter, errors.New("limit must be between 1 and 1000")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if raw := q.Get("order"); raw != "" {
		switch raw {
		case "asc":
			filter.OrderDesc = false
		case "desc":
			filter.OrderDesc = true
		default:
			return filter, errors.New("order must be asc or desc")
		}
	}

	return filter, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
