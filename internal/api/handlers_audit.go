// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/logging"
)

// AuditStatsProvider is implemented by audit stores that can summarize
// their contents.
type AuditStatsProvider interface {
	GetStats(ctx context.Context) (*audit.Stats, error)
}

// ListAuditEvents returns audit events matching the query filters.
// GET /api/v1/audit/events
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseAuditFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	events, err := h.auditStore.Query(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	total, err := h.auditStore.Count(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("audit count failed")
		total = int64(len(events))
	}

	rw.SuccessWithPagination(events, &PaginationMeta{
		Count:   len(events),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

// GetAuditEvent returns one audit event by ID.
// GET /api/v1/audit/events/{id}
func (h *Handler) GetAuditEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("Event ID is required")
		return
	}

	event, err := h.auditStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			rw.NotFound("Audit event not found")
			return
		}
		rw.StorageError(err)
		return
	}

	rw.Success(event)
}

// GetAuditStats returns aggregate statistics about the audit trail.
// GET /api/v1/audit/stats
func (h *Handler) GetAuditStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	provider, ok := h.auditStore.(AuditStatsProvider)
	if !ok {
		rw.Error(http.StatusNotImplemented, ErrCodeInternalError, "Audit store does not support statistics")
		return
	}

	stats, err := provider.GetStats(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.Success(stats)
}

// GetAuditEventTypes returns the known audit event types for filter
// dropdowns.
// GET /api/v1/audit/types
func (h *Handler) GetAuditEventTypes(w http.ResponseWriter, r *http.Request) {
	types := []audit.EventType{
		audit.EventTypeDetection,
		audit.EventTypeAssessment,
		audit.EventTypeBaselineAnomaly,
		audit.EventTypeWarn,
		audit.EventTypeRateLimit,
		audit.EventTypeAccountLock,
		audit.EventTypeIPBlock,
		audit.EventTypeAdminAlert,
		audit.EventTypeUnblock,
		audit.EventTypeUnlock,
		audit.EventTypeConfigChanged,
	}
	NewResponseWriter(w, r).Success(types)
}

// GetAuditSeverities returns the known severity levels.
// GET /api/v1/audit/severities
func (h *Handler) GetAuditSeverities(w http.ResponseWriter, r *http.Request) {
	severities := []audit.Severity{
		audit.SeverityDebug,
		audit.SeverityInfo,
		audit.SeverityWarning,
		audit.SeverityError,
		audit.SeverityCritical,
	}
	NewResponseWriter(w, r).Success(severities)
}

// ExportAuditEvents exports matching events as JSON or CEF.
// GET /api/v1/audit/export?format=json|cef
func (h *Handler) ExportAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseAuditFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	// Exports scan a bounded range regardless of the paging default.
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = 10000
	}

	events, err := h.auditStore.Query(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}

	var (
		exporter    audit.Exporter
		contentType string
		filename    string
	)
	switch format {
	case "json":
		exporter = &audit.JSONExporter{}
		contentType = "application/json; charset=utf-8"
		filename = "audit-events.json"
	case "cef":
		exporter = audit.NewCEFExporter()
		contentType = "text/plain; charset=utf-8"
		filename = "audit-events.cef"
	default:
		rw.BadRequest("Unsupported export format: " + format)
		return
	}

	data, err := exporter.Export(events)
	if err != nil {
		rw.InternalError("Export failed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("audit export write failed")
	}
}

// parseAuditFilter builds a query filter from the request parameters.
func parseAuditFilter(r *http.Request) (audit.QueryFilter, error) {
	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()

	for _, t := range splitParam(q.Get("types")) {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, s := range splitParam(q.Get("severities")) {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}
	for _, o := range splitParam(q.Get("outcomes")) {
		filter.Outcomes = append(filter.Outcomes, audit.Outcome(o))
	}

	filter.ActorID = q.Get("actor_id")
	filter.ActorType = q.Get("actor_type")
	filter.TargetID = q.Get("target_id")
	filter.TargetType = q.Get("target_type")
	filter.SourceIP = q.Get("source_ip")
	filter.CorrelationID = q.Get("correlation_id")
	filter.RequestID = q.Get("request_id")
	filter.SearchText = q.Get("search")

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("start_time must be RFC3339")
		}
		filter.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("end_time must be RFC3339")
		}
		filter.EndTime = &t
	}
	if filter.StartTime != nil && filter.EndTime != nil && filter.EndTime.Before(*filter.StartTime) {
		return filter, errors.New("end_time must be after start_time")
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10000 {
			return filter, errors.New("limit must be between 1 and 10000")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be non-negative")
		}
		filter.Offset = n
	}

	return filter, nil
}

// splitParam splits a comma-separated query parameter, dropping empty
// entries.
func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
