// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package audit records everything the pipeline decided: every response
// transition, every high or critical detection, every administrative
// override. Entries are written asynchronously so the request path
// never waits on the sink.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned by Store.Get when no event has the given ID.
var ErrNotFound = errors.New("audit event not found")

// EventType categorizes audit events.
type EventType string

const (
	// Detection events
	EventTypeDetection       EventType = "detection.indicator"
	EventTypeAssessment      EventType = "detection.assessment"
	EventTypeBaselineAnomaly EventType = "detection.baseline_anomaly"

	// Response events, one per orchestrator tier
	EventTypeWarn        EventType = "response.warn"
	EventTypeRateLimit   EventType = "response.rate_limit"
	EventTypeAccountLock EventType = "response.account_lock"
	EventTypeIPBlock     EventType = "response.ip_block"
	EventTypeAdminAlert  EventType = "response.admin_alert"

	// Override events, the manual removal paths
	EventTypeUnblock EventType = "override.unblock"
	EventTypeUnlock  EventType = "override.unlock"

	// Configuration events
	EventTypeConfigChanged EventType = "config.changed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// Event represents one audit entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Outcome indicates success or failure.
	Outcome Outcome `json:"outcome"`

	// Actor who performed the action. For pipeline decisions this is
	// the system actor; for overrides it is the administrator.
	Actor Actor `json:"actor"`

	// Target of the action: the identity, account or IP acted upon.
	Target *Target `json:"target,omitempty"`

	// Source of the originating request.
	Source Source `json:"source"`

	// Action describes what was done.
	Action string `json:"action"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Score is the composite score at decision time, if one was
	// computed.
	Score int `json:"score,omitempty"`

	// Metadata contains event-specific details, typically the full
	// indicator payload.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID links related events.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`
}

// Actor represents who performed an action.
type Actor struct {
	// ID is the unique identifier (user ID, service account, etc.).
	ID string `json:"id"`

	// Type of actor (user, admin, system).
	Type string `json:"type"`

	// Username or service name.
	Name string `json:"name,omitempty"`

	// SessionID if authenticated via session.
	SessionID string `json:"session_id,omitempty"`
}

// Target represents the object of an action.
type Target struct {
	// ID of the target: an identity key, account id or IP hash.
	ID string `json:"id"`

	// Type of target (identity, account, ip).
	Type string `json:"type"`

	// Name of the target.
	Name string `json:"name,omitempty"`
}

// Source represents where a request originated.
type Source struct {
	// IPAddress of the client.
	IPAddress string `json:"ip_address"`

	// UserAgent of the client.
	UserAgent string `json:"user_agent,omitempty"`

	// Hostname if available.
	Hostname string `json:"hostname,omitempty"`

	// Country from the edge hints, if supplied.
	Country string `json:"country,omitempty"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the retention period.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels.
	Severities []Severity `json:"severities,omitempty"`

	// Outcomes filters by outcome.
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// ActorID filters by actor ID.
	ActorID string `json:"actor_id,omitempty"`

	// ActorType filters by actor type.
	ActorType string `json:"actor_type,omitempty"`

	// TargetID filters by target ID.
	TargetID string `json:"target_id,omitempty"`

	// TargetType filters by target type.
	TargetType string `json:"target_type,omitempty"`

	// SourceIP filters by source IP.
	SourceIP string `json:"source_ip,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// CorrelationID filters by correlation ID.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID filters by request ID.
	RequestID string `json:"request_id,omitempty"`

	// SearchText performs a text search on description and action.
	SearchText string `json:"search_text,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit: 100,
	}
}
