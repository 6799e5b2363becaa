// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event. At capacity the oldest tenth of the
// buffer is dropped so steady-state writes stay amortized O(1).
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		s.events = s.events[s.maxLen/10:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Get retrieves an event by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Query retrieves events matching the filter, most recent first.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event
	skip := filter.Offset

	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]

		if !matchesFilter(&event, &filter) {
			continue
		}

		if skip > 0 {
			skip--
			continue
		}

		results = append(results, event)

		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// oneOf reports whether v appears in vals. An empty list means the
// criterion was not set and matches everything.
func oneOf[T comparable](vals []T, v T) bool {
	return len(vals) == 0 || slices.Contains(vals, v)
}

// matchesFilter reports whether the event satisfies every set criterion.
// Shared by every Store implementation that filters in process.
func matchesFilter(event *Event, filter *QueryFilter) bool {
	if !oneOf(filter.Types, event.Type) ||
		!oneOf(filter.Severities, event.Severity) ||
		!oneOf(filter.Outcomes, event.Outcome) {
		return false
	}

	switch {
	case filter.ActorID != "" && event.Actor.ID != filter.ActorID,
		filter.ActorType != "" && event.Actor.Type != filter.ActorType,
		filter.SourceIP != "" && event.Source.IPAddress != filter.SourceIP,
		filter.CorrelationID != "" && event.CorrelationID != filter.CorrelationID,
		filter.RequestID != "" && event.RequestID != filter.RequestID:
		return false
	}

	// Target criteria treat an absent target as a mismatch, not a
	// wildcard: filtering for a target means wanting events that have one.
	if filter.TargetID != "" && (event.Target == nil || event.Target.ID != filter.TargetID) {
		return false
	}
	if filter.TargetType != "" && (event.Target == nil || event.Target.Type != filter.TargetType) {
		return false
	}

	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}

	if filter.SearchText != "" && !textMatch(event, filter.SearchText) {
		return false
	}

	return true
}

// textMatch does a case-insensitive substring search over the fields an
// operator would grep: description and action.
func textMatch(event *Event, text string) bool {
	needle := strings.ToLower(text)
	return strings.Contains(strings.ToLower(event.Description), needle) ||
		strings.Contains(strings.ToLower(event.Action), needle)
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Event
	var deleted int64

	for idx := range s.events {
		if s.events[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.events[idx])
		}
	}

	s.events = kept
	return deleted, nil
}

// Clear removes all events (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Len returns the number of events in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Exporter serializes a batch of events for download.
type Exporter interface {
	Export(events []Event) ([]byte, error)
}

// JSONExporter exports events in JSON format.
type JSONExporter struct{}

// Export exports events to JSON format.
func (e *JSONExporter) Export(events []Event) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

// CEFExporter exports events in Common Event Format for SIEM ingestion.
// One event becomes one line:
//
//	CEF:0|vendor|product|version|signature|name|severity|extension
type CEFExporter struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFExporter creates a new CEF exporter with defaults.
func NewCEFExporter() *CEFExporter {
	return &CEFExporter{
		DeviceVendor:  "Vigil",
		DeviceProduct: "ThreatAssessment",
		DeviceVersion: "1.0",
	}
}

// cefSeverities maps the audit scale onto CEF's 0-10 range. Unknown
// severities fall through to 0.
var cefSeverities = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     3,
	SeverityWarning:  5,
	SeverityError:    7,
	SeverityCritical: 10,
}

// cefEscaper handles the prefix-field escaping CEF requires. Newlines
// are flattened because each event must stay on one line.
var cefEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"|", "\\|",
	"=", "\\=",
	"\n", " ",
	"\r", "",
)

// Export renders one CEF line per event.
func (e *CEFExporter) Export(events []Event) ([]byte, error) {
	var b strings.Builder

	for idx := range events {
		event := &events[idx]
		if idx > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "CEF:0|%s|%s|%s|%s|%s|%d|%s",
			cefEscaper.Replace(e.DeviceVendor),
			cefEscaper.Replace(e.DeviceProduct),
			cefEscaper.Replace(e.DeviceVersion),
			cefEscaper.Replace(string(event.Type)),
			cefEscaper.Replace(event.Description),
			cefSeverities[event.Severity],
			e.extension(event),
		)
	}

	return []byte(b.String()), nil
}

// extension renders the key-value tail of a CEF line. Only fields the
// event actually carries are emitted.
func (e *CEFExporter) extension(event *Event) string {
	pairs := []string{fmt.Sprintf("rt=%d", event.Timestamp.UnixMilli())}
	add := func(key, value string) {
		pairs = append(pairs, key+"="+cefEscaper.Replace(value))
	}

	if event.Actor.ID != "" {
		add("suser", event.Actor.Name)
		add("suid", event.Actor.ID)
	}
	if event.Source.IPAddress != "" {
		add("src", event.Source.IPAddress)
	}
	if event.Target != nil {
		add("duser", event.Target.Name)
		add("duid", event.Target.ID)
	}
	add("act", event.Action)
	add("outcome", string(event.Outcome))
	if event.RequestID != "" {
		add("externalId", event.RequestID)
	}

	return strings.Join(pairs, " ")
}

// Stats returns statistics about the audit store.
type Stats struct {
	TotalEvents      int64            `json:"total_events"`
	EventsByType     map[string]int64 `json:"events_by_type"`
	EventsBySeverity map[string]int64 `json:"events_by_severity"`
	EventsByOutcome  map[string]int64 `json:"events_by_outcome"`
	OldestEvent      *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time       `json:"newest_event,omitempty"`
}

// GetStats aggregates counts by type, severity and outcome, plus the
// time span the store covers.
func (s *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		TotalEvents:      int64(len(s.events)),
		EventsByType:     make(map[string]int64),
		EventsBySeverity: make(map[string]int64),
		EventsByOutcome:  make(map[string]int64),
	}

	var oldest, newest time.Time
	for idx := range s.events {
		event := &s.events[idx]
		stats.EventsByType[string(event.Type)]++
		stats.EventsBySeverity[string(event.Severity)]++
		stats.EventsByOutcome[string(event.Outcome)]++

		if oldest.IsZero() || event.Timestamp.Before(oldest) {
			oldest = event.Timestamp
		}
		if newest.IsZero() || event.Timestamp.After(newest) {
			newest = event.Timestamp
		}
	}
	if !oldest.IsZero() {
		stats.OldestEvent = &oldest
		stats.NewestEvent = &newest
	}

	return stats, nil
}
