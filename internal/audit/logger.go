// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/tomtom215/vigil/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `json:"log_level"`

	// RetentionDays is how long to keep audit logs.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// LogToStdout also writes events to stdout.
	LogToStdout bool `json:"log_to_stdout"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `json:"include_debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
		LogToStdout:     false,
		IncludeDebug:    false,
	}
}

// Logger is the main audit logging service.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	// Start async writer
	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if config.LogToStdout {
		l.logToStdout(event)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Msg("Failed to save audit event")
		}
	}
}

// logToStdout writes an event to stdout in JSON format.
func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log records an audit event.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled {
		return
	}

	// Filter by severity
	if !l.shouldLog(event.Severity, config) {
		return
	}

	// Generate ID if not set
	if event.ID == "" {
		event.ID = generateEventID()
	}

	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Send to async writer
	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// shouldLog returns true if the event severity meets the minimum level.
func (l *Logger) shouldLog(severity Severity, config *Config) bool {
	if severity == SeverityDebug && !config.IncludeDebug {
		return false
	}

	severityOrder := map[Severity]int{
		SeverityDebug:    0,
		SeverityInfo:     1,
		SeverityWarning:  2,
		SeverityError:    3,
		SeverityCritical: 4,
	}

	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close shuts down the logger gracefully.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// StartCleanupRoutine starts the retention cleanup routine.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retention)
				count, err := l.store.Delete(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Helper methods for common audit events

// LogDetection logs a pattern detection of high or critical severity.
func (l *Logger) LogDetection(ctx context.Context, identityKey, indicatorType string, severity Severity, source Source, evidence json.RawMessage) {
	l.Log(&Event{
		Type:     EventTypeDetection,
		Severity: severity,
		Outcome:  OutcomeSuccess,
		Actor:    SystemActor(),
		Target: &Target{
			ID:   identityKey,
			Type: "identity",
		},
		Source:      source,
		Action:      "detect",
		Description: "Pattern detected: " + indicatorType,
		Metadata:    evidence,
		RequestID:   getRequestID(ctx),
	})
}

// LogAssessment logs a composite assessment that crossed the flagging
// threshold.
func (l *Logger) LogAssessment(ctx context.Context, identityKey string, score int, classification string, source Source, detail json.RawMessage) {
	l.Log(&Event{
		Type:        EventTypeAssessment,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Actor:       SystemActor(),
		Target:      &Target{ID: identityKey, Type: "identity"},
		Source:      source,
		Action:      "assess",
		Description: "Identity flagged as " + classification,
		Score:       score,
		Metadata:    detail,
		RequestID:   getRequestID(ctx),
	})
}

// LogResponse logs one response-orchestrator action. The event type
// carries the tier; the target carries the subject acted upon.
//
//nolint:gocritic // hugeParam: Target passed by value for API simplicity
func (l *Logger) LogResponse(ctx context.Context, tier EventType, target Target, score int, reason string, source Source) {
	severity := SeverityWarning
	switch tier {
	case EventTypeIPBlock, EventTypeAccountLock:
		severity = SeverityCritical
	case EventTypeWarn:
		severity = SeverityInfo
	}

	l.Log(&Event{
		Type:        tier,
		Severity:    severity,
		Outcome:     OutcomeSuccess,
		Actor:       SystemActor(),
		Target:      &target,
		Source:      source,
		Action:      "respond",
		Description: reason,
		Score:       score,
		RequestID:   getRequestID(ctx),
	})
}

// LogOverride logs a manual administrative removal of a block or lock.
// Overrides are always recorded, including failed ones (subject not
// found).
//
//nolint:gocritic // hugeParam: Actor and Target passed by value for API simplicity
func (l *Logger) LogOverride(ctx context.Context, overrideType EventType, actor Actor, target Target, found bool, source Source) {
	outcome := OutcomeSuccess
	desc := "Administrative override applied"
	if !found {
		outcome = OutcomeFailure
		desc = "Administrative override on absent subject"
	}

	l.Log(&Event{
		Type:        overrideType,
		Severity:    SeverityWarning,
		Outcome:     outcome,
		Actor:       actor,
		Target:      &target,
		Source:      source,
		Action:      "override",
		Description: desc,
		RequestID:   getRequestID(ctx),
	})
}

// LogConfigChange logs a configuration change.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogConfigChange(ctx context.Context, actor Actor, source Source, configKey, oldValue, newValue string) {
	l.Log(&Event{
		Type:     EventTypeConfigChanged,
		Severity: SeverityWarning,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "update",
		Target: &Target{
			ID:   configKey,
			Type: "config",
		},
		Description: "Configuration changed: " + configKey,
		Metadata: mustJSON(map[string]string{
			"key":       configKey,
			"old_value": oldValue,
			"new_value": newValue,
		}),
		RequestID: getRequestID(ctx),
	})
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// Context keys
type contextKey string

// RequestIDKey is the context key for request ID.
const RequestIDKey contextKey = "request_id"

// SourceFromRequest creates a Source from an HTTP request.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Hostname:  r.Host,
	}
}

// AdminActor creates an Actor for an administrative principal.
func AdminActor(id, name string) Actor {
	return Actor{
		ID:   id,
		Type: "admin",
		Name: name,
	}
}

// SystemActor returns an Actor representing the pipeline itself.
func SystemActor() Actor {
	return Actor{
		ID:   "vigil",
		Type: "system",
		Name: "Vigil",
	}
}
