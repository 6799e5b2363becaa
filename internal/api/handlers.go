// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/middleware"
	"github.com/tomtom215/vigil/internal/pattern"
	"github.com/tomtom215/vigil/internal/policy"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/scoring"
	"github.com/tomtom215/vigil/internal/websocket"
)

// maxRequestBodySize bounds admin request bodies.
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler holds the admin API's dependencies. Handlers operate on the
// live pipeline components, so configuration changes take effect on
// the next guarded request without a restart.
type Handler struct {
	orch       *response.Orchestrator
	detectors  *pattern.Engine
	scorer     *scoring.Engine
	policy     *policy.Policy
	limiters   *policy.LimiterRegistry
	auditor    *audit.Logger
	auditStore audit.Store
	perfmon    *middleware.PerformanceMonitor
	hub        *websocket.Hub
	startTime  time.Time
}

// NewHandler creates the admin API handler set.
func NewHandler(
	orch *response.Orchestrator,
	detectors *pattern.Engine,
	scorer *scoring.Engine,
	pol *policy.Policy,
	limiters *policy.LimiterRegistry,
	auditor *audit.Logger,
	auditStore audit.Store,
	perfmon *middleware.PerformanceMonitor,
	hub *websocket.Hub,
) *Handler {
	return &Handler{
		orch:       orch,
		detectors:  detectors,
		scorer:     scorer,
		policy:     pol,
		limiters:   limiters,
		auditor:    auditor,
		auditStore: auditStore,
		perfmon:    perfmon,
		hub:        hub,
		startTime:  time.Now(),
	}
}

// adminActor builds the audit actor for an admin request. The admin
// token is shared, so the optional X-Admin-User header lets operators
// distinguish themselves in the audit trail.
func adminActor(r *http.Request) audit.Actor {
	name := r.Header.Get("X-Admin-User")
	if name == "" {
		name = "admin"
	}
	return audit.AdminActor(name, name)
}

// ================================================================================
// Blocks and locks
// ================================================================================

// ListBlocks returns all live IP blocks.
// GET /api/v1/blocks
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	blocks, err := h.orch.Blocks(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(blocks, &PaginationMeta{Count: len(blocks)})
}

// Unblock removes a live IP block.
// DELETE /api/v1/blocks/{subject}
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subject := chi.URLParam(r, "subject")
	if subject == "" {
		rw.BadRequest("Subject is required")
		return
	}

	found, err := h.orch.Unblock(r.Context(), subject, adminActor(r))
	if err != nil {
		rw.StorageError(err)
		return
	}
	if !found {
		rw.NotFound("No live block for subject")
		return
	}

	rw.Success(map[string]interface{}{
		"subject": subject,
		"removed": true,
	})
}

// ListLocks returns all live account locks.
// GET /api/v1/locks
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	locks, err := h.orch.Locks(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.SuccessWithPagination(locks, &PaginationMeta{Count: len(locks)})
}

// Unlock removes a live account lock.
// DELETE /api/v1/locks/{subject}
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subject := chi.URLParam(r, "subject")
	if subject == "" {
		rw.BadRequest("Subject is required")
		return
	}

	found, err := h.orch.Unlock(r.Context(), subject, adminActor(r))
	if err != nil {
		rw.StorageError(err)
		return
	}
	if !found {
		rw.NotFound("No live lock for subject")
		return
	}

	rw.Success(map[string]interface{}{
		"subject": subject,
		"removed": true,
	})
}

// ================================================================================
// Detectors
// ================================================================================

// DetectorStatus is the list representation of one detector.
type DetectorStatus struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// ListDetectors returns every registered detector and its state.
// GET /api/v1/detectors
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	detectors := h.detectors.Detectors()
	statuses := make([]DetectorStatus, 0, len(detectors))
	for _, d := range detectors {
		statuses = append(statuses, DetectorStatus{
			Type:    string(d.Type()),
			Enabled: d.Enabled(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Type < statuses[j].Type
	})

	rw.Success(map[string]interface{}{
		"engine_enabled": h.detectors.Enabled(),
		"detectors":      statuses,
	})
}

// UpdateDetectorRequest is the body for detector updates. Both fields
// are optional; omitted fields are left unchanged.
type UpdateDetectorRequest struct {
	Enabled *bool           `json:"enabled,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UpdateDetector reconfigures or toggles one detector.
// PUT /api/v1/detectors/{type}
func (h *Handler) UpdateDetector(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	detectorType := pattern.IndicatorType(chi.URLParam(r, "type"))
	if _, ok := h.detectors.Detector(detectorType); !ok {
		rw.NotFound("Unknown detector type")
		return
	}

	var req UpdateDetectorRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return
	}
	if req.Enabled == nil && req.Config == nil {
		rw.BadRequest("Nothing to update")
		return
	}

	if req.Config != nil {
		if err := h.detectors.ConfigureDetector(detectorType, req.Config); err != nil {
			rw.ValidationError("Invalid detector configuration", err.Error())
			return
		}
	}
	if req.Enabled != nil {
		if err := h.detectors.SetDetectorEnabled(detectorType, *req.Enabled); err != nil {
			rw.NotFound("Unknown detector type")
			return
		}
	}

	h.auditor.LogConfigChange(r.Context(), adminActor(r), audit.SourceFromRequest(r),
		"detector."+string(detectorType), "", describeDetectorUpdate(&req))

	d, _ := h.detectors.Detector(detectorType)
	rw.Success(DetectorStatus{Type: string(detectorType), Enabled: d.Enabled()})
}

func describeDetectorUpdate(req *UpdateDetectorRequest) string {
	switch {
	case req.Enabled != nil && req.Config != nil:
		return fmt.Sprintf("enabled=%t config=%s", *req.Enabled, req.Config)
	case req.Enabled != nil:
		return fmt.Sprintf("enabled=%t", *req.Enabled)
	default:
		return string(req.Config)
	}
}

// ================================================================================
// Scoring weights and rate limit tables
// ================================================================================

// GetWeights returns the live scoring weights.
// GET /api/v1/scoring/weights
func (h *Handler) GetWeights(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.scorer.Weights())
}

// UpdateWeights replaces the scoring weights.
// PUT /api/v1/scoring/weights
func (h *Handler) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var weights scoring.Weights
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return
	}

	if weights.FlagThreshold < 1 || weights.FlagThreshold > 100 {
		rw.ValidationError("flag_threshold must be between 1 and 100", nil)
		return
	}
	if weights.SharedIPFlagThreshold < weights.FlagThreshold || weights.SharedIPFlagThreshold > 100 {
		rw.ValidationError("shared_ip_flag_threshold must be between flag_threshold and 100", nil)
		return
	}

	old := h.scorer.Weights()
	h.scorer.SetWeights(weights)

	h.auditor.LogConfigChange(r.Context(), adminActor(r), audit.SourceFromRequest(r),
		"scoring.weights",
		fmt.Sprintf("flag_threshold=%d", old.FlagThreshold),
		fmt.Sprintf("flag_threshold=%d", weights.FlagThreshold))

	rw.Success(h.scorer.Weights())
}

// GetLimits returns the live adaptive rate limit table.
// GET /api/v1/policy/limits
func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.policy.Limits())
}

// UpdateLimits replaces the adaptive rate limit table.
// PUT /api/v1/policy/limits
func (h *Handler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var limits policy.Limits
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return
	}

	for name, v := range map[string]int{
		"high_trust":    limits.HighTrust,
		"human_like":    limits.HumanLike,
		"medium_trust":  limits.MediumTrust,
		"likely_bot":    limits.LikelyBot,
		"confirmed_bot": limits.ConfirmedBot,
		"default":       limits.Default,
	} {
		if v < 1 {
			rw.ValidationError(name+" must be at least 1", nil)
			return
		}
	}

	h.policy.SetLimits(limits)

	h.auditor.LogConfigChange(r.Context(), adminActor(r), audit.SourceFromRequest(r),
		"policy.limits", "", fmt.Sprintf("default=%d confirmed_bot=%d", limits.Default, limits.ConfirmedBot))

	rw.Success(h.policy.Limits())
}

// ================================================================================
// Identity inspection
// ================================================================================

// IdentityStatus is the inspection view of one identity.
type IdentityStatus struct {
	Key             string        `json:"key"`
	Blocked         bool          `json:"blocked"`
	Locked          bool          `json:"locked"`
	ThrottledPerMin int           `json:"throttled_per_minute,omitempty"`
	RecentEvents    []audit.Event `json:"recent_events"`
}

// InspectIdentity returns the live remediation state and recent
// assessment history for one identity key (user:<id>, session:<sid>,
// or ip:<hash>).
// GET /api/v1/identities/{key}
func (h *Handler) InspectIdentity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	key := chi.URLParam(r, "key")
	if key == "" {
		rw.BadRequest("Identity key is required")
		return
	}

	status := IdentityStatus{
		Key:             key,
		ThrottledPerMin: h.orch.ThrottleCeiling(r.Context(), key),
	}

	// Block and lock subjects are stored without the key prefix.
	if hash, ok := strings.CutPrefix(key, "ip:"); ok {
		status.Blocked = h.orch.IsBlocked(r.Context(), hash)
	}
	if userID, ok := strings.CutPrefix(key, "user:"); ok {
		status.Locked = h.orch.IsLocked(r.Context(), userID)
	}

	filter := audit.DefaultQueryFilter()
	filter.TargetID = key
	filter.Limit = 20
	events, err := h.auditStore.Query(r.Context(), filter)
	if err != nil {
		rw.StorageError(err)
		return
	}
	status.RecentEvents = events

	rw.Success(status)
}

// ================================================================================
// Stats and alerts
// ================================================================================

// GetStats returns runtime statistics for the whole pipeline.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	engineMetrics := h.detectors.Metrics()

	stats := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"detection": map[string]interface{}{
			"events_processed": engineMetrics.EventsProcessed,
			"indicators_fired": engineMetrics.IndicatorsFired,
			"detection_errors": engineMetrics.DetectionErrors,
			"detectors":        engineMetrics.DetectorMetrics,
		},
		"performance":      h.perfmon.Stats(),
		"limiter_buckets":  h.limiters.Size(),
		"alert_listeners":  h.hub.ClientCount(),
		"scoring_weights":  h.scorer.Weights(),
		"rate_limit_table": h.policy.Limits(),
	}

	rw.Success(stats)
}

// AlertStream upgrades the connection to a WebSocket receiving admin
// alerts as the orchestrator dispatches them.
// GET /api/v1/alerts/ws
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	logging.Ctx(r.Context()).Debug().Msg("alert stream client connecting")
	websocket.ServeWs(h.hub, w, r)
}
