// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the assessment pipeline:
// - HTTP guard latency and verdicts
// - Detector invocations and detections
// - Composite score distribution
// - Response orchestrator actions and live block/lock counts
// - Activity store writes and transaction conflicts
// - Notifier circuit breaker state

var (
	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_http_request_duration_seconds",
			Help:    "Duration of HTTP requests through the guard in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint_class", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint_class", "status"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_http_active_requests",
			Help: "Current number of in-flight requests",
		},
	)

	// Guard verdicts: allowed, blocked, locked, throttled, bypassed
	GuardVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_guard_verdicts_total",
			Help: "Total guard verdicts by outcome",
		},
		[]string{"verdict"},
	)

	// Detector Metrics
	DetectorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_detector_checks_total",
			Help: "Total detector invocations",
		},
		[]string{"detector"},
	)

	DetectorDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_detector_detections_total",
			Help: "Total detections by detector and severity",
		},
		[]string{"detector", "severity"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_detector_errors_total",
			Help: "Total detector failures absorbed by the engine",
		},
		[]string{"detector"},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_detector_duration_seconds",
			Help:    "Duration of individual detector checks in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"detector"},
	)

	// Scoring Metrics
	CompositeScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_composite_score",
			Help:    "Distribution of computed composite threat scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_classifications_total",
			Help: "Total assessments by classification band",
		},
		[]string{"classification"},
	)

	IdentitiesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_identities_flagged_total",
			Help: "Total identities that crossed the flagging threshold",
		},
	)

	// Response Metrics
	ResponseActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_response_actions_total",
			Help: "Total response actions applied by tier",
		},
		[]string{"tier"},
	)

	ActiveBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_ip_blocks",
			Help: "Current number of live IP block entries",
		},
	)

	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_account_locks",
			Help: "Current number of live account lock entries",
		},
	)

	ManualOverrides = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_manual_overrides_total",
			Help: "Total manual unblock/unlock operations",
		},
		[]string{"kind", "found"},
	)

	// Activity Store Metrics
	ActivityWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_activity_writes_total",
			Help: "Total activity ring writes by namespace",
		},
		[]string{"namespace"},
	)

	ActivityConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_activity_txn_conflicts_total",
			Help: "Total badger transaction conflicts during ring updates",
		},
		[]string{"namespace"},
	)

	ActivityDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_activity_writes_dropped_total",
			Help: "Total activity writes dropped after conflict retries",
		},
		[]string{"namespace"},
	)

	// Baseline Metrics
	BaselineCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_baseline_cache_hits_total",
			Help: "Total baseline lookups served from cache",
		},
	)

	BaselineCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_baseline_cache_misses_total",
			Help: "Total baseline lookups that required recomputation",
		},
	)

	BaselineComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_baseline_compute_duration_seconds",
			Help:    "Duration of baseline recomputation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate Limiting Metrics
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_rate_limit_rejections_total",
			Help: "Total requests rejected by the adaptive rate limiter",
		},
		[]string{"endpoint_class"},
	)

	RateLimiterBuckets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_rate_limiter_buckets",
			Help: "Current number of live per-identity token buckets",
		},
	)

	// Circuit Breaker Metrics (notifier dispatch)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_requests_total",
			Help: "Total circuit breaker requests by outcome",
		},
		[]string{"name", "outcome"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_notifications_sent_total",
			Help: "Total alert notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Audit Metrics
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_audit_events_total",
			Help: "Total audit events recorded by type",
		},
		[]string{"type"},
	)

	// WebSocket Metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_websocket_connections",
			Help: "Current number of connected alert stream clients",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_websocket_messages_total",
			Help: "Total alert stream messages by direction",
		},
		[]string{"direction"},
	)
)

// RecordHTTPRequest records one completed request through the guard.
func RecordHTTPRequest(method, endpointClass string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestDuration.WithLabelValues(method, endpointClass, code).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, endpointClass, code).Inc()
}

// RecordDetectorCheck records one detector invocation.
func RecordDetectorCheck(detector string, duration time.Duration, detected bool, severity string, err error) {
	DetectorChecks.WithLabelValues(detector).Inc()
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	if err != nil {
		DetectorErrors.WithLabelValues(detector).Inc()
		return
	}
	if detected {
		DetectorDetections.WithLabelValues(detector, severity).Inc()
	}
}

// RecordAssessment records a composite scoring run.
func RecordAssessment(score int, classification string, flagged bool) {
	CompositeScore.Observe(float64(score))
	Classifications.WithLabelValues(classification).Inc()
	if flagged {
		IdentitiesFlagged.Inc()
	}
}

// RecordResponseAction records one applied response tier.
func RecordResponseAction(tier string) {
	ResponseActions.WithLabelValues(tier).Inc()
}

// RecordOverride records a manual unblock or unlock.
func RecordOverride(kind string, found bool) {
	ManualOverrides.WithLabelValues(kind, strconv.FormatBool(found)).Inc()
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}
