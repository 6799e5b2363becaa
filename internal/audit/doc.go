// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package audit provides the durable decision trail for the threat
// pipeline, recording detections, composite assessments, response
// transitions and administrative overrides for offline review.
//
// # Overview
//
// The audit system provides:
//   - Structured event logging with typed event categories
//   - Badger persistence with TTL-bound retention
//   - Asynchronous buffered writes for minimal latency impact
//   - Automatic retention policy enforcement with configurable cleanup
//   - SIEM integration via Common Event Format (CEF) export
//   - Flexible querying with multi-dimensional filters
//
// # Event Types
//
// Events are categorized into the following groups:
//
// Detection Events:
//   - detection.indicator: A pattern detector fired at high or
//     critical severity
//   - detection.assessment: A composite score crossed the flagging
//     threshold
//   - detection.baseline_anomaly: Activity deviated from the user's
//     behavioral baseline
//
// Response Events (one per orchestrator tier):
//   - response.warn, response.rate_limit, response.account_lock,
//     response.ip_block, response.admin_alert
//
// Override Events:
//   - override.unblock, override.unlock: Manual administrative
//     removal of a block or lock, always recorded
//
// Configuration Events:
//   - config.changed: Runtime policy or detector changes
//
// # Architecture
//
// The audit system uses a producer-consumer pattern:
//
//	Logger.Log() -> Event Buffer (chan) -> Async Writer -> Store
//	                     |                      |
//	                 Non-blocking           Background goroutine
//
// Events are buffered in a channel to avoid blocking the caller. A
// background goroutine drains the buffer and persists events to the
// store. A full buffer drops the event with a warning rather than
// stalling request handling.
//
// # Usage Example
//
// Basic audit logging:
//
//	store := audit.NewBadgerStore(db, 90*24*time.Hour)
//	logger := audit.NewLogger(store, audit.DefaultConfig())
//	defer logger.Close()
//
//	logger.LogDetection(ctx, identityKey, "account_enumeration",
//	    audit.SeverityCritical, audit.SourceFromRequest(r), evidence)
//
//	logger.LogResponse(ctx, audit.EventTypeIPBlock,
//	    audit.Target{ID: ipHash, Type: "ip"}, score, reason, source)
//
// Querying audit logs:
//
//	filter := audit.QueryFilter{
//	    Types:     []audit.EventType{audit.EventTypeIPBlock},
//	    StartTime: &startTime,
//	    Limit:     100,
//	}
//	events, err := logger.Query(ctx, filter)
//
// # SIEM Integration
//
// Export events in Common Event Format (CEF) for SIEM integration:
//
//	exporter := audit.NewCEFExporter()
//	events, _ := logger.Query(ctx, filter)
//	cefData, _ := exporter.Export(events)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use.
package audit
