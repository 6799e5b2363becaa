// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package middleware provides the HTTP middleware stack, including the
guard that runs the assessment pipeline around every protected request.

Key Components:

  - Guard: identity resolution, block/lock short-circuit, adaptive
    throttling, activity recording, pattern detection, composite
    scoring and tiered response
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation by
    endpoint class
  - Performance Monitor: latency percentiles for admin inspection
  - Compression: gzip for admin API responses

Middleware Stack:

The typical stack for a protected endpoint is:

	http.HandleFunc("/anything",
	    middleware.RequestID(              // Layer 1: tracing
	        middleware.PrometheusMetrics(  // Layer 2: metrics
	            guard.Protect(             // Layer 3: assessment pipeline
	                handler,               // Layer 4: host application
	            ),
	        ),
	    ),
	)

Guard Ordering:

The order inside Protect is deliberate and load-bearing:

 1. Resolve identity and trust context (cheap, no I/O)
 2. Reject identities with an active IP block or account lock before
    any detector work runs
 3. Apply the adaptive rate limit, tightened by endpoint class and any
    active throttle entry
 4. Run the host handler
 5. Record activity, run detectors, score, and respond after the
    response has been flushed

Stages 1-3 are the only work on the request's critical path. Detection
and response actions apply from the next request onward.

Failure Policy:

Every guard stage fails open. Store errors, detector errors and absent
trust headers degrade to neutral; the guard never converts its own
failure into a 5xx for the caller. Denials it does issue (403 blocked,
403 locked, 429 throttled) are deliberate verdicts, not failures.

Host Application Contract:

Handlers report data-record counts through the X-Vigil-Records
response header and may name login attempts through the
X-Vigil-Login-User request header. Both are optional; without them the
volume detectors simply see less.

Thread Safety:

All middleware components are safe for concurrent use. The guard
itself is stateless per request; shared state lives in the activity
store, the limiter registry and the response state store.

See Also:

  - internal/pattern: detector implementations
  - internal/scoring: composite scoring and flagging
  - internal/response: the tiered response orchestrator
  - internal/api: admin endpoints wrapped by this stack
*/
package middleware
