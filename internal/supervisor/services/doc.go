// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package services provides suture.Service wrappers for Vigil components.

This package adapts application components to the suture v4 supervision
model, translating various lifecycle patterns (ticker loops, Run,
ListenAndServe) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

WebSocket Hub (WebSocketHubService):
  - Wraps websocket.Hub with context support
  - Handles client connection cleanup on shutdown

Badger GC (BadgerGCService):
  - Runs periodic value-log garbage collection on a Badger database
  - Treats badger.ErrNoRewrite as a normal outcome

Audit Retention (AuditRetentionService):
  - Periodically deletes audit events older than the retention window
  - Pruning errors are logged, not propagated, so transient store
    failures don't trigger restart churn

# Usage Example

Creating and registering services:

	import (
	    "net/http"
	    "time"

	    "github.com/tomtom215/vigil/internal/supervisor"
	    "github.com/tomtom215/vigil/internal/supervisor/services"
	)

	func setupSupervisor(server *http.Server, hub *websocket.Hub, db *badger.DB, store audit.Store) {
	    tree := supervisor.NewTree(logger, config)

	    // HTTP server with 30s shutdown timeout
	    tree.AddAPIService(services.NewHTTPServerService(server, 30*time.Second))

	    // WebSocket hub
	    tree.AddAlertingService(services.NewWebSocketHubService(hub))

	    // Storage maintenance
	    tree.AddStorageService(services.NewBadgerGCService(db, time.Hour))
	    tree.AddStorageService(services.NewAuditRetentionService(store, 90, time.Hour))

	    // Start supervision
	    tree.Serve(ctx)
	}

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

# Service Identification

All services implement fmt.Stringer for logging:

	func (s *HTTPServerService) String() string {
	    return "http-server"
	}

Suture uses this for log messages:

	INFO http-server: starting
	INFO http-server: stopped
	ERROR http-server: restarting after failure

# Thread Safety

All service wrappers are safe for concurrent use:
  - State is protected by mutexes where needed
  - Context cancellation is handled atomically
  - Multiple Serve calls are not supported (undefined behavior)

# See Also

  - internal/supervisor: the Tree that manages these services
  - github.com/thejerf/suture/v4: Underlying supervision library
  - internal/websocket: WebSocket hub implementation
*/
package services
