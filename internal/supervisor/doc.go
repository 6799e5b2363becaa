// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package supervisor runs the operational surface's long-lived services
under suture v4, with Erlang-style restart-on-crash and failure
isolation between layers.

# Tree shape

	vigil (root)
	├── storage-layer
	│   ├── badger-gc
	│   └── audit-retention
	├── alerting-layer
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Each layer is its own child supervisor with an independent failure
counter. The split follows blast radius: a crash-looping alert hub
backs off inside alerting-layer while the HTTP server keeps serving
admin requests, and storage maintenance failures never touch either.

# Restart policy

TreeConfig carries suture's knobs. A failure increments the layer's
counter, the counter decays with a FailureDecay-second half-life, and
crossing FailureThreshold puts the layer into FailureBackoff before the
next restart. The defaults in DefaultTreeConfig are suture's own.

A service that returns nil stays stopped; returning an error triggers a
restart. suture.ErrDoNotRestart stops one service permanently and
suture.ErrTerminateSupervisorTree takes the whole tree down.

# What is not supervised

The request-path pipeline (identity resolution, detectors, scoring,
policy, response) runs inline in the guard middleware and has no
independent lifecycle. The audit logger's async writer owns its own
goroutine and is drained by Close during shutdown, after the tree has
already stopped.

# Usage

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddStorageService(services.NewBadgerGCService(db, time.Hour))
	tree.AddStorageService(services.NewAuditRetentionService(store, 90, time.Hour))
	tree.AddAlertingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	// ... cancel ctx to shut down ...
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		// supervisor failed rather than shut down
	}

Services that ignore the shutdown timeout show up in
UnstoppedServiceReport, which main logs on the way out.
*/
package supervisor
