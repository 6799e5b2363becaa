// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every layer.
type TreeConfig struct {
	// FailureThreshold is the decayed failure count that puts a layer
	// into backoff.
	FailureThreshold float64

	// FailureDecay is the half-life of the failure count, in seconds.
	FailureDecay float64

	// FailureBackoff is how long a layer waits once over threshold.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown per service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults, which have proven
// fine for this workload.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Tree is the supervision hierarchy for the long-running pieces of the
// operational surface. Three layers hang off the root:
//
//   - storage: Badger value-log GC and audit retention pruning
//   - alerting: the WebSocket alert hub
//   - api: the HTTP server
//
// Layers restart independently. A crashing alert hub is restarted
// inside its own layer and never takes the HTTP server with it, so
// admin endpoints stay reachable while delivery recovers.
type Tree struct {
	root     *suture.Supervisor
	storage  *suture.Supervisor
	alerting *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

// NewTree builds the three-layer hierarchy. Supervisor lifecycle events
// are logged through the given slog logger via sutureslog.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	config = config.withDefaults()

	spec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Only the root gets the event hook; children inherit it when added.
	rootSpec := spec
	rootSpec.EventHook = (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &Tree{
		root:     suture.New("vigil", rootSpec),
		storage:  suture.New("storage-layer", spec),
		alerting: suture.New("alerting-layer", spec),
		api:      suture.New("api-layer", spec),
		config:   config,
	}
	t.root.Add(t.storage)
	t.root.Add(t.alerting)
	t.root.Add(t.api)
	return t
}

// Root exposes the root supervisor for callers that need suture
// directly.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddStorageService supervises a storage maintenance loop.
func (t *Tree) AddStorageService(svc suture.Service) suture.ServiceToken {
	return t.storage.Add(svc)
}

// AddAlertingService supervises an alert delivery component.
func (t *Tree) AddAlertingService(svc suture.Service) suture.ServiceToken {
	return t.alerting.Add(svc)
}

// AddAPIService supervises the HTTP serving layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the whole tree until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine and returns the
// channel that yields the terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport names services that ignored the shutdown
// timeout, for logging on the way out.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
