// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import "context"

// ContextHub matches the alert hub's run loop. Satisfied by
// *websocket.Hub without importing that package here.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService supervises the alert hub's broadcast loop. The
// hub already follows the Serve pattern, so the wrapper only adds a
// name for supervisor logs.
//
// Example usage:
//
//	tree.AddAlertingService(services.NewWebSocketHubService(websocket.NewHub()))
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService creates the wrapper.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service by delegating to the hub, which
// broadcasts until the context is canceled and then closes its clients.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (w *WebSocketHubService) String() string {
	return w.name
}
