// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package websocket streams admin alerts to connected operator consoles.

The Hub accepts alerts from the response orchestrator (it implements
response.Notifier) and fans them out to every connected client. It uses
the gorilla/websocket library with a hub-client architecture.

Each client runs two goroutines:
  - readPump: reads from the WebSocket, answers pings
  - writePump: writes hub messages and keepalive pings

Usage:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	// Wire into the orchestrator as a notification channel
	orch := response.NewOrchestrator(cfg, store, auditor, hub)

	// Upgrade endpoint (behind admin auth)
	http.HandleFunc("/api/v1/ws/alerts", func(w http.ResponseWriter, r *http.Request) {
	    websocket.ServeWs(hub, w, r)
	})

Delivery is best effort. A client that cannot keep up with the
broadcast rate is evicted rather than allowed to stall the hub, and a
full broadcast buffer drops the alert for this channel only; the audit
trail remains the durable record of every response action.
*/
package websocket
