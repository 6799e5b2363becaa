// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package activity is the rolling, time-windowed per-identity event log
// backing every detector. Entries live in a shared expiring key-value
// store (BadgerDB in production, memory in tests) under per-detector
// namespaces, each with its own TTL and ring cap so one detector's
// retention needs never inflate another's blast radius.
package activity

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes tracked actions.
type EventType string

const (
	EventLogin        EventType = "login"
	EventLoginFailed  EventType = "login_failed"
	EventDataAccess   EventType = "data_access"
	EventSearch       EventType = "search"
	EventDownload     EventType = "download"
	EventAPICall      EventType = "api_call"
	EventAdminAction  EventType = "admin_action"
	EventPrivilegeOp  EventType = "privilege_op"
	EventPageView     EventType = "page_view"
	EventInteraction  EventType = "interaction"
	EventModifyRecord EventType = "modify_record"
)

// Record is one tracked action by one identity. Append-only within its
// namespace's ring; evicted oldest-first past the cap and expired with
// the namespace TTL.
type Record struct {
	Identity     string          `json:"identity"`
	EventType    EventType       `json:"event_type"`
	Timestamp    time.Time       `json:"timestamp"`
	ResourceType string          `json:"resource_type,omitempty"`

	// RecordCount is how many data records the action touched
	// (list/export endpoints report their page or file size here).
	RecordCount int `json:"record_count,omitempty"`

	// ResponseBytes is the response size, for volume detectors.
	ResponseBytes int64 `json:"response_bytes,omitempty"`

	Path      string `json:"path,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Metadata carries detector-specific extras (search term, target
	// username on a failed login, and so on).
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Namespace scopes one detector's view of the rolling store.
type Namespace struct {
	// Name prefixes every key in the store, e.g. "logins".
	Name string

	// TTL bounds entry lifetime; 1h-24h depending on the detector.
	TTL time.Duration

	// Cap bounds the ring length per identity; 50-500 depending on the
	// detector. Oldest entries are evicted first.
	Cap int
}

// Well-known namespaces. TTLs and caps mirror each detector's window
// needs; these are policy constants, not invariants.
var (
	NSLogins    = Namespace{Name: "logins", TTL: time.Hour, Cap: 100}
	NSPrivilege = Namespace{Name: "privilege", TTL: time.Hour, Cap: 50}
	NSAccess    = Namespace{Name: "access", TTL: 2 * time.Hour, Cap: 500}
	NSDownloads = Namespace{Name: "downloads", TTL: 2 * time.Hour, Cap: 100}
	NSSearches  = Namespace{Name: "searches", TTL: 2 * time.Hour, Cap: 200}
	NSRequests  = Namespace{Name: "requests", TTL: time.Hour, Cap: 500}
	NSBehavior  = Namespace{Name: "behavior", TTL: 24 * time.Hour, Cap: 500}
)

// AllNamespaces lists every registered namespace, for admin inspection.
func AllNamespaces() []Namespace {
	return []Namespace{
		NSLogins, NSPrivilege, NSAccess, NSDownloads,
		NSSearches, NSRequests, NSBehavior,
	}
}
