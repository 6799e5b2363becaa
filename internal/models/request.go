// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package models defines the shared request-surface types consumed by
// the assessment pipeline: the per-request context assembled from the
// inbound HTTP request, the authenticated principal supplied by the
// host application, and endpoint sensitivity classes.
package models

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestContext is the pipeline's view of one inbound request.
// It is assembled once by the middleware and passed read-only to the
// identity resolver, detectors and scoring engine.
type RequestContext struct {
	// RequestID is the unique ID assigned by the request-ID middleware.
	RequestID string

	Method    string
	Path      string
	Query     string
	IP        string
	UserAgent string

	// SessionID is the host application's session cookie value, if any.
	SessionID string

	// Principal is the authenticated user, nil for anonymous visitors.
	Principal *Principal

	// Headers is the inbound header set, used by the trust-context
	// provider. Never mutated by the pipeline.
	Headers http.Header

	// ResponseSize and StatusCode are populated by the middleware after
	// the handler runs, for detectors that inspect response volume.
	ResponseSize int64
	StatusCode   int

	Timestamp time.Time
}

// sessionCookieName is the host application's session cookie.
const sessionCookieName = "vigil_session"

// NewRequestContext builds a RequestContext from an inbound request.
// The principal is resolved separately (see ParsePrincipal) because
// token verification needs the shared secret.
func NewRequestContext(r *http.Request) *RequestContext {
	rc := &RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Headers:   r.Header,
		Timestamp: time.Now(),
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		rc.SessionID = c.Value
	}
	return rc
}

// ClientIP extracts the caller's IP, honoring X-Forwarded-For and
// X-Real-IP set by the edge layer. Falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the original client
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
