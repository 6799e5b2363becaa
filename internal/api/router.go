// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/vigil/internal/middleware"
)

// RouterConfig configures the admin router.
type RouterConfig struct {
	// AdminToken authorizes /api/v1. Empty rejects all admin requests.
	AdminToken string

	// CORSOrigins allowed on the admin API.
	CORSOrigins []string

	// RateLimitDisabled removes the coarse per-IP pre-limit, for tests.
	RateLimitDisabled bool

	// ReadyCheck reports whether dependencies are usable. Nil means
	// always ready.
	ReadyCheck func() error
}

// NewRouter builds the admin router: health and metrics are open,
// everything under /api/v1 sits behind the admin token.
func NewRouter(h *Handler, cfg *RouterConfig) chi.Router {
	if cfg == nil {
		cfg = &RouterConfig{}
	}

	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders())
	r.Use(CORSHandler(cfg.CORSOrigins))

	r.Group(func(r chi.Router) {
		r.Use(RateLimitByIP(RateLimitHealth, cfg.RateLimitDisabled))
		r.Get("/health/live", handleLiveness)
		r.Get("/health/ready", handleReadiness(cfg.ReadyCheck))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuth(cfg.AdminToken))
		r.Use(RateLimitByIP(RateLimitAdmin, cfg.RateLimitDisabled))
		r.Use(chiHandlerFunc(middleware.Compression))
		if h.perfmon != nil {
			r.Use(chiHandlerFunc(h.perfmon.Middleware))
		}

		r.Get("/blocks", h.ListBlocks)
		r.Delete("/blocks/{subject}", h.Unblock)
		r.Get("/locks", h.ListLocks)
		r.Delete("/locks/{subject}", h.Unlock)

		r.Get("/detectors", h.ListDetectors)
		r.Put("/detectors/{type}", h.UpdateDetector)

		r.Get("/scoring/weights", h.GetWeights)
		r.Put("/scoring/weights", h.UpdateWeights)
		r.Get("/policy/limits", h.GetLimits)
		r.Put("/policy/limits", h.UpdateLimits)

		r.Get("/identities/{key}", h.InspectIdentity)
		r.Get("/stats", h.GetStats)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", h.ListAuditEvents)
			r.Get("/events/{id}", h.GetAuditEvent)
			r.Get("/stats", h.GetAuditStats)
			r.Get("/types", h.GetAuditEventTypes)
			r.Get("/severities", h.GetAuditSeverities)
			r.With(RateLimitByIP(RateLimitExport, cfg.RateLimitDisabled)).
				Get("/export", h.ExportAuditEvents)
		})

		r.Get("/ws/alerts", h.AlertStream)
	})

	return r
}

// chiHandlerFunc adapts HandlerFunc-style middleware to chi's
// http.Handler signature.
func chiHandlerFunc(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// handleLiveness answers as long as the process is serving.
func handleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// handleReadiness consults the configured dependency check.
func handleReadiness(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				NewResponseWriter(w, r).ServiceUnavailable("Not ready: " + err.Error())
				return
			}
		}
		WriteSuccess(w, r, map[string]string{"status": "ready"})
	}
}
