// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/vigil/internal/logging"
)

// RateLimitConfig defines rate limit parameters for route groups.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Route-group rate limits for the admin surface. These are separate
// from the adaptive limiter that guards host traffic; they protect the
// admin API itself.
var (
	// RateLimitAdmin covers interactive admin operations.
	RateLimitAdmin = RateLimitConfig{Requests: 120, Window: time.Minute}

	// RateLimitExport is stricter for export operations, which scan the
	// full audit range.
	RateLimitExport = RateLimitConfig{Requests: 10, Window: time.Minute}

	// RateLimitHealth allows frequent checks from monitoring tools.
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// RateLimitByIP returns an IP-keyed rate limiter using go-chi/httprate,
// or a pass-through when disabled.
func RateLimitByIP(config RateLimitConfig, disabled bool) func(http.Handler) http.Handler {
	if disabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(config.Requests, config.Window)
}

// CORSHandler builds the CORS middleware for the admin API. Origins
// default to empty, requiring explicit configuration.
func CORSHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// SecurityHeaders adds standard security headers to API responses.
// HSTS is added only when the request arrived over TLS, directly or via
// a terminating proxy.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuth requires a bearer token matching the configured admin
// token. Comparison is constant time over digests so neither content
// nor length leaks. An empty configured token rejects everything: the
// admin surface is opt-in.
func AdminAuth(adminToken string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(adminToken))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				WriteError(w, r, http.StatusForbidden, ErrCodeForbidden, "Admin API is not enabled")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="vigil-admin"`)
				WriteError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token")
				return
			}

			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				logging.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("Admin API authentication failed")
				WriteError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header, or
// from the access_token query parameter for WebSocket upgrades where
// browsers cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		return token, token != ""
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// RequestIDWithLogging adds the request ID to the context and seeds a
// correlation ID so downstream log lines are traceable.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithNewCorrelationID(ctx)

			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
