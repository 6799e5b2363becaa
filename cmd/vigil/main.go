// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package main is the entry point for the Vigil server.
//
// Vigil is a request-time threat-assessment and automated-response
// pipeline for web applications. It resolves every request to a stable
// identity, records activity into rolling windows, runs pattern
// detectors and behavioral-baseline comparison over those windows,
// folds the results into a composite threat score, and walks flagged
// identities up a tiered response ladder (warn, rate limit, account
// lock, IP block) with a complete audit trail.
//
// The binary serves the operational surface: the admin API for blocks,
// locks, detector configuration, scoring weights, policy limits and
// audit queries; Prometheus metrics; health probes; and a WebSocket
// alert stream. The assessment pipeline itself is embedded into the
// host application as middleware (see internal/middleware.Guard).
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf sources (defaults, YAML, env)
//  2. Badger: one shared embedded store for activity windows,
//     response state and audit events (TTL-native expiry)
//  3. Pipeline: identity resolver, activity store, detectors,
//     baseline engine, scoring engine, adaptive policy
//  4. Response: orchestrator with webhook/Discord notifiers behind
//     circuit breakers, plus the WebSocket alert hub
//  5. Admin API: chi router behind the admin token
//  6. Supervisor tree: suture-managed HTTP server, hub, Badger GC
//     and audit retention
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (IDENTITY_SECRET, JWT_SECRET, ADMIN_TOKEN, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Two secrets are required:
//   - IDENTITY_SECRET: keys the IP hash so raw IPs never reach storage
//   - JWT_SECRET: verifies the host application's bearer tokens
//
// The admin API is disabled until ADMIN_TOKEN is set.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Drains the audit writer and closes the store
//
// # Example Usage
//
// Development with an in-memory store:
//
//	export IDENTITY_SECRET=$(openssl rand -hex 16)
//	export JWT_SECRET=$(openssl rand -hex 16)
//	export ADMIN_TOKEN=dev-token
//	export STORE_IN_MEMORY=true
//	./vigil
//
// Production:
//
//	export ENVIRONMENT=production
//	export IDENTITY_SECRET=$(openssl rand -hex 32)
//	export JWT_SECRET=$(openssl rand -hex 32)
//	export ADMIN_TOKEN=$(openssl rand -hex 32)
//	export STORE_PATH=/data/vigil
//	export ALERT_WEBHOOK_URL=https://ops.example.com/hooks/vigil
//	./vigil
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/api"
	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/middleware"
	"github.com/tomtom215/vigil/internal/pattern"
	"github.com/tomtom215/vigil/internal/policy"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/scoring"
	"github.com/tomtom215/vigil/internal/supervisor"
	"github.com/tomtom215/vigil/internal/supervisor/services"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("in_memory_store", storeInMemory(cfg)).
		Bool("admin_api", cfg.Security.AdminToken != "").
		Msg("Starting Vigil")

	// One shared Badger instance backs activity windows, response state
	// and the audit trail; each store uses its own key prefix.
	db, err := openBadger(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Audit sink. Everything downstream audits through this logger, so
	// it comes up before the pipeline.
	auditStore := audit.NewBadgerStore(db, time.Duration(cfg.Audit.RetentionDays)*24*time.Hour)
	auditLogger := audit.NewLogger(auditStore, &audit.Config{
		Enabled:       cfg.Audit.Enabled,
		LogLevel:      audit.SeverityInfo,
		RetentionDays: cfg.Audit.RetentionDays,
		BufferSize:    cfg.Audit.BufferSize,
		LogToStdout:   cfg.Audit.LogToStdout,
	})
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	// Pipeline stages.
	store := activity.NewBadgerStore(db)
	detectors := buildDetectors(cfg, store)

	weights := scoring.DefaultWeights()
	weights.FlagThreshold = cfg.Scoring.FlagThreshold
	weights.SharedIPFlagThreshold = cfg.Scoring.SharedIPFlagThreshold
	scorer := scoring.NewEngine(weights)

	pol := policy.New()
	pol.SetLimits(policy.Limits{
		HighTrust:    cfg.Policy.HighTrustPerMinute,
		HumanLike:    cfg.Policy.HumanLikePerMinute,
		MediumTrust:  cfg.Policy.MediumTrustPerMinute,
		LikelyBot:    cfg.Policy.LikelyBotPerMinute,
		ConfirmedBot: cfg.Policy.ConfirmedBotPerMinute,
		Default:      cfg.Policy.DefaultPerMinute,
	})
	limiters := policy.NewLimiterRegistry(cfg.Policy.LimiterIdleTTL)
	defer limiters.Close()

	// WebSocket hub doubles as an alert notifier so admin clients see
	// responses as they happen.
	hub := ws.NewHub()

	orchCfg := response.DefaultConfig()
	orchCfg.FailedLoginLock = cfg.Response.FailedLoginLock
	orchCfg.ThrottledPerMinute = cfg.Response.ThrottledPerMinute
	orchCfg.BlockTTL = cfg.Response.BlockTTL
	orchCfg.LockTTL = cfg.Response.LockTTL
	orchCfg.RateLimitTTL = cfg.Response.RateLimitTTL
	orch := response.NewOrchestrator(orchCfg,
		response.NewBadgerStateStore(db), auditLogger, buildNotifiers(cfg, hub)...)
	if url := cfg.Notifications.LockNoticeURL; url != "" {
		orch.SetPrincipalNotifier(response.NewLockNoticeNotifier(url, cfg.Notifications.Timeout))
		logging.Info().Msg("Lock notice notifier registered")
	}

	// Embeddable guard construction lives in the host application; this
	// process only serves the operational surface.
	perfmon := middleware.NewPerformanceMonitor(1000, time.Second)
	handler := api.NewHandler(orch, detectors, scorer, pol, limiters,
		auditLogger, auditStore, perfmon, hub)

	router := api.NewRouter(handler, &api.RouterConfig{
		AdminToken:        cfg.Security.AdminToken,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitDisabled: cfg.Security.RateLimitDisabled,
		ReadyCheck: func() error {
			if db.IsClosed() {
				return errors.New("store closed")
			}
			return nil
		},
	})
	if cfg.Security.AdminToken == "" {
		logging.Warn().Msg("ADMIN_TOKEN not set - admin API rejects all requests")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddStorageService(services.NewBadgerGCService(db, cfg.Store.GCInterval))
	tree.AddStorageService(services.NewAuditRetentionService(auditStore, cfg.Audit.RetentionDays, time.Hour))
	tree.AddAlertingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Vigil stopped gracefully")
}

func storeInMemory(cfg *config.Config) bool {
	return cfg.Store.InMemory || cfg.Store.Path == ""
}

// openBadger opens the shared store, in memory when configured or when
// no path is set.
func openBadger(cfg *config.Config) (*badger.DB, error) {
	var opts badger.Options
	if storeInMemory(cfg) {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Store.Path)
	}
	opts.Logger = nil // Suppress BadgerDB logs, zerolog owns stderr

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Store.Path, err)
	}
	return db, nil
}

// buildDetectors registers the full detector set and applies the
// configured enable flags.
func buildDetectors(cfg *config.Config, store activity.Store) *pattern.Engine {
	engine := pattern.NewEngine()
	engine.Register(pattern.NewAccountEnumerationDetector(store))
	engine.Register(pattern.NewPrivilegeEscalationDetector(store))
	engine.Register(pattern.NewDataAccessDetector(store))
	engine.Register(pattern.NewDownloadDetector(store))
	engine.Register(pattern.NewSearchDetector(store))
	engine.Register(pattern.NewScrapingDetector(store))
	engine.Register(pattern.NewAPIAbuseDetector(store))
	engine.Register(pattern.NewInjectionDetector(store))

	engine.SetEnabled(cfg.Detection.Enabled)
	for _, name := range cfg.Detection.Disabled {
		if err := engine.SetDetectorEnabled(pattern.IndicatorType(name), false); err != nil {
			logging.Warn().Str("detector", name).Msg("Unknown detector in DETECTION_DISABLED")
		}
	}
	return engine
}

// buildNotifiers assembles the alert channels. Outbound webhooks sit
// behind circuit breakers; the hub is in-process and needs none.
func buildNotifiers(cfg *config.Config, hub *ws.Hub) []response.Notifier {
	notifiers := []response.Notifier{hub}

	if url := cfg.Notifications.WebhookURL; url != "" {
		notifiers = append(notifiers,
			response.NewBreakerNotifier(response.NewWebhookNotifier(url, cfg.Notifications.Timeout)))
		logging.Info().Msg("Webhook notifier registered")
	}
	if url := cfg.Notifications.DiscordURL; url != "" {
		notifiers = append(notifiers,
			response.NewBreakerNotifier(response.NewDiscordNotifier(url, cfg.Notifications.Timeout)))
		logging.Info().Msg("Discord notifier registered")
	}
	return notifiers
}
