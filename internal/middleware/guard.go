// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/baseline"
	"github.com/tomtom215/vigil/internal/identity"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/pattern"
	"github.com/tomtom215/vigil/internal/policy"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/scoring"
	"github.com/tomtom215/vigil/internal/trust"
)

// RecordCountHeader is set by host application handlers to report how
// many data records a response carried. Absent means zero.
const RecordCountHeader = "X-Vigil-Records"

// LoginUsernameHeader optionally names the attempted account on login
// endpoints, for enumeration evidence. The guard never reads request
// bodies.
const LoginUsernameHeader = "X-Vigil-Login-User"

// GuardConfig tunes the guard middleware.
type GuardConfig struct {
	// JWTSecret verifies the host application's bearer tokens.
	JWTSecret []byte

	// RateLimitDisabled turns the throttle rung off while keeping
	// detection and response active.
	RateLimitDisabled bool

	// BaselineEnabled runs baseline anomaly comparison for
	// authenticated users.
	BaselineEnabled bool
}

// Guard is the assessment pipeline as middleware. The order inside
// Protect is load-bearing: active blocks and locks reject before any
// detector work runs, throttling rejects before the handler runs, and
// detection plus response happen after the response is flushed so the
// pipeline adds no user-visible latency on the hot path.
//
// Every stage fails open. A store error, a detector panic boundary or
// an unreachable trust signal degrades to "no opinion"; the guard never
// turns its own failure into a 5xx for the caller.
type Guard struct {
	config    GuardConfig
	resolver  *identity.Resolver
	store     activity.Store
	detectors *pattern.Engine
	baselines *baseline.Engine
	scorer    *scoring.Engine
	policy    *policy.Policy
	limiters  *policy.LimiterRegistry
	orch      *response.Orchestrator
	auditor   *audit.Logger
}

// NewGuard wires the pipeline stages into one middleware.
func NewGuard(
	config GuardConfig,
	resolver *identity.Resolver,
	store activity.Store,
	detectors *pattern.Engine,
	baselines *baseline.Engine,
	scorer *scoring.Engine,
	pol *policy.Policy,
	limiters *policy.LimiterRegistry,
	orch *response.Orchestrator,
	auditor *audit.Logger,
) *Guard {
	return &Guard{
		config:    config,
		resolver:  resolver,
		store:     store,
		detectors: detectors,
		baselines: baselines,
		scorer:    scorer,
		policy:    pol,
		limiters:  limiters,
		orch:      orch,
		auditor:   auditor,
	}
}

// Protect wraps a handler with the full assessment pipeline.
func (g *Guard) Protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rc := models.NewRequestContext(r)
		rc.RequestID = GetRequestID(ctx)
		if p, err := models.ParsePrincipal(r, g.config.JWTSecret); err == nil {
			rc.Principal = p
		} else if !errors.Is(err, models.ErrNoToken) {
			logging.Ctx(ctx).Debug().Err(err).
				Msg("bearer token rejected, treating caller as anonymous")
		}

		tc := trust.FromHeaders(r.Header)
		id := g.resolver.Resolve(rc)
		ipHash := g.resolver.HashIP(rc.IP)
		ipID := identity.Identity{Key: "ip:" + ipHash, Kind: identity.KindIP}

		// Active remediation state short-circuits before detector work.
		if g.orch.IsBlocked(ctx, ipHash) {
			metrics.GuardVerdicts.WithLabelValues("blocked").Inc()
			writeDenied(w, http.StatusForbidden, "access blocked")
			return
		}
		if rc.Principal != nil && g.orch.IsLocked(ctx, rc.Principal.UserID) {
			metrics.GuardVerdicts.WithLabelValues("locked").Inc()
			writeDenied(w, http.StatusForbidden, "account temporarily locked")
			return
		}

		class := models.ClassifyPath(rc.Path)

		if g.policy.Bypass(tc, rc.Principal) {
			metrics.GuardVerdicts.WithLabelValues("bypassed").Inc()
		} else if !g.config.RateLimitDisabled {
			if !g.throttle(ctx, id, class, tc) {
				metrics.GuardVerdicts.WithLabelValues("throttled").Inc()
				metrics.RateLimitRejections.WithLabelValues(string(class)).Inc()
				w.Header().Set("Retry-After", "60")
				writeDenied(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			metrics.GuardVerdicts.WithLabelValues("allowed").Inc()
		} else {
			metrics.GuardVerdicts.WithLabelValues("allowed").Inc()
		}

		rec := &guardResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rec, r)

		rc.StatusCode = rec.statusCode
		rc.ResponseSize = rec.bytes

		// Detection runs after the response is flushed. Cancellation of
		// the inbound request must not abort activity writes or
		// response actions already in flight.
		actx := context.WithoutCancel(ctx)
		g.record(actx, id, ipID, rc, class, rec)
		g.assess(actx, id, ipID, rc, tc)
	}
}

// throttle applies the adaptive per-identity limit, tightened by any
// active RATE_LIMIT response entry and the endpoint-class ceiling.
// Buckets are per identity and endpoint class so a browse burst cannot
// consume a login allowance.
func (g *Guard) throttle(ctx context.Context, id identity.Identity, class models.EndpointClass, tc *trust.Context) bool {
	perMin := g.policy.EndpointCeiling(g.policy.RateLimit(tc), class)

	if ceiling := g.orch.ThrottleCeiling(ctx, id.Key); ceiling > 0 && (perMin == 0 || ceiling < perMin) {
		perMin = ceiling
	}
	if perMin <= 0 {
		return true // uncapped class with no active throttle
	}
	return g.limiters.Allow(id.Key+"|"+string(class), perMin)
}

// eventTypeFor maps a completed request to its tracked action type.
func eventTypeFor(rc *models.RequestContext, class models.EndpointClass) activity.EventType {
	switch class {
	case models.EndpointLogin:
		if rc.StatusCode == http.StatusUnauthorized || rc.StatusCode == http.StatusForbidden {
			return activity.EventLoginFailed
		}
		return activity.EventLogin
	case models.EndpointAdmin:
		return activity.EventAdminAction
	case models.EndpointSearch:
		return activity.EventSearch
	case models.EndpointDownload:
		return activity.EventDownload
	case models.EndpointAPI:
		return activity.EventAPICall
	default:
		if rc.Method == http.MethodGet || rc.Method == http.MethodHead {
			return activity.EventPageView
		}
		return activity.EventInteraction
	}
}

// record writes the request into every namespace whose detector will
// want it. Write failures are logged by the store and never surface;
// an undercounted window only makes detectors more conservative.
func (g *Guard) record(ctx context.Context, id, ipID identity.Identity, rc *models.RequestContext, class models.EndpointClass, rec *guardResponseWriter) {
	et := eventTypeFor(rc, class)
	base := activity.Record{
		Identity:      id.Key,
		EventType:     et,
		Timestamp:     rc.Timestamp,
		Path:          rc.Path,
		IP:            rc.IP,
		UserAgent:     rc.UserAgent,
		ResponseBytes: rc.ResponseSize,
	}

	g.write(ctx, activity.NSRequests, id.Key, base)

	switch class {
	case models.EndpointLogin:
		login := base
		if user := loginTarget(rc); user != "" {
			if meta, err := json.Marshal(pattern.LoginMetadata{Username: user}); err == nil {
				login.Metadata = meta
			}
		}
		// Enumeration is tracked per source IP; lockout counting is
		// tracked per resolved identity.
		g.write(ctx, activity.NSLogins, ipID.Key, login)
		if id.Key != ipID.Key {
			g.write(ctx, activity.NSLogins, id.Key, login)
		}

	case models.EndpointSearch:
		search := base
		if term := searchTerm(rc); term != "" {
			if meta, err := json.Marshal(pattern.SearchMetadata{Term: term}); err == nil {
				search.Metadata = meta
			}
		}
		g.write(ctx, activity.NSSearches, id.Key, search)

	case models.EndpointDownload:
		if rc.StatusCode < http.StatusBadRequest {
			g.write(ctx, activity.NSDownloads, id.Key, base)
		}

	case models.EndpointAdmin:
		g.write(ctx, activity.NSPrivilege, id.Key, base)
	}

	// Data-access volume, as reported by the host handler.
	if count := recordCount(rec); count > 0 {
		access := base
		access.EventType = activity.EventDataAccess
		access.RecordCount = count
		g.write(ctx, activity.NSAccess, id.Key, access)
	}

	// Long-horizon behavior log feeding the baseline engine.
	if rc.Principal != nil {
		behavior := base
		behavior.RecordCount = recordCount(rec)
		g.write(ctx, activity.NSBehavior, identity.ForUser(rc.Principal.UserID).Key, behavior)
	}
}

func (g *Guard) write(ctx context.Context, ns activity.Namespace, key string, rec activity.Record) {
	if err := g.store.Record(ctx, ns, key, rec); err != nil && !errors.Is(err, activity.ErrStoreClosed) {
		logging.Ctx(ctx).Warn().Err(err).
			Str("namespace", ns.Name).
			Msg("activity write failed")
	}
}

// assess runs detectors, folds in baseline anomalies, scores, and
// hands any assessment with fired indicators to the response
// orchestrator.
func (g *Guard) assess(ctx context.Context, id, ipID identity.Identity, rc *models.RequestContext, tc *trust.Context) {
	event := &pattern.Event{Identity: id, IPIdentity: ipID, Request: rc}
	indicators := g.detectors.Check(ctx, event)
	indicators = append(indicators, g.baselineIndicators(ctx, rc)...)

	score := g.scorer.Score(indicators, tc)
	flagged := len(indicators) > 0 &&
		g.scorer.ShouldFlag(score, tc, rc.IP, rc.SessionID != "")
	metrics.RecordAssessment(score.Score, string(score.Classification), flagged)

	source := audit.Source{
		IPAddress: rc.IP,
		UserAgent: rc.UserAgent,
		Country:   tc.Country,
	}
	for _, ind := range indicators {
		g.auditor.LogDetection(ctx, id.Key, string(ind.Type),
			auditSeverity(ind.Severity), source, ind.Evidence)
	}

	// Log at the policy's verbosity for the classification so benign
	// traffic stays out of production logs.
	logging.Ctx(ctx).WithLevel(policy.Verbosity(score.Classification)).
		Str("identity", id.Key).
		Int("score", score.Score).
		Str("classification", string(score.Classification)).
		Int("indicators", len(indicators)).
		Bool("flagged", flagged).
		Msg("assessment complete")

	// The orchestrator sees every assessment with fired indicators
	// unless the edge vouches for the caller; its own thresholds pick
	// the tier, and the flag decision gates the lock and block rungs.
	if len(indicators) == 0 || tc.Classify() == trust.LevelHigh {
		return
	}

	if flagged {
		detail, _ := json.Marshal(score)
		g.auditor.LogAssessment(ctx, id.Key, score.Score, string(score.Classification), source, detail)
	}

	g.orch.Respond(ctx, &response.Input{
		IdentityKey:  id.Key,
		IPHash:       ipID.Key[len("ip:"):],
		Principal:    rc.Principal,
		Assessment:   score,
		Flagged:      flagged,
		FailedLogins: g.failedLogins(ctx, id),
		SourceIP:     rc.IP,
		UserAgent:    rc.UserAgent,
		Country:      tc.Country,
	})
}

// baselineIndicators compares the authenticated user's trailing day
// against their learned baseline, surfacing anomalies through the same
// indicator path the detectors use.
func (g *Guard) baselineIndicators(ctx context.Context, rc *models.RequestContext) []pattern.Indicator {
	if !g.config.BaselineEnabled || rc.Principal == nil || g.baselines == nil {
		return nil
	}

	userKey := identity.ForUser(rc.Principal.UserID).Key
	b := g.baselines.Baseline(ctx, rc.Principal.UserID)
	current, err := g.store.Window(ctx, activity.NSBehavior, userKey, 24*time.Hour)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("behavior window unavailable, skipping baseline comparison")
		return nil
	}

	anomalies := g.baselines.DetectAnomalies(b, current)
	out := make([]pattern.Indicator, 0, len(anomalies))
	for _, a := range anomalies {
		evidence, _ := json.Marshal(a)
		out = append(out, pattern.Indicator{
			Type:       pattern.IndicatorBaselineDeviation,
			Detected:   true,
			Severity:   a.Severity,
			Evidence:   evidence,
			DetectedAt: time.Now(),
		})
	}
	return out
}

// failedLogins counts the identity's failed logins over the trailing
// hour, for the orchestrator's lockout rule. Store failure counts zero.
func (g *Guard) failedLogins(ctx context.Context, id identity.Identity) int {
	records, err := g.store.Window(ctx, activity.NSLogins, id.Key, time.Hour)
	if err != nil {
		return 0
	}
	failed := 0
	for _, r := range records {
		if r.EventType == activity.EventLoginFailed {
			failed++
		}
	}
	return failed
}

// loginTarget extracts the attempted username without touching the
// request body.
func loginTarget(rc *models.RequestContext) string {
	if v := rc.Headers.Get(LoginUsernameHeader); v != "" {
		return v
	}
	if rc.Principal != nil {
		return rc.Principal.Username
	}
	return ""
}

// searchTerm pulls the query term from the conventional parameters.
func searchTerm(rc *models.RequestContext) string {
	values, err := url.ParseQuery(rc.Query)
	if err != nil {
		return ""
	}
	for _, key := range []string{"q", "query", "term", "search"} {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// recordCount reads the host handler's record-count response header.
func recordCount(rec *guardResponseWriter) int {
	v := rec.Header().Get(RecordCountHeader)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// auditSeverity maps indicator severity onto the audit scale.
func auditSeverity(s models.Severity) audit.Severity {
	switch s {
	case models.SeverityCritical:
		return audit.SeverityCritical
	case models.SeverityHigh:
		return audit.SeverityError
	case models.SeverityMedium:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}

// writeDenied emits a minimal JSON denial without leaking detection
// internals to the caller.
func writeDenied(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// guardResponseWriter captures the status code and body size the
// post-response stages need.
type guardResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func (w *guardResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *guardResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}
