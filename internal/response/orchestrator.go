// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/pattern"
)

// Config tunes the orchestrator's transition thresholds.
type Config struct {
	// BlockSeverity is the max-severity score at or above which the IP
	// is blocked.
	BlockSeverity float64 `json:"block_severity"`

	// LockSeverity is the max-severity score at or above which the
	// account is locked.
	LockSeverity float64 `json:"lock_severity"`

	// AlertSeverity is the max-severity score at or above which admins
	// are alerted.
	AlertSeverity float64 `json:"alert_severity"`

	// FailedLoginLock is the trailing-hour failed-login count that
	// locks the account outright.
	FailedLoginLock int `json:"failed_login_lock"`

	// ThrottledPerMinute is the reduced ceiling written by the
	// RATE_LIMIT tier.
	ThrottledPerMinute int `json:"throttled_per_minute"`

	// BlockTTL, LockTTL and RateLimitTTL override the default expiries
	// when positive.
	BlockTTL     time.Duration `json:"block_ttl"`
	LockTTL      time.Duration `json:"lock_ttl"`
	RateLimitTTL time.Duration `json:"rate_limit_ttl"`
}

// DefaultConfig returns the default transition thresholds.
func DefaultConfig() Config {
	return Config{
		BlockSeverity:      0.9,
		LockSeverity:       0.8,
		AlertSeverity:      0.5,
		FailedLoginLock:    5,
		ThrottledPerMinute: 5,
		BlockTTL:           BlockTTL,
		LockTTL:            LockTTL,
		RateLimitTTL:       RateLimitTTL,
	}
}

// Orchestrator decides and applies tiered remediation.
type Orchestrator struct {
	config     Config
	store      StateStore
	auditor    *audit.Logger
	notifiers  []Notifier
	principals PrincipalNotifier
}

// NewOrchestrator wires the state machine to its store, audit sink and
// notification channels.
func NewOrchestrator(config Config, store StateStore, auditor *audit.Logger, notifiers ...Notifier) *Orchestrator {
	if config.BlockTTL <= 0 {
		config.BlockTTL = BlockTTL
	}
	if config.LockTTL <= 0 {
		config.LockTTL = LockTTL
	}
	if config.RateLimitTTL <= 0 {
		config.RateLimitTTL = RateLimitTTL
	}
	return &Orchestrator{
		config:    config,
		store:     store,
		auditor:   auditor,
		notifiers: notifiers,
	}
}

// SetPrincipalNotifier registers the channel that informs account
// holders of locks. Without one, locks apply silently toward the user.
func (o *Orchestrator) SetPrincipalNotifier(n PrincipalNotifier) {
	o.principals = n
}

// velocityIndicators trigger the RATE_LIMIT tier on their own.
var velocityIndicators = map[pattern.IndicatorType]bool{
	pattern.IndicatorRapidDataAccess:   true,
	pattern.IndicatorAPIAbuse:          true,
	pattern.IndicatorScraping:          true,
	pattern.IndicatorSearchEnumeration: true,
}

// takeoverIndicators trigger the ACCOUNT_LOCK tier on their own.
var takeoverIndicators = map[pattern.IndicatorType]bool{
	pattern.IndicatorAccountEnumeration:  true,
	pattern.IndicatorPrivilegeEscalation: true,
}

// Decide maps an assessment onto the escalation ladder.
func (o *Orchestrator) Decide(input *Input) *Decision {
	maxSev := input.Assessment.MaxSeverity()
	s := maxSev.Score()

	top := TierWarn
	reason := "activity recorded for review"

	raise := func(tier Tier, why string) {
		if tier.rank() > top.rank() {
			top = tier
			reason = why
		}
	}

	for _, ind := range input.Assessment.Indicators {
		if velocityIndicators[ind.Type] {
			raise(TierRateLimit, fmt.Sprintf("velocity indicator %s", ind.Type))
		}
		if takeoverIndicators[ind.Type] {
			raise(TierAccountLock, fmt.Sprintf("takeover indicator %s", ind.Type))
		}
	}

	if input.FailedLogins >= o.config.FailedLoginLock {
		raise(TierAccountLock, fmt.Sprintf("%d failed logins in trailing hour", input.FailedLogins))
	}
	if s >= o.config.LockSeverity {
		raise(TierAccountLock, fmt.Sprintf("max severity %s", maxSev))
	}
	if s >= o.config.BlockSeverity || maxSev == models.SeverityCritical {
		raise(TierIPBlock, fmt.Sprintf("critical severity %s", maxSev))
	}

	// Lock and block are reserved for flagged identities. Velocity
	// throttling and alerting still apply below the flag threshold.
	if !input.Flagged && top.rank() > TierRateLimit.rank() {
		top = TierRateLimit
		reason += " (held at rate limit, identity not flagged)"
	}

	// Cumulative fallthrough: every tier at or below the top applies.
	var actions []Tier
	for _, tier := range []Tier{TierIPBlock, TierAccountLock, TierRateLimit, TierWarn} {
		if tier.rank() <= top.rank() {
			actions = append(actions, tier)
		}
	}
	if s >= o.config.AlertSeverity || top.rank() >= TierAccountLock.rank() {
		actions = append(actions, TierAdminAlert)
	}

	return &Decision{Top: top, Actions: actions, Reason: reason}
}

// Respond decides and applies remediation for one assessment. Action
// persistence failures are logged and skipped, never rolled back or
// surfaced to the caller: the request is already being rejected at the
// tier that succeeded.
func (o *Orchestrator) Respond(ctx context.Context, input *Input) *Decision {
	decision := o.Decide(input)
	now := time.Now()
	source := audit.Source{
		IPAddress: input.SourceIP,
		UserAgent: input.UserAgent,
		Country:   input.Country,
	}

	for _, action := range decision.Actions {
		metrics.RecordResponseAction(string(action))

		switch action {
		case TierIPBlock:
			entry := BlockEntry{
				Subject:   input.IPHash,
				Reason:    decision.Reason,
				Score:     input.Assessment.Score,
				CreatedAt: now,
				ExpiresAt: now.Add(o.config.BlockTTL),
			}
			if err := o.store.SetBlock(ctx, entry); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("subject", input.IPHash).Msg("block write failed")
				continue
			}
			metrics.ActiveBlocks.Inc()
			o.auditor.LogResponse(ctx, audit.EventTypeIPBlock,
				audit.Target{ID: input.IPHash, Type: "ip"},
				input.Assessment.Score, decision.Reason, source)

		case TierAccountLock:
			if input.Principal == nil {
				continue // nothing to lock for anonymous identities
			}
			entry := LockEntry{
				Subject:   input.Principal.UserID,
				Reason:    decision.Reason,
				Score:     input.Assessment.Score,
				CreatedAt: now,
				ExpiresAt: now.Add(o.config.LockTTL),
			}
			if err := o.store.SetLock(ctx, entry); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("subject", entry.Subject).Msg("lock write failed")
				continue
			}
			metrics.ActiveLocks.Inc()
			o.auditor.LogResponse(ctx, audit.EventTypeAccountLock,
				audit.Target{ID: entry.Subject, Type: "account", Name: input.Principal.Username},
				input.Assessment.Score, decision.Reason, source)
			o.notifyPrincipal(ctx, input, entry)

		case TierRateLimit:
			entry := RateEntry{
				Subject:   input.IdentityKey,
				PerMinute: o.config.ThrottledPerMinute,
				CreatedAt: now,
				ExpiresAt: now.Add(o.config.RateLimitTTL),
			}
			if err := o.store.SetRateLimit(ctx, entry); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("subject", input.IdentityKey).Msg("rate entry write failed")
				continue
			}
			o.auditor.LogResponse(ctx, audit.EventTypeRateLimit,
				audit.Target{ID: input.IdentityKey, Type: "identity"},
				input.Assessment.Score, decision.Reason, source)

		case TierAdminAlert:
			o.dispatchAlert(ctx, input, decision)
			o.auditor.LogResponse(ctx, audit.EventTypeAdminAlert,
				audit.Target{ID: input.IdentityKey, Type: "identity"},
				input.Assessment.Score, decision.Reason, source)

		case TierWarn:
			o.auditor.LogResponse(ctx, audit.EventTypeWarn,
				audit.Target{ID: input.IdentityKey, Type: "identity"},
				input.Assessment.Score, decision.Reason, source)
		}
	}

	logging.Ctx(ctx).Info().
		Str("identity", input.IdentityKey).
		Str("tier", string(decision.Top)).
		Int("score", input.Assessment.Score).
		Str("reason", decision.Reason).
		Msg("response applied")

	return decision
}

// notifyPrincipal tells the account holder their account is locked.
// Runs only after the lock persisted; a failed delivery never unwinds
// the lock.
func (o *Orchestrator) notifyPrincipal(ctx context.Context, input *Input, entry LockEntry) {
	if o.principals == nil {
		return
	}

	notice := &LockNotice{
		UserID:    input.Principal.UserID,
		Username:  input.Principal.Username,
		Reason:    entry.Reason,
		LockedAt:  entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}
	if err := o.principals.NotifyLock(ctx, notice); err != nil {
		metrics.NotificationsSent.WithLabelValues(o.principals.Name(), "failure").Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("channel", o.principals.Name()).
			Str("subject", entry.Subject).
			Msg("lock notice delivery failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues(o.principals.Name(), "success").Inc()
}

// dispatchAlert fans the alert out to every notifier. A failed channel
// is logged; the transition already applied is never rolled back.
func (o *Orchestrator) dispatchAlert(ctx context.Context, input *Input, decision *Decision) {
	indicators := make([]string, 0, len(input.Assessment.Indicators))
	for _, ind := range input.Assessment.Indicators {
		indicators = append(indicators, string(ind.Type))
	}

	alert := &Alert{
		Tier:           decision.Top,
		IdentityKey:    input.IdentityKey,
		Subject:        input.IPHash,
		Score:          input.Assessment.Score,
		Classification: string(input.Assessment.Classification),
		Reason:         decision.Reason,
		Indicators:     indicators,
		Timestamp:      time.Now().UTC(),
	}

	for _, n := range o.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			metrics.NotificationsSent.WithLabelValues(n.Name(), "failure").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("channel", n.Name()).Msg("alert dispatch failed")
			continue
		}
		metrics.NotificationsSent.WithLabelValues(n.Name(), "success").Inc()
	}
}

// IsBlocked reports whether the hashed IP has a live block. Store
// failures degrade to unblocked so the pipeline stays fail-open.
func (o *Orchestrator) IsBlocked(ctx context.Context, ipHash string) bool {
	entry, err := o.store.GetBlock(ctx, ipHash)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("block check failed, assuming unblocked")
		return false
	}
	return entry != nil
}

// IsLocked reports whether the account has a live lock, with the same
// fail-open contract.
func (o *Orchestrator) IsLocked(ctx context.Context, userID string) bool {
	entry, err := o.store.GetLock(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("lock check failed, assuming unlocked")
		return false
	}
	return entry != nil
}

// ThrottleCeiling returns the identity's reduced ceiling if a RATE_LIMIT
// entry is live, otherwise zero.
func (o *Orchestrator) ThrottleCeiling(ctx context.Context, identityKey string) int {
	entry, err := o.store.GetRateLimit(ctx, identityKey)
	if err != nil || entry == nil {
		return 0
	}
	return entry.PerMinute
}

// Unblock removes an IP block on administrative request. The second
// call for the same subject returns false. Always audited.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (o *Orchestrator) Unblock(ctx context.Context, subject string, actor audit.Actor) (bool, error) {
	found, err := o.store.Unblock(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("unblock %s: %w", subject, err)
	}
	if found {
		metrics.ActiveBlocks.Dec()
	}
	metrics.RecordOverride("unblock", found)
	o.auditor.LogOverride(ctx, audit.EventTypeUnblock, actor,
		audit.Target{ID: subject, Type: "ip"}, found, audit.Source{})
	return found, nil
}

// Unlock removes an account lock with the same contract as Unblock.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (o *Orchestrator) Unlock(ctx context.Context, subject string, actor audit.Actor) (bool, error) {
	found, err := o.store.Unlock(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", subject, err)
	}
	if found {
		metrics.ActiveLocks.Dec()
	}
	metrics.RecordOverride("unlock", found)
	o.auditor.LogOverride(ctx, audit.EventTypeUnlock, actor,
		audit.Target{ID: subject, Type: "account"}, found, audit.Source{})
	return found, nil
}

// Blocks lists live block entries for the admin interface.
func (o *Orchestrator) Blocks(ctx context.Context) ([]BlockEntry, error) {
	return o.store.ListBlocks(ctx)
}

// Locks lists live lock entries for the admin interface.
func (o *Orchestrator) Locks(ctx context.Context) ([]LockEntry, error) {
	return o.store.ListLocks(ctx)
}
