// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package response is the tiered remediation state machine. Tiers are
// cumulative: entering a higher tier also performs every lower tier's
// action, plus an admin alert above the alerting threshold. Block and
// lock state persists with automatic expiry; manual override is the
// only other removal path and is always audited.
package response

import (
	"context"
	"time"

	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/scoring"
)

// Tier is one remediation level, ordered by severity.
type Tier string

const (
	TierWarn        Tier = "WARN"
	TierRateLimit   Tier = "RATE_LIMIT"
	TierAccountLock Tier = "ACCOUNT_LOCK"
	TierIPBlock     Tier = "IP_BLOCK"

	// TierAdminAlert attaches alongside other tiers above the alerting
	// threshold; it is not a rung on the escalation ladder.
	TierAdminAlert Tier = "ADMIN_ALERT"
)

// rank orders the escalation ladder. ADMIN_ALERT sits outside it.
func (t Tier) rank() int {
	switch t {
	case TierWarn:
		return 0
	case TierRateLimit:
		return 1
	case TierAccountLock:
		return 2
	case TierIPBlock:
		return 3
	default:
		return -1
	}
}

// Default expiries per tier.
const (
	BlockTTL     = 24 * time.Hour
	LockTTL      = 30 * time.Minute
	RateLimitTTL = time.Hour
)

// Input is everything the orchestrator needs to decide and act.
type Input struct {
	// IdentityKey is the derived identity the assessment concerns.
	IdentityKey string

	// IPHash is the hashed client IP, the subject of IP blocks.
	IPHash string

	// Principal is the authenticated user, if any. Account locks need
	// one; without it the lock tier degrades to the tiers below.
	Principal *models.Principal

	// Assessment is the composite scoring result.
	Assessment *scoring.ThreatScore

	// Flagged carries the scoring engine's flag decision. The lock and
	// block tiers require it; unflagged assessments stop at the
	// rate-limit rung while warnings and alerts still apply.
	Flagged bool

	// FailedLogins is the principal's failed-login count over the
	// trailing hour.
	FailedLogins int

	// SourceIP and UserAgent describe the triggering request for the
	// audit trail.
	SourceIP  string
	UserAgent string
	Country   string
}

// Decision is the orchestrator's verdict before actions run.
type Decision struct {
	// Top is the highest ladder tier entered.
	Top Tier `json:"top"`

	// Actions is every tier applied, lower tiers included by the
	// cumulative rule, plus ADMIN_ALERT when attached.
	Actions []Tier `json:"actions"`

	// Reason summarizes why the top tier was chosen.
	Reason string `json:"reason"`
}

// Includes reports whether the decision applies the given tier.
func (d *Decision) Includes(tier Tier) bool {
	for _, a := range d.Actions {
		if a == tier {
			return true
		}
	}
	return false
}

// BlockEntry is a persisted IP block.
type BlockEntry struct {
	Subject   string    `json:"subject"` // hashed IP
	Reason    string    `json:"reason"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LockEntry is a persisted account lock.
type LockEntry struct {
	Subject   string    `json:"subject"` // user id
	Reason    string    `json:"reason"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RateEntry is a persisted reduced-ceiling marker.
type RateEntry struct {
	Subject   string    `json:"subject"` // identity key
	PerMinute int       `json:"per_minute"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateStore persists block, lock and rate-limit state. Entries expire
// automatically; writes are last-write-wins per subject.
type StateStore interface {
	// SetBlock writes or replaces the subject's block entry.
	SetBlock(ctx context.Context, entry BlockEntry) error

	// SetLock writes or replaces the subject's lock entry.
	SetLock(ctx context.Context, entry LockEntry) error

	// SetRateLimit writes or replaces the subject's reduced ceiling.
	SetRateLimit(ctx context.Context, entry RateEntry) error

	// GetBlock returns the live block for a subject, or nil.
	GetBlock(ctx context.Context, subject string) (*BlockEntry, error)

	// GetLock returns the live lock for a subject, or nil.
	GetLock(ctx context.Context, subject string) (*LockEntry, error)

	// GetRateLimit returns the live reduced ceiling, or nil.
	GetRateLimit(ctx context.Context, subject string) (*RateEntry, error)

	// Unblock removes a block. Returns false when no live entry
	// existed, making a second call a safe no-op.
	Unblock(ctx context.Context, subject string) (bool, error)

	// Unlock removes a lock with the same idempotence contract.
	Unlock(ctx context.Context, subject string) (bool, error)

	// ListBlocks returns all live block entries.
	ListBlocks(ctx context.Context) ([]BlockEntry, error)

	// ListLocks returns all live lock entries.
	ListLocks(ctx context.Context) ([]LockEntry, error)

	// Close releases the store.
	Close() error
}

// Alert is the payload dispatched to notification channels.
type Alert struct {
	Tier           Tier      `json:"tier"`
	IdentityKey    string    `json:"identity"`
	Subject        string    `json:"subject,omitempty"`
	Score          int       `json:"score"`
	Classification string    `json:"classification"`
	Reason         string    `json:"reason"`
	Indicators     []string  `json:"indicators,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	// Name identifies the channel for logs and metrics.
	Name() string

	// Notify delivers one alert. Failures are logged, never fatal.
	Notify(ctx context.Context, alert *Alert) error
}

// LockNotice tells the affected account holder their account was
// locked, and until when. It carries no detection internals.
type LockNotice struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Reason    string    `json:"reason"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrincipalNotifier informs the owner of a locked account, separate
// from the admin alert channels. The host application owns the user
// contact channel, so delivery typically goes back to it.
type PrincipalNotifier interface {
	// Name identifies the channel for logs and metrics.
	Name() string

	// NotifyLock delivers one lock notice. Failures are logged, never
	// fatal; the lock stands either way.
	NotifyLock(ctx context.Context, notice *LockNotice) error
}
