// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package policy maps trust context and composite scores onto
// per-request rate ceilings, bypass decisions and monitoring verbosity.
package policy

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/scoring"
	"github.com/tomtom215/vigil/internal/trust"
)

// Limits is the adaptive requests-per-minute table, keyed by how much
// the edge vouches for the caller.
type Limits struct {
	HighTrust    int `json:"high_trust"`
	HumanLike    int `json:"human_like"`
	MediumTrust  int `json:"medium_trust"`
	LikelyBot    int `json:"likely_bot"`
	ConfirmedBot int `json:"confirmed_bot"`
	Default      int `json:"default"`
}

// DefaultLimits returns the default adaptive table.
func DefaultLimits() Limits {
	return Limits{
		HighTrust:    100,
		HumanLike:    60,
		MediumTrust:  30,
		LikelyBot:    10,
		ConfirmedBot: 5,
		Default:      10,
	}
}

// defaultCeilings caps the adaptive limit per endpoint class. Zero
// means uncapped.
var defaultCeilings = map[models.EndpointClass]int{
	models.EndpointLogin:    10,
	models.EndpointAdmin:    15,
	models.EndpointDownload: 5,
	models.EndpointSearch:   25,
	models.EndpointAPI:      20,
	models.EndpointBrowse:   0,
}

// Policy computes adaptive rate limits and bypass decisions.
type Policy struct {
	limits   Limits
	ceilings map[models.EndpointClass]int

	mu sync.RWMutex
}

// New creates a policy with the default tables.
func New() *Policy {
	return &Policy{
		limits:   DefaultLimits(),
		ceilings: defaultCeilings,
	}
}

// RateLimit returns the requests-per-minute ceiling for the caller's
// trust context. Confirmed bots take the floor regardless of threat
// reading. Row order matters: a human-like bot score outranks the
// medium-trust row, so a clean bot reading with a middling threat
// reading still gets the human-like allowance.
func (p *Policy) RateLimit(tc *trust.Context) int {
	p.mu.RLock()
	limits := p.limits
	p.mu.RUnlock()

	if tc.ConfirmedBot() {
		return limits.ConfirmedBot
	}

	level := tc.Classify()
	if level == trust.LevelHigh {
		return limits.HighTrust
	}

	bot := -1
	if tc != nil && tc.BotScore != nil {
		bot = *tc.BotScore
	}
	if bot >= 0 && bot < 30 {
		return limits.HumanLike
	}
	if level == trust.LevelMedium {
		return limits.MediumTrust
	}
	if bot > 70 {
		return limits.LikelyBot
	}
	return limits.Default
}

// EndpointCeiling caps an adaptive limit by the endpoint's sensitivity
// class. Browsing endpoints are uncapped.
func (p *Policy) EndpointCeiling(baseLimit int, class models.EndpointClass) int {
	p.mu.RLock()
	ceiling := p.ceilings[class]
	p.mu.RUnlock()

	if ceiling > 0 && baseLimit > ceiling {
		return ceiling
	}
	return baseLimit
}

// Bypass reports whether the caller skips throttling entirely. Only
// near-perfect edge trust qualifies, or an authenticated admin the edge
// still largely vouches for.
func (p *Policy) Bypass(tc *trust.Context, principal *models.Principal) bool {
	score := TrustScore(tc)
	if score >= 90 {
		return true
	}
	return principal != nil && principal.Admin && score >= 80
}

// TrustScore collapses the edge hints into a single 0-100 value, higher
// meaning more trusted. Missing hints read as a neutral 50.
func TrustScore(tc *trust.Context) int {
	if tc == nil || !tc.HasSignal() {
		return 50
	}

	sum, parts := 0, 0
	if tc.BotScore != nil {
		sum += 100 - *tc.BotScore
		parts++
	}
	if tc.ThreatScore != nil {
		sum += 100 - *tc.ThreatScore
		parts++
	}
	return sum / parts
}

// Verbosity maps a threat classification to the log level monitoring
// should run at for the identity's subsequent requests.
func Verbosity(class scoring.Classification) zerolog.Level {
	switch class {
	case scoring.ClassCritical, scoring.ClassHigh:
		return zerolog.DebugLevel
	case scoring.ClassMedium:
		return zerolog.InfoLevel
	default:
		return zerolog.WarnLevel
	}
}

// SetLimits replaces the adaptive table at runtime.
func (p *Policy) SetLimits(limits Limits) {
	p.mu.Lock()
	p.limits = limits
	p.mu.Unlock()
}

// Limits returns a copy of the adaptive table.
func (p *Policy) Limits() Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limits
}
