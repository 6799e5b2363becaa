// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package scoring fuses pattern indicators, baseline anomalies and edge
// trust hints into one bounded composite score.
//
// Edge signals act as strong priors: they pull the score down for
// traffic the edge vouches for, suppressing false positives from
// carrier-shared IPs and cooperative bots, while local detectors can
// still push the score up when the edge is silent. The weighting
// constants are empirically chosen policy, kept configurable rather
// than hard-coded.
package scoring

import (
	"net"
	"sync"

	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/pattern"
	"github.com/tomtom215/vigil/internal/trust"
)

// Classification is the coarse band a composite score falls into.
type Classification string

const (
	ClassMinimal  Classification = "minimal"
	ClassLow      Classification = "low"
	ClassMedium   Classification = "medium"
	ClassHigh     Classification = "high"
	ClassCritical Classification = "critical"
)

// ThreatScore is the fused assessment for one request.
type ThreatScore struct {
	// Score is the clamped composite value in [0,100].
	Score int `json:"score"`

	Classification Classification `json:"classification"`

	// Indicators lists the detections that contributed.
	Indicators []pattern.Indicator `json:"indicators,omitempty"`

	// TrustAdjustment is the net points added or removed by edge hints.
	TrustAdjustment int `json:"trust_adjustment"`
}

// MaxSeverity returns the highest severity among contributing
// indicators, or the zero value when nothing was detected.
func (ts *ThreatScore) MaxSeverity() models.Severity {
	var max models.Severity
	for _, ind := range ts.Indicators {
		if ind.Severity.Score() > max.Score() {
			max = ind.Severity
		}
	}
	return max
}

// HasIndicator reports whether an indicator of the given type
// contributed.
func (ts *ThreatScore) HasIndicator(t pattern.IndicatorType) bool {
	for _, ind := range ts.Indicators {
		if ind.Type == t {
			return true
		}
	}
	return false
}

// Weights holds the scoring policy constants.
type Weights struct {
	// Severity maps indicator severity to its base contribution.
	Severity map[models.Severity]int `json:"severity"`

	// Indicator maps each indicator type to its additional weight.
	Indicator map[pattern.IndicatorType]int `json:"indicator"`

	// Trust reductions, applied as negative adjustments.
	HighTrustReduction   int `json:"high_trust_reduction"`
	MediumTrustReduction int `json:"medium_trust_reduction"`
	ProtectionReduction  int `json:"protection_reduction"`
	HumanBotReduction    int `json:"human_bot_reduction"`
	CleanThreatReduction int `json:"clean_threat_reduction"`

	// HostileThreatIncrease is added when the edge reports a hostile
	// reputation.
	HostileThreatIncrease int `json:"hostile_threat_increase"`

	// FlagThreshold and SharedIPFlagThreshold control ShouldFlag.
	FlagThreshold         int `json:"flag_threshold"`
	SharedIPFlagThreshold int `json:"shared_ip_flag_threshold"`
}

// DefaultWeights returns the default scoring policy.
func DefaultWeights() Weights {
	return Weights{
		Severity: map[models.Severity]int{
			models.SeverityCritical: 50,
			models.SeverityHigh:     35,
			models.SeverityMedium:   20,
			models.SeverityLow:      10,
		},
		Indicator: map[pattern.IndicatorType]int{
			pattern.IndicatorInjectionProbe:      45,
			pattern.IndicatorMassDataAccess:      40,
			pattern.IndicatorPrivilegeEscalation: 40,
			pattern.IndicatorRapidDataAccess:     35,
			pattern.IndicatorAccountEnumeration:  30,
			pattern.IndicatorSuspiciousDownload:  25,
			pattern.IndicatorScraping:            25,
			pattern.IndicatorAPIAbuse:            25,
			pattern.IndicatorSearchEnumeration:   20,
			pattern.IndicatorBaselineDeviation:   5,
		},
		HighTrustReduction:    40,
		MediumTrustReduction:  20,
		ProtectionReduction:   15,
		HumanBotReduction:     25,
		CleanThreatReduction:  20,
		HostileThreatIncrease: 15,
		FlagThreshold:         60,
		SharedIPFlagThreshold: 80,
	}
}

// Engine computes composite scores.
type Engine struct {
	weights Weights

	// carrierNets are recognized carrier-grade NAT ranges; identities on
	// these IPs get the raised flagging threshold when a session exists.
	carrierNets []*net.IPNet

	mu sync.RWMutex
}

// defaultCarrierRanges covers CGNAT space plus common mobile-carrier
// allocations.
var defaultCarrierRanges = []string{
	"100.64.0.0/10", // RFC 6598 shared address space
	"172.56.0.0/14",
	"174.192.0.0/10",
}

// NewEngine creates an engine with the given weights. Nil-safe maps in
// weights are replaced by defaults.
func NewEngine(weights Weights) *Engine {
	defaults := DefaultWeights()
	if weights.Severity == nil {
		weights.Severity = defaults.Severity
	}
	if weights.Indicator == nil {
		weights.Indicator = defaults.Indicator
	}

	e := &Engine{weights: weights}
	for _, cidr := range defaultCarrierRanges {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			e.carrierNets = append(e.carrierNets, n)
		}
	}
	return e
}

// Score fuses the detected indicators and trust hints.
//
// The base is the heaviest severity contribution plus the per-type
// weight of every detected indicator. Trust hints then adjust the total
// before it is clamped to [0,100].
func (e *Engine) Score(indicators []pattern.Indicator, tc *trust.Context) *ThreatScore {
	e.mu.RLock()
	w := e.weights
	e.mu.RUnlock()

	base := 0
	detected := make([]pattern.Indicator, 0, len(indicators))
	for _, ind := range indicators {
		if !ind.Detected {
			continue
		}
		detected = append(detected, ind)
		if sw := w.Severity[ind.Severity]; sw > base {
			base = sw
		}
	}
	for _, ind := range detected {
		base += w.Indicator[ind.Type]
	}

	adjustment := 0
	switch tc.Classify() {
	case trust.LevelHigh:
		adjustment -= w.HighTrustReduction
	case trust.LevelMedium:
		adjustment -= w.MediumTrustReduction
	}
	if tc != nil {
		if tc.Protected {
			adjustment -= w.ProtectionReduction
		}
		if tc.BotScore != nil && *tc.BotScore < 30 {
			adjustment -= w.HumanBotReduction
		}
		if tc.ThreatScore != nil {
			if *tc.ThreatScore < 20 {
				adjustment -= w.CleanThreatReduction
			} else if *tc.ThreatScore > 50 {
				adjustment += w.HostileThreatIncrease
			}
		}
	}

	score := base + adjustment
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &ThreatScore{
		Score:           score,
		Classification:  Classify(score),
		Indicators:      detected,
		TrustAdjustment: adjustment,
	}
}

// Classify maps a score onto its band. Thresholds are monotonic.
func Classify(score int) Classification {
	switch {
	case score >= 80:
		return ClassCritical
	case score >= 60:
		return ClassHigh
	case score >= 40:
		return ClassMedium
	case score >= 20:
		return ClassLow
	default:
		return ClassMinimal
	}
}

// ShouldFlag decides whether an identity warrants response handling.
//
// High edge trust is an unconditional veto regardless of local score.
// Identities on recognized carrier-shared IP ranges with an active
// session get a raised threshold, trading recall for precision on
// mobile users.
func (e *Engine) ShouldFlag(score *ThreatScore, tc *trust.Context, ip string, hasSession bool) bool {
	if tc.Classify() == trust.LevelHigh {
		return false
	}

	e.mu.RLock()
	threshold := e.weights.FlagThreshold
	shared := e.weights.SharedIPFlagThreshold
	e.mu.RUnlock()

	if hasSession && e.isCarrierShared(ip) {
		threshold = shared
	}
	return score.Score >= threshold
}

func (e *Engine) isCarrierShared(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range e.carrierNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// SetWeights replaces the scoring policy at runtime.
func (e *Engine) SetWeights(weights Weights) {
	defaults := DefaultWeights()
	if weights.Severity == nil {
		weights.Severity = defaults.Severity
	}
	if weights.Indicator == nil {
		weights.Indicator = defaults.Indicator
	}

	e.mu.Lock()
	e.weights = weights
	e.mu.Unlock()
}

// Weights returns a copy of the current scoring policy.
func (e *Engine) Weights() Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}
