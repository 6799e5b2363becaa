// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package trust reads the edge network's per-request reputation hints.
//
// The edge layer (CDN/WAF in front of the application) annotates each
// request with a bot score, a threat score, a protection flag, the
// caller's country and a ray id. These hints are strong priors: they
// suppress false positives from carrier-shared IPs and cooperative
// bots, while local detectors can still push scores back up when the
// edge is silent. Absent headers mean a neutral context, never an
// error.
package trust

import (
	"net/http"
	"strconv"
)

// Header names the edge layer uses. These follow the well-known
// CDN convention and are configurable only at the edge, not here.
const (
	HeaderBotScore    = "X-Edge-Bot-Score"
	HeaderThreatScore = "X-Edge-Threat-Score"
	HeaderProtection  = "X-Edge-Protection"
	HeaderCountry     = "X-Edge-Country"
	HeaderRayID       = "X-Edge-Ray"
)

// Level is the coarse trust classification derived from edge hints.
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelNeutral Level = "neutral" // no edge signal
)

// Context carries the edge-supplied hints for one request. All score
// fields are pointers: nil means "header absent", which every consumer
// must treat as neutral. The pipeline never mutates a Context.
type Context struct {
	// BotScore is 0-100, lower = more human-like.
	BotScore *int `json:"bot_score,omitempty"`

	// ThreatScore is 0-100, higher = more hostile reputation.
	ThreatScore *int `json:"threat_score,omitempty"`

	// Protected reports whether edge protection actively screened the request.
	Protected bool `json:"protected"`

	Country string `json:"country,omitempty"`
	RayID   string `json:"ray_id,omitempty"`
}

// FromHeaders parses the edge hints from an inbound header set.
// Returns a neutral (zero) Context when no edge headers are present.
func FromHeaders(h http.Header) *Context {
	tc := &Context{
		Protected: h.Get(HeaderProtection) == "active",
		Country:   h.Get(HeaderCountry),
		RayID:     h.Get(HeaderRayID),
	}
	tc.BotScore = parseScore(h.Get(HeaderBotScore))
	tc.ThreatScore = parseScore(h.Get(HeaderThreatScore))
	return tc
}

// parseScore parses a 0-100 header value; out-of-range or malformed
// values are discarded as if the header were absent.
func parseScore(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 100 {
		return nil
	}
	return &n
}

// Classify derives the coarse trust level.
//
// High trust requires a human-like bot score and a clean threat score;
// medium trust tolerates moderate readings; anything hostile is low.
// No scores at all is neutral.
func (tc *Context) Classify() Level {
	if tc == nil || (tc.BotScore == nil && tc.ThreatScore == nil) {
		return LevelNeutral
	}

	bot, threat := 50, 50 // midpoints for a missing half-signal
	if tc.BotScore != nil {
		bot = *tc.BotScore
	}
	if tc.ThreatScore != nil {
		threat = *tc.ThreatScore
	}

	// The medium band is inclusive of the threat midpoint so a lone
	// human-like bot score still classifies medium rather than falling
	// to low on its own defaulted half.
	switch {
	case bot < 30 && threat < 20:
		return LevelHigh
	case bot < 70 && threat <= 50:
		return LevelMedium
	default:
		return LevelLow
	}
}

// HasSignal reports whether the edge supplied any score at all.
func (tc *Context) HasSignal() bool {
	return tc != nil && (tc.BotScore != nil || tc.ThreatScore != nil)
}

// ConfirmedBot reports a near-certain automation verdict from the edge.
func (tc *Context) ConfirmedBot() bool {
	return tc != nil && tc.BotScore != nil && *tc.BotScore >= 95
}
