// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package trust

import (
	"net/http"
	"testing"
)

func TestFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderBotScore, "12")
	h.Set(HeaderThreatScore, "5")
	h.Set(HeaderProtection, "active")
	h.Set(HeaderCountry, "DE")
	h.Set(HeaderRayID, "ray-123")

	tc := FromHeaders(h)
	if tc.BotScore == nil || *tc.BotScore != 12 {
		t.Errorf("BotScore = %v, want 12", tc.BotScore)
	}
	if tc.ThreatScore == nil || *tc.ThreatScore != 5 {
		t.Errorf("ThreatScore = %v, want 5", tc.ThreatScore)
	}
	if !tc.Protected {
		t.Error("Protected = false, want true")
	}
	if tc.Country != "DE" || tc.RayID != "ray-123" {
		t.Errorf("Country = %q, RayID = %q", tc.Country, tc.RayID)
	}
}

func TestFromHeaders_AbsentIsNeutral(t *testing.T) {
	tc := FromHeaders(http.Header{})
	if tc.BotScore != nil || tc.ThreatScore != nil || tc.Protected {
		t.Errorf("empty headers produced non-neutral context: %+v", tc)
	}
	if tc.HasSignal() {
		t.Error("HasSignal = true with no headers")
	}
	if got := tc.Classify(); got != LevelNeutral {
		t.Errorf("Classify = %q, want neutral", got)
	}
}

func TestParseScore_Malformed(t *testing.T) {
	tests := []struct {
		name string
		v    string
	}{
		{"empty", ""},
		{"non-numeric", "abc"},
		{"negative", "-1"},
		{"over range", "101"},
		{"float", "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseScore(tt.v); got != nil {
				t.Errorf("parseScore(%q) = %d, want nil", tt.v, *got)
			}
		})
	}

	if got := parseScore("0"); got == nil || *got != 0 {
		t.Errorf("parseScore(0) = %v, want 0", got)
	}
	if got := parseScore("100"); got == nil || *got != 100 {
		t.Errorf("parseScore(100) = %v, want 100", got)
	}
}

func TestClassify(t *testing.T) {
	ptr := func(n int) *int { return &n }

	tests := []struct {
		name   string
		bot    *int
		threat *int
		want   Level
	}{
		{"human and clean", ptr(10), ptr(5), LevelHigh},
		{"boundary to high", ptr(29), ptr(19), LevelHigh},
		{"moderate bot score", ptr(50), ptr(10), LevelMedium},
		{"moderate threat", ptr(10), ptr(40), LevelMedium},
		{"threat at midpoint stays medium", ptr(10), ptr(50), LevelMedium},
		{"threat past midpoint", ptr(10), ptr(51), LevelLow},
		{"hostile threat", ptr(10), ptr(90), LevelLow},
		{"confirmed bot range", ptr(99), ptr(5), LevelLow},
		{"no signal at all", nil, nil, LevelNeutral},
		// A missing half-signal defaults to the midpoint, so a lone
		// human-like bot score can reach at most medium.
		{"bot score only", ptr(10), nil, LevelMedium},
		{"threat score only", nil, ptr(10), LevelMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &Context{BotScore: tt.bot, ThreatScore: tt.threat}
			if got := tc.Classify(); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_NilReceiver(t *testing.T) {
	var tc *Context
	if got := tc.Classify(); got != LevelNeutral {
		t.Errorf("nil Classify = %q, want neutral", got)
	}
	if tc.HasSignal() {
		t.Error("nil HasSignal = true")
	}
	if tc.ConfirmedBot() {
		t.Error("nil ConfirmedBot = true")
	}
}

func TestConfirmedBot(t *testing.T) {
	ptr := func(n int) *int { return &n }

	if (&Context{BotScore: ptr(95)}).ConfirmedBot() != true {
		t.Error("bot score 95 not confirmed")
	}
	if (&Context{BotScore: ptr(94)}).ConfirmedBot() {
		t.Error("bot score 94 wrongly confirmed")
	}
	if (&Context{}).ConfirmedBot() {
		t.Error("absent bot score wrongly confirmed")
	}
}
