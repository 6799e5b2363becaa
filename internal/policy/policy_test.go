// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package policy

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/scoring"
	"github.com/tomtom215/vigil/internal/trust"
)

func ptr(n int) *int { return &n }

func TestRateLimit(t *testing.T) {
	p := New()
	limits := DefaultLimits()

	tests := []struct {
		name string
		tc   *trust.Context
		want int
	}{
		{"nil context uses default", nil, limits.Default},
		{"no signal uses default", &trust.Context{}, limits.Default},
		{
			"high trust",
			&trust.Context{BotScore: ptr(10), ThreatScore: ptr(5)},
			limits.HighTrust,
		},
		{
			"medium trust",
			&trust.Context{BotScore: ptr(50), ThreatScore: ptr(30)},
			limits.MediumTrust,
		},
		{
			// Human-like bot row outranks the medium classification.
			"human-like beats medium trust",
			&trust.Context{BotScore: ptr(20), ThreatScore: ptr(30)},
			limits.HumanLike,
		},
		{
			"human-like bot score alone",
			&trust.Context{BotScore: ptr(20)},
			limits.HumanLike,
		},
		{
			// Low level but the bot score alone says human.
			"human-like with hostile threat",
			&trust.Context{BotScore: ptr(10), ThreatScore: ptr(90)},
			limits.HumanLike,
		},
		{
			"likely bot",
			&trust.Context{BotScore: ptr(85), ThreatScore: ptr(60)},
			limits.LikelyBot,
		},
		{
			// Confirmed bot floor beats everything, even a clean threat.
			"confirmed bot",
			&trust.Context{BotScore: ptr(97), ThreatScore: ptr(5)},
			limits.ConfirmedBot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.RateLimit(tt.tc); got != tt.want {
				t.Errorf("RateLimit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEndpointCeiling(t *testing.T) {
	p := New()

	tests := []struct {
		name  string
		base  int
		class models.EndpointClass
		want  int
	}{
		{"login capped", 100, models.EndpointLogin, 10},
		{"download capped", 60, models.EndpointDownload, 5},
		{"base below ceiling unchanged", 8, models.EndpointLogin, 8},
		{"browse uncapped", 100, models.EndpointBrowse, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EndpointCeiling(tt.base, tt.class); got != tt.want {
				t.Errorf("EndpointCeiling(%d, %s) = %d, want %d",
					tt.base, tt.class, got, tt.want)
			}
		})
	}
}

func TestTrustScore(t *testing.T) {
	tests := []struct {
		name string
		tc   *trust.Context
		want int
	}{
		{"nil is neutral", nil, 50},
		{"no signal is neutral", &trust.Context{}, 50},
		{"both clean", &trust.Context{BotScore: ptr(10), ThreatScore: ptr(10)}, 90},
		{"bot score only", &trust.Context{BotScore: ptr(20)}, 80},
		{"both hostile", &trust.Context{BotScore: ptr(90), ThreatScore: ptr(90)}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrustScore(tt.tc); got != tt.want {
				t.Errorf("TrustScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBypass(t *testing.T) {
	p := New()
	// Trust scores 95 and 82 respectively.
	clean := &trust.Context{BotScore: ptr(5), ThreatScore: ptr(5)}
	decent := &trust.Context{BotScore: ptr(20), ThreatScore: ptr(15)}

	if !p.Bypass(clean, nil) {
		t.Error("near-perfect trust should bypass")
	}
	if p.Bypass(decent, nil) {
		t.Error("score 82 without admin should not bypass")
	}
	if !p.Bypass(decent, &models.Principal{Admin: true}) {
		t.Error("admin at score 82 should bypass")
	}
	if p.Bypass(nil, &models.Principal{Admin: true}) {
		t.Error("admin with neutral trust should not bypass")
	}
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		class scoring.Classification
		want  zerolog.Level
	}{
		{scoring.ClassCritical, zerolog.DebugLevel},
		{scoring.ClassHigh, zerolog.DebugLevel},
		{scoring.ClassMedium, zerolog.InfoLevel},
		{scoring.ClassLow, zerolog.WarnLevel},
		{scoring.ClassMinimal, zerolog.WarnLevel},
	}
	for _, tt := range tests {
		if got := Verbosity(tt.class); got != tt.want {
			t.Errorf("Verbosity(%s) = %s, want %s", tt.class, got, tt.want)
		}
	}
}

func TestSetLimits(t *testing.T) {
	p := New()

	limits := DefaultLimits()
	limits.Default = 3
	p.SetLimits(limits)

	if got := p.RateLimit(nil); got != 3 {
		t.Errorf("RateLimit after SetLimits = %d, want 3", got)
	}
	if got := p.Limits().Default; got != 3 {
		t.Errorf("Limits().Default = %d, want 3", got)
	}
}
