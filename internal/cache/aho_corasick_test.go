// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cache

import (
	"testing"
)

func TestAhoCorasick_SearchFindsAllPatterns(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("union select", "sqli")
	ac.AddPattern("sleep(", "sqli")
	ac.AddPattern("curl", "agent")
	ac.Build()

	matches := ac.Search("GET /search?q=1 UNION SELECT password -- curl probe")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	found := make(map[string]any)
	for _, m := range matches {
		found[m.Pattern] = m.Data
	}
	if found["union select"] != "sqli" {
		t.Errorf("union select: data = %v, want sqli", found["union select"])
	}
	if found["curl"] != "agent" {
		t.Errorf("curl: data = %v, want agent", found["curl"])
	}
}

func TestAhoCorasick_CaseInsensitive(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("SQLMap", nil)
	ac.Build()

	for _, text := range []string{"sqlmap/1.7", "SQLMAP", "SqLmAp dev"} {
		if !ac.MatchesAny(text) {
			t.Errorf("MatchesAny(%q) = false, want true", text)
		}
	}
}

func TestAhoCorasick_SearchBeforeBuildReturnsNil(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("wget", nil)

	if got := ac.Search("wget/1.21"); got != nil {
		t.Errorf("Search before Build = %+v, want nil", got)
	}
	if ac.MatchesAny("wget/1.21") {
		t.Error("MatchesAny before Build = true, want false")
	}
}

func TestAhoCorasick_AddAfterBuildRequiresRebuild(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("scrapy", nil)
	ac.Build()

	ac.AddPattern("puppeteer", nil)

	// The automaton was marked dirty; searching is disabled until rebuilt.
	if ac.MatchesAny("scrapy/2.11") {
		t.Error("dirty automaton matched, want no matches until rebuilt")
	}

	ac.Build()
	if !ac.MatchesAny("headless puppeteer run") {
		t.Error("rebuilt automaton missed new pattern")
	}
	if !ac.MatchesAny("scrapy/2.11") {
		t.Error("rebuilt automaton missed original pattern")
	}
}

func TestAhoCorasick_OverlappingPatterns(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("she", nil)
	ac.AddPattern("he", nil)
	ac.AddPattern("hers", nil)
	ac.Build()

	matches := ac.Search("ushers")
	if len(matches) != 3 {
		t.Fatalf("expected 3 overlapping matches, got %d: %+v", len(matches), matches)
	}

	positions := make(map[string]int)
	for _, m := range matches {
		positions[m.Pattern] = m.Position
	}
	if positions["she"] != 1 || positions["he"] != 2 || positions["hers"] != 2 {
		t.Errorf("positions = %v, want she:1 he:2 hers:2", positions)
	}
}

func TestAhoCorasick_AddPatterns(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPatterns([]string{"curl", "wget", ""}, "automation")
	ac.Build()

	// The empty pattern is dropped.
	if got := ac.PatternCount(); got != 2 {
		t.Fatalf("PatternCount() = %d, want 2", got)
	}

	matches := ac.Search("wget mirror job")
	if len(matches) != 1 || matches[0].Data != "automation" {
		t.Errorf("matches = %+v, want single wget match with shared data", matches)
	}
}

func TestAhoCorasick_NoMatch(t *testing.T) {
	ac := NewAhoCorasick()
	ac.AddPattern("or 1=1", nil)
	ac.Build()

	if got := ac.Search("GET /articles?page=2"); got != nil {
		t.Errorf("Search on clean text = %+v, want nil", got)
	}
	if ac.MatchesAny("GET /articles?page=2") {
		t.Error("MatchesAny on clean text = true, want false")
	}
}
