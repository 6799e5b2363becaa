// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package pattern

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/models"
)

// SearchConfig configures the search-enumeration detector.
type SearchConfig struct {
	// HourlyThreshold is the searches-per-hour count that triggers.
	HourlyThreshold int `json:"hourly_threshold"`

	// ProgressionRun is the consecutive-term run length that counts as
	// systematic enumeration.
	ProgressionRun int `json:"progression_run"`

	// WildcardShare is the wildcard-usage fraction that triggers.
	WildcardShare float64 `json:"wildcard_share"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultSearchConfig returns sensible defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		HourlyThreshold: 50,
		ProgressionRun:  4,
		WildcardShare:   0.3,
		Severity:        models.SeverityMedium,
	}
}

// SearchMetadata is the metadata recorded with search events.
type SearchMetadata struct {
	Term string `json:"term,omitempty"`
}

// SearchDetector flags systematic catalog harvesting through search:
// high volume, alphabetically or numerically progressing terms, or
// heavy wildcard use.
type SearchDetector struct {
	config SearchConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// NewSearchDetector creates the detector over the store.
func NewSearchDetector(store activity.Store) *SearchDetector {
	return &SearchDetector{
		config:  DefaultSearchConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *SearchDetector) Type() IndicatorType {
	return IndicatorSearchEnumeration
}

// Check evaluates the identity's trailing hour of searches.
func (d *SearchDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	records, err := d.store.Window(ctx, activity.NSSearches, event.Identity.Key, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("search window: %w", err)
	}

	var terms []string
	wildcards := 0
	for _, r := range records {
		if r.EventType != activity.EventSearch {
			continue
		}
		var meta SearchMetadata
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &meta); err == nil {
				terms = append(terms, meta.Term)
				if strings.ContainsAny(meta.Term, "*%") {
					wildcards++
				}
			}
		} else {
			terms = append(terms, "")
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}

	if len(terms) > config.HourlyThreshold {
		return newIndicator(IndicatorSearchEnumeration, config.Severity, SearchEvidence{
			SearchesPerHour: len(terms),
		}), nil
	}

	if run := longestProgression(terms); len(run) >= config.ProgressionRun {
		return newIndicator(IndicatorSearchEnumeration, config.Severity, SearchEvidence{
			Progression:    true,
			ProgressionRun: run,
		}), nil
	}

	share := float64(wildcards) / float64(len(terms))
	if share > config.WildcardShare {
		return newIndicator(IndicatorSearchEnumeration, config.Severity, SearchEvidence{
			WildcardShare: share,
		}), nil
	}

	return nil, nil
}

// longestProgression finds the longest run of consecutive terms where
// each term is the alphabetical or numerical successor of the previous.
func longestProgression(terms []string) []string {
	var best []string
	start := 0
	for i := 1; i <= len(terms); i++ {
		if i == len(terms) || !isSuccessor(terms[i-1], terms[i]) {
			if run := terms[start:i]; len(run) > len(best) {
				best = run
			}
			start = i
		}
	}
	if len(best) < 2 {
		return nil
	}
	return best
}

// isSuccessor reports whether cur directly follows prev: numerically
// ("7" -> "8") or by incrementing the final character ("aa" -> "ab",
// "c" -> "d").
func isSuccessor(prev, cur string) bool {
	if prev == "" || cur == "" {
		return false
	}

	if pn, err := strconv.Atoi(prev); err == nil {
		if cn, err := strconv.Atoi(cur); err == nil {
			return cn == pn+1
		}
		return false
	}

	if len(prev) != len(cur) || prev[:len(prev)-1] != cur[:len(cur)-1] {
		return false
	}
	return cur[len(cur)-1] == prev[len(prev)-1]+1
}

// Configure updates the detector configuration.
func (d *SearchDetector) Configure(config json.RawMessage) error {
	var next SearchConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.HourlyThreshold <= 0 {
		return fmt.Errorf("hourly_threshold must be positive")
	}
	if next.ProgressionRun < 2 {
		return fmt.Errorf("progression_run must be at least 2")
	}
	if next.WildcardShare <= 0 || next.WildcardShare > 1 {
		return fmt.Errorf("wildcard_share must be in (0,1]")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *SearchDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *SearchDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
