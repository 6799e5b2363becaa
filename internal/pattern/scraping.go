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
	"github.com/tomtom215/vigil/internal/cache"
	"github.com/tomtom215/vigil/internal/models"
)

// ScrapingConfig configures the scraping detector.
type ScrapingConfig struct {
	// SequentialRun is the run length of consecutive resource IDs that
	// counts as sequential traversal.
	SequentialRun int `json:"sequential_run"`

	// PaginationRun is the run length of consecutive page numbers that
	// counts as systematic pagination.
	PaginationRun int `json:"pagination_run"`

	// InteractiveRatio is the interactive-event fraction below which
	// traffic looks automated.
	InteractiveRatio float64 `json:"interactive_ratio"`

	// MinRequests is the minimum window size before behavioral signals
	// are evaluated.
	MinRequests int `json:"min_requests"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultScrapingConfig returns sensible defaults.
func DefaultScrapingConfig() ScrapingConfig {
	return ScrapingConfig{
		SequentialRun:    5,
		PaginationRun:    5,
		InteractiveRatio: 0.1,
		MinRequests:      20,
		Severity:         models.SeverityHigh,
	}
}

// automationAgents are user-agent substrings of common automation
// tooling. Matched case-insensitively.
var automationAgents = []string{
	"curl", "wget", "python-requests", "python-urllib", "scrapy",
	"go-http-client", "java/", "okhttp", "httpclient", "libwww",
	"phantomjs", "headlesschrome", "selenium", "puppeteer", "aiohttp",
	"node-fetch", "axios",
}

// ScrapingDetector flags systematic content harvesting: an automation
// user agent, or a combination of sequential ID traversal, systematic
// pagination and a near-zero interactive event ratio.
type ScrapingDetector struct {
	config ScrapingConfig
	store  activity.Store
	agents *cache.AhoCorasick

	enabled bool
	mu      sync.RWMutex
}

// NewScrapingDetector creates the detector over the store.
func NewScrapingDetector(store activity.Store) *ScrapingDetector {
	agents := cache.NewAhoCorasick()
	agents.AddPatterns(automationAgents, nil)
	agents.Build()

	return &ScrapingDetector{
		config:  DefaultScrapingConfig(),
		store:   store,
		agents:  agents,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *ScrapingDetector) Type() IndicatorType {
	return IndicatorScraping
}

// Check evaluates the current user agent and the identity's trailing
// hour of requests.
func (d *ScrapingDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	if matches := d.agents.Search(event.Request.UserAgent); len(matches) > 0 {
		return newIndicator(IndicatorScraping, config.Severity, ScrapingEvidence{
			UserAgentMatch: matches[0].Pattern,
			SignalCount:    1,
		}), nil
	}

	records, err := d.store.Window(ctx, activity.NSRequests, event.Identity.Key, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("request window: %w", err)
	}
	if len(records) < config.MinRequests {
		return nil, nil
	}

	var paths []string
	interactive := 0
	for _, r := range records {
		paths = append(paths, r.Path)
		if r.EventType == activity.EventInteraction {
			interactive++
		}
	}

	evidence := ScrapingEvidence{
		SequentialIDs:    longestIDRun(paths) >= config.SequentialRun,
		Pagination:       longestPageRun(paths) >= config.PaginationRun,
		InteractiveRatio: float64(interactive) / float64(len(records)),
	}
	if evidence.SequentialIDs {
		evidence.SignalCount++
	}
	if evidence.Pagination {
		evidence.SignalCount++
	}
	if evidence.InteractiveRatio < config.InteractiveRatio {
		evidence.SignalCount++
	}

	if evidence.SignalCount >= 2 {
		return newIndicator(IndicatorScraping, config.Severity, evidence), nil
	}
	return nil, nil
}

// longestIDRun finds the longest run of requests whose trailing numeric
// path segment increments by one each time.
func longestIDRun(paths []string) int {
	best, run := 0, 0
	prev, havePrev := 0, false
	for _, p := range paths {
		id, ok := trailingID(p)
		if !ok {
			havePrev = false
			run = 0
			continue
		}
		if havePrev && id == prev+1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev, havePrev = id, true
	}
	return best
}

// trailingID extracts a numeric final path segment, e.g. /item/412.
func trailingID(path string) (int, bool) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(path[idx+1:])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// longestPageRun finds the longest run of incrementing page parameters.
func longestPageRun(paths []string) int {
	best, run := 0, 0
	prev, havePrev := 0, false
	for _, p := range paths {
		page, ok := pageParam(p)
		if !ok {
			continue
		}
		if havePrev && page == prev+1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev, havePrev = page, true
	}
	return best
}

// pageParam extracts a page= query parameter from a recorded path.
func pageParam(path string) (int, bool) {
	idx := strings.Index(path, "page=")
	if idx < 0 {
		return 0, false
	}
	rest := path[idx+len("page="):]
	end := strings.IndexAny(rest, "&#")
	if end >= 0 {
		rest = rest[:end]
	}
	page, err := strconv.Atoi(rest)
	if err != nil || page < 0 {
		return 0, false
	}
	return page, true
}

// Configure updates the detector configuration.
func (d *ScrapingDetector) Configure(config json.RawMessage) error {
	var next ScrapingConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.SequentialRun < 2 || next.PaginationRun < 2 {
		return fmt.Errorf("run lengths must be at least 2")
	}
	if next.InteractiveRatio <= 0 || next.InteractiveRatio >= 1 {
		return fmt.Errorf("interactive_ratio must be in (0,1)")
	}
	if next.MinRequests <= 0 {
		return fmt.Errorf("min_requests must be positive")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *ScrapingDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *ScrapingDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
