// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package pattern

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/cache"
	"github.com/tomtom215/vigil/internal/models"
)

// InjectionConfig configures the injection-probe detector.
type InjectionConfig struct {
	// UniformShare is the fraction of inter-request gaps that must sit
	// within UniformTolerance of the mean gap to count as tool-driven
	// timing.
	UniformShare float64 `json:"uniform_share"`

	// UniformTolerance is the distance from the mean gap within which a
	// gap counts as uniform.
	UniformTolerance time.Duration `json:"uniform_tolerance"`

	// MinRequests is the minimum window size before timing is evaluated.
	MinRequests int `json:"min_requests"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultInjectionConfig returns sensible defaults.
func DefaultInjectionConfig() InjectionConfig {
	return InjectionConfig{
		UniformShare:     0.7,
		UniformTolerance: 5 * time.Second,
		MinRequests:      10,
		Severity:         models.SeverityCritical,
	}
}

// injectionSignatures are SQL-injection probe fragments matched
// case-insensitively against the request path and query.
var injectionSignatures = []string{
	"union select", "union all select", "information_schema",
	"' or '1'='1", "\" or \"1\"=\"1", "or 1=1", "and 1=1", "and 1=2",
	"'; drop table", "'; delete from", "sleep(", "benchmark(",
	"waitfor delay", "pg_sleep(", "load_file(", "into outfile",
	"xp_cmdshell", "/**/", "0x3c7363726970",
	"concat(0x", "extractvalue(", "updatexml(", "@@version",
	"sysobjects", "sqlmap",
}

// InjectionDetector flags SQL-injection probing: a known signature in
// the request target, or the metronomic request timing characteristic
// of automated injection tooling.
type InjectionDetector struct {
	config     InjectionConfig
	store      activity.Store
	signatures *cache.AhoCorasick

	enabled bool
	mu      sync.RWMutex
}

// NewInjectionDetector creates the detector over the store.
func NewInjectionDetector(store activity.Store) *InjectionDetector {
	signatures := cache.NewAhoCorasick()
	signatures.AddPatterns(injectionSignatures, nil)
	signatures.Build()

	return &InjectionDetector{
		config:     DefaultInjectionConfig(),
		store:      store,
		signatures: signatures,
		enabled:    true,
	}
}

// Type returns the indicator type.
func (d *InjectionDetector) Type() IndicatorType {
	return IndicatorInjectionProbe
}

// Check scans the request target for signatures, then the identity's
// trailing hour of requests for uniform timing.
func (d *InjectionDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	target := event.Request.Path
	if event.Request.Query != "" {
		target += "?" + event.Request.Query
	}
	if matches := d.signatures.Search(target); len(matches) > 0 {
		sigs := make([]string, 0, len(matches))
		for _, m := range matches {
			sigs = append(sigs, m.Pattern)
		}
		return newIndicator(IndicatorInjectionProbe, config.Severity, InjectionEvidence{
			Signatures:    sigs,
			SampledTarget: truncate(target, 512),
		}), nil
	}

	records, err := d.store.Window(ctx, activity.NSRequests, event.Identity.Key, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("request window: %w", err)
	}
	if len(records) < config.MinRequests {
		return nil, nil
	}

	share := uniformGapShare(records, config.UniformTolerance)
	if share > config.UniformShare {
		return newIndicator(IndicatorInjectionProbe, config.Severity, InjectionEvidence{
			TimingPattern: true,
			UniformShare:  share,
		}), nil
	}

	return nil, nil
}

// uniformGapShare returns the fraction of inter-request gaps that fall
// within tolerance of the mean gap.
func uniformGapShare(records []activity.Record, tolerance time.Duration) float64 {
	times := make([]time.Time, len(records))
	for i, r := range records {
		times[i] = r.Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]time.Duration, 0, len(times)-1)
	var total time.Duration
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		gaps = append(gaps, gap)
		total += gap
	}
	if len(gaps) == 0 {
		return 0
	}

	mean := total / time.Duration(len(gaps))
	uniform := 0
	for _, gap := range gaps {
		delta := gap - mean
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance {
			uniform++
		}
	}
	return float64(uniform) / float64(len(gaps))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Configure updates the detector configuration.
func (d *InjectionDetector) Configure(config json.RawMessage) error {
	var next InjectionConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.UniformShare <= 0 || next.UniformShare >= 1 {
		return fmt.Errorf("uniform_share must be in (0,1)")
	}
	if next.UniformTolerance <= 0 {
		return fmt.Errorf("uniform_tolerance must be positive")
	}
	if next.MinRequests < 3 {
		return fmt.Errorf("min_requests must be at least 3")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *InjectionDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *InjectionDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
