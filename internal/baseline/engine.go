// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package baseline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/cache"
	"github.com/tomtom215/vigil/internal/identity"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
)

const (
	topHours        = 8
	topEventTypes   = 10
	maxFingerprints = 5
)

// Config tunes the baseline engine.
type Config struct {
	// LearningWindow is how far back to scan when computing a baseline.
	// Default: 7 days.
	LearningWindow time.Duration `json:"learning_window"`

	// CacheTTL is how long a computed baseline stays cached.
	// Default: 24h.
	CacheTTL time.Duration `json:"cache_ttl"`

	// FrequencyFactor flags current request volume above this multiple
	// of the daily average. Default: 3.
	FrequencyFactor float64 `json:"frequency_factor"`

	// VolumeFactor flags current data-record volume above this multiple
	// of the daily average. Default: 5.
	VolumeFactor float64 `json:"volume_factor"`

	// MixThreshold flags an activity mix when more than this share of
	// current actions falls outside the common types. Default: 0.5.
	MixThreshold float64 `json:"mix_threshold"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LearningWindow:  7 * 24 * time.Hour,
		CacheTTL:        24 * time.Hour,
		FrequencyFactor: 3,
		VolumeFactor:    5,
		MixThreshold:    0.5,
	}
}

// Engine computes and caches per-user baselines and compares current
// activity windows against them.
type Engine struct {
	store  activity.Store
	cache  *cache.TTL
	config Config
}

// NewEngine creates a baseline engine over the given activity store.
func NewEngine(store activity.Store, cfg Config) *Engine {
	if cfg.LearningWindow <= 0 {
		cfg.LearningWindow = 7 * 24 * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.FrequencyFactor <= 0 {
		cfg.FrequencyFactor = 3
	}
	if cfg.VolumeFactor <= 0 {
		cfg.VolumeFactor = 5
	}
	if cfg.MixThreshold <= 0 {
		cfg.MixThreshold = 0.5
	}
	return &Engine{
		store:  store,
		cache:  cache.NewTTL(cfg.CacheTTL),
		config: cfg,
	}
}

// Baseline returns the user's baseline, computing it on cache miss.
// Store failures degrade to an InsufficientData baseline (fail-open).
func (e *Engine) Baseline(ctx context.Context, userID string) *Baseline {
	if cached, ok := e.cache.Get(userID); ok {
		if b, ok := cached.(*Baseline); ok {
			return b
		}
	}

	b, err := e.compute(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).
			Msg("baseline computation failed, treating as insufficient data")
		return &Baseline{UserID: userID, InsufficientData: true, ComputedAt: time.Now()}
	}

	e.cache.Set(userID, b)
	return b
}

// Invalidate drops a cached baseline, forcing recomputation next time.
func (e *Engine) Invalidate(userID string) {
	e.cache.Delete(userID)
}

// Close releases the baseline cache.
func (e *Engine) Close() {
	e.cache.Close()
}

// compute scans the learning window and aggregates the baseline.
func (e *Engine) compute(ctx context.Context, userID string) (*Baseline, error) {
	key := identity.ForUser(userID).Key
	records, err := e.store.Window(ctx, activity.NSBehavior, key, e.config.LearningWindow)
	if err != nil {
		return nil, fmt.Errorf("scan learning window: %w", err)
	}

	b := &Baseline{UserID: userID, ComputedAt: time.Now()}
	if len(records) == 0 {
		b.InsufficientData = true
		return b, nil
	}

	hourCounts := make(map[int]int)
	typeCounts := make(map[activity.EventType]int)
	dayCounts := make(map[string]int)
	dayRecords := make(map[string]int)

	var ips, devices []string
	seenIP := make(map[string]bool)
	seenDevice := make(map[string]bool)

	for _, r := range records {
		hourCounts[r.Timestamp.UTC().Hour()]++
		typeCounts[r.EventType]++
		day := r.Timestamp.UTC().Format("2006-01-02")
		dayCounts[day]++
		dayRecords[day] += r.RecordCount

		if r.IP != "" && !seenIP[r.IP] {
			seenIP[r.IP] = true
			ips = append(ips, r.IP)
		}
		if r.UserAgent != "" && !seenDevice[r.UserAgent] {
			seenDevice[r.UserAgent] = true
			devices = append(devices, r.UserAgent)
		}
	}

	b.TypicalHours = topNInts(hourCounts, topHours)
	b.CommonEventTypes = topNTypes(typeCounts, topEventTypes)

	total, totalRecords := 0, 0
	b.MinDailyCount = -1
	for day, n := range dayCounts {
		total += n
		totalRecords += dayRecords[day]
		if b.MinDailyCount < 0 || n < b.MinDailyCount {
			b.MinDailyCount = n
		}
		if n > b.MaxDailyCount {
			b.MaxDailyCount = n
		}
	}
	days := len(dayCounts)
	b.AvgDailyCount = float64(total) / float64(days)
	b.AvgDailyRecords = float64(totalRecords) / float64(days)

	// Keep the most recent fingerprints; records are oldest first.
	b.RecentIPs = lastN(ips, maxFingerprints)
	b.RecentDevices = lastN(devices, maxFingerprints)

	return b, nil
}

// DetectAnomalies compares the current activity window against the
// baseline. An InsufficientData baseline yields no anomalies.
func (e *Engine) DetectAnomalies(b *Baseline, current []activity.Record) []Anomaly {
	if b == nil || b.InsufficientData || len(current) == 0 {
		return nil
	}

	var anomalies []Anomaly

	// Current hour outside the typical set
	nowHour := time.Now().UTC().Hour()
	if len(b.TypicalHours) > 0 && !b.KnowsHour(nowHour) {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyUnusualHour,
			Severity:    models.SeverityLow,
			Description: fmt.Sprintf("activity at hour %02d outside typical hours", nowHour),
			Observed:    float64(nowHour),
		})
	}

	// Activity-type mix: share of actions outside the common set
	if len(b.CommonEventTypes) > 0 {
		outside := 0
		for _, r := range current {
			if !b.KnowsEventType(r.EventType) {
				outside++
			}
		}
		share := float64(outside) / float64(len(current))
		if share > e.config.MixThreshold {
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyUnusualActivity,
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("%.0f%% of current actions outside common activity types", share*100),
				Observed:    share,
				Expected:    e.config.MixThreshold,
			})
		}
	}

	// Request frequency vs daily average
	if b.AvgDailyCount > 0 {
		observed := float64(len(current))
		if observed > b.AvgDailyCount*e.config.FrequencyFactor {
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyHighFrequency,
				Severity:    models.SeverityMedium,
				Description: "current request volume far above daily average",
				Observed:    observed,
				Expected:    b.AvgDailyCount,
			})
		}
	}

	// Data-access volume vs daily average
	if b.AvgDailyRecords > 0 {
		var observed float64
		for _, r := range current {
			observed += float64(r.RecordCount)
		}
		if observed > b.AvgDailyRecords*e.config.VolumeFactor {
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyHighVolume,
				Severity:    models.SeverityHigh,
				Description: "data-access volume far above daily average",
				Observed:    observed,
				Expected:    b.AvgDailyRecords,
			})
		}
	}

	return anomalies
}

// topNInts returns the n highest-count keys, ties broken by key order
// for determinism.
func topNInts(counts map[int]int, n int) []int {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	sort.Ints(keys)
	return keys
}

// topNTypes returns the n highest-count event types, ties broken
// lexically for determinism.
func topNTypes(counts map[activity.EventType]int, n int) []activity.EventType {
	keys := make([]activity.EventType, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// lastN keeps the trailing n items of a slice.
func lastN(s []string, n int) []string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
