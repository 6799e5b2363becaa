// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package pattern

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/cache"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// rateWindow is the trailing window the throughput rates cover.
const rateWindow = 5 * time.Minute

// Engine coordinates detector evaluation. Detectors are independent:
// one failing detector contributes nothing and never aborts the batch.
type Engine struct {
	mu        sync.RWMutex
	detectors map[IndicatorType]Detector
	enabled   bool

	metrics *EngineMetrics

	// Bucketed sliding windows back the trailing rates; the cumulative
	// counters above never reset, so they cannot answer "busy right now".
	events *cache.SlidingWindowCounter
	fired  *cache.SlidingWindowStore
}

// EngineMetrics tracks engine and per-detector performance.
type EngineMetrics struct {
	mu              sync.RWMutex
	EventsProcessed int64
	IndicatorsFired int64
	DetectionErrors int64
	LastProcessedAt time.Time
	DetectorMetrics map[IndicatorType]*DetectorMetrics

	// Trailing-window throughput, per minute.
	EventRate     float64
	IndicatorRate float64
}

// DetectorMetrics tracks one detector.
type DetectorMetrics struct {
	EventsChecked   int64
	IndicatorsFired int64
	Errors          int64
	LastFiredAt     *time.Time

	// RecentFired counts fires inside the trailing rate window.
	RecentFired int64
}

// NewEngine creates an empty detector engine.
func NewEngine() *Engine {
	return &Engine{
		detectors: make(map[IndicatorType]Detector),
		enabled:   true,
		metrics: &EngineMetrics{
			DetectorMetrics: make(map[IndicatorType]*DetectorMetrics),
		},
		events: cache.NewSlidingWindowCounter(rateWindow, 10),
		fired:  cache.NewSlidingWindowStore(rateWindow, 10, 64),
	}
}

// Register adds a detector to the engine.
func (e *Engine) Register(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := d.Type()
	e.detectors[t] = d
	e.metrics.mu.Lock()
	e.metrics.DetectorMetrics[t] = &DetectorMetrics{}
	e.metrics.mu.Unlock()

	logging.Info().Str("detector", string(t)).Msg("registered detector")
}

// Check runs every enabled detector against the event and returns the
// detected indicators. Detector errors are logged and swallowed.
func (e *Engine) Check(ctx context.Context, event *Event) []Indicator {
	detectors := e.enabledDetectors()
	if detectors == nil {
		return nil
	}

	var indicators []Indicator
	for _, d := range detectors {
		ind := e.runOne(ctx, d, event)
		if ind != nil && ind.Detected {
			indicators = append(indicators, *ind)
		}
	}

	e.metrics.mu.Lock()
	e.metrics.EventsProcessed++
	e.metrics.IndicatorsFired += int64(len(indicators))
	e.metrics.LastProcessedAt = time.Now()
	e.metrics.mu.Unlock()

	e.events.IncrementOne()

	return indicators
}

// runOne executes a single detector, isolating its failures.
func (e *Engine) runOne(ctx context.Context, d Detector, event *Event) *Indicator {
	t := d.Type()

	e.metrics.mu.Lock()
	if m, ok := e.metrics.DetectorMetrics[t]; ok {
		m.EventsChecked++
	}
	e.metrics.mu.Unlock()

	start := time.Now()
	ind, err := d.Check(ctx, event)

	severity := ""
	if ind != nil {
		severity = string(ind.Severity)
	}
	metrics.RecordDetectorCheck(string(t), time.Since(start), ind != nil && ind.Detected, severity, err)

	if err != nil {
		e.metrics.mu.Lock()
		if m, ok := e.metrics.DetectorMetrics[t]; ok {
			m.Errors++
		}
		e.metrics.DetectionErrors++
		e.metrics.mu.Unlock()

		logging.Ctx(ctx).Error().Err(err).Str("detector", string(t)).
			Msg("detector failed, contributing zero score")
		return nil
	}

	if ind != nil && ind.Detected {
		e.metrics.mu.Lock()
		if m, ok := e.metrics.DetectorMetrics[t]; ok {
			m.IndicatorsFired++
			now := time.Now()
			m.LastFiredAt = &now
		}
		e.metrics.mu.Unlock()

		e.fired.Increment(string(t))
	}

	return ind
}

// enabledDetectors snapshots the enabled detectors, or nil when the
// engine itself is disabled.
func (e *Engine) enabledDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return nil
	}

	out := make([]Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Detector returns a registered detector by type.
func (e *Engine) Detector(t IndicatorType) (Detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.detectors[t]
	return d, ok
}

// Detectors returns all registered detectors.
func (e *Engine) Detectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		out = append(out, d)
	}
	return out
}

// ConfigureDetector updates one detector's configuration.
func (e *Engine) ConfigureDetector(t IndicatorType, config json.RawMessage) error {
	e.mu.RLock()
	d, ok := e.detectors[t]
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("detector not found: %s", t)
	}
	return d.Configure(config)
}

// SetDetectorEnabled toggles one detector.
func (e *Engine) SetDetectorEnabled(t IndicatorType, enabled bool) error {
	e.mu.RLock()
	d, ok := e.detectors[t]
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("detector not found: %s", t)
	}
	d.SetEnabled(enabled)
	return nil
}

// SetEnabled toggles the whole engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports whether the engine runs detectors.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Metrics returns a copy of the engine metrics, with trailing-window
// rates folded in from the sliding counters.
func (e *Engine) Metrics() EngineMetrics {
	e.metrics.mu.RLock()
	defer e.metrics.mu.RUnlock()

	perMinute := rateWindow.Minutes()

	var recentFired int64
	dm := make(map[IndicatorType]*DetectorMetrics, len(e.metrics.DetectorMetrics))
	for k, v := range e.metrics.DetectorMetrics {
		c := *v
		c.RecentFired = e.fired.Count(string(k))
		recentFired += c.RecentFired
		dm[k] = &c
	}
	return EngineMetrics{
		EventsProcessed: e.metrics.EventsProcessed,
		IndicatorsFired: e.metrics.IndicatorsFired,
		DetectionErrors: e.metrics.DetectionErrors,
		LastProcessedAt: e.metrics.LastProcessedAt,
		DetectorMetrics: dm,
		EventRate:       float64(e.events.Count()) / perMinute,
		IndicatorRate:   float64(recentFired) / perMinute,
	}
}
