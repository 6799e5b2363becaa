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

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/models"
)

// DataAccessConfig configures the mass/rapid data-access detector.
type DataAccessConfig struct {
	// MassThreshold is the record total within the window that counts
	// as mass access.
	MassThreshold int `json:"mass_threshold"`

	// RapidPerMinute is the records-per-minute rate that counts as
	// rapid access.
	RapidPerMinute float64 `json:"rapid_per_minute"`

	// WindowMinutes is the trailing window for both checks.
	WindowMinutes int `json:"window_minutes"`

	// MassSeverity and RapidSeverity grade the two variants.
	MassSeverity  models.Severity `json:"mass_severity"`
	RapidSeverity models.Severity `json:"rapid_severity"`
}

// DefaultDataAccessConfig returns sensible defaults.
func DefaultDataAccessConfig() DataAccessConfig {
	return DataAccessConfig{
		MassThreshold:  1000,
		RapidPerMinute: 100,
		WindowMinutes:  60,
		MassSeverity:   models.SeverityCritical,
		RapidSeverity:  models.SeverityHigh,
	}
}

// DataAccessDetector flags identities pulling unusually many records:
// either a large total within the window (mass) or a high per-minute
// rate (rapid). Mass wins when both fire.
type DataAccessDetector struct {
	config DataAccessConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// NewDataAccessDetector creates the detector over the store.
func NewDataAccessDetector(store activity.Store) *DataAccessDetector {
	return &DataAccessDetector{
		config:  DefaultDataAccessConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type of the detector's primary variant.
func (d *DataAccessDetector) Type() IndicatorType {
	return IndicatorMassDataAccess
}

// Check sums the identity's record counts within the window.
func (d *DataAccessDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	window := time.Duration(config.WindowMinutes) * time.Minute
	records, err := d.store.Window(ctx, activity.NSAccess, event.Identity.Key, window)
	if err != nil {
		return nil, fmt.Errorf("access window: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	total := 0
	for _, r := range records {
		total += r.RecordCount
	}

	if total > config.MassThreshold {
		return newIndicator(IndicatorMassDataAccess, config.MassSeverity, DataAccessEvidence{
			TotalRecords:  total,
			WindowMinutes: config.WindowMinutes,
		}), nil
	}

	// Rapid: rate over the span actually covered by the records, so a
	// short burst is not diluted by an empty hour.
	span := time.Since(records[0].Timestamp)
	if span < time.Minute {
		span = time.Minute
	}
	perMinute := float64(total) / span.Minutes()
	if perMinute > config.RapidPerMinute {
		return newIndicator(IndicatorRapidDataAccess, config.RapidSeverity, DataAccessEvidence{
			TotalRecords:     total,
			RecordsPerMinute: perMinute,
			WindowMinutes:    config.WindowMinutes,
		}), nil
	}

	return nil, nil
}

// Configure updates the detector configuration.
func (d *DataAccessDetector) Configure(config json.RawMessage) error {
	var next DataAccessConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.MassThreshold <= 0 {
		return fmt.Errorf("mass_threshold must be positive")
	}
	if next.RapidPerMinute <= 0 {
		return fmt.Errorf("rapid_per_minute must be positive")
	}
	if next.WindowMinutes <= 0 {
		return fmt.Errorf("window_minutes must be positive")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *DataAccessDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *DataAccessDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
