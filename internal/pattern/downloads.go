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

// DownloadConfig configures the suspicious-download detector.
type DownloadConfig struct {
	// HourlyCountThreshold is the export/download operation count per hour.
	HourlyCountThreshold int `json:"hourly_count_threshold"`

	// HourlyBytesThreshold is the cumulative size per hour.
	HourlyBytesThreshold int64 `json:"hourly_bytes_threshold"`

	// SingleBytesThreshold flags one oversized response on a
	// download-class path.
	SingleBytesThreshold int64 `json:"single_bytes_threshold"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultDownloadConfig returns sensible defaults.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		HourlyCountThreshold: 10,
		HourlyBytesThreshold: 100 << 20, // 100MB
		SingleBytesThreshold: 50 << 20,  // 50MB
		Severity:             models.SeverityHigh,
	}
}

// DownloadDetector flags bulk exfiltration through export, download and
// backup endpoints.
type DownloadDetector struct {
	config DownloadConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// NewDownloadDetector creates the detector over the store.
func NewDownloadDetector(store activity.Store) *DownloadDetector {
	return &DownloadDetector{
		config:  DefaultDownloadConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *DownloadDetector) Type() IndicatorType {
	return IndicatorSuspiciousDownload
}

// Check evaluates download volume for the identity.
func (d *DownloadDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	// Single oversized response on a download-class path
	if event.Request.ResponseSize > config.SingleBytesThreshold &&
		models.ClassifyPath(event.Request.Path) == models.EndpointDownload {
		return newIndicator(IndicatorSuspiciousDownload, config.Severity, DownloadEvidence{
			SingleBytes: event.Request.ResponseSize,
			Path:        event.Request.Path,
		}), nil
	}

	records, err := d.store.Window(ctx, activity.NSDownloads, event.Identity.Key, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("download window: %w", err)
	}

	count := 0
	var bytes int64
	for _, r := range records {
		if r.EventType != activity.EventDownload {
			continue
		}
		count++
		bytes += r.ResponseBytes
	}

	if count <= config.HourlyCountThreshold && bytes <= config.HourlyBytesThreshold {
		return nil, nil
	}

	return newIndicator(IndicatorSuspiciousDownload, config.Severity, DownloadEvidence{
		DownloadsPerHour: count,
		HourlyBytes:      bytes,
	}), nil
}

// Configure updates the detector configuration.
func (d *DownloadDetector) Configure(config json.RawMessage) error {
	var next DownloadConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.HourlyCountThreshold <= 0 {
		return fmt.Errorf("hourly_count_threshold must be positive")
	}
	if next.HourlyBytesThreshold <= 0 || next.SingleBytesThreshold <= 0 {
		return fmt.Errorf("byte thresholds must be positive")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *DownloadDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *DownloadDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
