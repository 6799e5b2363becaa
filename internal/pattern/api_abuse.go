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

// APIAbuseConfig configures the API-abuse detector.
type APIAbuseConfig struct {
	// HourlyCallThreshold is the API calls-per-hour count that triggers.
	HourlyCallThreshold int `json:"hourly_call_threshold"`

	// EndpointThreshold is the distinct-endpoints-per-hour count that
	// triggers.
	EndpointThreshold int `json:"endpoint_threshold"`

	// HourlyBytesThreshold is the response-volume-per-hour that triggers.
	HourlyBytesThreshold int64 `json:"hourly_bytes_threshold"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultAPIAbuseConfig returns sensible defaults.
func DefaultAPIAbuseConfig() APIAbuseConfig {
	return APIAbuseConfig{
		HourlyCallThreshold:  200,
		EndpointThreshold:    20,
		HourlyBytesThreshold: 20 << 20,
		Severity:             models.SeverityHigh,
	}
}

// APIAbuseDetector flags programmatic overuse of the API surface: call
// volume, endpoint breadth or response volume beyond what interactive
// clients produce.
type APIAbuseDetector struct {
	config APIAbuseConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// NewAPIAbuseDetector creates the detector over the store.
func NewAPIAbuseDetector(store activity.Store) *APIAbuseDetector {
	return &APIAbuseDetector{
		config:  DefaultAPIAbuseConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *APIAbuseDetector) Type() IndicatorType {
	return IndicatorAPIAbuse
}

// Check evaluates API traffic only. Requests outside the API endpoint
// class never contribute.
func (d *APIAbuseDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	if models.ClassifyPath(event.Request.Path) != models.EndpointAPI {
		return nil, nil
	}

	records, err := d.store.Window(ctx, activity.NSRequests, event.Identity.Key, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("request window: %w", err)
	}

	calls := 0
	var bytes int64
	endpoints := make(map[string]struct{})
	for _, r := range records {
		if r.EventType != activity.EventAPICall {
			continue
		}
		calls++
		bytes += r.ResponseBytes
		endpoints[r.Path] = struct{}{}
	}

	if calls > config.HourlyCallThreshold {
		return newIndicator(IndicatorAPIAbuse, config.Severity, APIAbuseEvidence{
			CallsPerHour: calls,
		}), nil
	}
	if len(endpoints) > config.EndpointThreshold {
		return newIndicator(IndicatorAPIAbuse, config.Severity, APIAbuseEvidence{
			CallsPerHour:    calls,
			UniqueEndpoints: len(endpoints),
		}), nil
	}
	if bytes > config.HourlyBytesThreshold {
		return newIndicator(IndicatorAPIAbuse, config.Severity, APIAbuseEvidence{
			CallsPerHour: calls,
			HourlyBytes:  bytes,
		}), nil
	}

	return nil, nil
}

// Configure updates the detector configuration.
func (d *APIAbuseDetector) Configure(config json.RawMessage) error {
	var next APIAbuseConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.HourlyCallThreshold <= 0 || next.EndpointThreshold <= 0 {
		return fmt.Errorf("thresholds must be positive")
	}
	if next.HourlyBytesThreshold <= 0 {
		return fmt.Errorf("hourly_bytes_threshold must be positive")
	}

	d.mu.Lock()
	d.config = next
	d.mu.Unlock()
	return nil
}

// Enabled reports whether the detector runs.
func (d *APIAbuseDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *APIAbuseDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
