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

// AccountEnumerationConfig configures the account-enumeration detector.
type AccountEnumerationConfig struct {
	// FailedThreshold is the failed-login count that triggers detection.
	FailedThreshold int `json:"failed_threshold"`

	// WindowMinutes is the trailing window to count failures in.
	WindowMinutes int `json:"window_minutes"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultAccountEnumerationConfig returns sensible defaults.
func DefaultAccountEnumerationConfig() AccountEnumerationConfig {
	return AccountEnumerationConfig{
		FailedThreshold: 10,
		WindowMinutes:   15,
		Severity:        models.SeverityHigh,
	}
}

// AccountEnumerationDetector flags bursts of failed logins from one IP.
// Repeated failures against a single username look like a takeover
// attempt; failures spread across many usernames look like credential
// spraying. Both fire the same indicator, distinguished by evidence.
type AccountEnumerationDetector struct {
	config AccountEnumerationConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// LoginMetadata is the metadata recorded with login events.
type LoginMetadata struct {
	Username string `json:"username,omitempty"`
}

// NewAccountEnumerationDetector creates the detector over the store.
func NewAccountEnumerationDetector(store activity.Store) *AccountEnumerationDetector {
	return &AccountEnumerationDetector{
		config:  DefaultAccountEnumerationConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *AccountEnumerationDetector) Type() IndicatorType {
	return IndicatorAccountEnumeration
}

// Check counts recent failed logins from the caller's IP.
func (d *AccountEnumerationDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	window := time.Duration(config.WindowMinutes) * time.Minute
	records, err := d.store.Window(ctx, activity.NSLogins, event.IPIdentity.Key, window)
	if err != nil {
		return nil, fmt.Errorf("login window: %w", err)
	}

	failed := 0
	targets := make(map[string]bool)
	for _, r := range records {
		if r.EventType != activity.EventLoginFailed {
			continue
		}
		failed++
		if len(r.Metadata) > 0 {
			var meta LoginMetadata
			if err := json.Unmarshal(r.Metadata, &meta); err == nil && meta.Username != "" {
				targets[meta.Username] = true
			}
		}
	}

	if failed < config.FailedThreshold {
		return nil, nil
	}

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}

	return newIndicator(IndicatorAccountEnumeration, config.Severity, EnumerationEvidence{
		FailedAttempts:  failed,
		Window:          window,
		TargetUsernames: names,
		SingleTarget:    len(targets) == 1,
	}), nil
}

// Configure updates the detector configuration.
func (d *AccountEnumerationDetector) Configure(config json.RawMessage) error {
	var next AccountEnumerationConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.FailedThreshold <= 0 {
		return fmt.Errorf("failed_threshold must be positive")
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
func (d *AccountEnumerationDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *AccountEnumerationDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
