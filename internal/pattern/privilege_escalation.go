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

// PrivilegeEscalationConfig configures the privilege-escalation detector.
type PrivilegeEscalationConfig struct {
	// ActionThreshold is the suspicious privilege-action count that triggers.
	ActionThreshold int `json:"action_threshold"`

	// WindowMinutes is the trailing window for the action count.
	WindowMinutes int `json:"window_minutes"`

	// Severity for generated indicators.
	Severity models.Severity `json:"severity"`
}

// DefaultPrivilegeEscalationConfig returns sensible defaults.
func DefaultPrivilegeEscalationConfig() PrivilegeEscalationConfig {
	return PrivilegeEscalationConfig{
		ActionThreshold: 3,
		WindowMinutes:   5,
		Severity:        models.SeverityCritical,
	}
}

// PrivilegeEscalationDetector flags repeated privilege-related actions
// and direct admin-route access by principals lacking the admin
// capability. The capability itself is asserted by the host
// application's token; vigil only reads it.
type PrivilegeEscalationDetector struct {
	config PrivilegeEscalationConfig
	store  activity.Store

	enabled bool
	mu      sync.RWMutex
}

// NewPrivilegeEscalationDetector creates the detector over the store.
func NewPrivilegeEscalationDetector(store activity.Store) *PrivilegeEscalationDetector {
	return &PrivilegeEscalationDetector{
		config:  DefaultPrivilegeEscalationConfig(),
		store:   store,
		enabled: true,
	}
}

// Type returns the indicator type.
func (d *PrivilegeEscalationDetector) Type() IndicatorType {
	return IndicatorPrivilegeEscalation
}

// Check evaluates the event for escalation signals.
func (d *PrivilegeEscalationDetector) Check(ctx context.Context, event *Event) (*Indicator, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	// Admin-class route hit without the admin capability fires
	// immediately, no history needed.
	if models.ClassifyPath(event.Request.Path) == models.EndpointAdmin {
		p := event.Request.Principal
		if p == nil || !p.Admin {
			return newIndicator(IndicatorPrivilegeEscalation, config.Severity, EscalationEvidence{
				AdminPathAccess: true,
				Path:            event.Request.Path,
			}), nil
		}
	}

	window := time.Duration(config.WindowMinutes) * time.Minute
	records, err := d.store.Window(ctx, activity.NSPrivilege, event.Identity.Key, window)
	if err != nil {
		return nil, fmt.Errorf("privilege window: %w", err)
	}

	count := 0
	for _, r := range records {
		if r.EventType == activity.EventPrivilegeOp || r.EventType == activity.EventAdminAction {
			count++
		}
	}
	if count < config.ActionThreshold {
		return nil, nil
	}

	return newIndicator(IndicatorPrivilegeEscalation, config.Severity, EscalationEvidence{
		PrivilegeActions: count,
	}), nil
}

// Configure updates the detector configuration.
func (d *PrivilegeEscalationDetector) Configure(config json.RawMessage) error {
	var next PrivilegeEscalationConfig
	if err := json.Unmarshal(config, &next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if next.ActionThreshold <= 0 {
		return fmt.Errorf("action_threshold must be positive")
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
func (d *PrivilegeEscalationDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *PrivilegeEscalationDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
