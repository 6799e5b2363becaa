// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package baseline learns what "normal" looks like for each
// authenticated user and flags deviation from it.
//
// A baseline is computed lazily from the trailing learning window
// (default 7 days) of the user's activity and cached for 24 hours. A
// user with no history gets an InsufficientData baseline; callers must
// skip anomaly comparison for those rather than treating silence as
// suspicious.
package baseline

import (
	"time"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/models"
)

// Baseline is a per-user statistical summary of typical behavior.
type Baseline struct {
	UserID string `json:"user_id"`

	// InsufficientData is set when the user has no learnable history.
	// All other fields are zero when this is true.
	InsufficientData bool `json:"insufficient_data"`

	// TypicalHours are the top active hours-of-day by frequency (UTC),
	// at most topHours entries.
	TypicalHours []int `json:"typical_hours,omitempty"`

	// CommonEventTypes are the top activity types by frequency, at most
	// topEventTypes entries.
	CommonEventTypes []activity.EventType `json:"common_event_types,omitempty"`

	// Daily access-frequency statistics over the learning window.
	AvgDailyCount float64 `json:"avg_daily_count,omitempty"`
	MinDailyCount int     `json:"min_daily_count,omitempty"`
	MaxDailyCount int     `json:"max_daily_count,omitempty"`

	// AvgDailyRecords is the mean number of data records touched per day.
	AvgDailyRecords float64 `json:"avg_daily_records,omitempty"`

	// RecentIPs and RecentDevices are the most recently seen network
	// and user-agent fingerprints, at most maxFingerprints each.
	RecentIPs     []string `json:"recent_ips,omitempty"`
	RecentDevices []string `json:"recent_devices,omitempty"`

	// ComputedAt is when this baseline was learned.
	ComputedAt time.Time `json:"computed_at"`
}

// KnowsHour reports whether the hour is among the user's typical hours.
func (b *Baseline) KnowsHour(hour int) bool {
	for _, h := range b.TypicalHours {
		if h == hour {
			return true
		}
	}
	return false
}

// KnowsEventType reports whether the event type is common for this user.
func (b *Baseline) KnowsEventType(et activity.EventType) bool {
	for _, t := range b.CommonEventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// AnomalyType identifies a kind of baseline deviation.
type AnomalyType string

const (
	AnomalyUnusualHour     AnomalyType = "unusual_hour"
	AnomalyUnusualActivity AnomalyType = "unusual_activity_mix"
	AnomalyHighFrequency   AnomalyType = "high_frequency"
	AnomalyHighVolume      AnomalyType = "high_data_volume"
)

// Anomaly is one detected deviation from a user's baseline.
type Anomaly struct {
	Type        AnomalyType     `json:"type"`
	Severity    models.Severity `json:"severity"`
	Description string          `json:"description"`

	// Observed and Expected quantify the deviation where meaningful.
	Observed float64 `json:"observed,omitempty"`
	Expected float64 `json:"expected,omitempty"`
}
