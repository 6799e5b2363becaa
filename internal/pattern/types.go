// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package pattern is the library of independent attack-pattern
// detectors: account enumeration, privilege escalation, mass and rapid
// data access, suspicious downloads, search enumeration, scraping, API
// abuse and injection probing.
//
// Detectors are stateless per invocation, consume the rolling activity
// store and the current request, and return a uniform Indicator. They
// are order-insensitive; the scoring engine sums their contributions.
package pattern

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/identity"
	"github.com/tomtom215/vigil/internal/models"
)

// IndicatorType identifies the pattern a detector looks for.
type IndicatorType string

const (
	IndicatorAccountEnumeration  IndicatorType = "account_enumeration"
	IndicatorPrivilegeEscalation IndicatorType = "privilege_escalation"
	IndicatorMassDataAccess      IndicatorType = "mass_data_access"
	IndicatorRapidDataAccess     IndicatorType = "rapid_data_access"
	IndicatorSuspiciousDownload  IndicatorType = "suspicious_download"
	IndicatorSearchEnumeration   IndicatorType = "search_enumeration"
	IndicatorScraping            IndicatorType = "scraping"
	IndicatorAPIAbuse            IndicatorType = "api_abuse"
	IndicatorInjectionProbe      IndicatorType = "injection_probe"

	// IndicatorBaselineDeviation is emitted by the assessment layer for
	// baseline anomalies so they flow through the same scoring path.
	IndicatorBaselineDeviation IndicatorType = "baseline_deviation"
)

// Indicator is the uniform output of one detector invocation.
type Indicator struct {
	Type     IndicatorType   `json:"type"`
	Detected bool            `json:"detected"`
	Severity models.Severity `json:"severity"`

	// Evidence is the detector's typed evidence struct, marshaled.
	Evidence json.RawMessage `json:"evidence,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// Event is the input to one detector invocation.
type Event struct {
	// Identity is the resolved identity for the request.
	Identity identity.Identity

	// IPIdentity is the IP-only identity, for detectors that track
	// per-IP behavior regardless of session or account.
	IPIdentity identity.Identity

	// Request is the current request context.
	Request *models.RequestContext
}

// Detector is implemented by every pattern detector.
type Detector interface {
	// Type returns the indicator type this detector produces.
	Type() IndicatorType

	// Check evaluates the event. Returns a detected Indicator or nil.
	Check(ctx context.Context, event *Event) (*Indicator, error)

	// Configure updates the detector's thresholds from JSON.
	Configure(config json.RawMessage) error

	// Enabled reports whether this detector currently runs.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// newIndicator builds a detected indicator with marshaled evidence.
// A marshal failure drops the evidence, never the indicator.
func newIndicator(t IndicatorType, sev models.Severity, evidence any) *Indicator {
	ind := &Indicator{
		Type:       t,
		Detected:   true,
		Severity:   sev,
		DetectedAt: time.Now(),
	}
	if evidence != nil {
		if data, err := json.Marshal(evidence); err == nil {
			ind.Evidence = data
		}
	}
	return ind
}

// Evidence payloads, one struct per detector.

// EnumerationEvidence details an account-enumeration detection.
type EnumerationEvidence struct {
	FailedAttempts  int           `json:"failed_attempts"`
	Window          time.Duration `json:"window"`
	TargetUsernames []string      `json:"target_usernames,omitempty"`
	SingleTarget    bool          `json:"single_target"`
}

// EscalationEvidence details a privilege-escalation detection.
type EscalationEvidence struct {
	PrivilegeActions int    `json:"privilege_actions,omitempty"`
	AdminPathAccess  bool   `json:"admin_path_access"`
	Path             string `json:"path,omitempty"`
}

// DataAccessEvidence details a mass or rapid data-access detection.
type DataAccessEvidence struct {
	TotalRecords     int     `json:"total_records"`
	RecordsPerMinute float64 `json:"records_per_minute,omitempty"`
	WindowMinutes    int     `json:"window_minutes"`
}

// DownloadEvidence details a suspicious-download detection.
type DownloadEvidence struct {
	DownloadsPerHour int    `json:"downloads_per_hour,omitempty"`
	HourlyBytes      int64  `json:"hourly_bytes,omitempty"`
	SingleBytes      int64  `json:"single_bytes,omitempty"`
	Path             string `json:"path,omitempty"`
}

// SearchEvidence details a search-enumeration detection.
type SearchEvidence struct {
	SearchesPerHour int      `json:"searches_per_hour,omitempty"`
	Progression     bool     `json:"progression"`
	ProgressionRun  []string `json:"progression_run,omitempty"`
	WildcardShare   float64  `json:"wildcard_share,omitempty"`
}

// ScrapingEvidence details a scraping-signature detection.
type ScrapingEvidence struct {
	UserAgentMatch   string  `json:"user_agent_match,omitempty"`
	SequentialIDs    bool    `json:"sequential_ids"`
	Pagination       bool    `json:"pagination"`
	InteractiveRatio float64 `json:"interactive_ratio"`
	SignalCount      int     `json:"signal_count"`
}

// APIAbuseEvidence details an API-abuse detection.
type APIAbuseEvidence struct {
	CallsPerHour    int   `json:"calls_per_hour,omitempty"`
	UniqueEndpoints int   `json:"unique_endpoints,omitempty"`
	HourlyBytes     int64 `json:"hourly_bytes,omitempty"`
}

// InjectionEvidence details an injection-probe detection.
type InjectionEvidence struct {
	Signatures     []string `json:"signatures,omitempty"`
	TimingPattern  bool     `json:"timing_pattern"`
	UniformShare   float64  `json:"uniform_share,omitempty"`
	SampledTarget  string   `json:"sampled_target,omitempty"`
}
