// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package pattern

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/identity"
	"github.com/tomtom215/vigil/internal/models"
)

func testEvent(rc *models.RequestContext) *Event {
	if rc == nil {
		rc = &models.RequestContext{Path: "/browse", IP: "203.0.113.7"}
	}
	return &Event{
		Identity:   identity.Identity{Key: "user:42", Kind: identity.KindUser, UserID: "42"},
		IPIdentity: identity.Identity{Key: "ip:abc", Kind: identity.KindIP},
		Request:    rc,
	}
}

func seed(t *testing.T, store activity.Store, ns activity.Namespace, key string, recs ...activity.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := store.Record(context.Background(), ns, key, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func mustDetect(t *testing.T, ind *Indicator, err error, want IndicatorType) *Indicator {
	t.Helper()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ind == nil || !ind.Detected {
		t.Fatalf("no detection, want %s", want)
	}
	if ind.Type != want {
		t.Fatalf("Type = %s, want %s", ind.Type, want)
	}
	return ind
}

func mustNotDetect(t *testing.T, ind *Indicator, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ind != nil {
		t.Fatalf("unexpected detection: %+v", ind)
	}
}

func failedLogin(username string, ago time.Duration) activity.Record {
	meta, _ := json.Marshal(LoginMetadata{Username: username})
	return activity.Record{
		EventType: activity.EventLoginFailed,
		Timestamp: time.Now().Add(-ago),
		Metadata:  meta,
	}
}

func TestAccountEnumeration_FailedLoginBurst(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAccountEnumerationDetector(store)
	event := testEvent(nil)

	// Nine failures stay quiet, the tenth crosses the threshold.
	for i := 0; i < 9; i++ {
		seed(t, store, activity.NSLogins, event.IPIdentity.Key,
			failedLogin(fmt.Sprintf("user%d", i), time.Minute))
	}
	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)

	seed(t, store, activity.NSLogins, event.IPIdentity.Key, failedLogin("user9", time.Minute))
	ind, err = d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorAccountEnumeration)

	var ev EnumerationEvidence
	if err := json.Unmarshal(ind.Evidence, &ev); err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if ev.FailedAttempts != 10 {
		t.Errorf("FailedAttempts = %d, want 10", ev.FailedAttempts)
	}
	if ev.SingleTarget {
		t.Error("spray across ten usernames marked SingleTarget")
	}
}

func TestAccountEnumeration_SingleTargetBruteForce(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAccountEnumerationDetector(store)
	event := testEvent(nil)

	for i := 0; i < 10; i++ {
		seed(t, store, activity.NSLogins, event.IPIdentity.Key, failedLogin("admin", time.Minute))
	}
	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorAccountEnumeration)

	var ev EnumerationEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if !ev.SingleTarget {
		t.Error("repeated failures against one username not marked SingleTarget")
	}
}

func TestAccountEnumeration_IgnoresOldAndSuccessful(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAccountEnumerationDetector(store)
	event := testEvent(nil)

	// Outside the 15 minute window.
	for i := 0; i < 10; i++ {
		seed(t, store, activity.NSLogins, event.IPIdentity.Key, failedLogin("admin", 20*time.Minute))
	}
	// Successful logins never count.
	for i := 0; i < 10; i++ {
		seed(t, store, activity.NSLogins, event.IPIdentity.Key,
			activity.Record{EventType: activity.EventLogin, Timestamp: time.Now()})
	}

	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestPrivilegeEscalation_AdminPathWithoutCapability(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewPrivilegeEscalationDetector(store)

	// Anonymous caller on an admin route fires with no history at all.
	event := testEvent(&models.RequestContext{Path: "/admin/users"})
	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorPrivilegeEscalation)

	var ev EscalationEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if !ev.AdminPathAccess || ev.Path != "/admin/users" {
		t.Errorf("evidence = %+v", ev)
	}

	// An actual admin on the same route stays quiet.
	event = testEvent(&models.RequestContext{
		Path:      "/admin/users",
		Principal: &models.Principal{UserID: "1", Admin: true},
	})
	ind, err = d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestPrivilegeEscalation_RepeatedPrivilegeOps(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewPrivilegeEscalationDetector(store)
	event := testEvent(nil)

	for i := 0; i < 3; i++ {
		seed(t, store, activity.NSPrivilege, event.Identity.Key,
			activity.Record{EventType: activity.EventPrivilegeOp, Timestamp: time.Now()})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorPrivilegeEscalation)
	if ind.Severity != models.SeverityCritical {
		t.Errorf("Severity = %s, want critical", ind.Severity)
	}
}

func TestDataAccess_MassVolume(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewDataAccessDetector(store)
	event := testEvent(nil)

	// 1100 records over the window crosses the 1000 mass threshold.
	for i := 0; i < 11; i++ {
		seed(t, store, activity.NSAccess, event.Identity.Key, activity.Record{
			EventType:   activity.EventDataAccess,
			RecordCount: 100,
			Timestamp:   time.Now().Add(-30 * time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorMassDataAccess)

	var ev DataAccessEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.TotalRecords != 1100 {
		t.Errorf("TotalRecords = %d, want 1100", ev.TotalRecords)
	}
}

func TestDataAccess_RapidRate(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewDataAccessDetector(store)
	event := testEvent(nil)

	// 600 records inside two minutes: under the mass threshold but far
	// over 100 records per minute.
	for i := 0; i < 6; i++ {
		seed(t, store, activity.NSAccess, event.Identity.Key, activity.Record{
			EventType:   activity.EventDataAccess,
			RecordCount: 100,
			Timestamp:   time.Now().Add(-2 * time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorRapidDataAccess)
	if ind.Severity != models.SeverityHigh {
		t.Errorf("Severity = %s, want high", ind.Severity)
	}
}

func TestDataAccess_NormalUsageQuiet(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewDataAccessDetector(store)
	event := testEvent(nil)

	seed(t, store, activity.NSAccess, event.Identity.Key, activity.Record{
		EventType:   activity.EventDataAccess,
		RecordCount: 50,
		Timestamp:   time.Now().Add(-30 * time.Minute),
	})

	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestDownloads_SingleOversizedResponse(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewDownloadDetector(store)

	event := testEvent(&models.RequestContext{
		Path:         "/export/catalog",
		ResponseSize: 60 << 20,
	})
	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorSuspiciousDownload)

	var ev DownloadEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.SingleBytes != 60<<20 {
		t.Errorf("SingleBytes = %d", ev.SingleBytes)
	}

	// The same response size on a browse path is not a download signal.
	event = testEvent(&models.RequestContext{Path: "/report", ResponseSize: 60 << 20})
	ind, err = d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestDownloads_HourlyCount(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewDownloadDetector(store)
	event := testEvent(nil)

	for i := 0; i < 11; i++ {
		seed(t, store, activity.NSDownloads, event.Identity.Key, activity.Record{
			EventType:     activity.EventDownload,
			ResponseBytes: 1 << 20,
			Timestamp:     time.Now().Add(-10 * time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorSuspiciousDownload)

	var ev DownloadEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.DownloadsPerHour != 11 {
		t.Errorf("DownloadsPerHour = %d, want 11", ev.DownloadsPerHour)
	}
}

func searchRecord(term string, ago time.Duration) activity.Record {
	meta, _ := json.Marshal(SearchMetadata{Term: term})
	return activity.Record{
		EventType: activity.EventSearch,
		Timestamp: time.Now().Add(-ago),
		Metadata:  meta,
	}
}

func TestSearch_Volume(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewSearchDetector(store)
	event := testEvent(nil)

	for i := 0; i < 51; i++ {
		seed(t, store, activity.NSSearches, event.Identity.Key,
			searchRecord(fmt.Sprintf("term %d", i*7), time.Minute))
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorSearchEnumeration)

	var ev SearchEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.SearchesPerHour != 51 {
		t.Errorf("SearchesPerHour = %d, want 51", ev.SearchesPerHour)
	}
}

func TestSearch_AlphabeticalProgression(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewSearchDetector(store)
	event := testEvent(nil)

	for _, term := range []string{"weather", "aa", "ab", "ac", "ad", "news"} {
		seed(t, store, activity.NSSearches, event.Identity.Key, searchRecord(term, time.Minute))
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorSearchEnumeration)

	var ev SearchEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if !ev.Progression || len(ev.ProgressionRun) != 4 {
		t.Errorf("evidence = %+v", ev)
	}
}

func TestSearch_NumericProgression(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewSearchDetector(store)
	event := testEvent(nil)

	for _, term := range []string{"100", "101", "102", "103"} {
		seed(t, store, activity.NSSearches, event.Identity.Key, searchRecord(term, time.Minute))
	}

	ind, err := d.Check(context.Background(), event)
	mustDetect(t, ind, err, IndicatorSearchEnumeration)
}

func TestSearch_WildcardShare(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewSearchDetector(store)
	event := testEvent(nil)

	for _, term := range []string{"a*", "b%", "weather"} {
		seed(t, store, activity.NSSearches, event.Identity.Key, searchRecord(term, time.Minute))
	}

	ind, err := d.Check(context.Background(), event)
	mustDetect(t, ind, err, IndicatorSearchEnumeration)
}

func TestSearch_OrganicUsageQuiet(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewSearchDetector(store)
	event := testEvent(nil)

	for _, term := range []string{"weather", "news", "recipes"} {
		seed(t, store, activity.NSSearches, event.Identity.Key, searchRecord(term, time.Minute))
	}

	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestScraping_AutomationUserAgent(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewScrapingDetector(store)

	event := testEvent(&models.RequestContext{Path: "/items", UserAgent: "curl/8.4.0"})
	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorScraping)

	var ev ScrapingEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.UserAgentMatch == "" {
		t.Error("UserAgentMatch empty for curl")
	}
}

func TestScraping_SequentialTraversal(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewScrapingDetector(store)
	event := testEvent(&models.RequestContext{
		Path:      "/item/26",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	})

	// 25 sequential item fetches, zero interactive events: sequential IDs
	// plus a dead interactive ratio makes two signals.
	for i := 1; i <= 25; i++ {
		seed(t, store, activity.NSRequests, event.Identity.Key, activity.Record{
			EventType: activity.EventPageView,
			Path:      fmt.Sprintf("/item/%d", i),
			Timestamp: time.Now().Add(-time.Duration(25-i) * time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorScraping)

	var ev ScrapingEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if !ev.SequentialIDs {
		t.Error("sequential traversal not recognized")
	}
	if ev.SignalCount < 2 {
		t.Errorf("SignalCount = %d, want at least 2", ev.SignalCount)
	}
}

func TestScraping_InteractiveBrowsingQuiet(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewScrapingDetector(store)
	event := testEvent(&models.RequestContext{
		Path:      "/home",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	})

	// Varied paths with plenty of interaction events.
	for i := 0; i < 30; i++ {
		et := activity.EventPageView
		if i%2 == 0 {
			et = activity.EventInteraction
		}
		seed(t, store, activity.NSRequests, event.Identity.Key, activity.Record{
			EventType: et,
			Path:      fmt.Sprintf("/page-%d", i*13%7),
			Timestamp: time.Now().Add(-time.Duration(i) * time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestAPIAbuse_OnlyAPIRequestsConsidered(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAPIAbuseDetector(store)

	event := testEvent(&models.RequestContext{Path: "/browse"})
	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestAPIAbuse_EndpointBreadth(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAPIAbuseDetector(store)
	event := testEvent(&models.RequestContext{Path: "/api/v1/items"})

	// 21 distinct endpoints crosses the breadth threshold while staying
	// far below the per-hour call count.
	for i := 0; i < 21; i++ {
		seed(t, store, activity.NSRequests, event.Identity.Key, activity.Record{
			EventType: activity.EventAPICall,
			Path:      fmt.Sprintf("/api/v1/resource-%d", i),
			Timestamp: time.Now().Add(-time.Minute),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorAPIAbuse)

	var ev APIAbuseEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if ev.UniqueEndpoints != 21 {
		t.Errorf("UniqueEndpoints = %d, want 21", ev.UniqueEndpoints)
	}
}

func TestInjection_SignatureInQuery(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewInjectionDetector(store)

	event := testEvent(&models.RequestContext{
		Path:  "/api/v1/items",
		Query: "id=1 UNION SELECT username, password FROM users",
	})
	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorInjectionProbe)

	var ev InjectionEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if len(ev.Signatures) == 0 {
		t.Error("no signatures reported")
	}
	if ev.SampledTarget == "" {
		t.Error("no sampled target in evidence")
	}
}

func TestInjection_MetronomicTiming(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewInjectionDetector(store)
	event := testEvent(&models.RequestContext{Path: "/api/v1/items", Query: "id=7"})

	// Twelve requests exactly ten seconds apart reads as tool-driven.
	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 12; i++ {
		seed(t, store, activity.NSRequests, event.Identity.Key, activity.Record{
			EventType: activity.EventAPICall,
			Path:      "/api/v1/items",
			Timestamp: base.Add(time.Duration(i) * 10 * time.Second),
		})
	}

	ind, err := d.Check(context.Background(), event)
	ind = mustDetect(t, ind, err, IndicatorInjectionProbe)

	var ev InjectionEvidence
	json.Unmarshal(ind.Evidence, &ev)
	if !ev.TimingPattern {
		t.Error("TimingPattern not set")
	}
}

func TestInjection_HumanTimingQuiet(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewInjectionDetector(store)
	event := testEvent(&models.RequestContext{Path: "/api/v1/items", Query: "id=7"})

	// Wildly varying gaps: nothing sits near the mean.
	base := time.Now().Add(-50 * time.Minute)
	offsets := []time.Duration{0, 1, 601, 603, 1203, 1204, 1805, 1806, 2407, 2410, 3011, 3012}
	for _, off := range offsets {
		seed(t, store, activity.NSRequests, event.Identity.Key, activity.Record{
			EventType: activity.EventAPICall,
			Path:      "/api/v1/items",
			Timestamp: base.Add(off * time.Second),
		})
	}

	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestDetectors_DisabledSkipsCheck(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()

	d := NewInjectionDetector(store)
	d.SetEnabled(false)
	if d.Enabled() {
		t.Fatal("Enabled = true after SetEnabled(false)")
	}

	event := testEvent(&models.RequestContext{Path: "/items", Query: "id=1 or 1=1"})
	ind, err := d.Check(context.Background(), event)
	mustNotDetect(t, ind, err)
}

func TestDetectors_ConfigureValidation(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()

	tests := []struct {
		name    string
		d       Detector
		config  string
		wantErr bool
	}{
		{
			"enumeration valid",
			NewAccountEnumerationDetector(store),
			`{"failed_threshold": 5, "window_minutes": 10, "severity": "high"}`,
			false,
		},
		{
			"enumeration zero threshold",
			NewAccountEnumerationDetector(store),
			`{"failed_threshold": 0, "window_minutes": 10}`,
			true,
		},
		{
			"search short progression run",
			NewSearchDetector(store),
			`{"hourly_threshold": 50, "progression_run": 1, "wildcard_share": 0.3}`,
			true,
		},
		{
			"scraping ratio out of range",
			NewScrapingDetector(store),
			`{"sequential_run": 5, "pagination_run": 5, "interactive_ratio": 1.5, "min_requests": 20}`,
			true,
		},
		{
			"injection malformed json",
			NewInjectionDetector(store),
			`{"uniform_share": `,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Configure(json.RawMessage(tt.config))
			if (err != nil) != tt.wantErr {
				t.Errorf("Configure error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccountEnumeration_ConfiguredThreshold(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	d := NewAccountEnumerationDetector(store)
	event := testEvent(nil)

	if err := d.Configure(json.RawMessage(`{"failed_threshold": 3, "window_minutes": 15, "severity": "high"}`)); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	for i := 0; i < 3; i++ {
		seed(t, store, activity.NSLogins, event.IPIdentity.Key, failedLogin("admin", time.Minute))
	}
	ind, err := d.Check(context.Background(), event)
	mustDetect(t, ind, err, IndicatorAccountEnumeration)
}
