// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package baseline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/activity"
	"github.com/tomtom215/vigil/internal/identity"
)

// seedBehavior writes n behavior records for the user at the given time.
func seedBehavior(t *testing.T, store activity.Store, userID string, at time.Time, n int, et activity.EventType) {
	t.Helper()
	key := identity.ForUser(userID).Key
	for i := 0; i < n; i++ {
		rec := activity.Record{
			EventType:   et,
			Timestamp:   at.Add(time.Duration(i) * time.Minute),
			RecordCount: 10,
			IP:          fmt.Sprintf("203.0.113.%d", i%3),
			UserAgent:   "Mozilla/5.0",
		}
		if err := store.Record(context.Background(), activity.NSBehavior, key, rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
}

func TestBaseline_InsufficientDataForNewUser(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	e := NewEngine(store, DefaultConfig())
	defer e.Close()

	b := e.Baseline(context.Background(), "never-seen")
	if !b.InsufficientData {
		t.Error("new user baseline not marked InsufficientData")
	}
	if b.UserID != "never-seen" {
		t.Errorf("UserID = %q", b.UserID)
	}
}

func TestBaseline_ComputesDailyStats(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	e := NewEngine(store, DefaultConfig())
	defer e.Close()

	// Four actions two days ago, two actions yesterday. Anchored to
	// mid-morning so the minute offsets never cross a day boundary.
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	seedBehavior(t, store, "bob", midnight.Add(-48*time.Hour+9*time.Hour), 4, activity.EventPageView)
	seedBehavior(t, store, "bob", midnight.Add(-24*time.Hour+9*time.Hour), 2, activity.EventSearch)

	b := e.Baseline(context.Background(), "bob")
	if b.InsufficientData {
		t.Fatal("baseline marked InsufficientData with seeded history")
	}
	if b.AvgDailyCount != 3 {
		t.Errorf("AvgDailyCount = %v, want 3", b.AvgDailyCount)
	}
	if b.MinDailyCount != 2 || b.MaxDailyCount != 4 {
		t.Errorf("daily min/max = %d/%d, want 2/4", b.MinDailyCount, b.MaxDailyCount)
	}
	if b.AvgDailyRecords != 30 {
		t.Errorf("AvgDailyRecords = %v, want 30", b.AvgDailyRecords)
	}
	if !b.KnowsEventType(activity.EventPageView) || !b.KnowsEventType(activity.EventSearch) {
		t.Errorf("CommonEventTypes = %v", b.CommonEventTypes)
	}
	if len(b.TypicalHours) == 0 {
		t.Error("no typical hours learned")
	}
	if len(b.RecentIPs) == 0 || len(b.RecentIPs) > maxFingerprints {
		t.Errorf("RecentIPs = %v", b.RecentIPs)
	}
}

func TestBaseline_CachedUntilInvalidated(t *testing.T) {
	store := activity.NewMemoryStore()
	defer store.Close()
	e := NewEngine(store, DefaultConfig())
	defer e.Close()

	seedBehavior(t, store, "bob", time.Now().UTC().Add(-24*time.Hour), 2, activity.EventPageView)

	first := e.Baseline(context.Background(), "bob")

	// New history does not show up while the cache entry is live.
	seedBehavior(t, store, "bob", time.Now().UTC().Add(-2*time.Hour), 6, activity.EventDownload)
	if cached := e.Baseline(context.Background(), "bob"); cached != first {
		t.Error("baseline recomputed while cached")
	}

	e.Invalidate("bob")
	recomputed := e.Baseline(context.Background(), "bob")
	if recomputed == first {
		t.Error("Invalidate did not force recomputation")
	}
	if !recomputed.KnowsEventType(activity.EventDownload) {
		t.Error("recomputed baseline missing new history")
	}
}

func TestDetectAnomalies_SkipsInsufficientData(t *testing.T) {
	e := NewEngine(activity.NewMemoryStore(), DefaultConfig())
	defer e.Close()

	current := []activity.Record{{EventType: activity.EventDownload}}
	if got := e.DetectAnomalies(&Baseline{InsufficientData: true}, current); got != nil {
		t.Errorf("anomalies on InsufficientData baseline: %v", got)
	}
	if got := e.DetectAnomalies(nil, current); got != nil {
		t.Errorf("anomalies on nil baseline: %v", got)
	}
	if got := e.DetectAnomalies(&Baseline{AvgDailyCount: 1}, nil); got != nil {
		t.Errorf("anomalies on empty current window: %v", got)
	}
}

func hasAnomaly(anomalies []Anomaly, typ AnomalyType) bool {
	for _, a := range anomalies {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func TestDetectAnomalies_UnusualHour(t *testing.T) {
	e := NewEngine(activity.NewMemoryStore(), DefaultConfig())
	defer e.Close()

	nowHour := time.Now().UTC().Hour()
	otherHour := (nowHour + 12) % 24
	current := []activity.Record{{EventType: activity.EventPageView}}

	b := &Baseline{
		TypicalHours:     []int{otherHour},
		CommonEventTypes: []activity.EventType{activity.EventPageView},
	}
	if !hasAnomaly(e.DetectAnomalies(b, current), AnomalyUnusualHour) {
		t.Error("activity outside typical hours not flagged")
	}

	b.TypicalHours = []int{nowHour}
	if hasAnomaly(e.DetectAnomalies(b, current), AnomalyUnusualHour) {
		t.Error("activity within typical hours flagged")
	}
}

func TestDetectAnomalies_ActivityMix(t *testing.T) {
	e := NewEngine(activity.NewMemoryStore(), DefaultConfig())
	defer e.Close()

	b := &Baseline{
		TypicalHours:     []int{time.Now().UTC().Hour()},
		CommonEventTypes: []activity.EventType{activity.EventPageView},
	}

	// Three of four actions outside the common set crosses the 0.5 share.
	current := []activity.Record{
		{EventType: activity.EventPageView},
		{EventType: activity.EventDownload},
		{EventType: activity.EventPrivilegeOp},
		{EventType: activity.EventAdminAction},
	}
	if !hasAnomaly(e.DetectAnomalies(b, current), AnomalyUnusualActivity) {
		t.Error("shifted activity mix not flagged")
	}

	familiar := []activity.Record{
		{EventType: activity.EventPageView},
		{EventType: activity.EventPageView},
		{EventType: activity.EventDownload},
	}
	if hasAnomaly(e.DetectAnomalies(b, familiar), AnomalyUnusualActivity) {
		t.Error("mostly familiar mix flagged")
	}
}

func TestDetectAnomalies_FrequencyAndVolume(t *testing.T) {
	e := NewEngine(activity.NewMemoryStore(), DefaultConfig())
	defer e.Close()

	b := &Baseline{
		TypicalHours:     []int{time.Now().UTC().Hour()},
		CommonEventTypes: []activity.EventType{activity.EventDataAccess},
		AvgDailyCount:    10,
		AvgDailyRecords:  100,
	}

	// 40 actions against an average of 10 crosses the 3x factor; 600
	// records against an average of 100 crosses the 5x factor.
	current := make([]activity.Record, 40)
	for i := range current {
		current[i] = activity.Record{EventType: activity.EventDataAccess, RecordCount: 15}
	}

	anomalies := e.DetectAnomalies(b, current)
	if !hasAnomaly(anomalies, AnomalyHighFrequency) {
		t.Error("high request frequency not flagged")
	}
	if !hasAnomaly(anomalies, AnomalyHighVolume) {
		t.Error("high data volume not flagged")
	}

	// Modest activity stays quiet.
	quiet := []activity.Record{{EventType: activity.EventDataAccess, RecordCount: 5}}
	if got := e.DetectAnomalies(b, quiet); len(got) != 0 {
		t.Errorf("modest activity flagged: %v", got)
	}
}

func TestBaseline_FailOpenOnStoreError(t *testing.T) {
	store := activity.NewMemoryStore()
	store.Close() // every read now fails
	e := NewEngine(store, DefaultConfig())
	defer e.Close()

	b := e.Baseline(context.Background(), "bob")
	if !b.InsufficientData {
		t.Error("store failure did not degrade to InsufficientData")
	}
}

func TestNewEngine_ZeroConfigGetsDefaults(t *testing.T) {
	e := NewEngine(activity.NewMemoryStore(), Config{})
	defer e.Close()

	if e.config.LearningWindow != 7*24*time.Hour {
		t.Errorf("LearningWindow = %v", e.config.LearningWindow)
	}
	if e.config.FrequencyFactor != 3 || e.config.VolumeFactor != 5 {
		t.Errorf("factors = %v/%v", e.config.FrequencyFactor, e.config.VolumeFactor)
	}
	if e.config.MixThreshold != 0.5 {
		t.Errorf("MixThreshold = %v", e.config.MixThreshold)
	}
}
