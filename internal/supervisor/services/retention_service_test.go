// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockEventPruner is a test double for EventPruner.
type mockEventPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockEventPruner) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, olderThan)
	return m.deleted, m.err
}

func (m *mockEventPruner) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestAuditRetentionService_Interface(t *testing.T) {
	var _ suture.Service = (*AuditRetentionService)(nil)
}

func TestNewAuditRetentionService_Defaults(t *testing.T) {
	svc := NewAuditRetentionService(&mockEventPruner{}, 0, 0)
	if svc.retentionDays != 90 {
		t.Errorf("expected default retention 90 days, got %d", svc.retentionDays)
	}
	if svc.interval != time.Hour {
		t.Errorf("expected default interval 1h, got %v", svc.interval)
	}
	if svc.String() != "audit-retention" {
		t.Errorf("expected name 'audit-retention', got %q", svc.String())
	}
}

func TestAuditRetentionService_PrunesOnTick(t *testing.T) {
	pruner := &mockEventPruner{deleted: 3}
	svc := NewAuditRetentionService(pruner, 30, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}

	calls := pruner.calls()
	if len(calls) < 1 {
		t.Fatal("expected at least one prune call")
	}

	// Cutoff should be roughly 30 days in the past.
	want := time.Now().AddDate(0, 0, -30)
	if diff := calls[0].Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v not near expected %v", calls[0], want)
	}
}

func TestAuditRetentionService_ErrorDoesNotCrash(t *testing.T) {
	pruner := &mockEventPruner{err: errors.New("store unavailable")}
	svc := NewAuditRetentionService(pruner, 30, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}

	// Pruning keeps being attempted despite errors.
	if len(pruner.calls()) < 2 {
		t.Errorf("expected repeated prune attempts, got %d", len(pruner.calls()))
	}
}
