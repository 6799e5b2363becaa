// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
)

// EventPruner matches the audit store's retention deletion method.
//
// This interface allows the AuditRetentionService to work with any
// audit store without importing the audit package, avoiding circular
// dependencies.
//
// Satisfied by audit.MemoryStore and audit.BadgerStore.
type EventPruner interface {
	// Delete removes events older than the given time and returns the
	// number deleted.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditRetentionService enforces the audit retention window as a
// supervised service.
//
// On each tick it deletes events older than the configured number of
// days. Pruning errors are logged rather than returned so a transient
// store failure doesn't put the service into restart churn; the next
// tick retries anyway.
//
// Example usage:
//
//	svc := services.NewAuditRetentionService(store, 90, time.Hour)
//	tree.AddStorageService(svc)
type AuditRetentionService struct {
	store         EventPruner
	retentionDays int
	interval      time.Duration
	name          string
}

// NewAuditRetentionService creates a new retention service wrapper.
func NewAuditRetentionService(store EventPruner, retentionDays int, interval time.Duration) *AuditRetentionService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &AuditRetentionService{
		store:         store,
		retentionDays: retentionDays,
		interval:      interval,
		name:          "audit-retention",
	}
}

// Serve implements suture.Service.
// Prunes on each tick until the context is canceled.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *AuditRetentionService) prune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	count, err := s.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit retention pruning failed")
		return
	}
	if count > 0 {
		logging.Info().
			Int64("count", count).
			Time("cutoff", cutoff).
			Msg("Pruned expired audit events")
	}
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *AuditRetentionService) String() string {
	return s.name
}
