// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/vigil/internal/logging"
)

// ValueLogGC matches *badger.DB's value-log garbage collection method.
//
// Satisfied by *badger.DB from github.com/dgraph-io/badger/v4.
type ValueLogGC interface {
	RunValueLogGC(discardRatio float64) error
}

// BadgerGCService runs periodic value-log garbage collection on a
// Badger database as a supervised service.
//
// Badger's LSM tree reclaims space only when GC is invoked explicitly.
// Activity records and audit events carry TTLs, so without GC the value
// log grows until restart. This service runs GC on a fixed interval and
// repeats it while each pass rewrites a log file, stopping when Badger
// reports nothing left to reclaim.
//
// Example usage:
//
//	svc := services.NewBadgerGCService(db, time.Hour)
//	tree.AddStorageService(svc)
type BadgerGCService struct {
	db           ValueLogGC
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewBadgerGCService creates a new GC service wrapper.
//
// The interval determines how often GC runs. Badger's documentation
// recommends something on the order of minutes to hours; under an hour
// is rarely useful for this workload.
func NewBadgerGCService(db ValueLogGC, interval time.Duration) *BadgerGCService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &BadgerGCService{
		db:           db,
		interval:     interval,
		discardRatio: 0.5,
		name:         "badger-gc",
	}
}

// Serve implements suture.Service.
//
// Runs value-log GC on each tick until the context is canceled.
// badger.ErrNoRewrite means no file had enough garbage to rewrite,
// which is the common steady-state outcome, not a failure.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runGC()
		}
	}
}

func (s *BadgerGCService) runGC() {
	rewritten := 0
	for {
		err := s.db.RunValueLogGC(s.discardRatio)
		if err == nil {
			rewritten++
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			logging.Error().Err(err).Msg("Badger value log GC failed")
		}
		break
	}
	if rewritten > 0 {
		logging.Debug().Int("files_rewritten", rewritten).Msg("Badger value log GC completed")
	}
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *BadgerGCService) String() string {
	return s.name
}
