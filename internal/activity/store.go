// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package activity

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("activity store is closed")

// Store is the rolling activity log. Implementations must make
// Record's read-modify-write atomic per (namespace, identity) key:
// concurrent writers for the same identity must not under-count.
type Store interface {
	// Record appends a record to the identity's ring in the namespace,
	// evicting oldest entries beyond the namespace cap before persisting.
	// The entry inherits the namespace TTL.
	Record(ctx context.Context, ns Namespace, identityKey string, rec Record) error

	// Window returns the identity's records within the trailing
	// duration, oldest first. A missing key yields an empty slice.
	Window(ctx context.Context, ns Namespace, identityKey string, window time.Duration) ([]Record, error)

	// All returns every live record for the identity in the namespace,
	// oldest first.
	All(ctx context.Context, ns Namespace, identityKey string) ([]Record, error)

	// Close releases resources.
	Close() error
}

// filterWindow keeps records within the trailing window, preserving order.
func filterWindow(records []Record, window time.Duration) []Record {
	cutoff := time.Now().Add(-window)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// capRecords evicts oldest entries so at most cap remain.
func capRecords(records []Record, cap int) []Record {
	if cap > 0 && len(records) > cap {
		return records[len(records)-cap:]
	}
	return records
}
