// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// BadgerStore implements Store on a shared badger instance. Keys encode
// the event timestamp so a reverse prefix scan yields newest-first
// order without a separate index. Entries carry a TTL matching the
// retention period, so badger expiry and the cleanup routine converge
// on the same horizon.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
}

const auditPrefix = "audit:event:"

// NewBadgerStore wraps a shared badger instance. Retention bounds entry
// TTLs; zero means 90 days.
func NewBadgerStore(db *badger.DB, retention time.Duration) *BadgerStore {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &BadgerStore{db: db, retention: retention}
}

// auditKey builds a chronologically ordered key for an event.
func auditKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", auditPrefix, ts.UnixNano(), id))
}

// Save persists an audit event.
func (s *BadgerStore) Save(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(auditKey(event.Timestamp, event.ID), data).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// Get retrieves an event by ID. This scans; it exists for the admin
// interface where lookups by ID are rare.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Event, error) {
	var found *Event
	err := s.scan(ctx, false, func(event *Event) bool {
		if event.ID == id {
			found = event
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Query retrieves events matching the filter, newest first.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var results []Event
	skip := filter.Offset

	err := s.scan(ctx, true, func(event *Event) bool {
		if !matchesFilter(event, &filter) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		results = append(results, *event)
		return filter.Limit <= 0 || len(results) < filter.Limit
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	var count int64
	err := s.scan(ctx, false, func(event *Event) bool {
		if matchesFilter(event, &filter) {
			count++
		}
		return true
	})
	return count, err
}

// Delete removes events older than the given time. Badger TTL expiry
// usually gets there first; this handles retention shortening.
func (s *BadgerStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	var keys [][]byte
	end := auditKey(olderThan, "")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(end) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan audit events: %w", err)
	}

	var deleted int64
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return deleted, fmt.Errorf("delete audit event: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// GetStats summarizes the stored events with a full scan. The audit
// range is TTL-bounded so the scan stays proportional to retention.
func (s *BadgerStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		EventsByType:     make(map[string]int64),
		EventsBySeverity: make(map[string]int64),
		EventsByOutcome:  make(map[string]int64),
	}

	err := s.scan(ctx, false, func(event *Event) bool {
		stats.TotalEvents++
		stats.EventsByType[string(event.Type)]++
		stats.EventsBySeverity[string(event.Severity)]++
		stats.EventsByOutcome[string(event.Outcome)]++

		if stats.OldestEvent == nil || event.Timestamp.Before(*stats.OldestEvent) {
			t := event.Timestamp
			stats.OldestEvent = &t
		}
		if stats.NewestEvent == nil || event.Timestamp.After(*stats.NewestEvent) {
			t := event.Timestamp
			stats.NewestEvent = &t
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// scan iterates stored events, newest first when reverse is set,
// invoking fn until it returns false.
func (s *BadgerStore) scan(ctx context.Context, reverse bool, fn func(*Event) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(auditPrefix)
		seek := prefix
		if reverse {
			// Seek past the prefix range, then walk backwards.
			seek = append(append([]byte{}, prefix...), 0xff)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("unmarshal audit event: %w", err)
			}
			if !fn(&event) {
				return nil
			}
		}
		return nil
	})
}
