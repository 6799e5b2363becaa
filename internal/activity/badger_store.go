// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/logging"
)

// BadgerStore persists activity rings in BadgerDB. Each (namespace,
// identity) pair maps to one key holding a JSON-encoded ring of
// records, written with the namespace TTL.
//
// The ring update runs inside a single badger transaction, so the
// read-modify-write that raced in earlier revisions of this pipeline is
// serialized per key: a conflicting concurrent commit returns
// badger.ErrConflict and the losing writer retries with fresh state.
type BadgerStore struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

// maxTxnRetries bounds conflict retries per Record call. Three is
// enough for realistic per-identity contention; beyond that the write
// is dropped and logged (fail-open, the window just under-counts once).
const maxTxnRetries = 3

// NewBadgerStore wraps a shared badger instance.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// makeKey builds the store key for an identity in a namespace.
func makeKey(ns Namespace, identityKey string) []byte {
	return []byte("activity:" + ns.Name + ":" + identityKey)
}

// Record appends a record, evicting past the cap, inside one transaction.
func (s *BadgerStore) Record(ctx context.Context, ns Namespace, identityKey string, rec Record) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Identity = identityKey
	key := makeKey(ns, identityKey)

	var lastErr error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = s.db.Update(func(txn *badger.Txn) error {
			records, err := readRing(txn, key)
			if err != nil {
				return err
			}

			records = append(records, rec)
			// Evict beyond cap before persisting
			records = capRecords(records, ns.Cap)

			data, err := json.Marshal(records)
			if err != nil {
				return fmt.Errorf("marshal ring: %w", err)
			}
			return txn.SetEntry(badger.NewEntry(key, data).WithTTL(ns.TTL))
		})
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, badger.ErrConflict) {
			return fmt.Errorf("record activity: %w", lastErr)
		}
	}

	logging.Ctx(ctx).Warn().
		Str("namespace", ns.Name).
		Str("identity", identityKey).
		Msg("activity write dropped after conflict retries")
	return nil
}

// Window returns records within the trailing duration, oldest first.
// Store failures degrade to an empty window so callers stay fail-open.
func (s *BadgerStore) Window(ctx context.Context, ns Namespace, identityKey string, window time.Duration) ([]Record, error) {
	records, err := s.All(ctx, ns, identityKey)
	if err != nil {
		return nil, err
	}
	return filterWindow(records, window), nil
}

// All returns the identity's full live ring, oldest first.
func (s *BadgerStore) All(ctx context.Context, ns Namespace, identityKey string) ([]Record, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		records, err = readRing(txn, makeKey(ns, identityKey))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	return records, nil
}

// readRing loads and decodes a ring; a missing key is an empty ring.
func readRing(txn *badger.Txn, key []byte) ([]Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &records)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal ring: %w", err)
	}
	return records, nil
}

// Close marks the store closed. The badger instance is shared and is
// closed by its owner, not here.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
