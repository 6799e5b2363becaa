// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package activity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and development.
// Entries are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	rings  map[string][]Record
	expiry map[string]time.Time
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rings:  make(map[string][]Record),
		expiry: make(map[string]time.Time),
	}
}

// Record appends a record under the namespace cap and TTL.
func (s *MemoryStore) Record(ctx context.Context, ns Namespace, identityKey string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Identity = identityKey

	key := string(makeKey(ns, identityKey))
	records := s.liveRing(key)
	records = append(records, rec)
	s.rings[key] = capRecords(records, ns.Cap)
	s.expiry[key] = time.Now().Add(ns.TTL)
	return nil
}

// Window returns records within the trailing duration, oldest first.
func (s *MemoryStore) Window(ctx context.Context, ns Namespace, identityKey string, window time.Duration) ([]Record, error) {
	records, err := s.All(ctx, ns, identityKey)
	if err != nil {
		return nil, err
	}
	return filterWindow(records, window), nil
}

// All returns all live records for the identity, oldest first.
func (s *MemoryStore) All(ctx context.Context, ns Namespace, identityKey string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	key := string(makeKey(ns, identityKey))
	ring := s.liveRing(key)
	out := make([]Record, len(ring))
	copy(out, ring)
	return out, nil
}

// liveRing returns the ring for a key, or nil if expired or missing.
// Callers hold at least a read lock.
func (s *MemoryStore) liveRing(key string) []Record {
	if exp, ok := s.expiry[key]; ok && time.Now().After(exp) {
		return nil
	}
	return s.rings[key]
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rings = nil
	s.expiry = nil
	return nil
}
