// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"context"
	"sync"
	"time"
)

// MemoryStateStore implements StateStore in memory. Suitable for
// deployments without persistence and for testing; state is lost on
// restart.
type MemoryStateStore struct {
	mu     sync.RWMutex
	blocks map[string]BlockEntry
	locks  map[string]LockEntry
	rates  map[string]RateEntry
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		blocks: make(map[string]BlockEntry),
		locks:  make(map[string]LockEntry),
		rates:  make(map[string]RateEntry),
	}
}

// SetBlock writes or replaces the subject's block entry.
func (s *MemoryStateStore) SetBlock(ctx context.Context, entry BlockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[entry.Subject] = entry
	return nil
}

// SetLock writes or replaces the subject's lock entry.
func (s *MemoryStateStore) SetLock(ctx context.Context, entry LockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[entry.Subject] = entry
	return nil
}

// SetRateLimit writes or replaces the subject's reduced ceiling.
func (s *MemoryStateStore) SetRateLimit(ctx context.Context, entry RateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[entry.Subject] = entry
	return nil
}

// GetBlock returns the live block for a subject, or nil.
func (s *MemoryStateStore) GetBlock(ctx context.Context, subject string) (*BlockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.blocks[subject]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// GetLock returns the live lock for a subject, or nil.
func (s *MemoryStateStore) GetLock(ctx context.Context, subject string) (*LockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.locks[subject]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// GetRateLimit returns the live reduced ceiling, or nil.
func (s *MemoryStateStore) GetRateLimit(ctx context.Context, subject string) (*RateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rates[subject]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// Unblock removes a block; the second call returns false.
func (s *MemoryStateStore) Unblock(ctx context.Context, subject string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blocks[subject]
	if !ok {
		return false, nil
	}
	delete(s.blocks, subject)
	return time.Now().Before(entry.ExpiresAt), nil
}

// Unlock removes a lock with the same idempotence contract.
func (s *MemoryStateStore) Unlock(ctx context.Context, subject string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.locks[subject]
	if !ok {
		return false, nil
	}
	delete(s.locks, subject)
	return time.Now().Before(entry.ExpiresAt), nil
}

// ListBlocks returns all live block entries.
func (s *MemoryStateStore) ListBlocks(ctx context.Context) ([]BlockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []BlockEntry
	for _, entry := range s.blocks {
		if time.Now().Before(entry.ExpiresAt) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ListLocks returns all live lock entries.
func (s *MemoryStateStore) ListLocks(ctx context.Context) ([]LockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []LockEntry
	for _, entry := range s.locks {
		if time.Now().Before(entry.ExpiresAt) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStateStore) Close() error { return nil }
