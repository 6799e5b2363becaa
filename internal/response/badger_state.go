// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for the three state kinds.
const (
	blockPrefix = "response:block:"
	lockPrefix  = "response:lock:"
	ratePrefix  = "response:rate:"
)

// BadgerStateStore persists response state in a shared badger instance.
// Entry TTLs match each ExpiresAt, so badger expiry is the removal
// mechanism; ExpiresAt is still checked on read to cover clock skew
// between write and expiry.
type BadgerStateStore struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

// NewBadgerStateStore wraps a shared badger instance.
func NewBadgerStateStore(db *badger.DB) *BadgerStateStore {
	return &BadgerStateStore{db: db}
}

// ErrStateStoreClosed is returned after Close.
var ErrStateStoreClosed = errors.New("response: state store closed")

func (s *BadgerStateStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStateStoreClosed
	}
	return nil
}

// setEntry marshals and writes one state entry with its TTL.
func (s *BadgerStateStore) setEntry(ctx context.Context, key string, value any, expiresAt time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("response: entry already expired")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("write state entry: %w", err)
	}
	return nil
}

// getEntry reads one state entry; a missing or expired key is nil.
func (s *BadgerStateStore) getEntry(ctx context.Context, key string, out any) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state entry: %w", err)
	}
	return true, nil
}

// remove deletes a key, reporting whether a live entry existed.
func (s *BadgerStateStore) remove(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("delete state entry: %w", err)
	}
	return existed, nil
}

// SetBlock writes or replaces the subject's block entry.
func (s *BadgerStateStore) SetBlock(ctx context.Context, entry BlockEntry) error {
	return s.setEntry(ctx, blockPrefix+entry.Subject, entry, entry.ExpiresAt)
}

// SetLock writes or replaces the subject's lock entry.
func (s *BadgerStateStore) SetLock(ctx context.Context, entry LockEntry) error {
	return s.setEntry(ctx, lockPrefix+entry.Subject, entry, entry.ExpiresAt)
}

// SetRateLimit writes or replaces the subject's reduced ceiling.
func (s *BadgerStateStore) SetRateLimit(ctx context.Context, entry RateEntry) error {
	return s.setEntry(ctx, ratePrefix+entry.Subject, entry, entry.ExpiresAt)
}

// GetBlock returns the live block for a subject, or nil.
func (s *BadgerStateStore) GetBlock(ctx context.Context, subject string) (*BlockEntry, error) {
	var entry BlockEntry
	ok, err := s.getEntry(ctx, blockPrefix+subject, &entry)
	if err != nil || !ok {
		return nil, err
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// GetLock returns the live lock for a subject, or nil.
func (s *BadgerStateStore) GetLock(ctx context.Context, subject string) (*LockEntry, error) {
	var entry LockEntry
	ok, err := s.getEntry(ctx, lockPrefix+subject, &entry)
	if err != nil || !ok {
		return nil, err
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// GetRateLimit returns the live reduced ceiling, or nil.
func (s *BadgerStateStore) GetRateLimit(ctx context.Context, subject string) (*RateEntry, error) {
	var entry RateEntry
	ok, err := s.getEntry(ctx, ratePrefix+subject, &entry)
	if err != nil || !ok {
		return nil, err
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

// Unblock removes a block; the second call for the same subject is a
// no-op returning false.
func (s *BadgerStateStore) Unblock(ctx context.Context, subject string) (bool, error) {
	return s.remove(ctx, blockPrefix+subject)
}

// Unlock removes a lock with the same idempotence contract.
func (s *BadgerStateStore) Unlock(ctx context.Context, subject string) (bool, error) {
	return s.remove(ctx, lockPrefix+subject)
}

// ListBlocks returns all live block entries.
func (s *BadgerStateStore) ListBlocks(ctx context.Context) ([]BlockEntry, error) {
	var entries []BlockEntry
	err := s.list(ctx, blockPrefix, func(val []byte) error {
		var entry BlockEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return err
		}
		if time.Now().Before(entry.ExpiresAt) {
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// ListLocks returns all live lock entries.
func (s *BadgerStateStore) ListLocks(ctx context.Context) ([]LockEntry, error) {
	var entries []LockEntry
	err := s.list(ctx, lockPrefix, func(val []byte) error {
		var entry LockEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return err
		}
		if time.Now().Before(entry.ExpiresAt) {
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

func (s *BadgerStateStore) list(ctx context.Context, prefix string, fn func([]byte) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list state entries: %w", err)
	}
	return nil
}

// Close marks the store closed. The badger instance is shared and is
// closed by its owner, not here.
func (s *BadgerStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
