// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testStateStores runs a subtest against both StateStore implementations.
func testStateStores(t *testing.T, fn func(t *testing.T, store StateStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStateStore()
		defer store.Close()
		fn(t, store)
	})
	t.Run("badger", func(t *testing.T) {
		store := NewBadgerStateStore(openTestBadger(t))
		defer store.Close()
		fn(t, store)
	})
}

func TestStateStore_BlockRoundTrip(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()
		entry := BlockEntry{
			Subject:   "a1b2c3",
			Reason:    "critical severity",
			Score:     95,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := store.SetBlock(ctx, entry); err != nil {
			t.Fatalf("SetBlock: %v", err)
		}

		got, err := store.GetBlock(ctx, "a1b2c3")
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if got == nil {
			t.Fatal("GetBlock = nil for live entry")
		}
		if got.Subject != "a1b2c3" || got.Score != 95 {
			t.Errorf("entry = %+v", got)
		}

		if missing, err := store.GetBlock(ctx, "other"); err != nil || missing != nil {
			t.Errorf("GetBlock(other) = (%v, %v), want (nil, nil)", missing, err)
		}
	})
}

func TestStateStore_ExpiredEntryIsDead(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()
		entry := BlockEntry{
			Subject:   "shortlived",
			ExpiresAt: time.Now().Add(30 * time.Millisecond),
		}
		if err := store.SetBlock(ctx, entry); err != nil {
			t.Fatalf("SetBlock: %v", err)
		}
		time.Sleep(60 * time.Millisecond)

		got, err := store.GetBlock(ctx, "shortlived")
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if got != nil {
			t.Errorf("expired entry still live: %+v", got)
		}
	})
}

func TestStateStore_UnblockIdempotence(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()
		store.SetBlock(ctx, BlockEntry{
			Subject:   "abc",
			ExpiresAt: time.Now().Add(time.Hour),
		})

		found, err := store.Unblock(ctx, "abc")
		if err != nil || !found {
			t.Fatalf("Unblock = (%v, %v), want (true, nil)", found, err)
		}
		found, err = store.Unblock(ctx, "abc")
		if err != nil || found {
			t.Fatalf("second Unblock = (%v, %v), want (false, nil)", found, err)
		}
		found, err = store.Unblock(ctx, "never-blocked")
		if err != nil || found {
			t.Fatalf("Unblock of unknown subject = (%v, %v), want (false, nil)", found, err)
		}
	})
}

func TestStateStore_LockAndRate(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()

		if err := store.SetLock(ctx, LockEntry{
			Subject:   "42",
			Reason:    "failed logins",
			ExpiresAt: time.Now().Add(30 * time.Minute),
		}); err != nil {
			t.Fatalf("SetLock: %v", err)
		}
		lock, err := store.GetLock(ctx, "42")
		if err != nil || lock == nil {
			t.Fatalf("GetLock = (%v, %v)", lock, err)
		}

		if err := store.SetRateLimit(ctx, RateEntry{
			Subject:   "user:42",
			PerMinute: 5,
			ExpiresAt: time.Now().Add(time.Hour),
		}); err != nil {
			t.Fatalf("SetRateLimit: %v", err)
		}
		rate, err := store.GetRateLimit(ctx, "user:42")
		if err != nil || rate == nil {
			t.Fatalf("GetRateLimit = (%v, %v)", rate, err)
		}
		if rate.PerMinute != 5 {
			t.Errorf("PerMinute = %d, want 5", rate.PerMinute)
		}

		found, err := store.Unlock(ctx, "42")
		if err != nil || !found {
			t.Fatalf("Unlock = (%v, %v), want (true, nil)", found, err)
		}
	})
}

func TestStateStore_ListsOnlyLiveEntries(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()

		store.SetBlock(ctx, BlockEntry{Subject: "live1", ExpiresAt: time.Now().Add(time.Hour)})
		store.SetBlock(ctx, BlockEntry{Subject: "live2", ExpiresAt: time.Now().Add(time.Hour)})
		store.SetBlock(ctx, BlockEntry{Subject: "dying", ExpiresAt: time.Now().Add(20 * time.Millisecond)})
		store.SetLock(ctx, LockEntry{Subject: "42", ExpiresAt: time.Now().Add(time.Hour)})

		time.Sleep(40 * time.Millisecond)

		blocks, err := store.ListBlocks(ctx)
		if err != nil {
			t.Fatalf("ListBlocks: %v", err)
		}
		if len(blocks) != 2 {
			t.Errorf("ListBlocks = %d entries, want 2", len(blocks))
		}

		locks, err := store.ListLocks(ctx)
		if err != nil {
			t.Fatalf("ListLocks: %v", err)
		}
		if len(locks) != 1 {
			t.Errorf("ListLocks = %d entries, want 1", len(locks))
		}
	})
}

func TestStateStore_LastWriteWins(t *testing.T) {
	testStateStores(t, func(t *testing.T, store StateStore) {
		ctx := context.Background()

		store.SetBlock(ctx, BlockEntry{Subject: "abc", Score: 70, ExpiresAt: time.Now().Add(time.Hour)})
		store.SetBlock(ctx, BlockEntry{Subject: "abc", Score: 95, ExpiresAt: time.Now().Add(2 * time.Hour)})

		got, err := store.GetBlock(ctx, "abc")
		if err != nil || got == nil {
			t.Fatalf("GetBlock = (%v, %v)", got, err)
		}
		if got.Score != 95 {
			t.Errorf("Score = %d, want the later write's 95", got.Score)
		}
	})
}

func TestBadgerStateStore_RejectsExpiredWrite(t *testing.T) {
	store := NewBadgerStateStore(openTestBadger(t))
	defer store.Close()

	err := store.SetBlock(context.Background(), BlockEntry{
		Subject:   "abc",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err == nil {
		t.Error("SetBlock accepted an already-expired entry")
	}
}

func TestBadgerStateStore_ClosedReturnsError(t *testing.T) {
	store := NewBadgerStateStore(openTestBadger(t))
	store.Close()

	err := store.SetBlock(context.Background(), BlockEntry{
		Subject:   "abc",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err == nil {
		t.Error("SetBlock after Close did not error")
	}
}
