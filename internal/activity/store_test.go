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
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// openTestBadger returns an in-memory badger instance.
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

// testStores runs a subtest against both Store implementations.
func testStores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()
		fn(t, store)
	})
	t.Run("badger", func(t *testing.T) {
		store := NewBadgerStore(openTestBadger(t))
		defer store.Close()
		fn(t, store)
	})
}

func TestStore_RecordAndAll(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			rec := Record{
				EventType: EventSearch,
				Path:      fmt.Sprintf("/search?q=%d", i),
				Timestamp: time.Now().Add(time.Duration(i) * time.Millisecond),
			}
			if err := store.Record(ctx, NSSearches, "ip:abc", rec); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		records, err := store.All(ctx, NSSearches, "ip:abc")
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		// Oldest first, identity stamped by the store.
		if records[0].Path != "/search?q=0" {
			t.Errorf("first record path = %q, want oldest", records[0].Path)
		}
		if records[0].Identity != "ip:abc" {
			t.Errorf("Identity = %q, want ip:abc", records[0].Identity)
		}
	})
}

func TestStore_MissingKeyIsEmpty(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		records, err := store.All(context.Background(), NSLogins, "ip:never-seen")
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("got %d records for unknown identity", len(records))
		}
	})
}

func TestStore_NamespaceIsolation(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		if err := store.Record(ctx, NSLogins, "user:1", Record{EventType: EventLoginFailed}); err != nil {
			t.Fatalf("Record: %v", err)
		}

		records, err := store.All(ctx, NSSearches, "user:1")
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("login record leaked into searches namespace")
		}
	})
}

func TestStore_CapEvictsOldest(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		ns := Namespace{Name: "capped", TTL: time.Hour, Cap: 5}

		for i := 0; i < 8; i++ {
			rec := Record{EventType: EventAPICall, Path: fmt.Sprintf("/api/%d", i)}
			if err := store.Record(ctx, ns, "ip:abc", rec); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		records, err := store.All(ctx, ns, "ip:abc")
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(records) != 5 {
			t.Fatalf("got %d records, want cap of 5", len(records))
		}
		if records[0].Path != "/api/3" {
			t.Errorf("oldest surviving record = %q, want /api/3", records[0].Path)
		}
	})
}

func TestStore_WindowFiltersByTime(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		old := Record{EventType: EventDownload, Timestamp: time.Now().Add(-30 * time.Minute)}
		fresh := Record{EventType: EventDownload, Timestamp: time.Now().Add(-time.Minute)}
		for _, rec := range []Record{old, fresh} {
			if err := store.Record(ctx, NSDownloads, "ip:abc", rec); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}

		records, err := store.Window(ctx, NSDownloads, "ip:abc", 10*time.Minute)
		if err != nil {
			t.Fatalf("Window: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("got %d records in window, want 1", len(records))
		}

		all, err := store.Window(ctx, NSDownloads, "ip:abc", time.Hour)
		if err != nil {
			t.Fatalf("Window: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("got %d records in wide window, want 2", len(all))
		}
	})
}

func TestStore_ZeroTimestampDefaultsToNow(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		if err := store.Record(ctx, NSRequests, "ip:abc", Record{EventType: EventPageView}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		records, err := store.Window(ctx, NSRequests, "ip:abc", time.Minute)
		if err != nil {
			t.Fatalf("Window: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("zero-timestamp record not stamped with now")
		}
	})
}

func TestStore_ClosedReturnsError(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if err := store.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		if err := store.Record(ctx, NSLogins, "ip:abc", Record{}); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("Record after close = %v, want ErrStoreClosed", err)
		}
		if _, err := store.All(ctx, NSLogins, "ip:abc"); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("All after close = %v, want ErrStoreClosed", err)
		}
	})
}

func TestStore_ConcurrentRecordsSameIdentity(t *testing.T) {
	testStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		ns := Namespace{Name: "concurrent", TTL: time.Hour, Cap: 500}

		const writers = 8
		const perWriter = 10
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					store.Record(ctx, ns, "ip:shared", Record{EventType: EventAPICall})
				}
			}()
		}
		wg.Wait()

		records, err := store.All(ctx, ns, "ip:shared")
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		// Badger may shed a handful of writes after conflict retries;
		// the memory store keeps them all. Either way the window must
		// reflect the bulk of the activity.
		if len(records) < writers*perWriter/2 {
			t.Errorf("got %d records, want at least %d", len(records), writers*perWriter/2)
		}
	})
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	ns := Namespace{Name: "shortlived", TTL: 20 * time.Millisecond, Cap: 10}

	if err := store.Record(ctx, ns, "ip:abc", Record{EventType: EventSearch}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	records, err := store.All(ctx, ns, "ip:abc")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records after TTL expiry, want 0", len(records))
	}
}

func TestAllNamespaces(t *testing.T) {
	seen := map[string]bool{}
	for _, ns := range AllNamespaces() {
		if ns.Name == "" || ns.TTL <= 0 || ns.Cap <= 0 {
			t.Errorf("namespace %+v has zero fields", ns)
		}
		if seen[ns.Name] {
			t.Errorf("duplicate namespace %q", ns.Name)
		}
		seen[ns.Name] = true
	}
}
