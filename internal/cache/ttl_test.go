// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cache

import (
	"testing"
	"time"
)

func TestTTL_SetGet(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	c.Set("baseline:42", "computed")

	got, ok := c.Get("baseline:42")
	if !ok {
		t.Fatal("Get returned miss for fresh entry")
	}
	if got != "computed" {
		t.Errorf("Get = %v, want computed", got)
	}

	if _, ok := c.Get("baseline:99"); ok {
		t.Error("Get returned hit for unknown key")
	}
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	c.SetWithTTL("short", 1, 20*time.Millisecond)

	if _, ok := c.Get("short"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Fatal("entry alive after its TTL")
	}

	// The expired-read path evicts eagerly rather than waiting for the sweep.
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d after expired read, want 0", got)
	}
}

func TestTTL_OverwriteResetsExpiry(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	c.SetWithTTL("k", "old", 20*time.Millisecond)
	c.SetWithTTL("k", "new", time.Minute)

	time.Sleep(40 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok || got != "new" {
		t.Errorf("Get = (%v, %v), want (new, true)", got, ok)
	}
}

func TestTTL_DeleteAndClear(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("missing")

	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still readable")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after delete, want 1", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", c.Len())
	}
}

func TestTTL_Stats(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	c.Set("k", 1)
	c.Get("k")      // hit
	c.Get("k")      // hit
	c.Get("other")  // miss
	c.Delete("k")   // eviction

	hits, misses, evictions := c.Stats()
	if hits != 2 || misses != 1 || evictions != 1 {
		t.Errorf("Stats() = (%d, %d, %d), want (2, 1, 1)", hits, misses, evictions)
	}

	want := float64(2) / float64(3) * 100
	if got := c.HitRate(); got != want {
		t.Errorf("HitRate() = %v, want %v", got, want)
	}
}

func TestTTL_HitRateEmptyIsZero(t *testing.T) {
	c := NewTTL(time.Minute)
	defer c.Close()

	if got := c.HitRate(); got != 0 {
		t.Errorf("HitRate() on untouched cache = %v, want 0", got)
	}
}

func TestTTL_ZeroTTLGetsDefault(t *testing.T) {
	c := NewTTL(0)
	defer c.Close()

	c.Set("k", 1)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry under defaulted TTL expired immediately")
	}
}

func TestTTL_CloseIdempotent(t *testing.T) {
	c := NewTTL(time.Minute)
	c.Close()
	c.Close()
}
