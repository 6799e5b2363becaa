// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package policy

import (
	"testing"
	"time"
)

func TestLimiterRegistry_BurstThenDeny(t *testing.T) {
	r := NewLimiterRegistry(time.Minute)
	defer r.Close()

	// Bucket starts full with perMin tokens.
	for i := 0; i < 5; i++ {
		if !r.Allow("ip:abc", 5) {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if r.Allow("ip:abc", 5) {
		t.Error("request beyond burst was allowed")
	}
}

func TestLimiterRegistry_PerIdentityIsolation(t *testing.T) {
	r := NewLimiterRegistry(time.Minute)
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Allow("ip:aaa", 5)
	}
	if r.Allow("ip:aaa", 5) {
		t.Error("exhausted identity was allowed")
	}
	if !r.Allow("ip:bbb", 5) {
		t.Error("fresh identity was denied")
	}
	if r.Size() != 2 {
		t.Errorf("Size = %d, want 2", r.Size())
	}
}

func TestLimiterRegistry_UncappedLimit(t *testing.T) {
	r := NewLimiterRegistry(time.Minute)
	defer r.Close()

	for i := 0; i < 100; i++ {
		if !r.Allow("ip:abc", 0) {
			t.Fatal("uncapped identity was denied")
		}
	}
	if r.Size() != 0 {
		t.Errorf("uncapped calls created %d buckets", r.Size())
	}
}

func TestLimiterRegistry_ChangedLimitRebuildsBucket(t *testing.T) {
	r := NewLimiterRegistry(time.Minute)
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Allow("ip:abc", 5)
	}
	if r.Allow("ip:abc", 5) {
		t.Error("bucket not exhausted")
	}

	// Adaptive loosening takes effect immediately with a fresh bucket.
	if !r.Allow("ip:abc", 10) {
		t.Error("raised limit did not rebuild the bucket")
	}
	if r.Size() != 1 {
		t.Errorf("Size = %d, want 1 after rebuild", r.Size())
	}
}

func TestLimiterRegistry_CloseIdempotent(t *testing.T) {
	r := NewLimiterRegistry(time.Minute)
	r.Close()
	r.Close()
}
