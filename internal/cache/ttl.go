// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package cache provides in-process data structures used by the
// assessment pipeline: a TTL cache for computed baselines, sliding
// window counters for cheap per-key rate tracking, and an Aho-Corasick
// automaton for multi-pattern signature scanning.
package cache

import (
	"sync"
	"time"
)

// entry is a cached item with its expiration time.
type entry struct {
	data      interface{}
	expiresAt time.Time
}

// TTL is a thread-safe in-memory cache with per-entry expiration.
// A background goroutine sweeps expired entries every cleanupInterval.
type TTL struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	statsMu   sync.Mutex
	hits      int64
	misses    int64
	evictions int64

	stop     chan struct{}
	stopOnce sync.Once
}

// cleanupInterval is how often the background sweep removes expired entries.
const cleanupInterval = 5 * time.Minute

// NewTTL creates a cache whose entries expire after the given duration.
func NewTTL(ttl time.Duration) *TTL {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &TTL{
		entries: make(map[string]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value. Expired entries are removed and count as misses.
func (c *TTL) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordMiss()
		c.recordEviction()
		return nil, false
	}

	c.recordHit()
	return e.data, true
}

// Set stores a value with the default TTL.
func (c *TTL) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL. Overwrites any existing entry.
func (c *TTL) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes an entry. Safe to call for a missing key.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.recordEviction()
}

// Clear removes all entries.
func (c *TTL) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports hit/miss/eviction counters.
func (c *TTL) Stats() (hits, misses, evictions int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.hits, c.misses, c.evictions
}

// HitRate returns the cache hit rate as a percentage.
func (c *TTL) HitRate() float64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}

// Close stops the background cleanup goroutine.
func (c *TTL) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *TTL) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries.
func (c *TTL) cleanup() {
	now := time.Now()
	c.mu.Lock()
	removed := int64(0)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.statsMu.Lock()
		c.evictions += removed
		c.statsMu.Unlock()
	}
}

func (c *TTL) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *TTL) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

func (c *TTL) recordEviction() {
	c.statsMu.Lock()
	c.evictions++
	c.statsMu.Unlock()
}
