// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterRegistry holds one token bucket per identity. Buckets are
// created lazily at the identity's current adaptive limit and evicted
// after an idle period so the registry stays bounded.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*identityLimiter
	idleTTL  time.Duration
	done     chan struct{}
	closeOne sync.Once
}

type identityLimiter struct {
	limiter  *rate.Limiter
	perMin   int
	lastSeen time.Time
}

// NewLimiterRegistry creates a registry that evicts buckets idle longer
// than idleTTL.
func NewLimiterRegistry(idleTTL time.Duration) *LimiterRegistry {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	r := &LimiterRegistry{
		limiters: make(map[string]*identityLimiter),
		idleTTL:  idleTTL,
		done:     make(chan struct{}),
	}
	go r.evictLoop()
	return r
}

// Allow consumes one token from the identity's bucket at the given
// requests-per-minute limit. A changed limit rebuilds the bucket, so
// adaptive tightening takes effect on the next request.
func (r *LimiterRegistry) Allow(identityKey string, perMin int) bool {
	if perMin <= 0 {
		return true // uncapped
	}

	r.mu.Lock()
	il, ok := r.limiters[identityKey]
	if !ok || il.perMin != perMin {
		il = &identityLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
			perMin:  perMin,
		}
		r.limiters[identityKey] = il
	}
	il.lastSeen = time.Now()
	limiter := il.limiter
	r.mu.Unlock()

	return limiter.Allow()
}

func (r *LimiterRegistry) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.idleTTL)
			r.mu.Lock()
			for key, il := range r.limiters {
				if il.lastSeen.Before(cutoff) {
					delete(r.limiters, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Size returns the number of live buckets.
func (r *LimiterRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Close stops the eviction loop.
func (r *LimiterRegistry) Close() {
	r.closeOne.Do(func() { close(r.done) })
}
