// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
)

// RequestSample is one observed request, grouped by endpoint class so
// cardinality stays bounded no matter what paths the host app serves.
type RequestSample struct {
	Class      models.EndpointClass
	Method     string
	DurationMS int64
	StatusCode int
	Timestamp  time.Time
}

// PerformanceMonitor keeps a sliding window of request samples for the
// admin stats endpoint. Prometheus histograms cover alerting; this
// exists for ad-hoc inspection without a metrics stack.
type PerformanceMonitor struct {
	mu         sync.RWMutex
	samples    []RequestSample
	maxSamples int

	slowThreshold time.Duration
}

// ClassStats contains aggregated latency statistics for one endpoint
// class over the sample window.
type ClassStats struct {
	Class        models.EndpointClass `json:"class"`
	RequestCount int64                `json:"request_count"`
	AvgDuration  float64              `json:"avg_duration_ms"`
	P50Duration  int64                `json:"p50_ms"`
	P95Duration  int64                `json:"p95_ms"`
	P99Duration  int64                `json:"p99_ms"`
	MinDuration  int64                `json:"min_ms"`
	MaxDuration  int64                `json:"max_ms"`
}

// NewPerformanceMonitor creates a monitor holding at most maxSamples.
func NewPerformanceMonitor(maxSamples int, slowThreshold time.Duration) *PerformanceMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	if slowThreshold <= 0 {
		slowThreshold = time.Second
	}
	return &PerformanceMonitor{
		samples:       make([]RequestSample, 0, maxSamples),
		maxSamples:    maxSamples,
		slowThreshold: slowThreshold,
	}
}

// record adds a sample to the sliding window.
func (pm *PerformanceMonitor) record(sample RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples = append(pm.samples, sample)
	if len(pm.samples) > pm.maxSamples {
		pm.samples = pm.samples[1:]
	}
}

// Stats returns aggregated statistics per endpoint class, busiest
// class first.
func (pm *PerformanceMonitor) Stats() []ClassStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	byClass := make(map[models.EndpointClass][]int64)
	for _, s := range pm.samples {
		byClass[s.Class] = append(byClass[s.Class], s.DurationMS)
	}

	stats := make([]ClassStats, 0, len(byClass))
	for class, durations := range byClass {
		sorted := make([]int64, len(durations))
		copy(sorted, durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, d := range sorted {
			sum += d
		}

		stats = append(stats, ClassStats{
			Class:        class,
			RequestCount: int64(len(sorted)),
			AvgDuration:  float64(sum) / float64(len(sorted)),
			P50Duration:  percentile(sorted, 0.50),
			P95Duration:  percentile(sorted, 0.95),
			P99Duration:  percentile(sorted, 0.99),
			MinDuration:  sorted[0],
			MaxDuration:  sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].RequestCount > stats[j].RequestCount
	})
	return stats
}

// Recent returns the most recent n samples, oldest first.
func (pm *PerformanceMonitor) Recent(n int) []RequestSample {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if n > len(pm.samples) {
		n = len(pm.samples)
	}
	recent := make([]RequestSample, n)
	copy(recent, pm.samples[len(pm.samples)-n:])
	return recent
}

// Middleware samples every request and logs slow ones. Sits outside
// the guard so it observes denial latency too.
func (pm *PerformanceMonitor) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(wrapper, r)

		duration := time.Since(start)
		pm.record(RequestSample{
			Class:      models.ClassifyPath(r.URL.Path),
			Method:     r.Method,
			DurationMS: duration.Milliseconds(),
			StatusCode: wrapper.statusCode,
			Timestamp:  time.Now(),
		})

		if duration > pm.slowThreshold {
			logging.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int64("duration_ms", duration.Milliseconds()).
				Msg("Slow request detected")
		}
	}
}

// percentile calculates the percentile value from a sorted slice
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
