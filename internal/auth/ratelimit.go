// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/staynest/stayguard/internal/logging"
)

// RateLimitConfig holds request throttling configuration.
type RateLimitConfig struct {
	// Window is the sliding window duration.
	Window time.Duration `json:"window"`

	// MaxAttempts is the hard limit within the window.
	MaxAttempts int `json:"max_attempts"`

	// DelayThreshold is the attempt count at which progressive delay
	// starts, before the hard limit is reached.
	DelayThreshold int `json:"delay_threshold"`

	// DelayStep is the added delay per attempt above the threshold.
	DelayStep time.Duration `json:"delay_step"`

	// Buckets is the sliding window bucket count.
	Buckets int `json:"buckets"`
}

// DefaultRateLimitConfig returns the default throttle policy.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Window:         time.Minute,
		MaxAttempts:    20,
		DelayThreshold: 10,
		DelayStep:      200 * time.Millisecond,
		Buckets:        12,
	}
}

// CounterStore is the counter backend for the rate limiter. The
// in-memory implementation is only consistent within one process;
// horizontally scaled deployments must plug in a shared store.
type CounterStore interface {
	// Increment counts one attempt for the key and returns the total
	// within the window.
	Increment(key string) int64
	// Count returns the current total within the window.
	Count(key string) int64
	// Reset clears the key's counter.
	Reset(key string)
	// CleanupInactive drops idle counters, returning how many.
	CleanupInactive() int
}

// RateLimitVerdict is the outcome of one admission check.
type RateLimitVerdict struct {
	// Allowed is false once the hard limit is exceeded.
	Allowed bool
	// Delay is the progressive slow-down the caller must apply before
	// proceeding. Zero below the delay threshold.
	Delay time.Duration
	// RetryAfter is how long to wait once over the hard limit.
	RetryAfter time.Duration
	// Remaining is the attempt budget left in the window.
	Remaining int
}

// RateLimiter applies a sliding-window limit per actor-or-IP key with
// progressive delay before the hard limit.
type RateLimiter struct {
	config *RateLimitConfig
	store  CounterStore

	mu       sync.Mutex
	delayers map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter. store may be nil, in which
// case an in-memory sliding window store is used.
func NewRateLimiter(store CounterStore, config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if store == nil {
		store = NewSlidingWindowStore(config.Window, config.Buckets)
	}
	return &RateLimiter{
		config:   config,
		store:    store,
		delayers: make(map[string]*rate.Limiter),
	}
}

// Check admits or rejects one attempt for the key.
func (l *RateLimiter) Check(ctx context.Context, key string) RateLimitVerdict {
	count := l.store.Increment(key)

	if count > int64(l.config.MaxAttempts) {
		return RateLimitVerdict{
			Allowed:    false,
			RetryAfter: l.config.Window,
			Remaining:  0,
		}
	}

	verdict := RateLimitVerdict{
		Allowed:   true,
		Remaining: l.config.MaxAttempts - int(count),
	}

	// Progressive slow-down between the threshold and the hard limit.
	if over := int(count) - l.config.DelayThreshold; over > 0 {
		verdict.Delay = time.Duration(over) * l.config.DelayStep
	}
	return verdict
}

// Wait applies the verdict's progressive delay, honoring context
// cancellation.
func (l *RateLimiter) Wait(ctx context.Context, key string, verdict RateLimitVerdict) error {
	if verdict.Delay <= 0 {
		return nil
	}

	// A per-key token bucket smooths bursts that arrive mid-delay.
	l.mu.Lock()
	delayer, ok := l.delayers[key]
	if !ok {
		delayer = rate.NewLimiter(rate.Every(l.config.DelayStep), 1)
		l.delayers[key] = delayer
	}
	l.mu.Unlock()

	timer := time.NewTimer(verdict.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return delayer.Wait(ctx)
}

// ResetKey clears the counter after a verified successful
// authentication.
func (l *RateLimiter) ResetKey(key string) {
	l.store.Reset(key)
	l.mu.Lock()
	delete(l.delayers, key)
	l.mu.Unlock()
}

// Sweep drops idle counters. Run periodically.
func (l *RateLimiter) Sweep(ctx context.Context) {
	if removed := l.store.CleanupInactive(); removed > 0 {
		logging.Debug().Int("count", removed).Msg("removed idle rate limit counters")
	}
}

// slidingWindow is a bucketed circular-buffer counter. Increment is
// O(1); Count sums the buckets.
type slidingWindow struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

func newSlidingWindow(window time.Duration, numBuckets int) *slidingWindow {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &slidingWindow{
		buckets:    make([]int64, numBuckets),
		bucketSize: window / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: time.Now(),
	}
}

func (sw *slidingWindow) increment() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.advance()
	sw.buckets[sw.current]++
	return sw.sum()
}

func (sw *slidingWindow) count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.advance()
	return sw.sum()
}

// sum totals the buckets. Must be called with the lock held.
func (sw *slidingWindow) sum() int64 {
	var total int64
	for _, c := range sw.buckets {
		total += c
	}
	return total
}

// advance expires elapsed buckets. Must be called with the lock held.
func (sw *slidingWindow) advance() {
	now := time.Now()
	elapsed := int(now.Sub(sw.lastUpdate) / sw.bucketSize)
	if elapsed <= 0 {
		return
	}

	if elapsed >= sw.numBuckets {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			sw.current = (sw.current + 1) % sw.numBuckets
			sw.buckets[sw.current] = 0
		}
	}
	sw.lastUpdate = now
}

// SlidingWindowStore is the in-memory CounterStore: one sliding window
// per key. Only consistent within a single process.
type SlidingWindowStore struct {
	mu         sync.RWMutex
	counters   map[string]*slidingWindow
	window     time.Duration
	numBuckets int
}

// NewSlidingWindowStore creates an in-memory counter store.
func NewSlidingWindowStore(window time.Duration, numBuckets int) *SlidingWindowStore {
	return &SlidingWindowStore{
		counters:   make(map[string]*slidingWindow),
		window:     window,
		numBuckets: numBuckets,
	}
}

// Increment counts one attempt and returns the window total.
func (s *SlidingWindowStore) Increment(key string) int64 {
	s.mu.Lock()
	counter, ok := s.counters[key]
	if !ok {
		counter = newSlidingWindow(s.window, s.numBuckets)
		s.counters[key] = counter
	}
	s.mu.Unlock()
	return counter.increment()
}

// Count returns the window total for the key.
func (s *SlidingWindowStore) Count(key string) int64 {
	s.mu.RLock()
	counter, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return counter.count()
}

// Reset clears the key's counter.
func (s *SlidingWindowStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
}

// CleanupInactive removes counters with no activity in the window.
func (s *SlidingWindowStore) CleanupInactive() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, counter := range s.counters {
		if counter.count() == 0 {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}
