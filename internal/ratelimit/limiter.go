// Package ratelimit implements the per-caller token-bucket limiter
// guarding the checkout endpoints.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per caller identity, evicting idle
// buckets so memory doesn't grow unbounded under high caller churn.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rps       rate.Limit
	burst     int
	idleAfter time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// New constructs a Limiter allowing ratePerMinute requests per caller,
// with the given burst allowance.
func New(ratePerMinute, burst int) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		rps:       rate.Limit(float64(ratePerMinute) / 60.0),
		burst:     burst,
		idleAfter: 10 * time.Minute,
	}
}

// Allow reports whether callerID may proceed right now, consuming a
// token from its bucket if so.
func (l *Limiter) Allow(callerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[callerID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[callerID] = b
	}
	b.lastSeenAt = time.Now()

	return b.limiter.Allow()
}

// EvictIdle drops buckets that haven't been touched recently. Intended
// to be called periodically from a background goroutine so a caller
// that stops sending requests doesn't pin memory forever.
func (l *Limiter) EvictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.idleAfter)
	evicted := 0
	for callerID, b := range l.buckets {
		if b.lastSeenAt.Before(cutoff) {
			delete(l.buckets, callerID)
			evicted++
		}
	}
	return evicted
}

// RunEvictionLoop periodically evicts idle buckets until stop is
// closed.
func (l *Limiter) RunEvictionLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.EvictIdle()
		}
	}
}
