// Package ratelimit implements the per-IP fixed-window counter guarding the
// admin HTTP surface.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is one client's counter for the current window.
type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-key rate limiter. Buckets are created lazily and
// replaced atomically once their window has elapsed.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	max     int
	now     func() time.Time
}

// New creates a limiter allowing max requests per key within each window.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// Allow reports whether a request for the given key fits in the current window
// and counts it when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || b.resetAt.Before(now) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}
