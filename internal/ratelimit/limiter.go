// Package ratelimit implements fixed-window per-key rate limiting.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows up to limit events per key in each window
// ARCHITECTURAL DISCOVERY: Per-key state tracking with periodic cleanup prevents memory leaks
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	keys   map[string]*keyLimit
}

// keyLimit tracks one key's current window
type keyLimit struct {
	count       int
	windowStart time.Time
}

// New creates a limiter; limit <= 0 disables limiting
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		keys:   make(map[string]*keyLimit),
	}
}

// Allow records an event for key and reports whether it is within the limit
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	entry, exists := l.keys[key]
	if !exists {
		// FUNCTIONAL DISCOVERY: First event always allowed, initialize tracking
		l.keys[key] = &keyLimit{count: 1, windowStart: now}
		return true
	}

	// TECHNICAL DISCOVERY: Window resets exactly every period for consistent limiting
	if now.Sub(entry.windowStart) >= l.window {
		entry.count = 1
		entry.windowStart = now
		return true
	}

	if entry.count >= l.limit {
		return false
	}

	entry.count++
	return true
}

// Forget drops the state kept for key
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

// Cleanup removes keys idle for more than five windows
func (l *Limiter) Cleanup() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, entry := range l.keys {
		if now.Sub(entry.windowStart) > 5*l.window {
			delete(l.keys, key)
		}
	}
}

// Len reports how many keys are tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
