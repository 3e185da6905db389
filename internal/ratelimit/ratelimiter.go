// Package ratelimit provides a per-identity sliding-window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is used to enforce per-identity rate limits.
type Limiter interface {
	Allow(identity string) bool
}

// NoopLimiter allows all requests (used in tests and when limiting is disabled).
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(identity string) bool {
	return true
}

// SlidingWindow is an in-process sliding-window limiter. It keeps, per
// identity, the timestamps of recent requests; a request is rejected (and
// not recorded) when the window already holds `limit` entries.
type SlidingWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewSlidingWindow creates a limiter allowing `limit` requests per identity
// within `window`.
func NewSlidingWindow(window time.Duration, limit int) *SlidingWindow {
	return NewSlidingWindowWithClock(window, limit, time.Now)
}

// NewSlidingWindowWithClock creates a limiter with a custom clock (for testing).
func NewSlidingWindowWithClock(window time.Duration, limit int, now func() time.Time) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		limit:  limit,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow reports whether a request from identity may proceed, recording it
// when allowed.
func (l *SlidingWindow) Allow(identity string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[identity][:0]
	for _, t := range l.hits[identity] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.hits[identity] = recent
		return false
	}

	l.hits[identity] = append(recent, now)
	return true
}

// Prune drops identities whose every recorded request has left the window.
// Called periodically so idle identities do not accumulate forever.
func (l *SlidingWindow) Prune() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, times := range l.hits {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.hits, id)
		}
	}
}
