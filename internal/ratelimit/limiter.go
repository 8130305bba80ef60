// Package ratelimit bounds the rate of sensitive actions per identity or
// originating address using a sliding time window.
package ratelimit

import (
	"sync"
	"time"
)

// maxKeys caps the size of the key table. When the cap is reached, keys
// whose every recorded attempt has aged out are evicted before admitting
// new ones. There is no background sweep; all pruning happens on the
// calling goroutine.
const maxKeys = 10000

type window struct {
	attempts []time.Time
}

// Limiter is a concurrency-safe sliding-window counter. Two simultaneous
// calls for the same key cannot both pass when only one slot remains.
type Limiter struct {
	mu   sync.Mutex
	keys map[string]*window
	now  func() time.Time
}

func New() *Limiter {
	return &Limiter{
		keys: make(map[string]*window),
		now:  time.Now,
	}
}

// Allow records an attempt for key and reports whether it is admitted:
// true when fewer than max attempts fall within the trailing window,
// false otherwise. Rejected attempts are not recorded.
func (l *Limiter) Allow(key string, max int, windowDur time.Duration) bool {
	if max <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-windowDur)

	w, ok := l.keys[key]
	if !ok {
		if len(l.keys) >= maxKeys {
			l.evictIdle(cutoff)
		}
		w = &window{}
		l.keys[key] = w
	}

	// Lazy prune: drop attempts that have fallen out of the window.
	live := w.attempts[:0]
	for _, t := range w.attempts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	w.attempts = live

	if len(w.attempts) >= max {
		return false
	}
	w.attempts = append(w.attempts, now)
	return true
}

// Remaining reports how many attempts the key has left in the window
// without recording one.
func (l *Limiter) Remaining(key string, max int, windowDur time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.keys[key]
	if !ok {
		return max
	}
	cutoff := l.now().Add(-windowDur)
	count := 0
	for _, t := range w.attempts {
		if t.After(cutoff) {
			count++
		}
	}
	if count >= max {
		return 0
	}
	return max - count
}

// evictIdle removes keys whose newest attempt predates the cutoff.
// Called with l.mu held.
func (l *Limiter) evictIdle(cutoff time.Time) {
	for key, w := range l.keys {
		idle := true
		for _, t := range w.attempts {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.keys, key)
		}
	}
}
