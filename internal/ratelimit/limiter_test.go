package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clock.now
	return l, clock
}

func TestAllow_WithinLimit(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("user-1", 5, time.Second), "attempt %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("user-1", 5, time.Second), "6th attempt should be rejected")
}

func TestAllow_ExactlyFiveOfSix(t *testing.T) {
	l, clock := newTestLimiter()

	allowed := 0
	for i := 0; i < 6; i++ {
		if l.Allow("key", 5, time.Second) {
			allowed++
		}
		clock.advance(100 * time.Millisecond) // all six fall inside the window
	}
	assert.Equal(t, 5, allowed)
}

func TestAllow_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("key", 5, time.Second))
	}
	require.False(t, l.Allow("key", 5, time.Second))

	// After the window passes, attempts are pruned lazily and slots free up.
	clock.advance(1100 * time.Millisecond)
	assert.True(t, l.Allow("key", 5, time.Second))
}

func TestAllow_RejectedAttemptsNotRecorded(t *testing.T) {
	l, clock := newTestLimiter()

	require.True(t, l.Allow("key", 1, time.Second))
	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("key", 1, time.Second))
	}

	// Only the single admitted attempt occupies the window; once it ages
	// out the key is clean again regardless of how many rejections followed.
	clock.advance(1100 * time.Millisecond)
	assert.True(t, l.Allow("key", 1, time.Second))
}

func TestAllow_IndependentKeys(t *testing.T) {
	l, _ := newTestLimiter()

	require.True(t, l.Allow("a", 1, time.Second))
	require.False(t, l.Allow("a", 1, time.Second))
	assert.True(t, l.Allow("b", 1, time.Second))
}

func TestAllow_ConcurrentSameKey(t *testing.T) {
	l := New()

	const max = 5
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", max, time.Minute) {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(max), allowed, "exactly max attempts may pass under contention")
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter()

	assert.Equal(t, 3, l.Remaining("key", 3, time.Second))
	l.Allow("key", 3, time.Second)
	l.Allow("key", 3, time.Second)
	assert.Equal(t, 1, l.Remaining("key", 3, time.Second))
}

func TestAllow_ZeroMaxAlwaysRejects(t *testing.T) {
	l, _ := newTestLimiter()
	assert.False(t, l.Allow("key", 0, time.Second))
}
