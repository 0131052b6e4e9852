package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIPRateLimiter_BurstAndRefill(t *testing.T) {
	clock := &steppedClock{now: time.Date(2025, 4, 24, 0, 0, 0, 0, time.UTC)}
	l := NewIPRateLimiter(4, time.Minute, 2)
	l.now = clock.Now

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))

	assert.Equal(t, 15*time.Second, l.RetryAfter())
	clock.Advance(15 * time.Second)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
}

func TestIPRateLimiter_Defaults(t *testing.T) {
	l := NewIPRateLimiter(0, 0, 0)
	assert.Equal(t, 9*time.Second, l.RetryAfter())
	assert.Equal(t, 100, l.burst)
}

func TestIPRateLimiter_Evict(t *testing.T) {
	clock := &steppedClock{now: time.Now()}
	l := NewIPRateLimiter(10, time.Minute, 10)
	l.now = clock.Now

	l.Allow("a")
	clock.Advance(10 * time.Minute)
	l.Allow("b")

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Evict(5*time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestIPRateLimiter_RunJanitorStops(t *testing.T) {
	l := NewIPRateLimiter(10, time.Minute, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunJanitor(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
