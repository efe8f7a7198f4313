package relay

import (
	"sync"
	"time"
)

// RateLimit bounds how many data messages one connection may send: Burst
// messages, refilled evenly over Interval. A zero Burst disables limiting.
type RateLimit struct {
	Burst    int
	Interval time.Duration
}

// tokenBucket throttles inbound data messages of a single session.
type tokenBucket struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

func newTokenBucket(limit RateLimit, now func() time.Time) *tokenBucket {
	if limit.Burst <= 0 {
		return nil
	}
	if limit.Interval <= 0 {
		limit.Interval = time.Second
	}
	if now == nil {
		now = time.Now
	}

	capacity := float64(limit.Burst)
	return &tokenBucket{
		tokens:    capacity,
		capacity:  capacity,
		rate:      capacity / limit.Interval.Seconds(),
		lastCheck: now(),
		now:       now,
	}
}

// allow takes one token. A nil bucket always allows.
func (b *tokenBucket) allow() bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
