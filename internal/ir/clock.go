package ir

import (
	"sync/atomic"
	"time"
)

// Clock supplies created_at/updated_at/logged_at timestamps in epoch
// milliseconds. The cache uses the same clock for TTL expiry.
type Clock interface {
	NowMillis() int64
}

// MonotonicClock is a wall clock that never goes backwards within a process.
//
// If the system clock steps back (NTP adjustment), the last observed value is
// returned until wall time catches up.
//
// Thread-safety: safe for concurrent use (atomic compare-and-swap).
type MonotonicClock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewMonotonicClock returns a clock backed by time.Now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

// NowMillis returns the current time in epoch milliseconds, never less than
// any value previously returned.
func (c *MonotonicClock) NowMillis() int64 {
	now := c.now().UnixMilli()
	for {
		last := c.last.Load()
		if now <= last {
			return last
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Day is one day in milliseconds.
const Day int64 = 24 * 60 * 60 * 1000
