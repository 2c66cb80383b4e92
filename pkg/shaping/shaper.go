// Package shaping paces message producers to a target byte rate.
package shaping

import (
    "sync"
    "time"
)

// Shaper is a token bucket denominated in bytes. It refills continuously at
// the configured rate and absorbs bursts up to the bucket size. Safe for
// concurrent use by multiple producer goroutines.
type Shaper struct {
    mu     sync.Mutex
    rate   int64 // bytes per second
    burst  int64 // bucket size in bytes
    tokens int64
    last   time.Time
}

// NewShaper creates a shaper refilled at bytesPerSec. A non-positive burst
// defaults to one second of rate, so a freshly created shaper lets the
// first second's worth of traffic through unthrottled.
func NewShaper(bytesPerSec, burst int64) *Shaper {
    if bytesPerSec <= 0 {
        bytesPerSec = 1
    }
    if burst <= 0 {
        burst = bytesPerSec
    }
    return &Shaper{rate: bytesPerSec, burst: burst, tokens: burst, last: time.Now()}
}

// Rate returns the configured byte rate.
func (s *Shaper) Rate() int64 { return s.rate }

// Allow tries to consume n bytes of budget. When the budget is short it
// reports false and how long the caller must wait for enough tokens to
// accumulate. Messages larger than the burst are metered at the burst
// size so oversized payloads throttle instead of deadlocking.
func (s *Shaper) Allow(n int64) (ok bool, wait time.Duration) {
    if n > s.burst {
        n = s.burst
    }
    s.mu.Lock(); defer s.mu.Unlock()
    s.refillLocked(time.Now())
    if s.tokens >= n {
        s.tokens -= n
        return true, 0
    }
    short := n - s.tokens
    return false, time.Duration(short * int64(time.Second) / s.rate)
}

// Throttle blocks until n bytes of budget are available, then consumes
// them. This is the producer-side entry point: call it before each send
// with the payload size.
func (s *Shaper) Throttle(n int64) {
    for {
        ok, wait := s.Allow(n)
        if ok {
            return
        }
        time.Sleep(wait)
    }
}

// refillLocked credits tokens for the time elapsed since the last refill.
func (s *Shaper) refillLocked(now time.Time) {
    dt := now.Sub(s.last)
    if dt <= 0 {
        return
    }
    add := s.rate * dt.Nanoseconds() / int64(time.Second)
    if add == 0 {
        return
    }
    s.tokens += add
    if s.tokens > s.burst {
        s.tokens = s.burst
    }
    s.last = now
}
