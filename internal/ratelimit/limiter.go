// Package ratelimit throttles MCP tool calls with token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrLimited is wrapped by the error CheckLimit returns for a throttled call.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a single token bucket. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   int
	tokens  float64
	last    time.Time
	nowFunc func() time.Time
}

// NewLimiter creates a full bucket refilled at rate tokens per second.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:    rate,
		burst:   burst,
		tokens:  float64(burst),
		nowFunc: time.Now,
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	ok, _ := l.reserve()
	return ok
}

// reserve takes a token, or reports how long until one is available. The wait
// is zero when the bucket never refills.
func (l *Limiter) reserve() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if !l.last.IsZero() {
		if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
			l.tokens = math.Min(float64(l.burst), l.tokens+l.rate*elapsed)
		}
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 0
	}
	wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool limits. Runs are the expensive
// call, so they get the tightest bucket.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"sfcsim_run":       NewLimiter(6.0/60.0, 2), // 6/minute, burst 2
		"sfcsim_variables": NewLimiter(1.0, 10),     // 60/minute, burst 10
		"sfcsim_runs":      NewLimiter(1.0, 10),     // 60/minute, burst 10
		"sfcsim_trace":     NewLimiter(0.5, 5),      // 30/minute, burst 5
		"sfcsim_graph":     NewLimiter(1.0, 10),     // 60/minute, burst 10
		"sfcsim_export":    NewLimiter(5.0/60.0, 2), // 5/minute, burst 2
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter are never
// throttled.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	l, ok := limiters[toolName]
	if !ok {
		return nil
	}
	allowed, wait := l.reserve()
	if allowed {
		return nil
	}
	if wait > 0 {
		return fmt.Errorf("%w for %s, retry in %s", ErrLimited, toolName, wait.Round(time.Second))
	}
	return fmt.Errorf("%w for %s", ErrLimited, toolName)
}
