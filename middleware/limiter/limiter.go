// Package limiter bounds how many turns a session may start per window.
package limiter

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/middleware"
)

const maxIdleLimiters = 10000

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per session key. Each session may burst
// maxTurns and then refills at maxTurns per window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    rate.Limit
	burst    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a rate limiting middleware. A non-positive maxTurns
// or window disables limiting.
func NewRateLimiter(maxTurns int, window time.Duration) *RateLimiter {
	m := &RateLimiter{
		limiters: make(map[string]*entry),
		burst:    maxTurns,
		window:   window,
		now:      time.Now,
	}
	if maxTurns > 0 && window > 0 {
		m.every = rate.Every(window / time.Duration(maxTurns))
	}
	return m
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute checks the session's budget.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if !m.Allow(ctx.SessionKey) {
		return fmt.Errorf("%w: session %s exceeded %d turns per %s", errors.ErrRateLimited, ctx.SessionKey, m.burst, m.window)
	}
	return next(ctx)
}

// Allow consumes one turn for key.
func (m *RateLimiter) Allow(key string) bool {
	if m.burst <= 0 || m.window <= 0 {
		return true
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) >= maxIdleLimiters {
			m.prune(now)
		}
		e = &entry{limiter: rate.NewLimiter(m.every, m.burst)}
		m.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops limiters idle for a full window; they would be full again.
func (m *RateLimiter) prune(now time.Time) {
	for key, e := range m.limiters {
		if now.Sub(e.lastSeen) >= m.window {
			delete(m.limiters, key)
		}
	}
}

// Len returns the number of tracked sessions.
func (m *RateLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}
