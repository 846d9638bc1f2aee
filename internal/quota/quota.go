// Package quota enforces a per-user daily budget of interpreter calls.
// Counters live in process memory only; a restart resets all budgets.
package quota

import (
	"sync"
	"time"
)

// DefaultDailyLimit is the number of interpreter calls a user gets per day.
const DefaultDailyLimit = 50

type record struct {
	count     int
	lastReset time.Time
}

// Limiter tracks request counts per (user, day). Safe for concurrent use.
type Limiter struct {
	mu    sync.Mutex
	users map[string]*record
	limit int
	now   func() time.Time
}

// New creates a Limiter with the given daily limit. Non-positive limits
// fall back to DefaultDailyLimit.
func New(dailyLimit int) *Limiter {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Limiter{
		users: make(map[string]*record),
		limit: dailyLimit,
		now:   time.Now,
	}
}

// Limit returns the configured daily limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// CanMakeRequest reports whether the user still has budget today.
func (l *Limiter) CanMakeRequest(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(userID).count < l.limit
}

// RecordRequest consumes one unit of the user's daily budget.
func (l *Limiter) RecordRequest(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(userID).count++
}

// Remaining returns how many requests the user has left today.
func (l *Limiter) Remaining(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	left := l.limit - l.recordLocked(userID).count
	if left < 0 {
		return 0
	}
	return left
}

// recordLocked returns the user's record, lazily resetting the counter
// when at least one day has elapsed since the last reset.
func (l *Limiter) recordLocked(userID string) *record {
	now := l.now()
	r, ok := l.users[userID]
	if !ok {
		r = &record{lastReset: now}
		l.users[userID] = r
		return r
	}
	if now.Sub(r.lastReset) >= 24*time.Hour {
		r.count = 0
		r.lastReset = now
	}
	return r
}
