package signal

import (
	"sync"
	"time"

	"github.com/dkeye/pushd/internal/domain"
	"github.com/jonboulle/clockwork"
)

// RateLimiter is a sliding window over inbound messages, per session.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.SessionID][]time.Time
	limit    int
	interval time.Duration
	clock    clockwork.Clock
}

func NewRateLimiter(limit int, interval time.Duration, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		history:  make(map[domain.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
		clock:    clock,
	}
}

func (rl *RateLimiter) Allow(sid domain.SessionID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	rl.history[sid] = append(fresh, now)
	return true
}

// Forget drops the history of sid.
func (rl *RateLimiter) Forget(sid domain.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
