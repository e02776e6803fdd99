package api

import (
	"sync"
	"time"
)

const rateLimiterShardCount = 32

type rateLimiterShard struct {
	mu           sync.Mutex
	lastAccepted map[string]time.Time
}

// UpdateRateLimiter throttles diagram updates per session. It records the
// timestamp of the last accepted update only: a rejected attempt does not
// reset the cadence, so a burst of rapid sends collapses to a fixed-cadence
// stream instead of being pushed back indefinitely.
type UpdateRateLimiter struct {
	shards [rateLimiterShardCount]*rateLimiterShard
	now    func() time.Time
}

// NewUpdateRateLimiter creates a new rate limiter
func NewUpdateRateLimiter() *UpdateRateLimiter {
	l := &UpdateRateLimiter{now: time.Now}
	for i := range l.shards {
		l.shards[i] = &rateLimiterShard{lastAccepted: make(map[string]time.Time)}
	}
	return l
}

func (l *UpdateRateLimiter) shard(sessionID string) *rateLimiterShard {
	return l.shards[shardIndex(sessionID)%rateLimiterShardCount]
}

// Allow reports whether an update from the session may proceed. When it
// returns true the acceptance timestamp is advanced; when it returns false
// the timestamp is left untouched.
func (l *UpdateRateLimiter) Allow(sessionID string, minInterval time.Duration) bool {
	if sessionID == "" {
		return false
	}

	shard := l.shard(sessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := l.now()
	last, ok := shard.lastAccepted[sessionID]
	if !ok || now.Sub(last) >= minInterval {
		shard.lastAccepted[sessionID] = now
		return true
	}
	return false
}

// Forget drops the session's rate-limit state (disconnect or reaper cleanup)
func (l *UpdateRateLimiter) Forget(sessionID string) {
	shard := l.shard(sessionID)
	shard.mu.Lock()
	delete(shard.lastAccepted, sessionID)
	shard.mu.Unlock()
}
