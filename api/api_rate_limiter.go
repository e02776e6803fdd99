package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/umlforge/umlforge/internal/db"
	"github.com/umlforge/umlforge/internal/slogging"
)

// APIRateLimiter enforces sliding-window limits on expensive REST endpoints
// using a Redis sorted set per caller and action. Each request records a
// timestamped member; the window is trimmed and counted in one pipeline.
type APIRateLimiter struct {
	redis      *db.RedisDB
	keyBuilder *db.RedisKeyBuilder

	limit  int
	window time.Duration
}

// NewAPIRateLimiter creates a limiter allowing limit requests per window
func NewAPIRateLimiter(redisDB *db.RedisDB, limit int, window time.Duration) *APIRateLimiter {
	return &APIRateLimiter{
		redis:      redisDB,
		keyBuilder: db.NewRedisKeyBuilder(),
		limit:      limit,
		window:     window,
	}
}

// Allow reports whether the caller may perform the action now. Redis
// outages fail open so a degraded cache never blocks the API.
func (l *APIRateLimiter) Allow(ctx context.Context, callerID, action string) (bool, error) {
	key := l.keyBuilder.RateLimitUserKey(callerID, action)
	now := time.Now()
	windowStart := now.Add(-l.window)

	client := l.redis.GetClient()
	pipe := client.Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.New().String()),
	})
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		slogging.Get().Error("Rate limit pipeline failed for %s: %v", key, err)
		return true, err
	}

	if countCmd.Val() >= int64(l.limit) {
		slogging.Get().Warn("Rate limit exceeded for %s: %d/%d in %s", key, countCmd.Val(), l.limit, l.window)
		return false, nil
	}
	return true, nil
}

// Remaining returns how many requests are left in the current window
func (l *APIRateLimiter) Remaining(ctx context.Context, callerID, action string) (int, error) {
	key := l.keyBuilder.RateLimitUserKey(callerID, action)
	windowStart := time.Now().Add(-l.window)

	client := l.redis.GetClient()
	pipe := client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.limit, err
	}

	remaining := l.limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
