package db

import "fmt"

// RedisKeyBuilder centralizes Redis key naming so the cache and rate-limit
// namespaces stay consistent across the codebase.
type RedisKeyBuilder struct{}

// NewRedisKeyBuilder creates a new key builder
func NewRedisKeyBuilder() *RedisKeyBuilder {
	return &RedisKeyBuilder{}
}

// CacheDiagramKey returns the cache key for a project's diagram snapshot
func (b *RedisKeyBuilder) CacheDiagramKey(projectID string) string {
	return fmt.Sprintf("cache:diagram:%s", projectID)
}

// RateLimitUserKey returns the rate limit key for a user action
func (b *RedisKeyBuilder) RateLimitUserKey(userID, action string) string {
	return fmt.Sprintf("ratelimit:user:%s:%s", userID, action)
}
