package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umlforge/umlforge/internal/db"
	"github.com/umlforge/umlforge/internal/slogging"
)

// DiagramCacheTTL bounds how stale a cached snapshot can get if an
// invalidation is lost.
const DiagramCacheTTL = 2 * time.Minute

// DiagramCache is a write-through Redis cache of diagram snapshots. The sync
// path serves read-mostly traffic (sync requests after reconnect) from the
// cache and refreshes it on every committed update.
type DiagramCache struct {
	redis   *db.RedisDB
	builder *db.RedisKeyBuilder
}

// NewDiagramCache creates a new diagram cache
func NewDiagramCache(redis *db.RedisDB) *DiagramCache {
	return &DiagramCache{
		redis:   redis,
		builder: db.NewRedisKeyBuilder(),
	}
}

// Get returns the cached snapshot or nil on a miss. Cache errors degrade to
// a miss; the store remains the source of truth.
func (c *DiagramCache) Get(ctx context.Context, projectID string) *Diagram {
	logger := slogging.Get()
	key := c.builder.CacheDiagramKey(projectID)

	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Diagram cache read failed for %s: %v", projectID, err)
		}
		return nil
	}

	var d Diagram
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		logger.Warn("Discarding unparseable cached diagram %s: %v", projectID, err)
		_ = c.redis.Del(ctx, key)
		return nil
	}
	return &d
}

// Put caches a snapshot with the standard TTL
func (c *DiagramCache) Put(ctx context.Context, d *Diagram) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal diagram for cache: %w", err)
	}
	key := c.builder.CacheDiagramKey(d.Id.String())
	if err := c.redis.Set(ctx, key, data, DiagramCacheTTL); err != nil {
		return fmt.Errorf("failed to cache diagram %s: %w", d.Id, err)
	}
	return nil
}

// Invalidate drops the cached snapshot for a project
func (c *DiagramCache) Invalidate(ctx context.Context, projectID string) {
	if err := c.redis.Del(ctx, c.builder.CacheDiagramKey(projectID)); err != nil {
		slogging.Get().Warn("Failed to invalidate diagram cache for %s: %v", projectID, err)
	}
}
