package api

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlforge/umlforge/internal/db"
)

func newTestRedis(t *testing.T) (*db.RedisDB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return db.NewRedisDBFromClient(client), mr
}

func TestDiagramCache_PutAndGet(t *testing.T) {
	rdb, _ := newTestRedis(t)
	cache := NewDiagramCache(rdb)
	ctx := context.Background()

	id := uuid.New()
	viewport := `{"zoom":1.5}`
	diagram := &Diagram{
		Id:       id,
		Name:     "Order Service",
		Nodes:    `[{"id":"n1"}]`,
		Edges:    `[]`,
		Viewport: &viewport,
		Version:  3,
	}
	require.NoError(t, cache.Put(ctx, diagram))

	cached := cache.Get(ctx, id.String())
	require.NotNil(t, cached)
	assert.Equal(t, "Order Service", cached.Name)
	assert.Equal(t, `[{"id":"n1"}]`, cached.Nodes)
	assert.Equal(t, int64(3), cached.Version)
	require.NotNil(t, cached.Viewport)
	assert.Equal(t, viewport, *cached.Viewport)
}

func TestDiagramCache_MissReturnsNil(t *testing.T) {
	rdb, _ := newTestRedis(t)
	cache := NewDiagramCache(rdb)

	assert.Nil(t, cache.Get(context.Background(), uuid.New().String()))
}

func TestDiagramCache_UnparseableEntryDiscarded(t *testing.T) {
	rdb, mr := newTestRedis(t)
	cache := NewDiagramCache(rdb)
	ctx := context.Background()

	id := uuid.New().String()
	key := db.NewRedisKeyBuilder().CacheDiagramKey(id)
	require.NoError(t, mr.Set(key, "not json"))

	assert.Nil(t, cache.Get(ctx, id))
	// The poisoned entry was deleted, not left to fail every read
	assert.False(t, mr.Exists(key))
}

func TestDiagramCache_Invalidate(t *testing.T) {
	rdb, mr := newTestRedis(t)
	cache := NewDiagramCache(rdb)
	ctx := context.Background()

	diagram := &Diagram{Id: uuid.New(), Name: "d", Nodes: "[]", Edges: "[]"}
	require.NoError(t, cache.Put(ctx, diagram))

	cache.Invalidate(ctx, diagram.Id.String())
	assert.Nil(t, cache.Get(ctx, diagram.Id.String()))
	assert.False(t, mr.Exists(db.NewRedisKeyBuilder().CacheDiagramKey(diagram.Id.String())))
}

func TestDiagramCache_EntriesExpire(t *testing.T) {
	rdb, mr := newTestRedis(t)
	cache := NewDiagramCache(rdb)
	ctx := context.Background()

	diagram := &Diagram{Id: uuid.New(), Name: "d", Nodes: "[]", Edges: "[]"}
	require.NoError(t, cache.Put(ctx, diagram))

	mr.FastForward(DiagramCacheTTL * 2)
	assert.Nil(t, cache.Get(ctx, diagram.Id.String()))
}

func TestDiagramCache_RedisDownDegradesToMiss(t *testing.T) {
	rdb, mr := newTestRedis(t)
	cache := NewDiagramCache(rdb)
	ctx := context.Background()

	diagram := &Diagram{Id: uuid.New(), Name: "d", Nodes: "[]", Edges: "[]"}
	require.NoError(t, cache.Put(ctx, diagram))

	mr.Close()
	assert.Nil(t, cache.Get(ctx, diagram.Id.String()))
	assert.Error(t, cache.Put(ctx, diagram))
}
