package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	manager := NewManager(client, Config{Prefix: "rt:cache:", DefaultTTL: time.Minute}, true, zap.NewNop())
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.True(t, mr.Exists("rt:cache:k"), "keys carry the configured prefix")
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)

	require.NoError(t, manager.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("rt:cache:k"))

	mr.FastForward(time.Minute + time.Second)
	_, err := manager.Get(context.Background(), "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Empty(t, value)
}

func TestManager_JSONRoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	require.NoError(t, manager.SetJSON(ctx, "json", payload{Name: "maren", Value: 7}, time.Minute))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "json", &got))
	assert.Equal(t, payload{Name: "maren", Value: 7}, got)

	var missing payload
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, "nope", &missing)))
}

func TestManager_GetJSONCorrupt(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "bad", "{not json", time.Minute))
	var dest map[string]any
	err := manager.GetJSON(ctx, "bad", &dest)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, manager.Delete(ctx, "a", "b"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_DeletePrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, manager.Set(ctx, "archive:"+strconv.Itoa(i), "x", time.Minute))
	}
	require.NoError(t, manager.Set(ctx, "other", "keep", time.Minute))
	require.NoError(t, mr.Set("foreign:archive:z", "keep"))

	n, err := manager.DeletePrefix(ctx, "archive:")
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	v, err := manager.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "keep", v)
	assert.True(t, mr.Exists("foreign:archive:z"))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err = manager.DeletePrefix(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_SharedClientStaysOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := NewManager(client, DefaultConfig(), false, nil)
	require.NoError(t, manager.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}
