package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/store/storetest"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, client := setupTestRedis(t)
		s := store.NewRedisStore(client, "rt-test:", 10)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := store.NewRedisStore(client, "", 0)
	ctx := context.Background()

	_, err := s.Conversation(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.IncrementPersonaStats(ctx, "ada", 2))

	assert.True(t, mr.Exists("roundtable:conversation"))
	assert.Equal(t, "1", mr.HGet("roundtable:stats:count", "ada"))
	assert.Equal(t, "2", mr.HGet("roundtable:stats:last", "ada"))
}

func TestRedisStore_CorruptDocument(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := store.NewRedisStore(client, "rt:", 3)
	require.NoError(t, mr.Set("rt:conversation", "{not json"))

	_, err := s.Update(context.Background(), 1, func(*store.Txn) error { return nil })
	assert.Error(t, err)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := store.NewRedisStore(client, "rt:", 3)
	mr.Close()

	ctx := context.Background()
	assert.Error(t, s.Ping(ctx))
	_, err := s.Conversation(ctx, 1)
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr, _ := setupTestRedis(t)

	client, err := store.NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	_, err = store.NewRedisClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
