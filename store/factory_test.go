package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/store"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := store.New(ctx, config.StoreConfig{Type: "memory"}, nil)
		require.NoError(t, err)
		assert.IsType(t, &store.MemoryStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr, _ := setupTestRedis(t)
		cfg := config.DefaultStoreConfig()
		cfg.Type = "redis"
		cfg.Redis.Addr = mr.Addr()

		s, err := store.New(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &store.RedisStore{}, s)
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("database sqlite", func(t *testing.T) {
		cfg := config.DefaultStoreConfig()
		cfg.Type = "database"
		cfg.Database.Name = filepath.Join(t.TempDir(), "factory.db")

		s, err := store.New(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &store.GormStore{}, s)

		state, err := s.Conversation(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), state.CreatedAt)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := store.New(ctx, config.StoreConfig{Type: "etcd"}, nil)
		assert.Error(t, err)
	})
}
