package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/internal/tlsutil"
)

// New creates a Store based on the configuration
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "store"), zap.String("type", cfg.Type))

	switch StoreType(cfg.Type) {
	case StoreTypeMemory:
		logger.Warn("using in-memory store, state is lost on restart")
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("redis store ready", zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.MaxAttempts), nil

	case StoreTypeGorm:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		s := NewGormStore(pool, cfg.MaxAttempts)
		if cfg.Database.AutoMigrate {
			if err := s.AutoMigrate(ctx); err != nil {
				_ = pool.Close()
				return nil, fmt.Errorf("failed to migrate tables: %w", err)
			}
		}
		logger.Info("database store ready", zap.String("driver", cfg.Database.Driver))
		return s, nil

	case StoreTypeMongo:
		s, err := NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout, cfg.MaxAttempts)
		if err != nil {
			return nil, err
		}
		logger.Info("mongo store ready", zap.String("database", cfg.Mongo.Database))
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// NewRedisClient creates and pings a Redis client
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ForAddr(cfg.Addr)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
