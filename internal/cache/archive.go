package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🗃️ 归档读缓存
// =============================================================================

const archiveKeyPrefix = "archive:"

// HitRecorder 记录缓存命中情况，*metrics.Collector 满足该接口
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// ArchiveStore 在 store.Store 之上为 Archive 增加读穿缓存。
// 归档记录写入后不可变，只有 Wipe 会删除它们，因此 Wipe 成功后清空缓存。
// 缓存故障只记录日志，不影响读取结果。
type ArchiveStore struct {
	store.Store
	cache  *Manager
	ttl    time.Duration
	hits   HitRecorder
	logger *zap.Logger
}

// NewArchiveStore 包装 next，hits 可以为 nil
func NewArchiveStore(next store.Store, cache *Manager, ttl time.Duration, hits HitRecorder, logger *zap.Logger) *ArchiveStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveStore{
		Store:  next,
		cache:  cache,
		ttl:    ttl,
		hits:   hits,
		logger: logger.With(zap.String("component", "archive_cache")),
	}
}

// Archive 先查缓存，未命中时回源并回填
func (s *ArchiveStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	var rec types.ArchiveRecord
	err := s.cache.GetJSON(ctx, archiveKeyPrefix+id, &rec)
	switch {
	case err == nil:
		s.record(true)
		return &rec, nil
	case IsCacheMiss(err):
		s.record(false)
	default:
		s.record(false)
		s.logger.Warn("archive cache read failed", zap.String("archive_id", id), zap.Error(err))
	}

	got, err := s.Store.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, archiveKeyPrefix+id, got, s.ttl); err != nil {
		s.logger.Warn("archive cache fill failed", zap.String("archive_id", id), zap.Error(err))
	}
	return got, nil
}

// Wipe 删除全部归档后使缓存失效
func (s *ArchiveStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	if err := s.Store.Wipe(ctx, fresh); err != nil {
		return err
	}
	n, err := s.cache.DeletePrefix(ctx, archiveKeyPrefix)
	if err != nil {
		s.logger.Warn("archive cache invalidation failed", zap.Error(err))
		return nil
	}
	s.logger.Debug("archive cache invalidated", zap.Int("keys", n))
	return nil
}

// Close 关闭缓存与底层存储
func (s *ArchiveStore) Close() error {
	cacheErr := s.cache.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return cacheErr
}

func (s *ArchiveStore) record(hit bool) {
	if s.hits == nil {
		return
	}
	if hit {
		s.hits.RecordCacheHit("archive")
	} else {
		s.hits.RecordCacheMiss("archive")
	}
}
