package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🗄️ 归档管理
// =============================================================================

// noPreview 是既无预览也无消息时列表项使用的占位文本
const noPreview = "No preview"

// summaryPreviewRunes 是列表项回退预览的截断长度
const summaryPreviewRunes = 100

// ArchiveSettings 归档相关配置
type ArchiveSettings struct {
	Interval        time.Duration
	MinMessages     int
	SnapshotSpacing time.Duration
	ListLimit       int
	PreviewLength   int
}

// SnapshotStatus 手动快照结果
type SnapshotStatus string

const (
	SnapshotSaved            SnapshotStatus = "saved"
	SnapshotTooSoon          SnapshotStatus = "too_soon"
	SnapshotNothingToArchive SnapshotStatus = "nothing_to_archive"
)

// SnapshotResult 是 Snapshot 的返回值
type SnapshotResult struct {
	Status SnapshotStatus
	ID     string
	// Remaining 仅在 TooSoon 时有效
	Remaining time.Duration
}

// ResetResult 是 Reset 的返回值
type ResetResult struct {
	Archived  bool
	ArchiveID string
	State     *types.ConversationState
}

// Archiver 负责定时归档、重置归档、手动快照与归档查询
type Archiver struct {
	store    store.Store
	settings ArchiveSettings
	metrics  Metrics
	logger   *zap.Logger
}

// NewArchiver 创建归档管理器
func NewArchiver(st store.Store, settings ArchiveSettings, metrics Metrics, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Archiver{
		store:    st,
		settings: settings,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "archive_manager")),
	}
}

// MaybeSnapshot 在间隔已到且消息数足够时写入一条定时归档。
// 未到期时返回 (nil, nil)。实时消息不受影响。
func (a *Archiver) MaybeSnapshot(ctx context.Context, now time.Time) (*types.ArchiveRecord, error) {
	ctx, span := tracer.Start(ctx, "conversation.maybe_snapshot")
	defer span.End()

	nowMs := now.UnixMilli()
	intervalMs := a.settings.Interval.Milliseconds()

	var rec *types.ArchiveRecord
	_, err := a.store.Update(ctx, nowMs, func(txn *store.Txn) error {
		rec = nil
		st := txn.State
		if nowMs-st.LastArchiveTime < intervalMs || len(st.Messages) < a.settings.MinMessages {
			return nil
		}
		stored := txn.AppendArchive(a.record(st, nowMs, types.ArchiveTriggerScheduled))
		st.LastArchiveTime = nowMs
		txn.Save()
		rec = &stored
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storeError(err)
	}
	if rec != nil {
		a.metrics.RecordArchive(string(types.ArchiveTriggerScheduled))
		span.SetAttributes(attribute.String("archive.id", rec.ID))
		a.logger.Info("scheduled archive saved",
			zap.String("archive_id", rec.ID),
			zap.Int("messages", len(rec.Messages)))
	}
	return rec, nil
}

// Reset 在同一事务中归档当前消息（若有）并把对话替换为全新状态。
// 进行中的回合会在提交时发现租约丢失。
func (a *Archiver) Reset(ctx context.Context, now time.Time) (*ResetResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.reset")
	defer span.End()

	nowMs := now.UnixMilli()
	var result *ResetResult
	_, err := a.store.Update(ctx, nowMs, func(txn *store.Txn) error {
		result = &ResetResult{}
		if len(txn.State.Messages) > 0 {
			stored := txn.AppendArchive(a.record(txn.State, nowMs, types.ArchiveTriggerReset))
			result.Archived = true
			result.ArchiveID = stored.ID
		}
		fresh := types.NewConversationState(nowMs)
		txn.Replace(fresh)
		result.State = fresh.Clone()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storeError(err)
	}

	if result.Archived {
		a.metrics.RecordArchive(string(types.ArchiveTriggerReset))
	}
	a.logger.Info("conversation reset",
		zap.Bool("archived", result.Archived),
		zap.String("archive_id", result.ArchiveID))
	return result, nil
}

// Snapshot 执行手动快照，受 SnapshotSpacing 限制
func (a *Archiver) Snapshot(ctx context.Context, now time.Time) (*SnapshotResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.snapshot")
	defer span.End()

	nowMs := now.UnixMilli()
	spacingMs := a.settings.SnapshotSpacing.Milliseconds()

	var result *SnapshotResult
	_, err := a.store.Update(ctx, nowMs, func(txn *store.Txn) error {
		st := txn.State
		if st.LastMessageTime == 0 || len(st.Messages) == 0 {
			result = &SnapshotResult{Status: SnapshotNothingToArchive}
			return nil
		}
		if elapsed := nowMs - st.LastArchiveTime; elapsed < spacingMs {
			result = &SnapshotResult{
				Status:    SnapshotTooSoon,
				Remaining: time.Duration(spacingMs-elapsed) * time.Millisecond,
			}
			return nil
		}
		stored := txn.AppendArchive(a.record(st, nowMs, types.ArchiveTriggerManual))
		st.LastArchiveTime = nowMs
		txn.Save()
		result = &SnapshotResult{Status: SnapshotSaved, ID: stored.ID}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storeError(err)
	}

	span.SetAttributes(attribute.String("snapshot.status", string(result.Status)))
	if result.Status == SnapshotSaved {
		a.metrics.RecordArchive(string(types.ArchiveTriggerManual))
		a.logger.Info("manual snapshot saved", zap.String("archive_id", result.ID))
	}
	return result, nil
}

// Get 按 id 返回归档记录
func (a *Archiver) Get(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	if id == "" {
		return nil, types.NewInvalidRequestError("archive id is required")
	}
	rec, err := a.store.Archive(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return rec, nil
}

// List 按归档时间倒序返回归档摘要
func (a *Archiver) List(ctx context.Context) ([]types.ArchiveSummary, error) {
	records, err := a.store.ListArchives(ctx, a.settings.ListLimit)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]types.ArchiveSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, Summarize(rec))
	}
	return out, nil
}

// Summarize 将归档记录转换为列表项
func Summarize(rec types.ArchiveRecord) types.ArchiveSummary {
	count := rec.MessageCount
	if count == 0 {
		count = int64(len(rec.Messages))
	}
	preview := rec.Preview
	if preview == "" && len(rec.Messages) > 0 {
		preview = truncateRunes(rec.Messages[0].Content, summaryPreviewRunes)
	}
	if preview == "" {
		preview = noPreview
	}
	return types.ArchiveSummary{
		ID:           rec.ID,
		MessageCount: count,
		ArchivedAt:   rec.ArchivedAt,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		Preview:      preview,
		Trigger:      rec.Trigger,
	}
}

func (a *Archiver) record(st *types.ConversationState, nowMs int64, trigger types.ArchiveTrigger) types.ArchiveRecord {
	rec := types.ArchiveRecord{
		Messages:     st.Messages,
		MessageCount: st.MessageCount,
		ArchivedAt:   nowMs,
		Trigger:      trigger,
	}
	if n := len(st.Messages); n > 0 {
		rec.StartTime = st.Messages[0].Timestamp
		rec.EndTime = st.Messages[n-1].Timestamp
		if trigger != types.ArchiveTriggerReset {
			rec.Preview = truncateRunes(st.Messages[n-1].Content, a.settings.PreviewLength)
		}
	}
	return rec
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
