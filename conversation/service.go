package conversation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/channel"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🎬 对话服务
// =============================================================================

// TurnStatus 是 Advance 返回给调用方的状态
type TurnStatus string

const (
	StatusCooldown   TurnStatus = "cooldown"
	StatusGenerating TurnStatus = "generating"
	StatusSuccess    TurnStatus = "success"
)

// AdvanceResult 是一次推进回合的结果
type AdvanceResult struct {
	Status TurnStatus `json:"status"`
	// TimeRemaining 冷却剩余毫秒数
	TimeRemaining int64          `json:"timeRemaining,omitempty"`
	Message       *types.Message `json:"message,omitempty"`
	NextSpeaker   string         `json:"nextSpeaker,omitempty"`
}

// Option 配置 Service
type Option func(*Service)

// WithClock 注入时钟
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRand 注入场景选择使用的随机源
func WithRand(rng persona.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithMetrics 注入指标收集器
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger 注入日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service 组合调度、生成、归档与统计，对外提供全部对话操作
type Service struct {
	store     store.Store
	roster    *persona.Roster
	scheduler *Scheduler
	pipeline  *Pipeline
	archiver  *Archiver
	stats     *StatsTracker
	feed      *channel.Broadcaster[types.Message]
	tasks     *background

	contextLimit int
	clock        func() time.Time
	rng          persona.Rand
	metrics      Metrics
	logger       *zap.Logger
}

// NewService 创建对话服务
func NewService(st store.Store, roster *persona.Roster, provider llm.Provider, conv config.ConversationConfig, gen config.LLMConfig, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("conversation: store is required")
	}
	if provider == nil {
		return nil, errors.New("conversation: provider is required")
	}
	if roster == nil {
		return nil, errors.New("conversation: roster is required")
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:        st,
		roster:       roster,
		feed:         channel.NewBroadcaster[types.Message](),
		contextLimit: conv.MaxContextEntries + conv.MaxTaskEntries,
		clock:        time.Now,
		metrics:      nopMetrics{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.clock().UnixNano()))
	}
	s.logger = s.logger.With(zap.String("component", "conversation"))

	s.tasks = newBackground(s.logger)
	s.scheduler = NewScheduler(st, roster, conv.Cooldown, conv.LeaseDuration, s.metrics, s.logger)
	s.archiver = NewArchiver(st, ArchiveSettings{
		Interval:        conv.ArchiveInterval,
		MinMessages:     conv.ArchiveMinMessages,
		SnapshotSpacing: conv.SnapshotSpacing,
		ListLimit:       conv.ArchiveListLimit,
		PreviewLength:   conv.PreviewLength,
	}, s.metrics, s.logger)
	s.stats = NewStatsTracker(st, roster, s.logger)
	s.pipeline = &Pipeline{
		store:    st,
		roster:   roster,
		provider: provider,
		stats:    s.stats,
		archiver: s.archiver,
		tasks:    s.tasks,
		settings: GenerationSettings{
			Model:             gen.Model,
			MaxTokens:         gen.MaxTokens,
			Temperature:       gen.Temperature,
			Timeout:           gen.Timeout,
			RetentionCap:      conv.RetentionCap,
			ContextWindow:     conv.ContextWindow,
			MaxContextEntries: conv.MaxContextEntries,
			MaxTaskEntries:    conv.MaxTaskEntries,
		},
		clock:  s.clock,
		logger: s.logger.With(zap.String("stage", "generation")),
		rng:    s.rng,
	}

	s.logger.Info("conversation service initialized",
		zap.String("roster", roster.Title),
		zap.Int("personas", roster.Len()),
		zap.String("provider", provider.Name()))
	return s, nil
}

// Roster 返回当前名单
func (s *Service) Roster() *persona.Roster { return s.roster }

// Scheduler 返回回合调度器
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Pipeline 返回生成流水线
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Archiver 返回归档管理器
func (s *Service) Archiver() *Archiver { return s.archiver }

// State 返回当前对话，不存在时创建默认文档
func (s *Service) State(ctx context.Context) (*types.ConversationState, error) {
	st, err := s.store.Conversation(ctx, s.clock().UnixMilli())
	if err != nil {
		return nil, storeError(err)
	}
	st.CurrentSpeakerIndex = s.roster.Normalize(st.CurrentSpeakerIndex)
	return st, nil
}

// Advance 尝试推进一个回合：冷却或忙碌时立即返回，否则生成并提交一条消息
func (s *Service) Advance(ctx context.Context) (*AdvanceResult, error) {
	start := time.Now()

	adm, err := s.scheduler.TryBeginTurn(ctx, s.clock())
	if err != nil {
		s.metrics.RecordTurn(TurnStatusStore, time.Since(start))
		return nil, err
	}

	switch adm.Kind {
	case AdmissionCooldown:
		s.metrics.RecordTurn(TurnStatusCooldown, time.Since(start))
		return &AdvanceResult{Status: StatusCooldown, TimeRemaining: adm.Remaining.Milliseconds()}, nil
	case AdmissionBusy:
		s.metrics.RecordTurn(TurnStatusBusy, time.Since(start))
		return &AdvanceResult{Status: StatusGenerating}, nil
	}

	outcome, err := s.pipeline.RunTurn(ctx, adm.Grant)
	if err != nil {
		s.metrics.RecordTurn(turnErrorStatus(err), time.Since(start))
		return nil, err
	}
	s.metrics.RecordTurn(TurnStatusSuccess, time.Since(start))
	s.feed.Publish(outcome.Message)

	msg := outcome.Message
	return &AdvanceResult{
		Status:      StatusSuccess,
		Message:     &msg,
		NextSpeaker: outcome.NextSpeaker.Key,
	}, nil
}

func turnErrorStatus(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrUpstreamError:
		return TurnStatusUpstream
	case types.ErrLockLost:
		return TurnStatusLockLost
	default:
		return TurnStatusStore
	}
}

// Reset 归档现有消息（若有）并清空对话
func (s *Service) Reset(ctx context.Context) (*ResetResult, error) {
	return s.archiver.Reset(ctx, s.clock())
}

// Wipe 清空对话、全部归档与角色统计；外部上下文条目保留
func (s *Service) Wipe(ctx context.Context) (int64, error) {
	now := s.clock().UnixMilli()
	if err := s.store.Wipe(ctx, types.NewConversationState(now)); err != nil {
		return 0, storeError(err)
	}
	s.logger.Warn("conversation wiped", zap.Int64("at", now))
	return now, nil
}

// Archives 返回归档摘要列表
func (s *Service) Archives(ctx context.Context) ([]types.ArchiveSummary, error) {
	return s.archiver.List(ctx)
}

// Archive 按 id 返回归档
func (s *Service) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	return s.archiver.Get(ctx, id)
}

// Snapshot 执行手动快照
func (s *Service) Snapshot(ctx context.Context) (*SnapshotResult, error) {
	return s.archiver.Snapshot(ctx, s.clock())
}

// Stats 返回全部角色的统计视图
func (s *Service) Stats(ctx context.Context) (map[string]PersonaStatsView, error) {
	return s.stats.Read(ctx)
}

// ContextEntries 返回最近的外部上下文条目
func (s *Service) ContextEntries(ctx context.Context) ([]types.ContextEntry, error) {
	limit := s.contextLimit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.store.ListContextEntries(ctx, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return entries, nil
}

// AddContextEntry 保存一条外部上下文条目
func (s *Service) AddContextEntry(ctx context.Context, entry types.ContextEntry) (*types.ContextEntry, error) {
	entry.Content = strings.TrimSpace(entry.Content)
	entry.Title = strings.TrimSpace(entry.Title)
	if entry.Content == "" {
		return nil, types.NewInvalidRequestError("content is required")
	}
	switch entry.Kind {
	case types.ContextKindNote:
		entry.Status = ""
	case types.ContextKindTask:
		if entry.Status == "" {
			entry.Status = types.TaskStatusOpen
		}
		if entry.Status != types.TaskStatusOpen && entry.Status != types.TaskStatusDone {
			return nil, types.NewInvalidRequestError("status must be open or done")
		}
	default:
		return nil, types.NewInvalidRequestError("kind must be note or task")
	}
	entry.ID = ""
	entry.CreatedAt = s.clock().UnixMilli()

	if err := s.store.SaveContextEntry(ctx, &entry); err != nil {
		return nil, storeError(err)
	}
	return &entry, nil
}

// Subscribe 订阅成功回合产生的消息，cancel 幂等
func (s *Service) Subscribe(buffer int) (<-chan types.Message, func()) {
	return s.feed.Subscribe(buffer)
}

// FeedStats 返回实时订阅的计数快照
func (s *Service) FeedStats() channel.BroadcastStats {
	return s.feed.Stats()
}

// Ping 检查存储可用性
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError(err)
	}
	return nil
}

// Wait 等待已提交的后台任务（定时归档）完成
func (s *Service) Wait() {
	s.tasks.Wait()
}

// Close 等待后台任务并关闭实时订阅；不关闭存储
func (s *Service) Close() {
	s.tasks.Close()
	s.feed.Close()
}
