package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🚦 回合准入
// =============================================================================

// AdmissionKind 是 TryBeginTurn 的判定结果
type AdmissionKind string

const (
	AdmissionCooldown AdmissionKind = "cooldown"
	AdmissionBusy     AdmissionKind = "generating"
	AdmissionEligible AdmissionKind = "eligible"
)

// Admission 描述一次准入判定
type Admission struct {
	Kind AdmissionKind
	// Remaining 仅在 Cooldown 时有效
	Remaining time.Duration
	// Grant 仅在 Eligible 时有效
	Grant *Grant
}

// Grant 是获得租约的回合凭证
type Grant struct {
	SpeakerKey   string
	SpeakerIndex int
	// Token 是租约持有者标识，提交时用于校验租约仍属于本回合
	Token     string
	StartedAt int64
	// Snapshot 是获取租约时的对话状态副本
	Snapshot *types.ConversationState
}

// Scheduler 负责冷却判定与生成租约的获取
type Scheduler struct {
	store    store.Store
	roster   *persona.Roster
	cooldown time.Duration
	lease    time.Duration
	metrics  Metrics
	logger   *zap.Logger
}

// NewScheduler 创建调度器
func NewScheduler(st store.Store, roster *persona.Roster, cooldown, lease time.Duration, metrics Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Scheduler{
		store:    st,
		roster:   roster,
		cooldown: cooldown,
		lease:    lease,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "turn_scheduler")),
	}
}

// TryBeginTurn 在单个事务中判定是否可以开始新回合。
// 冷却中或租约被他人持有时不写入任何数据；否则为当前发言者获取租约。
func (s *Scheduler) TryBeginTurn(ctx context.Context, now time.Time) (*Admission, error) {
	ctx, span := tracer.Start(ctx, "conversation.try_begin_turn")
	defer span.End()

	nowMs := now.UnixMilli()
	cooldownMs := s.cooldown.Milliseconds()
	leaseMs := s.lease.Milliseconds()

	var (
		adm        *Admission
		reclaimed  bool
		staleOwner string
		staleAge   int64
		fixedIndex int
	)
	_, err := s.store.Update(ctx, nowMs, func(txn *store.Txn) error {
		adm, reclaimed, staleOwner, staleAge, fixedIndex = nil, false, "", 0, -1
		st := txn.State

		if st.LastMessageTime > 0 {
			if elapsed := nowMs - st.LastMessageTime; elapsed < cooldownMs {
				adm = &Admission{
					Kind:      AdmissionCooldown,
					Remaining: time.Duration(cooldownMs-elapsed) * time.Millisecond,
				}
				return nil
			}
		}

		if st.IsGenerating {
			age := nowMs - st.GenerationStartedAt
			if age < leaseMs {
				adm = &Admission{Kind: AdmissionBusy}
				return nil
			}
			reclaimed, staleOwner, staleAge = true, st.GenerationOwner, age
		}

		if idx := s.roster.Normalize(st.CurrentSpeakerIndex); idx != st.CurrentSpeakerIndex {
			fixedIndex = st.CurrentSpeakerIndex
			st.CurrentSpeakerIndex = idx
		}

		st.IsGenerating = true
		st.GenerationOwner = uuid.NewString()
		st.GenerationStartedAt = nowMs
		txn.Save()

		speaker := s.roster.At(st.CurrentSpeakerIndex)
		adm = &Admission{
			Kind: AdmissionEligible,
			Grant: &Grant{
				SpeakerKey:   speaker.Key,
				SpeakerIndex: st.CurrentSpeakerIndex,
				Token:        st.GenerationOwner,
				StartedAt:    nowMs,
				Snapshot:     st.Clone(),
			},
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("turn admission failed", zap.Error(err))
		return nil, storeError(err)
	}

	if fixedIndex >= 0 {
		s.logger.Warn("stored speaker index out of range, normalized",
			zap.Int("stored", fixedIndex),
			zap.Int("roster_size", s.roster.Len()))
	}
	if reclaimed {
		s.metrics.RecordLockReclaim()
		s.logger.Warn("reclaimed expired generation lease",
			zap.String("stale_owner", staleOwner),
			zap.Duration("lease_age", time.Duration(staleAge)*time.Millisecond),
			zap.Duration("lease_duration", s.lease))
	}

	span.SetAttributes(attribute.String("conversation.admission", string(adm.Kind)))
	if adm.Grant != nil {
		span.SetAttributes(attribute.String("conversation.speaker", adm.Grant.SpeakerKey))
	}
	return adm, nil
}
