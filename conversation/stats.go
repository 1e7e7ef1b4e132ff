package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
)

// =============================================================================
// 📈 角色统计
// =============================================================================

// PersonaStatsView 是单个角色的统计视图，派生值在读取时计算
type PersonaStatsView struct {
	MessageCount int64          `json:"messageCount"`
	LastActive   *int64         `json:"lastActive"`
	Derived      map[string]any `json:"derived"`
}

// StatsTracker 维护角色计数器
type StatsTracker struct {
	store  store.Store
	roster *persona.Roster
	logger *zap.Logger
}

// NewStatsTracker 创建统计追踪器
func NewStatsTracker(st store.Store, roster *persona.Roster, logger *zap.Logger) *StatsTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsTracker{
		store:  st,
		roster: roster,
		logger: logger.With(zap.String("component", "stats_tracker")),
	}
}

// Increment 为角色计数加一并记录最近活跃时间
func (t *StatsTracker) Increment(ctx context.Context, key string, now time.Time) error {
	if err := t.store.IncrementPersonaStats(ctx, key, now.UnixMilli()); err != nil {
		return storeError(err)
	}
	return nil
}

// Read 返回名单内每个角色的统计视图；从未发言的角色计数为 0。
// 名单之外的历史计数也会一并返回，但不带派生值。
func (t *StatsTracker) Read(ctx context.Context) (map[string]PersonaStatsView, error) {
	raw, err := t.store.PersonaStats(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	out := make(map[string]PersonaStatsView, len(raw))
	for _, p := range t.roster.Personas {
		s := raw[p.Key]
		out[p.Key] = PersonaStatsView{
			MessageCount: s.MessageCount,
			LastActive:   lastActive(s.LastActive),
			Derived:      persona.Derive(p.Stats, s.MessageCount),
		}
	}
	for key, s := range raw {
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = PersonaStatsView{
			MessageCount: s.MessageCount,
			LastActive:   lastActive(s.LastActive),
			Derived:      map[string]any{},
		}
	}
	return out, nil
}

func lastActive(ms int64) *int64 {
	if ms == 0 {
		return nil
	}
	return &ms
}
