package conversation

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🧠 生成流水线
// =============================================================================

// releaseTimeout 是错误路径上释放租约的独立超时
const releaseTimeout = 5 * time.Second

// GenerationSettings 控制一次回合的提示词与模型调用
type GenerationSettings struct {
	Model             string
	MaxTokens         int
	Temperature       float32
	Timeout           time.Duration
	RetentionCap      int
	ContextWindow     int
	MaxContextEntries int
	MaxTaskEntries    int
}

// TurnOutcome 是成功回合的结果
type TurnOutcome struct {
	Message     types.Message
	NextSpeaker persona.Persona
	State       *types.ConversationState
}

// Pipeline 执行已获得租约的回合
type Pipeline struct {
	store    store.Store
	roster   *persona.Roster
	provider llm.Provider
	stats    *StatsTracker
	archiver *Archiver
	tasks    *background
	settings GenerationSettings
	clock    func() time.Time
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   persona.Rand
}

// RunTurn 为 grant 对应的发言者生成一条消息并提交。
// 任何失败都会在返回前释放租约（仅当租约仍属于本回合），且不会写入部分消息。
func (p *Pipeline) RunTurn(ctx context.Context, grant *Grant) (*TurnOutcome, error) {
	ctx = ctxkeys.WithTurnID(ctx, grant.Token)
	ctx, span := tracer.Start(ctx, "conversation.run_turn")
	defer span.End()

	speaker := p.roster.At(grant.SpeakerIndex)
	span.SetAttributes(
		attribute.String("conversation.speaker", speaker.Key),
		attribute.Int("conversation.speaker_index", grant.SpeakerIndex),
	)
	logger := p.logger.With(zap.String("speaker", speaker.Key), zap.String("turn_id", grant.Token))

	prompt := p.buildPrompt(ctx, grant, speaker, logger)
	text, err := p.complete(ctx, speaker, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		logger.Warn("generation failed", zap.Error(err))
		p.release(ctx, grant, logger)
		return nil, types.NewUpstreamError(p.provider.Name(), err)
	}

	completedAt := p.clock()
	nowMs := completedAt.UnixMilli()
	msg := types.Message{
		ID:         newMessageID(completedAt),
		SpeakerKey: speaker.Key,
		Speaker:    speaker.Name,
		Content:    text,
		Color:      speaker.Color,
		Timestamp:  nowMs,
	}

	commit, err := p.store.Update(ctx, nowMs, func(txn *store.Txn) error {
		st := txn.State
		if !st.IsGenerating || st.GenerationOwner != grant.Token {
			return ErrLockLost
		}
		st.Messages = append(st.Messages, msg)
		if over := len(st.Messages) - p.settings.RetentionCap; p.settings.RetentionCap > 0 && over > 0 {
			st.Messages = append([]types.Message(nil), st.Messages[over:]...)
		}
		st.MessageCount++
		st.CurrentSpeakerIndex = p.roster.Normalize(grant.SpeakerIndex + 1)
		st.IsGenerating = false
		st.GenerationOwner = ""
		st.GenerationStartedAt = 0
		st.LastMessageTime = nowMs
		txn.Save()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		if errors.Is(err, ErrLockLost) {
			logger.Warn("generation lease lost, message dropped")
		} else {
			logger.Error("failed to commit message", zap.Error(err))
			p.release(ctx, grant, logger)
		}
		return nil, storeError(err)
	}

	if err := p.stats.Increment(ctx, speaker.Key, completedAt); err != nil {
		logger.Warn("failed to update persona stats", zap.Error(err))
	}

	p.tasks.Go("scheduled_archive", func(bg context.Context) {
		actx, cancel := context.WithTimeout(bg, releaseTimeout)
		defer cancel()
		if _, err := p.archiver.MaybeSnapshot(actx, p.clock()); err != nil {
			p.logger.Warn("scheduled archive failed", zap.Error(err))
		}
	})

	next := p.roster.At(commit.State.CurrentSpeakerIndex)
	logger.Info("turn completed",
		zap.String("message_id", msg.ID),
		zap.Int64("message_count", commit.State.MessageCount),
		zap.String("next_speaker", next.Key))

	return &TurnOutcome{Message: msg, NextSpeaker: next, State: commit.State}, nil
}

func (p *Pipeline) buildPrompt(ctx context.Context, grant *Grant, speaker persona.Persona, logger *zap.Logger) string {
	notes, tasks := p.loadContext(ctx, logger)
	return persona.BuildPrompt(persona.PromptInput{
		Roster:    p.roster,
		Speaker:   speaker,
		Situation: p.pickSituation(),
		Recent:    lastN(grant.Snapshot.Messages, p.settings.ContextWindow),
		Notes:     notes,
		Tasks:     tasks,
	})
}

func (p *Pipeline) pickSituation() persona.Situation {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return persona.PickSituation(p.rng, p.roster)
}

// loadContext 读取外部上下文条目；读取失败仅记录日志
func (p *Pipeline) loadContext(ctx context.Context, logger *zap.Logger) (notes, tasks []types.ContextEntry) {
	limit := p.settings.MaxContextEntries + p.settings.MaxTaskEntries
	if limit <= 0 {
		return nil, nil
	}
	entries, err := p.store.ListContextEntries(ctx, limit)
	if err != nil {
		logger.Warn("failed to load context entries", zap.Error(err))
		return nil, nil
	}
	for _, e := range entries {
		switch e.Kind {
		case types.ContextKindNote:
			if len(notes) < p.settings.MaxContextEntries {
				notes = append(notes, e)
			}
		case types.ContextKindTask:
			if len(tasks) < p.settings.MaxTaskEntries {
				tasks = append(tasks, e)
			}
		}
	}
	return notes, tasks
}

func (p *Pipeline) complete(ctx context.Context, speaker persona.Persona, prompt string) (string, error) {
	if p.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.Timeout)
		defer cancel()
	}

	req := &llm.ChatRequest{
		Model:       p.settings.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   p.settings.MaxTokens,
		Temperature: p.settings.Temperature,
		Timeout:     p.settings.Timeout,
		Metadata:    map[string]string{"speaker": speaker.Key},
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		req.TraceID = id
	}

	resp, err := p.provider.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.CompletionText(resp)
}

// release 清除本回合持有的租约，使用不受请求取消影响的上下文
func (p *Pipeline) release(ctx context.Context, grant *Grant, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released := false
	_, err := p.store.Update(ctx, p.clock().UnixMilli(), func(txn *store.Txn) error {
		released = false
		st := txn.State
		if !st.IsGenerating || st.GenerationOwner != grant.Token {
			return nil
		}
		st.IsGenerating = false
		st.GenerationOwner = ""
		st.GenerationStartedAt = 0
		txn.Save()
		released = true
		return nil
	})
	if err != nil {
		logger.Error("failed to release generation lease", zap.Error(err))
		return
	}
	if !released {
		logger.Debug("generation lease already gone, nothing to release")
	}
}

// lastN 返回按时间顺序排列的最后 n 条消息
func lastN(msgs []types.Message, n int) []types.Message {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out
}

// newMessageID 生成 msg_<毫秒时间戳>_<9 位 base36> 形式的消息 ID
func newMessageID(at time.Time) string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		binary.BigEndian.PutUint64(b[:], uint64(at.UnixNano()))
	}
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("msg_%d_%s", at.UnixMilli(), suffix[len(suffix)-9:])
}
