package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// Advancer 是 Autopilot 驱动的推进操作，*Service 满足该接口
type Advancer interface {
	Advance(ctx context.Context) (*AdvanceResult, error)
}

// Autopilot 在进程内按固定间隔推进回合，替代外部轮询客户端。
// 它与外部调用方共享同一套准入规则，冷却与忙碌结果会被静默跳过。
type Autopilot struct {
	advancer Advancer
	interval time.Duration
	logger   *zap.Logger
}

// NewAutopilot 创建自动推进器
func NewAutopilot(advancer Advancer, interval time.Duration, logger *zap.Logger) *Autopilot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autopilot{
		advancer: advancer,
		interval: interval,
		logger:   logger.With(zap.String("component", "autopilot")),
	}
}

// Run 阻塞直到 ctx 结束，返回 nil
func (a *Autopilot) Run(ctx context.Context) error {
	a.logger.Info("autopilot started", zap.Duration("interval", a.interval))
	defer a.logger.Info("autopilot stopped")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Autopilot) tick(ctx context.Context) {
	res, err := a.advancer.Advance(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("autopilot turn failed",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return
	}
	switch res.Status {
	case StatusSuccess:
		a.logger.Debug("autopilot turn completed",
			zap.String("speaker", res.Message.SpeakerKey),
			zap.String("next_speaker", res.NextSpeaker))
	default:
		a.logger.Debug("autopilot turn skipped", zap.String("status", string(res.Status)))
	}
}
