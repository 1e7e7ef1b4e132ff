package conversation

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// background 跟踪回合结束后的异步任务（定时归档等）。
// 任务相互隔离：panic 被捕获并记录，不影响调用方。
type background struct {
	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newBackground(logger *zap.Logger) *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel, logger: logger}
}

// Go 启动一个后台任务；关闭后提交的任务被丢弃
func (b *background) Go(name string, fn func(ctx context.Context)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Debug("background task dropped after close", zap.String("task", name))
		return false
	}
	b.wg.Go(func() {
		var pc panics.Catcher
		pc.Try(func() { fn(b.ctx) })
		if r := pc.Recovered(); r != nil {
			b.logger.Error("background task panicked",
				zap.String("task", name),
				zap.Error(r.AsError()))
		}
	})
	return true
}

// Wait 等待全部已提交任务完成
func (b *background) Wait() {
	b.wg.Wait()
}

// Close 拒绝新任务并等待进行中的任务退出
func (b *background) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	b.cancel()
}
