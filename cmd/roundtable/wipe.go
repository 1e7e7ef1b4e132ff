package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// errWipeNotConfirmed 未带 --yes 时返回
var errWipeNotConfirmed = errors.New("refusing to wipe without --yes")

// =============================================================================
// 🧹 wipe 命令
// =============================================================================

// runWipe 删除对话文档、全部归档与角色计数，写入一份空白对话。
// 外部上下文条目保留。
func runWipe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	yes := fs.Bool("yes", false, "Confirm the wipe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errWipeNotConfirmed
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	at, err := wipeStore(ctx, cfg.Store, logger, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "conversation wiped (store=%s, at=%d)\n", cfg.Store.Type, at)
	return nil
}

// wipeStore 打开存储并执行清空，返回新对话的创建时间（毫秒）
func wipeStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, now time.Time) (int64, error) {
	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		return 0, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	ms := now.UnixMilli()
	if err := st.Wipe(ctx, types.NewConversationState(ms)); err != nil {
		return 0, fmt.Errorf("wipe failed: %w", err)
	}
	logger.Warn("conversation wiped", zap.String("store", cfg.Type), zap.Int64("at", ms))
	return ms, nil
}
