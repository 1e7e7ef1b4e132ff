package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/roundtable/api/handlers"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/conversation"
	"github.com/BaSui01/roundtable/internal/cache"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/internal/server"
	"github.com/BaSui01/roundtable/internal/telemetry"
	"github.com/BaSui01/roundtable/llm"
	llmfactory "github.com/BaSui01/roundtable/llm/factory"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
)

// feedReportInterval 推送订阅指标的同步周期
const feedReportInterval = 15 * time.Second

// =============================================================================
// 🚀 serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
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

	logger.Info("starting roundtable",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("store", cfg.Store.Type),
		zap.String("provider", cfg.LLM.Provider),
	)

	tp, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("roundtable", logger)

	app, err := NewApp(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("graceful shutdown completed")
	return nil
}

// =============================================================================
// 🖥️ App：组装存储、模型、对话服务与 HTTP 入口
// =============================================================================

// App 持有一次 serve 运行所需的全部组件
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	store   store.Store
	service *conversation.Service
	handler http.Handler

	// 限流器清理协程随 App 关闭
	cancel context.CancelFunc
}

// NewApp 按配置构造全部组件。失败时已打开的资源会被关闭。
func NewApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (_ *App, err error) {
	app := &App{cfg: cfg, logger: logger, collector: collector}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// 1. 存储
	st, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	app.store = store.Instrument(st, cfg.Store.Type, collector)

	// 2. 归档读缓存
	if ac := cfg.Store.ArchiveCache; ac.Enabled {
		redisCfg := ac.Redis
		if redisCfg.Addr == "" {
			redisCfg = cfg.Store.Redis
		}
		client, err := store.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect archive cache: %w", err)
		}
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Prefix = redisCfg.KeyPrefix + "cache:"
		cacheCfg.DefaultTTL = ac.TTL
		mgr := cache.NewManager(client, cacheCfg, true, logger)
		app.store = cache.NewArchiveStore(app.store, mgr, ac.TTL, collector, logger)
		logger.Info("archive cache enabled", zap.String("addr", redisCfg.Addr), zap.Duration("ttl", ac.TTL))
	}

	// 3. 角色名单
	roster, err := loadRoster(cfg.Conversation.RosterFile)
	if err != nil {
		return nil, err
	}

	// 4. 模型提供方
	provider, err := newProvider(cfg.LLM, collector, logger)
	if err != nil {
		return nil, err
	}

	// 5. 对话服务
	app.service, err = conversation.NewService(app.store, roster, provider, cfg.Conversation, cfg.LLM,
		conversation.WithMetrics(collector),
		conversation.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation service: %w", err)
	}

	// 6. HTTP
	limiterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel
	app.handler = app.routes(limiterCtx)

	logger.Info("application initialized",
		zap.Strings("personas", roster.Keys()),
		zap.Bool("autopilot", cfg.Conversation.Autopilot.Enabled),
		zap.Bool("admin_jwt", cfg.Server.AdminJWT.Secret != ""),
	)
	return app, nil
}

func loadRoster(path string) (*persona.Roster, error) {
	if path == "" {
		return persona.Default()
	}
	roster, err := persona.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster %s: %w", path, err)
	}
	return roster, nil
}

// newProvider 创建提供方并套上恢复、日志、指标与超时中间件
func newProvider(cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) (llm.Provider, error) {
	base, err := llmfactory.FromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	chain := llm.NewChain(
		llm.RecoveryMiddleware(func(v any) {
			logger.Error("provider panic recovered", zap.Any("panic", v))
		}),
		llm.LoggingMiddleware(logger),
		llm.MetricsMiddleware(cfg.Provider, collector),
		llm.TimeoutMiddleware(cfg.Timeout),
	)
	return llm.Wrap(base, chain), nil
}

// routes 注册路由并构建中间件链
func (a *App) routes(ctx context.Context) http.Handler {
	cfg := a.cfg
	conv := handlers.NewConversationHandler(a.service, a.logger)

	feedCfg := handlers.DefaultFeedConfig()
	feedCfg.OriginPatterns = originPatterns(cfg.Server.CORSAllowedOrigins)
	feed := handlers.NewFeedHandler(a.service, feedCfg, a.logger)

	health := handlers.NewHealthHandler(a.logger)
	health.RegisterCheck(handlers.NewPingCheck("store", a.service.Ping))

	// 管理路由：配置了密钥时额外要求管理员 JWT
	admin := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.Server.AdminJWT.Secret != "" {
		guard := AdminJWT(cfg.Server.AdminJWT, a.logger)
		admin = func(h http.HandlerFunc) http.Handler { return guard(h) }
	}

	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 对话 API
	// ========================================
	mux.HandleFunc("GET /api/v1/conversation", conv.HandleGet)
	mux.Handle("DELETE /api/v1/conversation", admin(conv.HandleReset))
	mux.HandleFunc("POST /api/v1/conversation/turn", conv.HandleTurn)
	mux.HandleFunc("GET /api/v1/conversation/feed", feed.HandleFeed)

	mux.HandleFunc("GET /api/v1/archives", conv.HandleListArchives)
	mux.HandleFunc("POST /api/v1/archives", conv.HandleSnapshot)
	mux.HandleFunc("GET /api/v1/archives/{id}", conv.HandleGetArchive)

	mux.HandleFunc("GET /api/v1/stats", conv.HandleStats)
	mux.HandleFunc("GET /api/v1/context", conv.HandleListContext)
	mux.Handle("POST /api/v1/context", admin(conv.HandleAddContext))

	mux.Handle("POST /api/v1/admin/wipe", admin(conv.HandleWipe))

	// ========================================
	// 构建中间件链
	// ========================================
	middlewares := []Middleware{
		Recovery(a.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(a.collector),
		SecurityHeaders(),
		RequestLogger(a.logger),
		CORS(cfg.Server.CORSAllowedOrigins),
	}
	if cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, a.logger))
	}
	if len(cfg.Server.APIKeys) > 0 {
		skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
		middlewares = append(middlewares,
			APIKeyAuth(cfg.Server.APIKeys, skipAuthPaths, cfg.Server.AllowQueryAPIKey, a.logger))
	}
	return Chain(mux, middlewares...)
}

// originPatterns 把 CORS 来源转换为 websocket 的 host 模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// Handler 返回带完整中间件链的 HTTP 入口
func (a *App) Handler() http.Handler {
	return a.handler
}

// Service 返回对话服务
func (a *App) Service() *conversation.Service {
	return a.service
}

// =============================================================================
// 🏃 运行与关闭
// =============================================================================

// Run 启动 HTTP 服务、指标服务、自动推进与推送指标同步，直到 ctx 结束或任一组件失败
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg
	g, ctx := errgroup.WithContext(ctx)

	httpManager := server.NewManager(a.handler, server.ConfigFrom("http", cfg.Server.HTTPPort, cfg.Server), a.logger)
	// WebSocket 连接已被劫持，Shutdown 不会等待它们，关闭推送让处理器退出
	httpManager.RegisterOnShutdown(a.service.Close)
	g.Go(func() error { return httpManager.Run(ctx) })

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		metricsManager := server.NewManager(mux, server.ConfigFrom("metrics", cfg.Server.MetricsPort, cfg.Server), a.logger)
		g.Go(func() error { return metricsManager.Run(ctx) })
	}

	if ap := cfg.Conversation.Autopilot; ap.Enabled {
		pilot := conversation.NewAutopilot(a.service, ap.Interval, a.logger)
		g.Go(func() error { return pilot.Run(ctx) })
	}

	g.Go(func() error {
		a.reportFeed(ctx, feedReportInterval)
		return nil
	})

	return g.Wait()
}

// reportFeed 周期性同步推送订阅数与丢弃增量
func (a *App) reportFeed(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastDropped int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastDropped = a.syncFeedMetrics(lastDropped)
		}
	}
}

func (a *App) syncFeedMetrics(lastDropped int64) int64 {
	stats := a.service.FeedStats()
	var delta uint64
	if stats.Dropped > lastDropped {
		delta = uint64(stats.Dropped - lastDropped)
	}
	a.collector.RecordFeed(stats.Subscribers, delta)
	return stats.Dropped
}

// Close 停止后台任务并释放存储连接，可重复调用
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.service != nil {
		a.service.Close()
		a.service = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
		a.store = nil
	}
}
