package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 📡 实时消息推送（WebSocket）
// =============================================================================

// FeedSource 提供成功回合产生的消息，*conversation.Service 满足该接口
type FeedSource interface {
	Subscribe(buffer int) (<-chan types.Message, func())
}

// FeedConfig 推送连接参数
type FeedConfig struct {
	// 允许的 Origin 模式，空表示只允许同源
	OriginPatterns []string
	// 每个订阅者的缓冲消息数，满时丢弃
	Buffer       int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultFeedConfig 返回默认推送参数
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Buffer:       16,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// FeedHandler 把新消息逐条推送给 WebSocket 客户端，每条为一个 JSON 文本帧
type FeedHandler struct {
	source FeedSource
	config FeedConfig
	logger *zap.Logger
}

// NewFeedHandler 创建推送处理器
func NewFeedHandler(source FeedSource, config FeedConfig, logger *zap.Logger) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultFeedConfig()
	if config.Buffer <= 0 {
		config.Buffer = defaults.Buffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	return &FeedHandler{
		source: source,
		config: config,
		logger: logger.With(zap.String("handler", "feed")),
	}
}

// HandleFeed 升级为 WebSocket 并持续推送消息，直到客户端断开或服务关闭
// @Summary 实时消息
// @Tags 对话
// @Router /api/v1/conversation/feed [get]
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器 WriteTimeout 约束；不支持时忽略
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只接收，读循环仅用于处理控制帧与断开
	ctx := conn.CloseRead(r.Context())

	msgs, cancel := h.source.Subscribe(h.config.Buffer)
	defer cancel()

	h.logger.Debug("feed subscriber connected", zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, msg); err != nil {
				h.logDisconnect(err)
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := conn.Ping(pingCtx)
			done()
			if err != nil {
				h.logDisconnect(err)
				return
			}
		}
	}
}

func (h *FeedHandler) write(ctx context.Context, conn *websocket.Conn, msg types.Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *FeedHandler) logDisconnect(err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		h.logger.Debug("feed subscriber disconnected", zap.Error(err))
		return
	}
	h.logger.Warn("feed write failed", zap.Error(err))
}
