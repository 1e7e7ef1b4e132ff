package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/conversation"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 💬 对话 Handler
// =============================================================================

// ConversationService 是 handler 依赖的对话操作集合，*conversation.Service 满足该接口
type ConversationService interface {
	State(ctx context.Context) (*types.ConversationState, error)
	Advance(ctx context.Context) (*conversation.AdvanceResult, error)
	Reset(ctx context.Context) (*conversation.ResetResult, error)
	Wipe(ctx context.Context) (int64, error)
	Archives(ctx context.Context) ([]types.ArchiveSummary, error)
	Archive(ctx context.Context, id string) (*types.ArchiveRecord, error)
	Snapshot(ctx context.Context) (*conversation.SnapshotResult, error)
	Stats(ctx context.Context) (map[string]conversation.PersonaStatsView, error)
	ContextEntries(ctx context.Context) ([]types.ContextEntry, error)
	AddContextEntry(ctx context.Context, entry types.ContextEntry) (*types.ContextEntry, error)
}

// ConversationHandler 对话相关的 HTTP 处理器
type ConversationHandler struct {
	service ConversationService
	logger  *zap.Logger
}

// NewConversationHandler 创建对话处理器
func NewConversationHandler(service ConversationService, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "conversation")),
	}
}

// ResetResponse 重置结果
type ResetResponse struct {
	Status    string `json:"status"`
	Archived  bool   `json:"archived"`
	ArchiveID string `json:"archiveId,omitempty"`
}

// WipeResponse 硬清空结果
type WipeResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// ArchiveListResponse 归档列表
type ArchiveListResponse struct {
	Archives []types.ArchiveSummary `json:"archives"`
}

// SnapshotResponse 手动快照结果
type SnapshotResponse struct {
	Status        conversation.SnapshotStatus `json:"status"`
	ID            string                      `json:"id,omitempty"`
	TimeRemaining int64                       `json:"timeRemaining,omitempty"`
}

// StatsResponse 角色统计
type StatsResponse struct {
	Stats map[string]conversation.PersonaStatsView `json:"stats"`
}

// ContextListResponse 上下文条目列表
type ContextListResponse struct {
	Entries []types.ContextEntry `json:"entries"`
}

// ContextEntryRequest 新增上下文条目请求
type ContextEntryRequest struct {
	Kind    types.ContextKind `json:"kind"`
	Title   string            `json:"title,omitempty"`
	Content string            `json:"content"`
	Status  types.TaskStatus  `json:"status,omitempty"`
}

// =============================================================================
// 🎯 对话
// =============================================================================

// HandleGet 返回当前对话，不存在时创建默认文档
// @Summary 获取对话
// @Tags 对话
// @Produce json
// @Success 200 {object} Response "当前对话"
// @Failure 503 {object} Response "存储不可用"
// @Router /api/v1/conversation [get]
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, state)
}

// HandleReset 归档现有消息后清空对话
// @Summary 重置对话
// @Tags 对话
// @Produce json
// @Success 200 {object} Response "已重置"
// @Router /api/v1/conversation [delete]
func (h *ConversationHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reset(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	h.logger.Info("conversation reset",
		zap.Bool("archived", res.Archived),
		zap.String("archive_id", res.ArchiveID))
	WriteSuccess(w, r, ResetResponse{
		Status:    "cleared",
		Archived:  res.Archived,
		ArchiveID: res.ArchiveID,
	})
}

// HandleTurn 尝试推进一个回合
// @Summary 推进回合
// @Description 冷却中返回 cooldown，其他调用方生成中返回 generating，否则生成一条消息
// @Tags 对话
// @Produce json
// @Success 200 {object} Response "回合结果"
// @Failure 502 {object} Response "生成失败"
// @Router /api/v1/conversation/turn [post]
func (h *ConversationHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Advance(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleWipe 清空对话、全部归档与统计
// @Summary 硬清空
// @Tags 管理
// @Produce json
// @Success 200 {object} Response "已清空"
// @Router /api/v1/admin/wipe [post]
func (h *ConversationHandler) HandleWipe(w http.ResponseWriter, r *http.Request) {
	at, err := h.service.Wipe(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, WipeResponse{Status: "cleared", Timestamp: at})
}

// =============================================================================
// 🗃️ 归档
// =============================================================================

// HandleListArchives 返回最新的归档摘要
// @Summary 归档列表
// @Tags 归档
// @Produce json
// @Success 200 {object} Response "归档摘要"
// @Router /api/v1/archives [get]
func (h *ConversationHandler) HandleListArchives(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Archives(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	if list == nil {
		list = []types.ArchiveSummary{}
	}
	WriteSuccess(w, r, ArchiveListResponse{Archives: list})
}

// HandleGetArchive 按 id 返回归档
// @Summary 获取归档
// @Tags 归档
// @Produce json
// @Param id path string true "归档 ID"
// @Success 200 {object} Response "归档记录"
// @Failure 404 {object} Response "不存在"
// @Router /api/v1/archives/{id} [get]
func (h *ConversationHandler) HandleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, r, types.NewInvalidRequestError("archive id is required"), h.logger)
		return
	}
	rec, err := h.service.Archive(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, rec)
}

// HandleSnapshot 手动保存快照
// @Summary 手动快照
// @Tags 归档
// @Produce json
// @Success 200 {object} Response "saved / too_soon / nothing_to_archive"
// @Router /api/v1/archives [post]
func (h *ConversationHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Snapshot(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	resp := SnapshotResponse{Status: res.Status, ID: res.ID}
	if res.Status == conversation.SnapshotTooSoon {
		resp.TimeRemaining = res.Remaining.Milliseconds()
	}
	WriteSuccess(w, r, resp)
}

// =============================================================================
// 📊 统计与上下文
// =============================================================================

// HandleStats 返回角色统计
// @Summary 角色统计
// @Tags 统计
// @Produce json
// @Success 200 {object} Response "统计视图"
// @Router /api/v1/stats [get]
func (h *ConversationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, StatsResponse{Stats: stats})
}

// HandleListContext 返回外部上下文条目
// @Summary 上下文条目
// @Tags 上下文
// @Produce json
// @Success 200 {object} Response "条目列表"
// @Router /api/v1/context [get]
func (h *ConversationHandler) HandleListContext(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ContextEntries(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	if entries == nil {
		entries = []types.ContextEntry{}
	}
	WriteSuccess(w, r, ContextListResponse{Entries: entries})
}

// HandleAddContext 新增一条外部上下文条目
// @Summary 新增上下文条目
// @Tags 上下文
// @Accept json
// @Produce json
// @Param request body ContextEntryRequest true "条目"
// @Success 200 {object} Response "已创建的条目"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/context [post]
func (h *ConversationHandler) HandleAddContext(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req ContextEntryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	entry, err := h.service.AddContextEntry(r.Context(), types.ContextEntry{
		Kind:    req.Kind,
		Title:   req.Title,
		Content: req.Content,
		Status:  req.Status,
	})
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, entry)
}
