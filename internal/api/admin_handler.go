package api

import (
	"net/http"
	"time"

	"ChipStake/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler 管理侧接口：事件生命周期、结算/派彩、提现放款处理
type AdminHandler struct {
	marketService     *service.MarketService
	settlementService *service.SettlementService
	withdrawalService *service.WithdrawalService
	logger            *logrus.Logger
}

// NewAdminHandler 创建 AdminHandler
func NewAdminHandler(logger *logrus.Logger,
	marketService *service.MarketService,
	settlementService *service.SettlementService,
	withdrawalService *service.WithdrawalService) *AdminHandler {
	return &AdminHandler{
		marketService:     marketService,
		settlementService: settlementService,
		withdrawalService: withdrawalService,
		logger:            logger,
	}
}

// createEventRequest 创建事件请求体
type createEventRequest struct {
	CreatorID    uint64   `json:"creator_id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Choices      []string `json:"choices" binding:"required"`
	RakeFraction float64  `json:"rake_fraction"`
	LockTime     int64    `json:"lock_time" binding:"required"` // 毫秒时间戳
}

// CreateEvent 创建事件（draft）POST /api/admin/events
func (h *AdminHandler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	event, err := h.marketService.CreateEvent(c.Request.Context(), req.CreatorID, req.Name,
		req.Choices, req.RakeFraction, time.UnixMilli(req.LockTime))
	if err != nil {
		writeServiceError(c, h.logger, "CreateEvent", err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// actorRequest 管理操作请求体（操作人）
type actorRequest struct {
	ActorID uint64 `json:"actor_id" binding:"required"`
}

// resolveEvent 按 event_uuid 找事件，找不到直接写 404
func (h *AdminHandler) resolveEvent(c *gin.Context) (uint64, bool) {
	eventUUID := c.Param("event_uuid")
	if eventUUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_uuid is required"})
		return 0, false
	}
	event, err := h.marketService.GetEventByUUID(c.Request.Context(), eventUUID)
	if err != nil {
		writeServiceError(c, h.logger, "resolveEvent", err)
		return 0, false
	}
	return event.ID, true
}

// ApproveEvent 审批上线 POST /api/admin/events/:event_uuid/approve
func (h *AdminHandler) ApproveEvent(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}
	if err := h.marketService.Approve(c.Request.Context(), eventID, req.ActorID); err != nil {
		writeServiceError(c, h.logger, "ApproveEvent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// LockEvent 手动封盘 POST /api/admin/events/:event_uuid/lock
func (h *AdminHandler) LockEvent(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}
	if err := h.marketService.Lock(c.Request.Context(), eventID, req.ActorID); err != nil {
		writeServiceError(c, h.logger, "LockEvent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "locked"})
}

// resolveRequest 结算请求体
type resolveRequest struct {
	ActorID       uint64 `json:"actor_id" binding:"required"`
	WinningChoice string `json:"winning_choice" binding:"required"`
}

// ResolveEvent 结算：判定获胜选项并计算派彩 POST /api/admin/events/:event_uuid/resolve
func (h *AdminHandler) ResolveEvent(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}
	calc, err := h.settlementService.Resolve(c.Request.Context(), eventID, req.WinningChoice, req.ActorID)
	if err != nil {
		writeServiceError(c, h.logger, "ResolveEvent", err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

// DistributeEvent 派彩入账（可重复调用补跑失败项）POST /api/admin/events/:event_uuid/distribute
func (h *AdminHandler) DistributeEvent(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}
	result, err := h.settlementService.Distribute(c.Request.Context(), eventID, req.ActorID)
	if err != nil {
		writeServiceError(c, h.logger, "DistributeEvent", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelEvent 取消事件并全额退注 POST /api/admin/events/:event_uuid/cancel
func (h *AdminHandler) CancelEvent(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	eventID, ok := h.resolveEvent(c)
	if !ok {
		return
	}
	result, err := h.settlementService.Cancel(c.Request.Context(), eventID, req.ActorID)
	if err != nil {
		writeServiceError(c, h.logger, "CancelEvent", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProcessWithdrawal 处理一笔 pending 提现（触发外部放款）
// POST /api/admin/withdrawals/:request_uuid/process
func (h *AdminHandler) ProcessWithdrawal(c *gin.Context) {
	requestUUID := c.Param("request_uuid")
	if requestUUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_uuid is required"})
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	result, err := h.withdrawalService.ProcessWithdrawal(c.Request.Context(), requestUUID, req.ActorID)
	if err != nil {
		writeServiceError(c, h.logger, "ProcessWithdrawal", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
