package api

import (
	"net/http"
	"strconv"

	"ChipStake/internal/cache"
	"ChipStake/internal/config"
	"ChipStake/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BetHandler 下注与注单查询接口
type BetHandler struct {
	wagerService *service.WagerService
	logger       *logrus.Logger
}

// NewBetHandler 创建 BetHandler。marketCache 可为 nil
func NewBetHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, marketCache *cache.MarketCache) *BetHandler {
	return &BetHandler{
		wagerService: service.NewWagerService(db, logger, cfg, marketCache),
		logger:       logger,
	}
}

// placeBetRequest 下注请求体
type placeBetRequest struct {
	UserID      uint64  `json:"user_id" binding:"required"`
	EventID     uint64  `json:"event_id" binding:"required"`
	ChoiceLabel string  `json:"choice_label" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
}

// PlaceBet 下注 POST /api/bets
func (h *BetHandler) PlaceBet(c *gin.Context) {
	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	result, err := h.wagerService.PlaceBet(c.Request.Context(), req.UserID, req.EventID, req.ChoiceLabel, req.Amount)
	if err != nil {
		writeServiceError(c, h.logger, "PlaceBet", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListUserBets 用户注单列表 GET /api/users/:user_id/bets?page=1&page_size=20
func (h *BetHandler) ListUserBets(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 非法"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	bets, total, err := h.wagerService.ListBetsByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, "ListUserBets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"items":     bets,
	})
}
