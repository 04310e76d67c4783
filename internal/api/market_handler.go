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

// MarketHandler 提供给前端的盘口查询接口
type MarketHandler struct {
	marketService *service.MarketService
	logger        *logrus.Logger
}

// NewMarketHandler 创建 MarketHandler。marketCache 可为 nil（未配置 Redis 时直读库）
func NewMarketHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, marketCache *cache.MarketCache) *MarketHandler {
	return &MarketHandler{
		marketService: service.NewMarketService(db, logger, cfg, marketCache),
		logger:        logger,
	}
}

// ListMarkets 盘口列表接口
// GET /api/markets?status=active&page=1&page_size=20
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	status := c.DefaultQuery("status", "active")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.marketService.ListMarkets(c.Request.Context(), status, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, "ListMarkets", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMarketDetail 单盘详情（选项 + 各选项池额）
// GET /api/markets/:event_uuid
func (h *MarketHandler) GetMarketDetail(c *gin.Context) {
	eventUUID := c.Param("event_uuid")
	if eventUUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_uuid is required"})
		return
	}

	result, err := h.marketService.GetMarketDetail(c.Request.Context(), eventUUID)
	if err != nil {
		writeServiceError(c, h.logger, "GetMarketDetail", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
