package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ChipStake/internal/model"
	"ChipStake/internal/repository"
	"ChipStake/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WalletHandler 钱包侧接口：注册、余额、流水、入金、提现申请
type WalletHandler struct {
	balanceService    *service.BalanceService
	depositService    *service.DepositService
	withdrawalService *service.WithdrawalService
	users             repository.UserRepository
	logger            *logrus.Logger
}

// NewWalletHandler 创建 WalletHandler
func NewWalletHandler(db *gorm.DB, logger *logrus.Logger,
	balanceService *service.BalanceService,
	depositService *service.DepositService,
	withdrawalService *service.WithdrawalService) *WalletHandler {
	return &WalletHandler{
		balanceService:    balanceService,
		depositService:    depositService,
		withdrawalService: withdrawalService,
		users:             repository.NewUserRepository(db),
		logger:            logger,
	}
}

// registerRequest 注册请求体
type registerRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// Register 钱包地址注册（已注册则直接返回现有用户）
// POST /api/users
func (h *WalletHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	existing, err := h.users.GetByWallet(c.Request.Context(), req.WalletAddress)
	if err == nil {
		c.JSON(http.StatusOK, existing)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeServiceError(c, h.logger, "Register", err)
		return
	}

	now := time.Now()
	user := &model.User{
		WalletAddress: req.WalletAddress,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		// 并发注册撞唯一索引时回查一次
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, qerr := h.users.GetByWallet(c.Request.Context(), req.WalletAddress); qerr == nil {
				c.JSON(http.StatusOK, existing)
				return
			}
		}
		writeServiceError(c, h.logger, "Register", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetBalances 四类余额 GET /api/users/:user_id/balances
func (h *WalletHandler) GetBalances(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 非法"})
		return
	}

	balances, err := h.balanceService.ComputeBalances(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, "GetBalances", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balances":  balances,
		"available": service.Available(*balances),
	})
}

// ListTransactions 账本流水 GET /api/users/:user_id/transactions?page=1&page_size=20
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 非法"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.balanceService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, "ListTransactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"items":     entries,
	})
}

// depositRequest 入金请求体
type depositRequest struct {
	UserID      uint64                 `json:"user_id" binding:"required"`
	Asset       string                 `json:"asset" binding:"required"`
	AssetAmount float64                `json:"asset_amount" binding:"required,gt=0"`
	Signature   string                 `json:"signature" binding:"required"`
	RawPayload  map[string]interface{} `json:"raw_payload"`
}

// Deposit 入金 POST /api/deposits
func (h *WalletHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	result, err := h.depositService.Deposit(c.Request.Context(), req.UserID, req.Asset, req.AssetAmount, req.Signature, req.RawPayload)
	if err != nil {
		writeServiceError(c, h.logger, "Deposit", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// withdrawalRequest 提现申请请求体
type withdrawalRequest struct {
	UserID   uint64  `json:"user_id" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency"`
	Address  string  `json:"address" binding:"required"`
	Chain    string  `json:"chain" binding:"required"`
}

// RequestWithdrawal 提现申请（创建即冻结）POST /api/withdrawals
func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	request, err := h.withdrawalService.RequestWithdrawal(c.Request.Context(), req.UserID, req.Amount, req.Currency,
		service.WithdrawalDestination{Address: req.Address, Chain: req.Chain})
	if err != nil {
		writeServiceError(c, h.logger, "RequestWithdrawal", err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// ListWithdrawals 用户提现记录 GET /api/users/:user_id/withdrawals?page=1&page_size=20
func (h *WalletHandler) ListWithdrawals(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 非法"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	requests, total, err := h.withdrawalService.ListByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, h.logger, "ListWithdrawals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"items":     requests,
	})
}
