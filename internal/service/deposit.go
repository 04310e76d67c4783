package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChipStake/internal/interfaces"
	"ChipStake/internal/model"
	"ChipStake/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DepositResult 入金结果
type DepositResult struct {
	ChipAmount float64            `json:"chip_amount"`
	Rate       float64            `json:"rate"`
	Balances   model.UserBalances `json:"balances"`
}

// DepositService 入金服务：凭证幂等检查 → 外部校验 → 汇率折算 → 账本入账。
// 汇率只在入金折算时使用，结算全程不碰汇率。
type DepositService struct {
	logger   *logrus.Logger
	verifier interfaces.PaymentVerifier
	feed     interfaces.PriceFeed
	users    repository.UserRepository
	deposits repository.DepositRepository
	runTx    txRunner
}

// NewDepositService 创建入金服务
func NewDepositService(db *gorm.DB, logger *logrus.Logger, verifier interfaces.PaymentVerifier, feed interfaces.PriceFeed) *DepositService {
	return &DepositService{
		logger:   logger,
		verifier: verifier,
		feed:     feed,
		users:    repository.NewUserRepository(db),
		deposits: repository.NewDepositRepository(db),
		runTx:    gormTxRunner(db),
	}
}

// Deposit 入金。同一 signature 只入账一次（先查记录表再走外部校验），
// 入金记录 + deposit 入账为单个原子单元。
func (s *DepositService) Deposit(ctx context.Context, userID uint64, asset string, assetAmount float64,
	signature string, rawPayload map[string]interface{}) (*DepositResult, error) {

	if assetAmount <= 0 {
		return nil, &ValidationError{Rule: "deposit_amount_positive", Message: "入金数量必须大于 0"}
	}
	if signature == "" {
		return nil, &ValidationError{Rule: "deposit_signature_required", Message: "入金凭证必填"}
	}
	asset = strings.ToUpper(asset)

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", userID)}
		}
		return nil, err
	}

	// 幂等检查：已处理过的凭证直接拒绝
	existing, err := s.deposits.GetBySignature(ctx, signature)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ValidationError{Rule: "deposit_duplicate", Message: "该入金凭证已处理过"}
	}

	ok, err := s.verifier.VerifyDeposit(ctx, signature)
	if err != nil {
		var transient interface{ Transient() bool }
		return nil, &ExternalServiceFailureError{
			Service:   "payment_verifier",
			Transient: errors.As(err, &transient) && transient.Transient(),
			Err:       err,
		}
	}
	if !ok {
		return nil, &ValidationError{Rule: "deposit_not_verified", Message: "入金凭证未通过校验"}
	}

	// 入金时一次性取汇率折算 chip（1 chip = 1 USD）
	rate, err := s.feed.GetExchangeRate(ctx, asset)
	if err != nil {
		var transient interface{ Transient() bool }
		return nil, &ExternalServiceFailureError{
			Service:   "price_feed",
			Transient: errors.As(err, &transient) && transient.Transient(),
			Err:       err,
		}
	}
	chipAmount := assetAmount * rate

	rawBytes, _ := json.Marshal(rawPayload)
	if rawBytes == nil {
		rawBytes = []byte("{}")
	}

	var balances *model.UserBalances
	err = s.runTx(ctx, func(r *txRepos) error {
		record := &model.DepositRecord{
			UserID:      userID,
			Signature:   signature,
			Asset:       asset,
			AssetAmount: assetAmount,
			Rate:        rate,
			ChipAmount:  chipAmount,
			RawPayload:  datatypes.JSON(rawBytes),
			CreatedAt:   time.Now(),
		}
		// signature 唯一索引兜底并发重复入账
		if err := r.deposits.Create(ctx, record); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ValidationError{Rule: "deposit_duplicate", Message: "该入金凭证已处理过"}
			}
			return fmt.Errorf("创建入金记录失败: %w", err)
		}

		if _, err := r.users.LockByID(ctx, userID); err != nil {
			return err
		}
		if _, err := r.ledger.Append(ctx, userID, model.ChipCurrency, chipAmount,
			model.TxDeposit, "deposit", signature); err != nil {
			return fmt.Errorf("入金入账失败: %w", err)
		}

		after, err := computeBalancesWith(ctx, s.logger, r.ledger, r.bets, userID)
		if err != nil {
			return err
		}
		balances = after
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"asset":       asset,
		"amount":      assetAmount,
		"rate":        rate,
		"chip_amount": chipAmount,
	}).Info("入金成功")
	return &DepositResult{ChipAmount: chipAmount, Rate: rate, Balances: *balances}, nil
}
