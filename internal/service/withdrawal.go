package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ChipStake/internal/config"
	"ChipStake/internal/interfaces"
	"ChipStake/internal/model"
	"ChipStake/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WithdrawalDestination 收款信息（落库到 withdrawal_requests.destination）
type WithdrawalDestination struct {
	Address string `json:"address" binding:"required"`
	Chain   string `json:"chain" binding:"required"`
}

// ProcessResult 提现处理结果
type ProcessResult struct {
	RequestUUID string                 `json:"request_uuid"`
	Status      model.WithdrawalStatus `json:"status"`
	ExternalRef string                 `json:"external_ref,omitempty"`
	FailReason  string                 `json:"fail_reason,omitempty"`
}

// WithdrawalService 提现协调器：创建即冻结（先记 cashout 扣款再调外部放款），
// 外部放款永久失败时在同一事务内补偿回冲，冻结绝不静默丢失。
type WithdrawalService struct {
	logger      *logrus.Logger
	cfg         *config.BettingConfig
	disburser   interfaces.Disburser
	withdrawals repository.WithdrawalRepository
	runTx       txRunner
}

// NewWithdrawalService 创建提现协调器
func NewWithdrawalService(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, disburser interfaces.Disburser) *WithdrawalService {
	return &WithdrawalService{
		logger:      logger,
		cfg:         cfg,
		disburser:   disburser,
		withdrawals: repository.NewWithdrawalRepository(db),
		runTx:       gormTxRunner(db),
	}
}

// RequestWithdrawal 发起提现。仅 won 类筹码可提现（purchased/free 类别不可提），
// 额度不足返回 InsufficientWonBalanceError 以区别于一般余额不足。
// 创建请求与 cashout 冻结扣款为单个原子单元。
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uint64, amount float64,
	currency string, dest WithdrawalDestination) (*model.WithdrawalRequest, error) {

	if amount <= 0 {
		return nil, &ValidationError{Rule: "withdrawal_amount_positive", Message: "提现金额必须大于 0"}
	}
	if dest.Address == "" || dest.Chain == "" {
		return nil, &ValidationError{Rule: "withdrawal_destination", Message: "收款地址与链标识必填"}
	}
	if currency == "" {
		currency = "USDC"
	}

	destJSON, err := json.Marshal(dest)
	if err != nil {
		return nil, err
	}

	var req *model.WithdrawalRequest
	err = s.runTx(ctx, func(r *txRepos) error {
		// 锁用户行，串行化 won 余额检查-冻结序列
		if _, err := r.users.LockByID(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", userID)}
			}
			return err
		}
		balances, err := computeBalancesWith(ctx, s.logger, r.ledger, r.bets, userID)
		if err != nil {
			return err
		}
		if balances.Won+balanceEpsilon < amount {
			return &InsufficientWonBalanceError{Available: balances.Won, Requested: amount}
		}

		now := time.Now()
		req = &model.WithdrawalRequest{
			RequestUUID: uuid.NewString(),
			UserID:      userID,
			Amount:      amount,
			Currency:    currency,
			Destination: datatypes.JSON(destJSON),
			Status:      model.WithdrawalPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.withdrawals.Create(ctx, req); err != nil {
			return fmt.Errorf("创建提现请求失败: %w", err)
		}

		// 冻结：外部转账发起前先记 cashout 扣款，挡住 pending 期间的双花
		if _, err := r.ledger.Append(ctx, userID, model.ChipCurrency, -amount,
			model.TxCashout, "withdrawal", req.RequestUUID); err != nil {
			if errors.Is(err, repository.ErrNegativeBalance) {
				return &InsufficientWonBalanceError{Available: balances.Won, Requested: amount}
			}
			return fmt.Errorf("提现冻结扣款失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_uuid": req.RequestUUID,
		"user_id":      userID,
		"amount":       amount,
		"currency":     currency,
	}).Info("提现请求已创建并冻结")
	return req, nil
}

// ProcessWithdrawal 处理一笔 pending 提现：调用外部放款接口。
//   - 成功：请求置 completed，记录外部凭证号；
//   - 临时故障：请求保持 pending，向调用方返回可重试的 ExternalServiceFailureError；
//   - 永久失败：同一事务内 请求置 rejected + cashout_revert 补偿回冲，
//     调用方看到的是终态 rejected，不是异常。
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, requestUUID string, actorID uint64) (*ProcessResult, error) {
	req, err := s.withdrawals.GetByUUID(ctx, requestUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "提现请求", Key: requestUUID}
		}
		return nil, err
	}
	if req.Status != model.WithdrawalPending {
		return nil, &InvalidStateTransitionError{Entity: "提现请求", From: string(req.Status), To: "processing"}
	}

	var dest WithdrawalDestination
	if err := json.Unmarshal(req.Destination, &dest); err != nil {
		return nil, fmt.Errorf("解析收款信息失败: %w", err)
	}

	externalRef, sendErr := s.disburser.SendFunds(ctx, &interfaces.SendFundsRequest{
		Address:        dest.Address,
		Chain:          dest.Chain,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.RequestUUID, // 重试沿用请求号，外部侧幂等
	})
	if sendErr == nil {
		if err := s.withdrawals.MarkCompleted(ctx, req.ID, externalRef, actorID); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return nil, &InvalidStateTransitionError{Entity: "提现请求", From: "并发已处理", To: string(model.WithdrawalCompleted)}
			}
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"request_uuid": requestUUID,
			"external_ref": externalRef,
			"actor_id":     actorID,
		}).Info("提现放款成功")
		return &ProcessResult{RequestUUID: requestUUID, Status: model.WithdrawalCompleted, ExternalRef: externalRef}, nil
	}

	// 临时故障：保持 pending 等待重试
	var transient interface{ Transient() bool }
	if errors.As(sendErr, &transient) && transient.Transient() {
		s.logger.WithError(sendErr).WithField("request_uuid", requestUUID).Warn("放款临时故障，保持 pending 可重试")
		return nil, &ExternalServiceFailureError{Service: "disburser", Transient: true, Err: sendErr}
	}

	// 永久失败：拒绝 + 补偿回冲，二者同一事务
	reason := sendErr.Error()
	if len(reason) > 250 {
		reason = reason[:250]
	}
	err = s.runTx(ctx, func(r *txRepos) error {
		if err := r.withdrawals.MarkRejected(ctx, req.ID, reason, actorID); err != nil {
			return err
		}
		if _, err := r.users.LockByID(ctx, req.UserID); err != nil {
			return err
		}
		if _, err := r.ledger.Append(ctx, req.UserID, model.ChipCurrency, req.Amount,
			model.TxCashoutRevert, "withdrawal", req.RequestUUID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, &InvalidStateTransitionError{Entity: "提现请求", From: "并发已处理", To: string(model.WithdrawalRejected)}
		}
		// 补偿失败必须大声失败：冻结还挂在账上，留给重试/人工对账
		return nil, fmt.Errorf("放款失败且补偿回冲未完成，请求保持 pending: %w", err)
	}

	s.logger.WithError(sendErr).WithFields(logrus.Fields{
		"request_uuid": requestUUID,
		"actor_id":     actorID,
	}).Warn("放款永久失败，已补偿回冲")
	return &ProcessResult{RequestUUID: requestUUID, Status: model.WithdrawalRejected, FailReason: reason}, nil
}

// ListByUser 用户提现记录
func (s *WithdrawalService) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	return s.withdrawals.ListByUser(ctx, userID, page, pageSize)
}
