package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChipStake/internal/cache"
	"ChipStake/internal/config"
	"ChipStake/internal/model"
	"ChipStake/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WagerService 下注引擎：校验 + 在单个事务内完成 注单创建/账本扣款/池额累加
type WagerService struct {
	logger      *logrus.Logger
	cfg         *config.BettingConfig
	events      repository.EventRepository
	users       repository.UserRepository
	bets        repository.BetRepository
	runTx       txRunner
	marketCache *cache.MarketCache // 可为 nil，则不做行情缓存失效
}

// NewWagerService 创建下注引擎。marketCache 可为 nil
func NewWagerService(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, marketCache *cache.MarketCache) *WagerService {
	return &WagerService{
		logger:      logger,
		cfg:         cfg,
		events:      repository.NewEventRepository(db),
		users:       repository.NewUserRepository(db),
		bets:        repository.NewBetRepository(db),
		runTx:       gormTxRunner(db),
		marketCache: marketCache,
	}
}

// PlaceBetResult 下注结果：新注单 + 下注后的四类余额
type PlaceBetResult struct {
	Bet      *model.Bet         `json:"bet"`
	Balances model.UserBalances `json:"balances"`
}

// ValidatePlacement 下注前置校验纯函数：金额区间、事件状态、封盘时间、选项合法性。
// 封盘时间优先于状态——即使状态尚未翻到 locked，过点即拒。
func ValidatePlacement(event *model.Event, choices []*model.EventChoice, choiceLabel string,
	now time.Time, amount float64, cfg *config.BettingConfig) error {

	if amount < cfg.MinBet || amount > cfg.MaxBet {
		return &ValidationError{
			Rule:    "bet_amount_range",
			Message: fmt.Sprintf("下注金额 %.6f 不在 [%.6f, %.6f] 区间内", amount, cfg.MinBet, cfg.MaxBet),
		}
	}
	if event.Status != model.EventActive {
		return &ValidationError{
			Rule:    "event_not_active",
			Message: fmt.Sprintf("事件状态 %s 不接受下注", event.Status),
		}
	}
	if !now.Before(event.LockTime) {
		return &ValidationError{
			Rule:    "event_locked",
			Message: "事件已过封盘时间",
		}
	}
	if _, err := findChoice(choices, choiceLabel); err != nil {
		return err
	}
	return nil
}

// findChoice 在事件选项中匹配标签，未命中返回 InvalidChoiceError
func findChoice(choices []*model.EventChoice, label string) (*model.EventChoice, error) {
	valid := make([]string, 0, len(choices))
	for _, c := range choices {
		valid = append(valid, c.Label)
	}
	for _, c := range choices {
		if c.Label == label {
			return c, nil
		}
	}
	return nil, &InvalidChoiceError{Choice: label, Valid: valid}
}

// PlaceBet 下注。创建 Bet(active) + 账本 bet_placed 扣款 + 选项池额累加为单个原子单元。
// 事务内先锁事件行并按锁内快照重新校验：结算引擎也以事件行锁开场，
// 两把锁互斥保证结算读"全部活跃注单"之后不可能再混入新注单；
// 同一用户的并发下注则靠用户行锁串行化余额检查-扣款，杜绝共用旧余额的双花。
func (s *WagerService) PlaceBet(ctx context.Context, userID, eventID uint64, choiceLabel string, amount float64) (*PlaceBetResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
		}
		return nil, err
	}
	choices, err := s.events.GetChoices(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// 锁外预检：明显不合法的请求不进事务（拒单为最终结论的场景占多数）
	if err := ValidatePlacement(event, choices, choiceLabel, time.Now(), amount, s.cfg); err != nil {
		// 过了封盘时间但状态还是 active：顺手把状态翻过去（尽力而为，失败不影响拒单）
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Rule == "event_locked" && event.Status == model.EventActive {
			if lockErr := s.events.UpdateStatus(ctx, event.ID, model.EventActive, model.EventLocked); lockErr != nil && !errors.Is(lockErr, repository.ErrStatusConflict) {
				s.logger.WithError(lockErr).WithField("event_id", event.ID).Warn("自动封盘失败")
			}
		}
		return nil, err
	}

	var result PlaceBetResult
	err = s.runTx(ctx, func(r *txRepos) error {
		// 1. 锁事件行并用锁内快照重新校验。与结算/取消的事件行锁互斥：
		//    结算一旦提交 completed，这里看到的状态就不再是 active，注单不会落地
		lockedEvent, err := r.events.LockByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
			}
			return err
		}
		now := time.Now()
		if err := ValidatePlacement(lockedEvent, choices, choiceLabel, now, amount, s.cfg); err != nil {
			return err
		}

		// 2. 锁用户行，串行化该用户的余额检查-扣款序列
		if _, err := r.users.LockByID(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", userID)}
			}
			return err
		}

		// 3. 锁内重算余额并校验可用额
		balances, err := computeBalancesWith(ctx, s.logger, r.ledger, r.bets, userID)
		if err != nil {
			return err
		}
		available := Available(*balances)
		if available+balanceEpsilon < amount {
			return &InsufficientFundsError{Available: available, Requested: amount}
		}

		// 4. 创建注单
		bet := &model.Bet{
			BetUUID:     uuid.NewString(),
			EventID:     eventID,
			UserID:      userID,
			ChoiceLabel: choiceLabel,
			Amount:      amount,
			Status:      model.BetActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.bets.Create(ctx, bet); err != nil {
			return fmt.Errorf("创建注单失败: %w", err)
		}

		// 5. 账本扣款（与注单同事务；running balance 兜底拒单时沿用同一口径的可用额）
		if _, err := r.ledger.Append(ctx, userID, model.ChipCurrency, -amount,
			model.TxBetPlaced, "bet", bet.BetUUID); err != nil {
			if errors.Is(err, repository.ErrNegativeBalance) {
				return &InsufficientFundsError{Available: available, Requested: amount}
			}
			if errors.Is(err, repository.ErrBrokenChain) {
				return &ConsistencyViolationError{UserID: userID, Detail: "下注扣款时发现账本链断裂"}
			}
			return fmt.Errorf("账本扣款失败: %w", err)
		}

		// 6. 选项池额累加（increment-on-insert，不做事后重算）
		if err := r.events.IncrementChoicePool(ctx, eventID, choiceLabel, amount); err != nil {
			return fmt.Errorf("累加选项池额失败: %w", err)
		}

		// 7. 锁内重算下注后的余额，与注单一并返回
		after, err := computeBalancesWith(ctx, s.logger, r.ledger, r.bets, userID)
		if err != nil {
			return err
		}
		result.Bet = bet
		result.Balances = *after
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.marketCache != nil {
		s.marketCache.Invalidate(ctx, event.EventUUID)
	}
	s.logger.WithFields(logrus.Fields{
		"bet_uuid": result.Bet.BetUUID,
		"event_id": eventID,
		"user_id":  userID,
		"choice":   choiceLabel,
		"amount":   amount,
	}).Info("下注成功")
	return &result, nil
}

// ListBetsByUser 用户注单列表
func (s *WagerService) ListBetsByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Bet, int64, error) {
	return s.bets.ListByUser(ctx, userID, page, pageSize)
}
