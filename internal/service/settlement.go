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

// PayoutItem 单笔派彩明细
type PayoutItem struct {
	BetID   uint64  `json:"bet_id"`
	BetUUID string  `json:"bet_uuid"`
	UserID  uint64  `json:"user_id"`
	Stake   float64 `json:"stake"`
	Payout  float64 `json:"payout"`
}

// PayoutCalculation 结算计算结果（纯计算阶段产物，提交前无任何副作用）
type PayoutCalculation struct {
	EventID          uint64       `json:"event_id"`
	WinningChoice    string       `json:"winning_choice"`
	TotalPool        float64      `json:"total_pool"`
	WinningPool      float64      `json:"winning_pool"`
	EventRakeAmount  float64      `json:"event_rake_amount"`
	PrizeRakeAmount  float64      `json:"prize_rake_amount"`
	DistributionPool float64      `json:"distribution_pool"`
	Degenerate       bool         `json:"degenerate"` // winning_pool==0，全额退注，不收抽成
	Winners          []PayoutItem `json:"winners"`
	LosingBetIDs     []uint64     `json:"-"`
}

// DistributionResult 派彩分发结果
type DistributionResult struct {
	EventID      uint64  `json:"event_id"`
	Credited     int     `json:"credited"`     // 本次入账的派彩数
	Skipped      int     `json:"skipped"`      // 已 completed 被幂等跳过的数量
	Failed       int     `json:"failed"`       // 入账失败、保持 pending 的数量
	TotalAmount  float64 `json:"total_amount"` // 本次入账总额
	EventPaidOut bool    `json:"event_paid_out"`
}

// RefundResult 退注结果
type RefundResult struct {
	EventID  uint64  `json:"event_id"`
	Refunded int     `json:"refunded"`
	Skipped  int     `json:"skipped"` // 已处于终态被跳过的注单数
	Failed   int     `json:"failed"`
	Amount   float64 `json:"amount"`
}

// ComputePayouts 结算计算纯函数（pari-mutuel）：
//  1. totalPool = Σ choice.total_pool，winningPool = 获胜选项池额；
//  2. winningPool == 0 时退化为全额退注：不收任何抽成，跳过派彩；
//  3. 否则两段抽成：先按事件 rake_fraction 抽事件佣金，
//     再对剩余部分按全局 prizeRakeFraction 抽奖池佣金，余下为分配池；
//  4. 每笔中奖注单按 stake/winningPool 比例分得分配池，严格按比例，
//     不设最低派彩，Σ payout 与分配池的差只来自浮点精度。
func ComputePayouts(event *model.Event, choices []*model.EventChoice, activeBets []*model.Bet,
	prizeRakeFraction float64, winningChoice string) (*PayoutCalculation, error) {

	winning, err := findChoice(choices, winningChoice)
	if err != nil {
		return nil, err
	}

	calc := &PayoutCalculation{
		EventID:       event.ID,
		WinningChoice: winningChoice,
	}
	for _, c := range choices {
		calc.TotalPool += c.TotalPool
	}
	calc.WinningPool = winning.TotalPool

	// 无人押中获胜选项：pari-mutuel 分母为零无定义，政策上退化为全场退注
	if calc.WinningPool <= 0 {
		calc.Degenerate = true
		return calc, nil
	}

	calc.EventRakeAmount = calc.TotalPool * event.RakeFraction
	poolAfterEventRake := calc.TotalPool - calc.EventRakeAmount
	calc.PrizeRakeAmount = poolAfterEventRake * prizeRakeFraction
	calc.DistributionPool = poolAfterEventRake - calc.PrizeRakeAmount

	for _, b := range activeBets {
		if b.ChoiceLabel == winningChoice {
			calc.Winners = append(calc.Winners, PayoutItem{
				BetID:   b.ID,
				BetUUID: b.BetUUID,
				UserID:  b.UserID,
				Stake:   b.Amount,
				Payout:  calc.DistributionPool * (b.Amount / calc.WinningPool),
			})
		} else {
			calc.LosingBetIDs = append(calc.LosingBetIDs, b.ID)
		}
	}
	return calc, nil
}

// SettlementService 结算引擎：resolve（计算+原子提交）、distribute（派彩入账）、
// refund（取消退注）。所有阶段迁移都由管理操作驱动，没有后台调度。
type SettlementService struct {
	logger      *logrus.Logger
	cfg         *config.BettingConfig
	events      repository.EventRepository
	bets        repository.BetRepository
	payouts     repository.PayoutRepository
	runTx       txRunner
	marketCache *cache.MarketCache
}

// NewSettlementService 创建结算引擎。marketCache 可为 nil
func NewSettlementService(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, marketCache *cache.MarketCache) *SettlementService {
	return &SettlementService{
		logger:      logger,
		cfg:         cfg,
		events:      repository.NewEventRepository(db),
		bets:        repository.NewBetRepository(db),
		payouts:     repository.NewPayoutRepository(db),
		runTx:       gormTxRunner(db),
		marketCache: marketCache,
	}
}

// Resolve 结算事件：锁事件行后读取池额与全部活跃注单做纯计算，
// 然后在同一事务内提交 事件→completed、注单批量终态、派彩记录(pending)。
// 下注引擎在自己的事务里同样先锁事件行再落注单，两把锁互斥：
// 这里读完"全部活跃注单"之后不可能再有新注单混入。
func (s *SettlementService) Resolve(ctx context.Context, eventID uint64, winningChoice string, actorID uint64) (*PayoutCalculation, error) {
	var calc *PayoutCalculation
	var eventUUID string
	err := s.runTx(ctx, func(r *txRepos) error {
		event, err := r.events.LockByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
			}
			return err
		}
		eventUUID = event.EventUUID
		if !event.Status.CanTransition(model.EventCompleted) {
			return &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(model.EventCompleted)}
		}

		choices, err := r.events.GetChoices(ctx, eventID)
		if err != nil {
			return err
		}
		activeBets, err := r.bets.ListActiveByEvent(ctx, eventID)
		if err != nil {
			return err
		}

		// 纯计算阶段，提交前无副作用
		calc, err = ComputePayouts(event, choices, activeBets, s.cfg.PrizeRakeFraction, winningChoice)
		if err != nil {
			return err
		}

		// 提交阶段
		if err := r.events.UpdateStatus(ctx, eventID, event.Status, model.EventCompleted); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(model.EventCompleted)}
			}
			return err
		}
		if err := r.events.SetResolution(ctx, eventID, winningChoice, actorID); err != nil {
			return err
		}

		if calc.Degenerate {
			// 全场退注：每笔活跃注单 退注入账+置 refunded，同一事务内完成，不产生派彩行
			for _, b := range activeBets {
				if err := refundBet(ctx, r, b); err != nil {
					return err
				}
			}
			return nil
		}

		winnerIDs := make([]uint64, 0, len(calc.Winners))
		payoutRows := make([]*model.Payout, 0, len(calc.Winners))
		for _, w := range calc.Winners {
			winnerIDs = append(winnerIDs, w.BetID)
			payoutRows = append(payoutRows, &model.Payout{
				PayoutUUID: uuid.NewString(),
				EventID:    eventID,
				UserID:     w.UserID,
				BetID:      w.BetID,
				Amount:     w.Payout,
				Status:     model.PayoutPending,
				CreatedAt:  time.Now(),
			})
		}
		if n, err := r.bets.MarkSettledBulk(ctx, winnerIDs, model.BetWon); err != nil {
			return err
		} else if int(n) != len(winnerIDs) {
			return fmt.Errorf("中奖注单状态迁移不完整: 期望 %d 实际 %d", len(winnerIDs), n)
		}
		if n, err := r.bets.MarkSettledBulk(ctx, calc.LosingBetIDs, model.BetLost); err != nil {
			return err
		} else if int(n) != len(calc.LosingBetIDs) {
			return fmt.Errorf("未中奖注单状态迁移不完整: 期望 %d 实际 %d", len(calc.LosingBetIDs), n)
		}
		if err := r.payouts.CreateBatch(ctx, payoutRows); err != nil {
			return fmt.Errorf("创建派彩记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.marketCache != nil {
		s.marketCache.Invalidate(ctx, eventUUID)
	}
	s.logger.WithFields(logrus.Fields{
		"event_id":          eventID,
		"winning_choice":    winningChoice,
		"total_pool":        calc.TotalPool,
		"winning_pool":      calc.WinningPool,
		"distribution_pool": calc.DistributionPool,
		"degenerate":        calc.Degenerate,
		"actor_id":          actorID,
	}).Info("事件已结算")
	return calc, nil
}

// Distribute 分发派彩：逐笔将 pending 派彩转为账本 bet_won 入账并置 completed。
// 每笔派彩独立事务，单笔失败保持 pending、不阻塞批次其余派彩；
// 重试分发靠 pending→completed 条件更新幂等，绝不重复入账。
// 仅当不存在 pending 派彩时事件才迁移到 paid_out。
func (s *SettlementService) Distribute(ctx context.Context, eventID uint64, actorID uint64) (*DistributionResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
		}
		return nil, err
	}
	if event.Status != model.EventCompleted && event.Status != model.EventPaidOut {
		return nil, &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(model.EventPaidOut)}
	}

	pending, err := s.payouts.ListPendingByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{EventID: eventID}
	for _, p := range pending {
		err := s.runTx(ctx, func(r *txRepos) error {
			// 先抢状态：并发分发下输掉条件更新的一方幂等跳过
			if err := r.payouts.MarkCompleted(ctx, p.ID); err != nil {
				return err
			}
			if _, err := r.users.LockByID(ctx, p.UserID); err != nil {
				return err
			}
			if _, err := r.ledger.Append(ctx, p.UserID, model.ChipCurrency, p.Amount,
				model.TxBetWon, "payout", p.PayoutUUID); err != nil {
				return err
			}
			return nil
		})
		if errors.Is(err, repository.ErrStatusConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("payout_uuid", p.PayoutUUID).Error("派彩入账失败，保持 pending")
			continue
		}
		result.Credited++
		result.TotalAmount += p.Amount
	}

	remaining, err := s.payouts.CountPendingByEvent(ctx, eventID)
	if err != nil {
		return result, err
	}
	if remaining == 0 && event.Status == model.EventCompleted {
		if err := s.events.UpdateStatus(ctx, eventID, model.EventCompleted, model.EventPaidOut); err == nil {
			result.EventPaidOut = true
			if err := s.events.SetDistributed(ctx, eventID, actorID); err != nil {
				s.logger.WithError(err).WithField("event_id", eventID).Warn("写入派彩审计字段失败")
			}
		} else if !errors.Is(err, repository.ErrStatusConflict) {
			return result, err
		}
	}
	if event.Status == model.EventPaidOut {
		result.EventPaidOut = true
	}

	s.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"credited": result.Credited,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"amount":   result.TotalAmount,
		"actor_id": actorID,
	}).Info("派彩分发完成")
	return result, nil
}

// Cancel 取消事件（completed 之前任意状态），取消后立即退还全部活跃注单。
// cancelled 为终态，之后不允许任何派彩。
func (s *SettlementService) Cancel(ctx context.Context, eventID uint64, actorID uint64) (*RefundResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
		}
		return nil, err
	}
	if !event.Status.CanTransition(model.EventCancelled) {
		return nil, &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(model.EventCancelled)}
	}
	if err := s.events.UpdateStatus(ctx, eventID, event.Status, model.EventCancelled); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(model.EventCancelled)}
		}
		return nil, err
	}
	if s.marketCache != nil {
		s.marketCache.Invalidate(ctx, event.EventUUID)
	}
	s.logger.WithField("event_id", eventID).WithField("actor_id", actorID).Info("事件已取消，开始退注")
	return s.Refund(ctx, eventID)
}

// Refund 退还已取消事件的全部活跃注单。逐笔独立事务、按注单幂等：
// 已处于终态的注单跳过不二次退款，失败注单保留 active 供重试。
func (s *SettlementService) Refund(ctx context.Context, eventID uint64) (*RefundResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
		}
		return nil, err
	}
	if event.Status != model.EventCancelled {
		return nil, &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: "refunding"}
	}

	activeBets, err := s.bets.ListActiveByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &RefundResult{EventID: eventID}
	for _, b := range activeBets {
		err := s.runTx(ctx, func(r *txRepos) error {
			return refundBet(ctx, r, b)
		})
		if errors.Is(err, repository.ErrStatusConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("bet_uuid", b.BetUUID).Error("退注失败，注单保持 active")
			continue
		}
		result.Refunded++
		result.Amount += b.Amount
	}

	s.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"refunded": result.Refunded,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"amount":   result.Amount,
	}).Info("退注完成")
	return result, nil
}

// refundBet 退还单笔注单：先抢 active→refunded 状态（幂等闸门），
// 再锁用户行按原额做 bet_refund 入账（计入 won 桶，与派彩走同一入账机制）。
func refundBet(ctx context.Context, r *txRepos, bet *model.Bet) error {
	if err := r.bets.MarkSettled(ctx, bet.ID, model.BetRefunded); err != nil {
		return err
	}
	if _, err := r.users.LockByID(ctx, bet.UserID); err != nil {
		return err
	}
	if _, err := r.ledger.Append(ctx, bet.UserID, model.ChipCurrency, bet.Amount,
		model.TxBetRefund, "bet", bet.BetUUID); err != nil {
		return err
	}
	return nil
}
