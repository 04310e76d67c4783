package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ChipStake/internal/model"
	"ChipStake/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// balanceEpsilon numeric(18,6) 下的浮点比较容差
const balanceEpsilon = 1e-6

// ProjectBalances 余额投影纯函数：对账本流水做一次折叠，按流水类型归类到
// purchased/won/free 三个累加桶；locked 不从账本推导，由调用方传入活跃注单
// 金额之和（账本的 bet_placed 扣款不记录扣的是哪类筹码，锁定额只能从当前
// 活跃注单实时聚合——两套推导来源并存是刻意保留的行为）。
//
// 折叠过程同时校验 running-balance 链：
// entries[n].balance_after == entries[n].balance_before + amount，
// entries[n+1].balance_before == entries[n].balance_after，
// 任一断裂即返回 ConsistencyViolationError，不产出余额。
//
// 桶值为负（数据损坏）时截断到 0 并返回 clamp 记录供上层记日志审计，
// 这是文档化的防御性下限，不是静默吞错。
func ProjectBalances(userID uint64, entries []*model.ChipTransaction, lockedSum float64) (model.UserBalances, []string, error) {
	var purchased, won, free float64

	for i, e := range entries {
		if math.Abs(e.BalanceBefore+e.Amount-e.BalanceAfter) > balanceEpsilon {
			return model.UserBalances{}, nil, &ConsistencyViolationError{
				UserID: userID,
				Detail: fmt.Sprintf("流水 %s: balance_before(%.6f)+amount(%.6f) != balance_after(%.6f)",
					e.TxUUID, e.BalanceBefore, e.Amount, e.BalanceAfter),
			}
		}
		if i > 0 && math.Abs(entries[i-1].BalanceAfter-e.BalanceBefore) > balanceEpsilon {
			return model.UserBalances{}, nil, &ConsistencyViolationError{
				UserID: userID,
				Detail: fmt.Sprintf("流水 %s 与前条 %s 不连续: prev.after=%.6f, cur.before=%.6f",
					e.TxUUID, entries[i-1].TxUUID, entries[i-1].BalanceAfter, e.BalanceBefore),
			}
		}
		if e.BalanceAfter < -balanceEpsilon {
			return model.UserBalances{}, nil, &ConsistencyViolationError{
				UserID: userID,
				Detail: fmt.Sprintf("流水 %s 后总余额为负: %.6f", e.TxUUID, e.BalanceAfter),
			}
		}

		switch e.TxType.Bucket() {
		case model.BucketPurchased:
			purchased += e.Amount
		case model.BucketWon:
			won += e.Amount
		case model.BucketFree:
			free += e.Amount
		case model.BucketNone:
			// bet_placed / event_create 扣款只影响总余额链，不参与分类桶
		}
	}

	var clamps []string
	if purchased < 0 {
		clamps = append(clamps, fmt.Sprintf("purchased 为负(%.6f)已截断到 0", purchased))
		purchased = 0
	}
	if won < 0 {
		clamps = append(clamps, fmt.Sprintf("won 为负(%.6f)已截断到 0", won))
		won = 0
	}
	if free < 0 {
		clamps = append(clamps, fmt.Sprintf("free 为负(%.6f)已截断到 0", free))
		free = 0
	}
	if lockedSum < 0 {
		clamps = append(clamps, fmt.Sprintf("locked 为负(%.6f)已截断到 0", lockedSum))
		lockedSum = 0
	}

	return model.UserBalances{
		Purchased: purchased,
		Won:       won,
		Free:      free,
		Locked:    lockedSum,
		Total:     purchased + won + free,
	}, clamps, nil
}

// Available 可用于下注的余额：分类总额减去活跃注单锁定额，下限 0
func Available(b model.UserBalances) float64 {
	avail := b.Total - b.Locked
	if avail < 0 {
		avail = 0
	}
	return avail
}

// BalanceService 余额投影服务：账本折叠 + 活跃注单聚合，两个来源合成四类余额
type BalanceService struct {
	db     *gorm.DB
	logger *logrus.Logger
	ledger repository.LedgerRepository
	bets   repository.BetRepository
	users  repository.UserRepository
}

// NewBalanceService 创建余额投影服务
func NewBalanceService(db *gorm.DB, logger *logrus.Logger) *BalanceService {
	return &BalanceService{
		db:     db,
		logger: logger,
		ledger: repository.NewLedgerRepository(db),
		bets:   repository.NewBetRepository(db),
		users:  repository.NewUserRepository(db),
	}
}

// ComputeBalances 按需重算某用户的四类余额。用户不存在返回 NotFoundError；
// 用户存在但没有任何流水返回全零余额。
func (s *BalanceService) ComputeBalances(ctx context.Context, userID uint64) (*model.UserBalances, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", userID)}
		}
		return nil, err
	}
	return computeBalancesWith(ctx, s.logger, s.ledger, s.bets, userID)
}

// computeBalancesWith 用给定仓储计算余额。事务内调用时传入基于 tx 构建的仓储，
// 使余额快照与后续扣款处于同一隔离上下文。
func computeBalancesWith(ctx context.Context, logger *logrus.Logger,
	ledger repository.LedgerRepository, bets repository.BetRepository, userID uint64) (*model.UserBalances, error) {

	entries, err := ledger.ListAllByUser(ctx, userID, model.ChipCurrency)
	if err != nil {
		return nil, fmt.Errorf("读取账本失败: %w", err)
	}
	lockedSum, err := bets.SumActiveAmountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("聚合活跃注单失败: %w", err)
	}

	balances, clamps, err := ProjectBalances(userID, entries, lockedSum)
	if err != nil {
		return nil, err
	}
	for _, c := range clamps {
		logger.WithField("user_id", userID).Warn("余额桶截断: " + c)
	}
	return &balances, nil
}

// ListTransactions 分页返回用户账本流水（账单页）
func (s *BalanceService) ListTransactions(ctx context.Context, userID uint64, page, pageSize int) ([]*model.ChipTransaction, int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", userID)}
		}
		return nil, 0, err
	}
	return s.ledger.ListByUser(ctx, userID, model.ChipCurrency, page, pageSize)
}
