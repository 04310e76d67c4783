package service

import (
	"context"

	"ChipStake/internal/repository"

	"gorm.io/gorm"
)

// txRepos 同一事务作用域内的仓储集合。事务内的全部读写都经由这里，
// 保证余额快照、扣款与状态迁移处于同一隔离上下文。
type txRepos struct {
	users       repository.UserRepository
	ledger      repository.LedgerRepository
	bets        repository.BetRepository
	events      repository.EventRepository
	payouts     repository.PayoutRepository
	withdrawals repository.WithdrawalRepository
	deposits    repository.DepositRepository
}

// txRunner 在一个事务内执行 fn，fn 只通过事务作用域仓储访问数据。
// 服务持有它而不是直接调 db.Transaction，测试时可替换为内存实现。
type txRunner func(ctx context.Context, fn func(r *txRepos) error) error

// gormTxRunner 生产实现：db.Transaction + 基于 tx 构建全套仓储
func gormTxRunner(db *gorm.DB) txRunner {
	return func(ctx context.Context, fn func(r *txRepos) error) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return fn(&txRepos{
				users:       repository.NewUserRepository(tx),
				ledger:      repository.NewLedgerRepository(tx),
				bets:        repository.NewBetRepository(tx),
				events:      repository.NewEventRepository(tx),
				payouts:     repository.NewPayoutRepository(tx),
				withdrawals: repository.NewWithdrawalRepository(tx),
				deposits:    repository.NewDepositRepository(tx),
			})
		})
	}
}
