package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"ChipStake/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNegativeBalance 追加后总余额为负，追加被拒绝（service 层应先做余额校验）
	ErrNegativeBalance = errors.New("追加流水后余额为负")
	// ErrBrokenChain 末条流水的 balance_after 与链上连续性不符，账本已损坏
	ErrBrokenChain = errors.New("账本 running-balance 链断裂")
)

// balanceEpsilon numeric(18,6) 下的浮点比较容差
const balanceEpsilon = 1e-6

// LedgerRepository 账本仓储。账本为 append-only：只有 Append 一个写入口，
// 不提供任何更新/删除方法。
type LedgerRepository interface {
	// Append 追加一条流水并维护 running balance。
	// 必须在事务内调用，且调用方已通过 UserRepository.LockByID 锁定该用户行，
	// 以串行化同一用户的并发余额检查与扣款。
	Append(ctx context.Context, userID uint64, currency string, amount float64,
		txType model.TransactionType, refType, refID string) (*model.ChipTransaction, error)
	// ListAllByUser 按创建顺序返回该用户某币种的全部流水（余额投影用）
	ListAllByUser(ctx context.Context, userID uint64, currency string) ([]*model.ChipTransaction, error)
	// ListByUser 分页返回流水（新→旧，给前端账单页用）
	ListByUser(ctx context.Context, userID uint64, currency string, page, pageSize int) ([]*model.ChipTransaction, int64, error)
	// LastEntry 返回该用户某币种的末条流水，无流水时返回 nil
	LastEntry(ctx context.Context, userID uint64, currency string) (*model.ChipTransaction, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账本仓储
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, userID uint64, currency string, amount float64,
	txType model.TransactionType, refType, refID string) (*model.ChipTransaction, error) {

	// 读末条流水拿 balance_before。用户行已被锁定，这里不会与同一用户的并发追加交错。
	last, err := r.lastEntryLocked(ctx, userID, currency)
	if err != nil {
		return nil, err
	}

	before := 0.0
	if last != nil {
		before = last.BalanceAfter
		// 防御性校验：末条流水自身必须满足 before + amount == after
		if math.Abs(last.BalanceBefore+last.Amount-last.BalanceAfter) > balanceEpsilon {
			return nil, ErrBrokenChain
		}
	}
	after := before + amount
	if after < -balanceEpsilon {
		return nil, ErrNegativeBalance
	}
	if after < 0 {
		after = 0 // 容差内的负零归零
	}

	entry := &model.ChipTransaction{
		TxUUID:        uuid.NewString(),
		UserID:        userID,
		Currency:      currency,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		TxType:        txType,
		CreatedAt:     time.Now(),
	}
	if refType != "" {
		entry.ReferenceType = &refType
	}
	if refID != "" {
		entry.ReferenceID = &refID
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// lastEntryLocked 末条流水加 FOR UPDATE（事务内生效），双保险：
// 即使调用方漏锁用户行，同一用户的两次追加也无法同时读到同一条末流水。
func (r *ledgerRepository) lastEntryLocked(ctx context.Context, userID uint64, currency string) (*model.ChipTransaction, error) {
	var entry model.ChipTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) ListAllByUser(ctx context.Context, userID uint64, currency string) ([]*model.ChipTransaction, error) {
	var list []*model.ChipTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ledgerRepository) ListByUser(ctx context.Context, userID uint64, currency string, page, pageSize int) ([]*model.ChipTransaction, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.ChipTransaction{}).
		Where("user_id = ? AND currency = ?", userID, currency)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.ChipTransaction
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ledgerRepository) LastEntry(ctx context.Context, userID uint64, currency string) (*model.ChipTransaction, error) {
	var entry model.ChipTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
