package repository

import (
	"context"
	"time"

	"ChipStake/internal/model"

	"gorm.io/gorm"
)

// BetRepository 注单仓储。注单状态只允许 active → won/lost/refunded 单向迁移，
// 写入方仅有下注引擎（创建）与结算引擎（终态）。
type BetRepository interface {
	Create(ctx context.Context, bet *model.Bet) error
	GetByUUID(ctx context.Context, betUUID string) (*model.Bet, error)
	// ListActiveByEvent 该事件全部活跃注单（结算快照输入）
	ListActiveByEvent(ctx context.Context, eventID uint64) ([]*model.Bet, error)
	// SumActiveAmountByUser 该用户活跃注单金额之和（locked 余额的唯一来源）
	SumActiveAmountByUser(ctx context.Context, userID uint64) (float64, error)
	ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Bet, int64, error)
	// MarkSettled 条件迁移单笔注单 active → to，未命中返回 ErrStatusConflict（幂等跳过用）
	MarkSettled(ctx context.Context, betID uint64, to model.BetStatus) error
	// MarkSettledBulk 批量迁移 active → to，返回实际迁移条数
	MarkSettledBulk(ctx context.Context, betIDs []uint64, to model.BetStatus) (int64, error)
}

type betRepository struct {
	db *gorm.DB
}

// NewBetRepository 创建注单仓储
func NewBetRepository(db *gorm.DB) BetRepository {
	return &betRepository{db: db}
}

func (r *betRepository) Create(ctx context.Context, bet *model.Bet) error {
	return r.db.WithContext(ctx).Create(bet).Error
}

func (r *betRepository) GetByUUID(ctx context.Context, betUUID string) (*model.Bet, error) {
	var b model.Bet
	if err := r.db.WithContext(ctx).Where("bet_uuid = ?", betUUID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *betRepository) ListActiveByEvent(ctx context.Context, eventID uint64) ([]*model.Bet, error) {
	var list []*model.Bet
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, model.BetActive).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *betRepository) SumActiveAmountByUser(ctx context.Context, userID uint64) (float64, error) {
	var sum *float64
	if err := r.db.WithContext(ctx).Model(&model.Bet{}).
		Select("SUM(amount)").
		Where("user_id = ? AND status = ?", userID, model.BetActive).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (r *betRepository) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Bet, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.Bet{}).Where("user_id = ?", userID)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.Bet
	if err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *betRepository) MarkSettled(ctx context.Context, betID uint64, to model.BetStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Bet{}).
		Where("id = ? AND status = ?", betID, model.BetActive).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *betRepository) MarkSettledBulk(ctx context.Context, betIDs []uint64, to model.BetStatus) (int64, error) {
	if len(betIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Bet{}).
		Where("id IN ? AND status = ?", betIDs, model.BetActive).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}
