package repository

import (
	"context"
	"time"

	"ChipStake/internal/model"

	"gorm.io/gorm"
)

// PayoutRepository 派彩记录仓储。记录仅由结算引擎创建（pending），
// 由派彩协调器迁移到 completed，重试分发靠条件更新保证幂等。
type PayoutRepository interface {
	CreateBatch(ctx context.Context, payouts []*model.Payout) error
	ListPendingByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error)
	// MarkCompleted 条件迁移 pending → completed，未命中返回 ErrStatusConflict
	// （该派彩已被并发分发处理过，调用方按幂等跳过）
	MarkCompleted(ctx context.Context, payoutID uint64) error
	CountPendingByEvent(ctx context.Context, eventID uint64) (int64, error)
}

type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建派彩仓储
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) CreateBatch(ctx context.Context, payouts []*model.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(payouts).Error
}

func (r *payoutRepository) ListPendingByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error) {
	var list []*model.Payout
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, model.PayoutPending).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *payoutRepository) ListByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error) {
	var list []*model.Payout
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *payoutRepository) MarkCompleted(ctx context.Context, payoutID uint64) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ? AND status = ?", payoutID, model.PayoutPending).
		Updates(map[string]interface{}{"status": model.PayoutCompleted, "completed_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *payoutRepository) CountPendingByEvent(ctx context.Context, eventID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("event_id = ? AND status = ?", eventID, model.PayoutPending).
		Count(&n).Error
	return n, err
}
