package repository

import (
	"context"
	"time"

	"ChipStake/internal/model"

	"gorm.io/gorm"
)

// WithdrawalRepository 提现请求仓储
type WithdrawalRepository interface {
	Create(ctx context.Context, req *model.WithdrawalRequest) error
	GetByUUID(ctx context.Context, requestUUID string) (*model.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error)
	// MarkCompleted 条件迁移 pending → completed 并写入外部放款凭证
	MarkCompleted(ctx context.Context, requestID uint64, externalRef string, actorID uint64) error
	// MarkRejected 条件迁移 pending → rejected，记录失败原因；补偿回冲由 service 同事务完成
	MarkRejected(ctx context.Context, requestID uint64, reason string, actorID uint64) error
}

type withdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓储
func NewWithdrawalRepository(db *gorm.DB) WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

func (r *withdrawalRepository) Create(ctx context.Context, req *model.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *withdrawalRepository) GetByUUID(ctx context.Context, requestUUID string) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	if err := r.db.WithContext(ctx).Where("request_uuid = ?", requestUUID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *withdrawalRepository) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).Where("user_id = ?", userID)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.WithdrawalRequest
	if err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *withdrawalRepository) MarkCompleted(ctx context.Context, requestID uint64, externalRef string, actorID uint64) error {
	res := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", requestID, model.WithdrawalPending).
		Updates(map[string]interface{}{
			"status":       model.WithdrawalCompleted,
			"external_ref": externalRef,
			"processed_by": actorID,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *withdrawalRepository) MarkRejected(ctx context.Context, requestID uint64, reason string, actorID uint64) error {
	res := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", requestID, model.WithdrawalPending).
		Updates(map[string]interface{}{
			"status":       model.WithdrawalRejected,
			"fail_reason":  reason,
			"processed_by": actorID,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}
