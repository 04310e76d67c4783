package repository

import (
	"context"
	"errors"

	"ChipStake/internal/model"

	"gorm.io/gorm"
)

// DepositRepository 入金记录仓储，signature 唯一索引承担幂等检查
type DepositRepository interface {
	Create(ctx context.Context, record *model.DepositRecord) error
	GetBySignature(ctx context.Context, signature string) (*model.DepositRecord, error)
}

type depositRepository struct {
	db *gorm.DB
}

// NewDepositRepository 创建入金仓储
func NewDepositRepository(db *gorm.DB) DepositRepository {
	return &depositRepository{db: db}
}

func (r *depositRepository) Create(ctx context.Context, record *model.DepositRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *depositRepository) GetBySignature(ctx context.Context, signature string) (*model.DepositRecord, error) {
	var rec model.DepositRecord
	err := r.db.WithContext(ctx).Where("signature = ?", signature).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
