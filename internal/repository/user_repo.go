package repository

import (
	"context"
	"time"

	"ChipStake/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓储
type UserRepository interface {
	GetByID(ctx context.Context, userID uint64) (*model.User, error)
	GetByWallet(ctx context.Context, wallet string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// LockByID 事务内对用户行加 FOR UPDATE 锁，串行化该用户的余额检查-扣款序列。
	// 同一用户的并发下注/提现必须先过这把锁，避免两笔同时用同一份旧余额通过校验。
	LockByID(ctx context.Context, userID uint64) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, userID uint64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByWallet(ctx context.Context, wallet string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
		user.UpdatedAt = now
	}
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) LockByID(ctx context.Context, userID uint64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
