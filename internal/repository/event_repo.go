package repository

import (
	"context"
	"errors"
	"time"

	"ChipStake/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatusConflict 条件更新未命中任何行：状态已被并发操作改走
var ErrStatusConflict = errors.New("事件状态已变更，迁移未生效")

// EventFilter 事件列表筛选条件
type EventFilter struct {
	Status string // 可选：按状态过滤
}

// EventRepository 事件与选项仓储
type EventRepository interface {
	CreateWithChoices(ctx context.Context, event *model.Event, choices []*model.EventChoice) error
	GetByUUID(ctx context.Context, eventUUID string) (*model.Event, error)
	GetByID(ctx context.Context, eventID uint64) (*model.Event, error)
	// LockByID 事务内对事件行加 FOR UPDATE 锁。结算读"全部活跃注单"前先过这把锁，
	// 与同事件的并发下注/二次结算互斥。
	LockByID(ctx context.Context, eventID uint64) (*model.Event, error)
	GetChoices(ctx context.Context, eventID uint64) ([]*model.EventChoice, error)
	ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.Event, int64, error)
	// IncrementChoicePool 原子增加选项池额，与产生它的注单同事务提交
	IncrementChoicePool(ctx context.Context, eventID uint64, label string, delta float64) error
	// UpdateStatus 条件更新状态（WHERE status=from），未命中返回 ErrStatusConflict
	UpdateStatus(ctx context.Context, eventID uint64, from, to model.EventStatus) error
	// SetResolution 写入获胜选项与结算审计字段（与状态迁移同事务内调用）
	SetResolution(ctx context.Context, eventID uint64, winningChoice string, actorID uint64) error
	// SetDistributed 写入派彩审计字段
	SetDistributed(ctx context.Context, eventID uint64, actorID uint64) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) CreateWithChoices(ctx context.Context, event *model.Event, choices []*model.EventChoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		for _, c := range choices {
			c.EventID = event.ID
			if err := tx.Create(c).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *eventRepository) GetByUUID(ctx context.Context, eventUUID string) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("event_uuid = ?", eventUUID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepository) GetByID(ctx context.Context, eventID uint64) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", eventID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepository) LockByID(ctx context.Context, eventID uint64) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepository) GetChoices(ctx context.Context, eventID uint64) ([]*model.EventChoice, error) {
	var choices []*model.EventChoice
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Find(&choices).Error; err != nil {
		return nil, err
	}
	return choices, nil
}

func (r *eventRepository) ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.Event, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.Event{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []*model.Event
	if err := db.Order("lock_time ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventRepository) IncrementChoicePool(ctx context.Context, eventID uint64, label string, delta float64) error {
	res := r.db.WithContext(ctx).Model(&model.EventChoice{}).
		Where("event_id = ? AND label = ?", eventID, label).
		Updates(map[string]interface{}{
			"total_pool": gorm.Expr("total_pool + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *eventRepository) UpdateStatus(ctx context.Context, eventID uint64, from, to model.EventStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND status = ?", eventID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *eventRepository) SetResolution(ctx context.Context, eventID uint64, winningChoice string, actorID uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"winning_choice": winningChoice,
			"resolved_by":    actorID,
			"resolved_at":    now,
			"updated_at":     now,
		}).Error
}

func (r *eventRepository) SetDistributed(ctx context.Context, eventID uint64, actorID uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"distributed_by": actorID,
			"distributed_at": now,
			"updated_at":     now,
		}).Error
}
