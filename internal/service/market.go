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

// ChoiceView 盘口选项视图
type ChoiceView struct {
	Label     string  `json:"label"`
	TotalPool float64 `json:"total_pool"`
}

// MarketView 盘口详情视图（给前端行情页）
type MarketView struct {
	EventUUID     string       `json:"event_uuid"`
	Name          string       `json:"name"`
	Status        string       `json:"status"`
	LockTime      int64        `json:"lock_time"` // 毫秒
	RakeFraction  float64      `json:"rake_fraction"`
	WinningChoice string       `json:"winning_choice,omitempty"`
	TotalPool     float64      `json:"total_pool"`
	Choices       []ChoiceView `json:"choices"`
}

// MarketListResult 盘口列表返回
type MarketListResult struct {
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int64         `json:"total"`
	Items    []*MarketView `json:"items"`
}

// MarketService 事件生命周期与行情查询：创建（draft）→ 审批（active）→ 封盘（locked），
// completed/paid_out/cancelled 由结算引擎驱动。
type MarketService struct {
	logger      *logrus.Logger
	cfg         *config.BettingConfig
	events      repository.EventRepository
	users       repository.UserRepository
	runTx       txRunner
	marketCache *cache.MarketCache
}

// NewMarketService 创建事件服务。marketCache 可为 nil
func NewMarketService(db *gorm.DB, logger *logrus.Logger, cfg *config.BettingConfig, marketCache *cache.MarketCache) *MarketService {
	return &MarketService{
		logger:      logger,
		cfg:         cfg,
		events:      repository.NewEventRepository(db),
		users:       repository.NewUserRepository(db),
		runTx:       gormTxRunner(db),
		marketCache: marketCache,
	}
}

// CreateEvent 创建事件（draft）。选项 2~8 个且不重复，事件抽成限定在配置区间内；
// 配置了创建扣费时，扣费与事件创建为单个原子单元。
func (s *MarketService) CreateEvent(ctx context.Context, creatorID uint64, name string,
	choiceLabels []string, rakeFraction float64, lockTime time.Time) (*model.Event, error) {

	if name == "" {
		return nil, &ValidationError{Rule: "event_name_required", Message: "事件名称必填"}
	}
	if len(choiceLabels) < 2 || len(choiceLabels) > 8 {
		return nil, &ValidationError{Rule: "event_choice_count", Message: fmt.Sprintf("选项数 %d 不在 [2,8] 区间内", len(choiceLabels))}
	}
	seen := make(map[string]bool, len(choiceLabels))
	for _, label := range choiceLabels {
		if label == "" {
			return nil, &ValidationError{Rule: "event_choice_label", Message: "选项标签不能为空"}
		}
		if seen[label] {
			return nil, &ValidationError{Rule: "event_choice_duplicate", Message: "选项标签重复: " + label}
		}
		seen[label] = true
	}
	if rakeFraction < s.cfg.MinRakeFraction || rakeFraction > s.cfg.MaxRakeFraction {
		return nil, &ValidationError{
			Rule:    "event_rake_range",
			Message: fmt.Sprintf("抽成比例 %.4f 不在 [%.4f, %.4f] 区间内", rakeFraction, s.cfg.MinRakeFraction, s.cfg.MaxRakeFraction),
		}
	}
	if !lockTime.After(time.Now()) {
		return nil, &ValidationError{Rule: "event_lock_time", Message: "封盘时间必须晚于当前时间"}
	}
	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "用户", Key: fmt.Sprintf("%d", creatorID)}
		}
		return nil, err
	}

	now := time.Now()
	event := &model.Event{
		EventUUID:    uuid.NewString(),
		Name:         name,
		Status:       model.EventDraft,
		LockTime:     lockTime,
		RakeFraction: rakeFraction,
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	choices := make([]*model.EventChoice, 0, len(choiceLabels))
	for _, label := range choiceLabels {
		choices = append(choices, &model.EventChoice{Label: label, CreatedAt: now, UpdatedAt: now})
	}

	err := s.runTx(ctx, func(r *txRepos) error {
		if s.cfg.EventCreateFee > 0 {
			if _, err := r.users.LockByID(ctx, creatorID); err != nil {
				return err
			}
			balances, err := computeBalancesWith(ctx, s.logger, r.ledger, r.bets, creatorID)
			if err != nil {
				return err
			}
			if Available(*balances)+balanceEpsilon < s.cfg.EventCreateFee {
				return &InsufficientFundsError{Available: Available(*balances), Requested: s.cfg.EventCreateFee}
			}
			if _, err := r.ledger.Append(ctx, creatorID, model.ChipCurrency, -s.cfg.EventCreateFee,
				model.TxEventCreate, "event", event.EventUUID); err != nil {
				return fmt.Errorf("创建事件扣费失败: %w", err)
			}
		}
		return r.events.CreateWithChoices(ctx, event, choices)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"event_uuid": event.EventUUID,
		"creator_id": creatorID,
		"choices":    len(choices),
		"rake":       rakeFraction,
	}).Info("事件已创建")
	return event, nil
}

// Approve 审批上线：draft/pending → active（进入 active 的唯一路径）
func (s *MarketService) Approve(ctx context.Context, eventID uint64, actorID uint64) error {
	return s.transition(ctx, eventID, model.EventActive, actorID)
}

// Lock 手动封盘：active → locked
func (s *MarketService) Lock(ctx context.Context, eventID uint64, actorID uint64) error {
	return s.transition(ctx, eventID, model.EventLocked, actorID)
}

// transition 管理侧状态迁移，非法迁移不产生任何变更
func (s *MarketService) transition(ctx context.Context, eventID uint64, to model.EventStatus, actorID uint64) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "事件", Key: fmt.Sprintf("%d", eventID)}
		}
		return err
	}
	if !event.Status.CanTransition(to) {
		return &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(to)}
	}
	if err := s.events.UpdateStatus(ctx, eventID, event.Status, to); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return &InvalidStateTransitionError{Entity: "事件", From: string(event.Status), To: string(to)}
		}
		return err
	}
	if s.marketCache != nil {
		s.marketCache.Invalidate(ctx, event.EventUUID)
	}
	s.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"from":     event.Status,
		"to":       to,
		"actor_id": actorID,
	}).Info("事件状态已迁移")
	return nil
}

// ListMarkets 盘口列表（不走缓存：分页列表命中率低，只缓存单盘详情）
func (s *MarketService) ListMarkets(ctx context.Context, status string, page, pageSize int) (*MarketListResult, error) {
	events, total, err := s.events.ListEvents(ctx, repository.EventFilter{Status: status}, page, pageSize)
	if err != nil {
		return nil, err
	}
	items := make([]*MarketView, 0, len(events))
	for _, e := range events {
		view, err := s.buildView(ctx, e)
		if err != nil {
			return nil, err
		}
		items = append(items, view)
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &MarketListResult{Page: page, PageSize: pageSize, Total: total, Items: items}, nil
}

// GetMarketDetail 单盘详情，read-through 缓存
func (s *MarketService) GetMarketDetail(ctx context.Context, eventUUID string) (*MarketView, error) {
	if s.marketCache != nil {
		var cached MarketView
		if s.marketCache.Get(ctx, eventUUID, &cached) {
			return &cached, nil
		}
	}
	event, err := s.events.GetByUUID(ctx, eventUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: eventUUID}
		}
		return nil, err
	}
	view, err := s.buildView(ctx, event)
	if err != nil {
		return nil, err
	}
	if s.marketCache != nil {
		s.marketCache.Set(ctx, eventUUID, view)
	}
	return view, nil
}

// GetEventByUUID 管理接口用：按 UUID 取事件
func (s *MarketService) GetEventByUUID(ctx context.Context, eventUUID string) (*model.Event, error) {
	event, err := s.events.GetByUUID(ctx, eventUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "事件", Key: eventUUID}
		}
		return nil, err
	}
	return event, nil
}

func (s *MarketService) buildView(ctx context.Context, event *model.Event) (*MarketView, error) {
	choices, err := s.events.GetChoices(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	view := &MarketView{
		EventUUID:    event.EventUUID,
		Name:         event.Name,
		Status:       string(event.Status),
		LockTime:     event.LockTime.UnixMilli(),
		RakeFraction: event.RakeFraction,
	}
	if event.WinningChoice != nil {
		view.WinningChoice = *event.WinningChoice
	}
	for _, c := range choices {
		view.Choices = append(view.Choices, ChoiceView{Label: c.Label, TotalPool: c.TotalPool})
		view.TotalPool += c.TotalPool
	}
	return view, nil
}
