package model

// EventStatus 事件状态机：draft → pending → active → locked → completed → paid_out，
// cancelled 可从 completed 之前的任意状态进入且为终态。
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPending   EventStatus = "pending"
	EventActive    EventStatus = "active"
	EventLocked    EventStatus = "locked"
	EventCompleted EventStatus = "completed"
	EventPaidOut   EventStatus = "paid_out"
	EventCancelled EventStatus = "cancelled"
)

// eventTransitions 合法状态迁移表，未列出的迁移一律非法
var eventTransitions = map[EventStatus][]EventStatus{
	EventDraft:     {EventPending, EventActive, EventCancelled},
	EventPending:   {EventActive, EventCancelled},
	EventActive:    {EventLocked, EventCompleted, EventCancelled},
	EventLocked:    {EventCompleted, EventCancelled},
	EventCompleted: {EventPaidOut},
	EventPaidOut:   {},
	EventCancelled: {},
}

// CanTransition 判断 from → to 是否为合法迁移
func (s EventStatus) CanTransition(to EventStatus) bool {
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 是否为终态（paid_out / cancelled）
func (s EventStatus) Terminal() bool {
	return len(eventTransitions[s]) == 0
}

// BetStatus 注单状态，单向迁移：active 之后只能由结算引擎置为 won/lost/refunded
type BetStatus string

const (
	BetActive   BetStatus = "active"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetRefunded BetStatus = "refunded"
)

// Settled 注单是否已出终态
func (s BetStatus) Settled() bool { return s != BetActive }

// PayoutStatus 派彩状态
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutRejected  PayoutStatus = "rejected"
)

// WithdrawalStatus 提现状态
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)
