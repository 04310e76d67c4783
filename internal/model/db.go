package model

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	WalletAddress string    `gorm:"column:wallet_address;type:varchar(64);uniqueIndex;not null;comment:用户钱包地址"`
	IsActive      bool      `gorm:"column:is_active;type:boolean;default:true;comment:是否活跃"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Event struct {
	ID             uint64      `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventUUID      string      `gorm:"column:event_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	Name           string      `gorm:"column:name;type:varchar(256);not null;comment:事件名称"`
	Status         EventStatus `gorm:"column:status;type:varchar(16);default:draft;comment:状态机：draft/pending/active/locked/completed/paid_out/cancelled"`
	LockTime       time.Time   `gorm:"column:lock_time;type:timestamp;not null;comment:封盘时间，过点即拒绝新注"`
	WinningChoice  *string     `gorm:"column:winning_choice;type:varchar(64);comment:获胜选项，结算时写入"`
	RakeFraction   float64     `gorm:"column:rake_fraction;type:numeric(8,4);not null;comment:事件抽成比例，创建时固定"`
	CreatedBy      uint64      `gorm:"column:created_by;type:bigint;not null;comment:创建者用户ID"`
	ResolvedBy     *uint64     `gorm:"column:resolved_by;type:bigint;comment:结算操作者ID"`
	ResolvedAt     *time.Time  `gorm:"column:resolved_at;type:timestamp;comment:结算时间"`
	DistributedBy  *uint64     `gorm:"column:distributed_by;type:bigint;comment:派彩操作者ID"`
	DistributedAt  *time.Time  `gorm:"column:distributed_at;type:timestamp;comment:派彩完成时间"`
	CreatedAt      time.Time   `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// EventChoice 事件选项（2~8 个），total_pool 为该选项上所有活跃注单金额之和，
// 与下注在同一事务内增量维护，不做事后重算。
type EventChoice struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventID   uint64    `gorm:"column:event_id;type:bigint;not null;uniqueIndex:uk_event_label;comment:关联事件ID"`
	Label     string    `gorm:"column:label;type:varchar(64);not null;uniqueIndex:uk_event_label;comment:选项标签"`
	TotalPool float64   `gorm:"column:total_pool;type:numeric(18,6);default:0;comment:该选项当前池额"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Bet struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	BetUUID     string    `gorm:"column:bet_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一注单号"`
	EventID     uint64    `gorm:"column:event_id;type:bigint;not null;index;comment:关联事件ID"`
	UserID      uint64    `gorm:"column:user_id;type:bigint;not null;index;comment:用户ID"`
	ChoiceLabel string    `gorm:"column:choice_label;type:varchar(64);not null;comment:下注选项"`
	Amount      float64   `gorm:"column:amount;type:numeric(18,6);not null;comment:下注金额"`
	Status      BetStatus `gorm:"column:status;type:varchar(16);default:active;comment:状态：active/won/lost/refunded"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// Payout 派彩记录，结算引擎生成（pending），派彩协调器消费（completed）。
// 每笔中奖注单对应一条 Payout，不做同用户合并。
type Payout struct {
	ID          uint64       `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	PayoutUUID  string       `gorm:"column:payout_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一派彩号"`
	EventID     uint64       `gorm:"column:event_id;type:bigint;not null;index;comment:关联事件ID"`
	UserID      uint64       `gorm:"column:user_id;type:bigint;not null;index;comment:用户ID"`
	BetID       uint64       `gorm:"column:bet_id;type:bigint;not null;uniqueIndex;comment:关联注单ID，一注一彩"`
	Amount      float64      `gorm:"column:amount;type:numeric(18,6);not null;comment:派彩金额"`
	Status      PayoutStatus `gorm:"column:status;type:varchar(16);default:pending;comment:状态：pending/completed/rejected"`
	CompletedAt *time.Time   `gorm:"column:completed_at;type:timestamp;comment:入账时间"`
	CreatedAt   time.Time    `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
}

// WithdrawalRequest 提现请求。创建即冻结（账本先记 cashout 扣款），
// 外部转账失败时必须补偿回冲，冻结不允许静默丢失。
type WithdrawalRequest struct {
	ID          uint64           `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RequestUUID string           `gorm:"column:request_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一请求号"`
	UserID      uint64           `gorm:"column:user_id;type:bigint;not null;index;comment:用户ID"`
	Amount      float64          `gorm:"column:amount;type:numeric(18,6);not null;comment:提现金额（chip）"`
	Currency    string           `gorm:"column:currency;type:varchar(16);not null;default:'USDC';comment:到账币种"`
	Destination datatypes.JSON   `gorm:"column:destination;type:jsonb;not null;comment:收款信息（地址/链等）"`
	Status      WithdrawalStatus `gorm:"column:status;type:varchar(16);default:pending;comment:状态：pending/completed/rejected"`
	ExternalRef *string          `gorm:"column:external_ref;type:varchar(128);comment:外部放款凭证号"`
	FailReason  *string          `gorm:"column:fail_reason;type:varchar(256);comment:失败原因"`
	ProcessedBy *uint64          `gorm:"column:processed_by;type:bigint;comment:处理操作者ID"`
	CreatedAt   time.Time        `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// DepositRecord 入金记录，signature 唯一作幂等检查（同一链上凭证只入账一次）
type DepositRecord struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UserID      uint64         `gorm:"column:user_id;type:bigint;not null;index;comment:用户ID"`
	Signature   string         `gorm:"column:signature;type:varchar(128);uniqueIndex;not null;comment:链上转账凭证，幂等键"`
	Asset       string         `gorm:"column:asset;type:varchar(16);not null;comment:入金资产 USDC/USDT/ETH"`
	AssetAmount float64        `gorm:"column:asset_amount;type:numeric(18,6);not null;comment:入金资产数量"`
	Rate        float64        `gorm:"column:rate;type:numeric(18,6);not null;comment:入金时汇率"`
	ChipAmount  float64        `gorm:"column:chip_amount;type:numeric(18,6);not null;comment:折算chip数量"`
	RawPayload  datatypes.JSON `gorm:"column:raw_payload;type:jsonb;comment:原始凭证数据，排查用"`
	CreatedAt   time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
}

func (User) TableName() string              { return "users" }
func (Event) TableName() string             { return "events" }
func (EventChoice) TableName() string       { return "event_choices" }
func (Bet) TableName() string               { return "bets" }
func (Payout) TableName() string            { return "payouts" }
func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }
func (DepositRecord) TableName() string     { return "deposit_records" }
