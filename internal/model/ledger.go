package model

import (
	"time"
)

// ChipCurrency 平台内部记账单位，1 chip 锚定 1 USD
const ChipCurrency = "CHIP"

// TransactionType 账本流水类型（封闭枚举）
// 新增类型必须同时在 Bucket() 中给出归类，否则编译期默认落到 BucketNone，
// 余额投影会将其视为不影响分类余额的流水。
type TransactionType string

const (
	TxDeposit        TransactionType = "deposit"         // 入金：链上资产折算为 chip
	TxBetPlaced      TransactionType = "bet_placed"      // 下注扣款
	TxBetWon         TransactionType = "bet_won"         // 结算派彩
	TxBetRefund      TransactionType = "bet_refund"      // 事件取消/无人中奖时退注
	TxCashout        TransactionType = "cashout"         // 提现冻结扣款
	TxCashoutRevert  TransactionType = "cashout_revert"  // 提现失败补偿回冲
	TxPrizeWon       TransactionType = "prize_won"       // 奖池奖励
	TxReferralReward TransactionType = "referral_reward" // 推荐奖励
	TxFreeClaim      TransactionType = "free_claim"      // 免费筹码领取
	TxEventCreate    TransactionType = "event_create"    // 创建事件扣费
)

// BalanceBucket 余额分类：purchased（购入）/ won（赢得）/ free（赠送）
type BalanceBucket int

const (
	BucketNone BalanceBucket = iota // 不参与分类余额统计（如 bet_placed 扣款）
	BucketPurchased
	BucketWon
	BucketFree
)

// Bucket 返回该流水类型影响的余额分类。
// bet_placed / event_create 的扣款不归属任何分类（账本刻意不记录扣的是哪类筹码），
// 锁定金额由活跃注单实时聚合得出，见 service.ProjectBalances。
func (t TransactionType) Bucket() BalanceBucket {
	switch t {
	case TxDeposit:
		return BucketPurchased
	case TxBetWon, TxPrizeWon, TxBetRefund, TxCashout, TxCashoutRevert:
		return BucketWon
	case TxReferralReward, TxFreeClaim:
		return BucketFree
	case TxBetPlaced, TxEventCreate:
		return BucketNone
	default:
		return BucketNone
	}
}

// Valid 校验是否为已定义的流水类型
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxBetPlaced, TxBetWon, TxBetRefund, TxCashout,
		TxCashoutRevert, TxPrizeWon, TxReferralReward, TxFreeClaim, TxEventCreate:
		return true
	}
	return false
}

// ChipTransaction 对应 chip_transactions 表，append-only 账本，余额唯一事实来源。
// 任何组件只允许追加，禁止更新或删除；同一 user+currency 按 id 升序构成连续的
// balance_before/balance_after 链。
type ChipTransaction struct {
	ID            uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	TxUUID        string          `gorm:"column:tx_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一流水号"`
	UserID        uint64          `gorm:"column:user_id;type:bigint;not null;index:idx_user_currency;comment:用户ID"`
	Currency      string          `gorm:"column:currency;type:varchar(16);not null;default:'CHIP';index:idx_user_currency;comment:币种"`
	Amount        float64         `gorm:"column:amount;type:numeric(18,6);not null;comment:带符号金额，入账为正"`
	BalanceBefore float64         `gorm:"column:balance_before;type:numeric(18,6);not null;comment:变动前余额"`
	BalanceAfter  float64         `gorm:"column:balance_after;type:numeric(18,6);not null;comment:变动后余额"`
	TxType        TransactionType `gorm:"column:tx_type;type:varchar(32);not null;comment:流水类型"`
	ReferenceType *string         `gorm:"column:reference_type;type:varchar(32);comment:关联对象类型：bet/payout/withdrawal/deposit"`
	ReferenceID   *string         `gorm:"column:reference_id;type:varchar(64);comment:关联对象ID"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
}

func (ChipTransaction) TableName() string { return "chip_transactions" }

// UserBalances 派生余额（不落库），total = purchased + won + free；
// locked 单独按活跃注单聚合，不计入可用总额。
type UserBalances struct {
	Purchased float64 `json:"purchased"`
	Won       float64 `json:"won"`
	Free      float64 `json:"free"`
	Locked    float64 `json:"locked"`
	Total     float64 `json:"total"`
}
