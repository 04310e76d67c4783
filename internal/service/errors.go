package service

import (
	"fmt"
	"strings"
)

// ValidationError 入参/业务规则校验失败，调用方问题，不产生任何状态变更
type ValidationError struct {
	Rule    string // 违反的规则名，如 bet_amount_range / event_not_active
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("校验失败[%s]: %s", e.Rule, e.Message)
}

// InsufficientFundsError 可用余额不足，携带当前可用额供调用方展示
type InsufficientFundsError struct {
	Available float64
	Requested float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("余额不足：可用 %.6f，需要 %.6f", e.Available, e.Requested)
}

// InsufficientWonBalanceError won 类余额不足（仅 won 筹码可提现，
// purchased/free 类别不可提，故与一般余额不足区分）
type InsufficientWonBalanceError struct {
	Available float64
	Requested float64
}

func (e *InsufficientWonBalanceError) Error() string {
	return fmt.Sprintf("可提现余额不足：won 类可用 %.6f，需要 %.6f", e.Available, e.Requested)
}

// InvalidStateTransitionError 实体当前状态不允许该操作，不产生任何状态变更
type InvalidStateTransitionError struct {
	Entity string // event/bet/payout/withdrawal
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s 状态 %s 不允许迁移到 %s", e.Entity, e.From, e.To)
}

// NotFoundError 引用的实体不存在
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s 不存在: %s", e.Entity, e.Key)
}

// InvalidChoiceError 选项不在事件定义的选项集合内
type InvalidChoiceError struct {
	Choice string
	Valid  []string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("无效选项 %q，可选: %s", e.Choice, strings.Join(e.Valid, "/"))
}

// ExternalServiceFailureError 外部服务（支付校验/放款）不可用或拒绝。
// Transient 表示可重试的临时故障；永久失败会触发补偿流水。
type ExternalServiceFailureError struct {
	Service   string
	Transient bool
	Err       error
}

func (e *ExternalServiceFailureError) Error() string {
	kind := "永久失败"
	if e.Transient {
		kind = "临时故障"
	}
	return fmt.Sprintf("外部服务 %s %s: %v", e.Service, kind, e.Err)
}

func (e *ExternalServiceFailureError) Unwrap() error { return e.Err }

// ConsistencyViolationError 账本 running-balance 链断裂，属致命错误：
// 中止当前操作并大声上报，除 ProjectBalances 的零下限截断外绝不自动修正。
type ConsistencyViolationError struct {
	UserID uint64
	Detail string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("账本一致性被破坏 user_id=%d: %s", e.UserID, e.Detail)
}
