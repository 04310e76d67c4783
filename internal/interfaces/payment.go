package interfaces

import "context"

// PaymentVerifier 入金凭证校验接口（链上支付确认的抽象边界）。
// 幂等检查（同一 signature 只入账一次）由调用方在入账前完成。
type PaymentVerifier interface {
	// VerifyDeposit 校验入金凭证是否真实有效
	VerifyDeposit(ctx context.Context, signature string) (bool, error)
}

// SendFundsRequest 放款请求参数
type SendFundsRequest struct {
	Address        string  // 收款地址
	Chain          string  // 链标识，如 ETH/MATIC
	Amount         float64 // 放款金额
	Currency       string  // 放款币种 USDC/USDT
	IdempotencyKey string  // 幂等键，重试沿用同一个
}

// Disburser 出金放款接口。失败分临时/永久两类
// （service.ExternalServiceFailureError.Transient），协调器据此决定重试还是补偿。
type Disburser interface {
	// SendFunds 向外部地址放款，返回外部凭证号
	SendFunds(ctx context.Context, req *SendFundsRequest) (externalRef string, err error)
}

// PriceFeed 汇率接口，仅入金折算chip时使用，结算全程不碰汇率
type PriceFeed interface {
	// GetExchangeRate 返回 1 单位资产折算的 USD（即 chip）数量
	GetExchangeRate(ctx context.Context, asset string) (float64, error)
}
