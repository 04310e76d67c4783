package circle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ChipStake/internal/config"
	"ChipStake/internal/interfaces"
	"ChipStake/internal/utils/httpclient"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// newIdempotencyKey 幂等键，调用方未提供时生成
func newIdempotencyKey() string { return uuid.NewString() }

const (
	// DefaultSandboxURL Circle 测试环境
	DefaultSandboxURL = "https://api-sandbox.circle.com"
	// DefaultProductionURL Circle 生产环境
	DefaultProductionURL = "https://api.circle.com"
)

// APIError Circle API 调用失败。Transient()=true 表示网络故障或 5xx，可重试；
// 4xx 视为永久拒绝，提现协调器据此走补偿回冲。
type APIError struct {
	StatusCode int
	Message    string
	transient  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Circle API 错误 %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Transient() bool { return e.transient }

// Client Circle API 客户端：汇率报价（入金折算）、放款（提现出金）、转账核验（入金确认）
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建 Circle 客户端
func NewClient(cfg config.CircleConfig, logger *logrus.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultSandboxURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.New(cfg.Proxy, cfg.Timeout, logger),
		logger:     logger,
	}
}

// 编译期确认实现了三个外部依赖接口
var (
	_ interfaces.PriceFeed       = (*Client)(nil)
	_ interfaces.Disburser       = (*Client)(nil)
	_ interfaces.PaymentVerifier = (*Client)(nil)
)

// exchangeAmount 报价请求/响应中的金额
type exchangeAmount struct {
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency"`
}

// exchangeRateRequest Get quote 请求体
type exchangeRateRequest struct {
	From           exchangeAmount `json:"from"`
	To             exchangeAmount `json:"to"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Type           string         `json:"type"`
}

// exchangeRateResponse Get quote 响应
type exchangeRateResponse struct {
	Data struct {
		ID   string         `json:"id"`
		Rate float64        `json:"rate"`
		From exchangeAmount `json:"from"`
		To   exchangeAmount `json:"to"`
	} `json:"data"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// GetExchangeRate 调用 Exchange Quotes API，返回 1 单位资产对应的 USD 数量。
// USDC/USDT 按 1:1 处理（Circle 按 USDC 报价），USD 直接返回 1。
func (c *Client) GetExchangeRate(ctx context.Context, asset string) (float64, error) {
	asset = strings.ToUpper(asset)
	if asset == "USD" || asset == "USDC" || asset == "USDT" {
		return 1, nil
	}
	if c.apiKey == "" {
		return 0, &APIError{StatusCode: 0, Message: "Circle API key 未配置", transient: false}
	}

	reqBody := exchangeRateRequest{
		From:           exchangeAmount{Amount: "1", Currency: asset},
		To:             exchangeAmount{Currency: "USD"},
		IdempotencyKey: newIdempotencyKey(),
		Type:           "reference",
	}
	var result exchangeRateResponse
	if err := c.postJSON(ctx, "/v1/exchange/quotes", reqBody, &result); err != nil {
		return 0, err
	}

	rate, err := strconv.ParseFloat(result.Data.To.Amount, 64)
	if err != nil || rate <= 0 {
		if result.Data.Rate > 0 {
			rate = result.Data.Rate
		} else {
			return 0, fmt.Errorf("Circle 返回汇率解析失败: %v", err)
		}
	}
	c.logger.WithField("asset", asset).WithField("rate", rate).Debug("Circle GetExchangeRate 成功")
	return rate, nil
}

// payoutRequest 放款请求体
type payoutRequest struct {
	IdempotencyKey string         `json:"idempotencyKey"`
	Amount         exchangeAmount `json:"amount"`
	Destination    struct {
		Type    string `json:"type"`
		Address string `json:"address"`
		Chain   string `json:"chain"`
	} `json:"destination"`
}

// payoutResponse 放款响应
type payoutResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SendFunds 调用 Payouts API 向外部地址放款，返回 Circle 放款单号
func (c *Client) SendFunds(ctx context.Context, req *interfaces.SendFundsRequest) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{StatusCode: 0, Message: "Circle API key 未配置", transient: false}
	}
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = newIdempotencyKey()
	}
	body := payoutRequest{
		IdempotencyKey: idemKey,
		Amount: exchangeAmount{
			Amount:   strconv.FormatFloat(req.Amount, 'f', -1, 64),
			Currency: strings.ToUpper(req.Currency),
		},
	}
	body.Destination.Type = "blockchain"
	body.Destination.Address = req.Address
	body.Destination.Chain = req.Chain

	var result payoutResponse
	if err := c.postJSON(ctx, "/v1/payouts", body, &result); err != nil {
		return "", err
	}
	c.logger.WithField("payout_id", result.Data.ID).WithField("status", result.Data.Status).Info("Circle 放款已受理")
	return result.Data.ID, nil
}

// transferResponse 转账查询响应
type transferResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// VerifyDeposit 按凭证号查询入金转账是否已到账（status=complete）
func (c *Client) VerifyDeposit(ctx context.Context, signature string) (bool, error) {
	if c.apiKey == "" {
		return false, &APIError{StatusCode: 0, Message: "Circle API key 未配置", transient: false}
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/transfers/"+signature, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &APIError{StatusCode: 0, Message: err.Error(), transient: true}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, apiErrorFromResponse(resp.StatusCode, respBody)
	}
	var result transferResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("Circle 转账查询响应解析失败: %w", err)
	}
	return strings.EqualFold(result.Data.Status, "complete"), nil
}

// postJSON 发送 POST 请求并解析响应，网络错误与 5xx 标记为临时故障
func (c *Client) postJSON(ctx context.Context, path string, reqBody, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("Circle HTTP 请求失败")
		return &APIError{StatusCode: 0, Message: err.Error(), transient: true}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiErrorFromResponse(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("Circle 响应解析失败: %w", err)
	}
	return nil
}

// apiErrorFromResponse 按状态码归类临时/永久失败
func apiErrorFromResponse(status int, body []byte) *APIError {
	msg := string(body)
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	return &APIError{
		StatusCode: status,
		Message:    msg,
		transient:  status >= 500 || status == http.StatusTooManyRequests,
	}
}
