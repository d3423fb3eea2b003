package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/pkg/sign"
)

// Status 适配器自己的支付状态词汇，网关码表只在本包内出现
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// 网关侧状态码
const (
	codePaid     = "00"
	codeExpired  = "02"
	codeRejected = "03"
)

// 网关响应码，"00" 表示受理成功
const responseCodeOK = "00"

var (
	// ErrGatewayUnavailable 网关基础设施故障（非 JSON 响应、错误页等），可稍后重试
	ErrGatewayUnavailable = errors.New("支付网关暂不可用")
	// ErrMalformedNotification 回调报文缺少必要字段
	ErrMalformedNotification = errors.New("回调报文格式错误")
)

// ChargeError 网关业务拒绝，带稳定错误码，区别于基础设施故障
type ChargeError struct {
	Code    string
	Message string
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("gateway rejected charge: code=%s message=%s", e.Code, e.Message)
}

type ChargeItem struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Qty   int    `json:"qty"`
}

type ChargeRequest struct {
	TransactionID string
	Description   string
	Amount        int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []ChargeItem
}

type ChargeResponse struct {
	TransactionID string
	GatewayRef    string
	PaymentURL    string // 用户跳转完成钱包扫码支付
}

// Notification 网关回调报文（入站原样字段）
type Notification struct {
	TransactionID string `json:"billNo"`
	GatewayTxnID  string `json:"gatewayTxnId"`
	MerchantCode  string `json:"merchantCode"`
	TotalAmount   string `json:"totalAmount"`
	Channel       string `json:"channel"`
	ChannelUID    string `json:"channelUid"`
	PaymentDate   string `json:"paymentDate"`
	StatusCode    string `json:"statusCode"`
	Signature     string `json:"signature"`
}

// Client 支付网关适配器，纯翻译层，不触碰存储
type Client struct {
	cfg        *config.GatewayConfig
	signer     *sign.Signer
	httpClient *http.Client
}

func NewClient(cfg *config.GatewayConfig, signer *sign.Signer) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chargePayload struct {
	MerchantCode  string       `json:"merchantCode"`
	BillNo        string       `json:"billNo"`
	BillDate      string       `json:"billDate"`
	BillExpired   string       `json:"billExpired"`
	Description   string       `json:"description"`
	TotalAmount   string       `json:"totalAmount"`
	CustomerName  string       `json:"customerName"`
	CustomerEmail string       `json:"customerEmail"`
	CustomerPhone string       `json:"customerPhone"`
	ReturnURL     string       `json:"returnUrl"`
	CallbackURL   string       `json:"callbackUrl"`
	Channel       string       `json:"channel"`
	Signature     string       `json:"signature"`
	Items         []ChargeItem `json:"items"`
}

type chargeResult struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	GatewayRef      string `json:"gatewayRef"`
	PaymentURL      string `json:"paymentUrl"`
}

// CreateCharge 发起出站建单
// 非 JSON 的上游响应一律映射为 ErrGatewayUnavailable，与业务拒绝（ChargeError）分开
func (c *Client) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	signature, err := c.signer.SignRequest(req.TransactionID, req.Amount)
	if err != nil {
		return nil, err
	}

	expiryMinutes := c.cfg.ExpiryMinutes
	if expiryMinutes <= 0 {
		expiryMinutes = 60
	}
	now := time.Now()

	payload := &chargePayload{
		MerchantCode:  c.cfg.MerchantCode,
		BillNo:        req.TransactionID,
		BillDate:      now.Format("2006-01-02 15:04:05"),
		BillExpired:   now.Add(time.Duration(expiryMinutes) * time.Minute).Format("2006-01-02 15:04:05"),
		Description:   req.Description,
		TotalAmount:   strconv.FormatInt(req.Amount, 10),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		ReturnURL:     c.cfg.ReturnURL,
		CallbackURL:   c.cfg.CallbackURL,
		Channel:       c.cfg.Channel,
		Signature:     signature,
		Items:         req.Items,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/bills", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var result chargeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// 网关挂了通常吐 HTML 错误页
		return nil, fmt.Errorf("%w: non-JSON response", ErrGatewayUnavailable)
	}

	if result.ResponseCode != responseCodeOK {
		return nil, &ChargeError{Code: result.ResponseCode, Message: result.ResponseMessage}
	}

	return &ChargeResponse{
		TransactionID: req.TransactionID,
		GatewayRef:    result.GatewayRef,
		PaymentURL:    result.PaymentURL,
	}, nil
}

// ParseNotification 解析回调报文，只做反序列化与必填校验
func ParseNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if n.TransactionID == "" || n.MerchantCode == "" || n.StatusCode == "" || n.Signature == "" {
		return nil, ErrMalformedNotification
	}
	return &n, nil
}

// ResolveStatus 网关状态码映射到适配器词汇
// 未知码一律按 pending 处理，向"未完成"方向兜底
func ResolveStatus(statusCode string) Status {
	switch statusCode {
	case codePaid:
		return StatusCompleted
	case codeExpired, codeRejected:
		return StatusFailed
	default:
		return StatusPending
	}
}

// ValidateNotification 校验回调签名，任何不匹配返回 false
func (c *Client) ValidateNotification(n *Notification) (bool, error) {
	return c.signer.VerifyWebhookSignature(n.TransactionID, n.StatusCode, n.Signature)
}
