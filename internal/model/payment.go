package model

import (
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentRecord 订阅的支付流水，按商户侧交易号回查（存在则原地更新，不存在则追加）
type PaymentRecord struct {
	ID             int64         `gorm:"primaryKey" json:"id"`
	SubscriptionID int64         `gorm:"not null;index" json:"subscription_id"`
	TransactionID  string        `gorm:"size:100;uniqueIndex;not null" json:"transaction_id"` // 商户侧交易号
	GatewayTxnID   string        `gorm:"size:100" json:"gateway_txn_id"`                      // 网关侧交易号
	Amount         int64         `gorm:"not null" json:"amount"` // 印尼盾
	Currency       string        `gorm:"size:10;default:IDR" json:"currency"`
	Method         string        `gorm:"size:30" json:"method"`
	GatewayName    string        `gorm:"size:30" json:"gateway_name"`
	Status         PaymentStatus `gorm:"size:20;default:pending;index" json:"status"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}
