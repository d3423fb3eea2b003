package model

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type Subscription struct {
	ID           int64              `gorm:"primaryKey" json:"id"`
	UserID       int64              `gorm:"not null;uniqueIndex" json:"user_id"` // 每个账号仅一条订阅
	Plan         string             `gorm:"size:20;not null" json:"plan"`
	Status       SubscriptionStatus `gorm:"size:20;default:pending;index" json:"status"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	ExpiresAt    *time.Time         `gorm:"index" json:"expires_at,omitempty"`
	AutoRenew    bool               `gorm:"default:true" json:"auto_renew"`
	LicenseQuota int                `gorm:"default:0" json:"license_quota"`
	BasePrice    int64              `gorm:"not null" json:"base_price"`  // 印尼盾
	TotalPrice   int64              `gorm:"not null" json:"total_price"` // 底价 + 生效加购项
	Payments     []PaymentRecord    `gorm:"foreignKey:SubscriptionID" json:"payments,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
