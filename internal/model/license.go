package model

import (
	"time"
)

type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseExpired LicenseStatus = "expired"
	LicenseRevoked LicenseStatus = "revoked"
)

type License struct {
	ID             int64         `gorm:"primaryKey" json:"id"`
	Key            string        `gorm:"size:19;uniqueIndex;not null" json:"key"` // 形如 XXXX-XXXX-XXXX-XXXX，创建后不可变
	Name           string        `gorm:"size:100" json:"name"`
	Contact        string        `gorm:"size:100" json:"contact,omitempty"`
	AdminID        *int64        `gorm:"index" json:"admin_id,omitempty"`        // 归属管理员，未分配时为空
	SubscriptionID *int64        `gorm:"index" json:"subscription_id,omitempty"` // 归属订阅
	Status         LicenseStatus `gorm:"size:20;default:active;index" json:"status"`
	ExpiresAt      *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	// 同一时刻至多绑定一台设备，后写者覆盖
	DeviceID    *string    `gorm:"size:100" json:"device_id,omitempty"`
	Online      bool       `gorm:"default:false" json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"` // Online=true 时必定非空
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (License) TableName() string {
	return "licenses"
}
