package model

import (
	"time"
)

type User struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email        *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash *string    `gorm:"size:255" json:"-"`
	GithubID     *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	Company      string     `gorm:"size:100" json:"company"`
	Phone        string     `gorm:"size:30" json:"phone"`
	// IsActive 与 LicenseQuota 仅由激活编排器在支付事件中写入
	IsActive     bool       `gorm:"default:false;index" json:"is_active"`
	LicenseQuota int        `gorm:"default:0" json:"license_quota"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
