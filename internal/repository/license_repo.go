package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/pkg/sign"
)

// 生成器只保证随机不保证唯一，写库侧负责撞码重试
const maxKeyAttempts = 5

var ErrKeyExhausted = errors.New("授权码生成重试次数耗尽")

type LicenseRepository struct {
	db *gorm.DB
}

func NewLicenseRepository(db *gorm.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// CreateWithUniqueKey 生成授权码并插入，唯一索引冲突时换码重试
func (r *LicenseRepository) CreateWithUniqueKey(license *model.License) error {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := sign.GenerateLicenseKey()
		if err != nil {
			return err
		}

		exists, err := r.ExistsByKey(key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		license.Key = key
		err = r.db.Create(license).Error
		if err == nil {
			return nil
		}
		// 预检和插入之间的并发撞码，换码重试
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			license.ID = 0
			continue
		}
		return err
	}
	return ErrKeyExhausted
}

func (r *LicenseRepository) GetByKey(key string) (*model.License, error) {
	var license model.License
	err := r.db.Where("`key` = ?", key).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *LicenseRepository) ExistsByKey(key string) (bool, error) {
	var count int64
	err := r.db.Model(&model.License{}).Where("`key` = ?", key).Count(&count).Error
	return count > 0, err
}

func (r *LicenseRepository) Update(license *model.License) error {
	return r.db.Save(license).Error
}

func (r *LicenseRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.License{}).Where("id = ?", id).Updates(fields).Error
}

func (r *LicenseRepository) ListByAdmin(adminID int64) ([]model.License, error) {
	var licenses []model.License
	err := r.db.Where("admin_id = ?", adminID).Order("created_at ASC").Find(&licenses).Error
	return licenses, err
}

// CountByAdmin 配额上限按名下已有授权码数量计算
func (r *LicenseRepository) CountByAdmin(adminID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.License{}).Where("admin_id = ?", adminID).Count(&count).Error
	return count, err
}

// BindDevice 绑定设备描述符，后写者覆盖
func (r *LicenseRepository) BindDevice(id int64, deviceID string) error {
	return r.db.Model(&model.License{}).Where("id = ?", id).
		Update("device_id", deviceID).Error
}

func (r *LicenseRepository) ClearDevice(id int64) error {
	return r.db.Model(&model.License{}).Where("id = ?", id).Updates(map[string]interface{}{
		"device_id": nil,
		"online":    false,
	}).Error
}

// SetOnline 上线标记，Online=true 时 ConnectedAt 必须同时写入
func (r *LicenseRepository) SetOnline(id int64, connectedAt time.Time) error {
	return r.db.Model(&model.License{}).Where("id = ?", id).Updates(map[string]interface{}{
		"online":       true,
		"connected_at": connectedAt,
	}).Error
}

// SetOffline 下线标记并推进 last_seen_at
func (r *LicenseRepository) SetOffline(id int64, lastSeenAt time.Time) error {
	return r.db.Model(&model.License{}).Where("id = ?", id).Updates(map[string]interface{}{
		"online":       false,
		"last_seen_at": lastSeenAt,
	}).Error
}

// ExpireOverdue 将到期仍标记 active 的授权码批量置为 expired
func (r *LicenseRepository) ExpireOverdue(now time.Time) (int64, error) {
	result := r.db.Model(&model.License{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.LicenseActive, now).
		Update("status", model.LicenseExpired)
	return result.RowsAffected, result.Error
}
