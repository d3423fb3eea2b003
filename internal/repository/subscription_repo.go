package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/autolaku_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByUserID(userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByTransactionID 按商户侧交易号回查归属订阅（回调入口的定位查询）
func (r *SubscriptionRepository) GetByTransactionID(transactionID string) (*model.Subscription, error) {
	var record model.PaymentRecord
	if err := r.db.Where("transaction_id = ?", transactionID).First(&record).Error; err != nil {
		return nil, err
	}
	return r.GetByID(record.SubscriptionID)
}

// GetByUserIDForUpdate 行锁读取（SELECT ... FOR UPDATE），必须在事务内调用
// 配额检查和授权码写入之间靠这把锁对并发生成请求互斥
func (r *SubscriptionRepository) GetByUserIDForUpdate(userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Activate 把未激活的订阅置为 active，返回本次调用是否真的完成了激活
// 门禁落在条件更新上而不是读后写，并发重复回调只有一个能赢
func (r *SubscriptionRepository) Activate(id int64, startedAt time.Time, expiresAt *time.Time) (bool, error) {
	result := r.db.Model(&model.Subscription{}).
		Where("id = ? AND status <> ?", id, model.SubscriptionActive).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionActive,
			"started_at": startedAt,
			"expires_at": expiresAt,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *SubscriptionRepository) Update(sub *model.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *SubscriptionRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 注册回滚用，连同支付流水一起删
func (r *SubscriptionRepository) Delete(id int64) error {
	if err := r.db.Where("subscription_id = ?", id).Delete(&model.PaymentRecord{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.Subscription{}, id).Error
}

// ExpireOverdue 将已过期仍标记 active 的订阅批量置为 expired，返回影响行数
func (r *SubscriptionRepository) ExpireOverdue(now time.Time) (int64, error) {
	result := r.db.Model(&model.Subscription{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.SubscriptionActive, now).
		Update("status", model.SubscriptionExpired)
	return result.RowsAffected, result.Error
}
