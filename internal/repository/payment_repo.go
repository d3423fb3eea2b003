package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(record *model.PaymentRecord) error {
	return r.db.Create(record).Error
}

func (r *PaymentRepository) GetByTransactionID(transactionID string) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := r.db.Where("transaction_id = ?", transactionID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PaymentRepository) Update(record *model.PaymentRecord) error {
	return r.db.Save(record).Error
}

// MarkFailed 条件置为 failed，返回本次调用是否完成了这次翻转
// 重复投递的失败回调据此只触发一次提醒
func (r *PaymentRepository) MarkFailed(id int64, gatewayTxnID string) (bool, error) {
	result := r.db.Model(&model.PaymentRecord{}).
		Where("id = ? AND status <> ?", id, model.PaymentFailed).
		Updates(map[string]interface{}{
			"status":         model.PaymentFailed,
			"gateway_txn_id": gatewayTxnID,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *PaymentRepository) ListBySubscription(subscriptionID int64) ([]model.PaymentRecord, error) {
	var records []model.PaymentRecord
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").Find(&records).Error
	return records, err
}

// CountBySubscription 账单序号按订阅内已有流水数递增
func (r *PaymentRepository) CountBySubscription(subscriptionID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.PaymentRecord{}).
		Where("subscription_id = ?", subscriptionID).Count(&count).Error
	return count, err
}

func (r *PaymentRepository) CountByTransactionID(transactionID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.PaymentRecord{}).
		Where("transaction_id = ?", transactionID).Count(&count).Error
	return count, err
}
