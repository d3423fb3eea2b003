package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/internal/model"
)

var fixtureSeq int64

func nextSeq() int64 {
	return atomic.AddInt64(&fixtureSeq, 1)
}

type UserOption func(*model.User)

func WithEmail(email string) UserOption {
	return func(u *model.User) { u.Email = &email }
}

func WithUsername(username string) UserOption {
	return func(u *model.User) { u.Username = username }
}

func WithActive(quota int) UserOption {
	return func(u *model.User) {
		u.IsActive = true
		u.LicenseQuota = quota
	}
}

// TestUser 创建测试用户，默认未激活
func TestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *model.User {
	t.Helper()

	seq := nextSeq()
	email := fmt.Sprintf("user%d@example.com", seq)
	user := &model.User{
		Username: fmt.Sprintf("user%d", seq),
		Email:    &email,
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

type SubscriptionOption func(*model.Subscription)

func WithSubStatus(status model.SubscriptionStatus) SubscriptionOption {
	return func(s *model.Subscription) { s.Status = status }
}

func WithSubQuota(quota int) SubscriptionOption {
	return func(s *model.Subscription) { s.LicenseQuota = quota }
}

func WithSubExpiresAt(at time.Time) SubscriptionOption {
	return func(s *model.Subscription) { s.ExpiresAt = &at }
}

func WithPlan(plan string) SubscriptionOption {
	return func(s *model.Subscription) { s.Plan = plan }
}

// TestSubscription 创建测试订阅，默认 pending
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...SubscriptionOption) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		UserID:       userID,
		Plan:         "business",
		Status:       model.SubscriptionPending,
		LicenseQuota: 5,
		BasePrice:    249000,
		TotalPrice:   249000,
	}
	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}
	return sub
}

type PaymentOption func(*model.PaymentRecord)

func WithPaymentStatus(status model.PaymentStatus) PaymentOption {
	return func(p *model.PaymentRecord) { p.Status = status }
}

func WithAmount(amount int64) PaymentOption {
	return func(p *model.PaymentRecord) { p.Amount = amount }
}

// TestPayment 创建测试支付流水，默认 pending
func TestPayment(t *testing.T, db *gorm.DB, subscriptionID int64, transactionID string, opts ...PaymentOption) *model.PaymentRecord {
	t.Helper()

	record := &model.PaymentRecord{
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID,
		Amount:         249000,
		Currency:       "IDR",
		GatewayName:    "autolaku_gateway",
		Status:         model.PaymentPending,
	}
	for _, opt := range opts {
		opt(record)
	}

	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}
	return record
}

type LicenseOption func(*model.License)

func WithLicenseKey(key string) LicenseOption {
	return func(l *model.License) { l.Key = key }
}

func WithLicenseAdmin(adminID int64) LicenseOption {
	return func(l *model.License) { l.AdminID = &adminID }
}

func WithLicenseSubscription(subID int64) LicenseOption {
	return func(l *model.License) { l.SubscriptionID = &subID }
}

func WithLicenseStatus(status model.LicenseStatus) LicenseOption {
	return func(l *model.License) { l.Status = status }
}

func WithLicenseExpiresAt(at time.Time) LicenseOption {
	return func(l *model.License) { l.ExpiresAt = &at }
}

func WithDevice(deviceID string) LicenseOption {
	return func(l *model.License) { l.DeviceID = &deviceID }
}

// TestLicense 创建测试授权码，默认 active 未绑定
func TestLicense(t *testing.T, db *gorm.DB, opts ...LicenseOption) *model.License {
	t.Helper()

	seq := nextSeq()
	license := &model.License{
		Key:    fmt.Sprintf("TEST-%04d-AAAA-BBBB", seq),
		Name:   fmt.Sprintf("license %d", seq),
		Status: model.LicenseActive,
	}
	for _, opt := range opts {
		opt(license)
	}

	if err := db.Create(license).Error; err != nil {
		t.Fatalf("Failed to create test license: %v", err)
	}
	return license
}
