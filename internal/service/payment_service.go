package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/pkg/email"
	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/oss"
	"github.com/qs3c/autolaku_server/internal/repository"
)

var (
	ErrSignatureInvalid    = errors.New("回调签名校验失败")
	ErrTransactionNotFound = errors.New("交易不存在")
)

// PaymentService 激活编排器：把已验签的支付事件落成
// （订阅状态、账号激活、授权码配额）三者一致的终态，重放安全
type PaymentService struct {
	db          *gorm.DB
	subRepo     *repository.SubscriptionRepository
	userRepo    *repository.UserRepository
	paymentRepo *repository.PaymentRepository
	gw          *gateway.Client
	eventBus    bus.Bus
	emailSvc    *email.Service
	archiver    *oss.Client // 可为空，回调原始报文归档
	cfg         *config.Config
}

func NewPaymentService(
	db *gorm.DB,
	subRepo *repository.SubscriptionRepository,
	userRepo *repository.UserRepository,
	paymentRepo *repository.PaymentRepository,
	gw *gateway.Client,
	eventBus bus.Bus,
	emailSvc *email.Service,
	archiver *oss.Client,
	cfg *config.Config,
) *PaymentService {
	return &PaymentService{
		db:          db,
		subRepo:     subRepo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		gw:          gw,
		eventBus:    eventBus,
		emailSvc:    emailSvc,
		archiver:    archiver,
		cfg:         cfg,
	}
}

// HandleNotification 处理网关回调
// 幂等契约：同一报文重复投递，终态不变，配额不重复加，欢迎邮件不重复发
func (s *PaymentService) HandleNotification(ctx context.Context, raw []byte) error {
	n, err := gateway.ParseNotification(raw)
	if err != nil {
		return err
	}

	ok, err := s.gw.ValidateNotification(n)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureInvalid
	}

	status := gateway.ResolveStatus(n.StatusCode)

	sub, err := s.subRepo.GetByTransactionID(n.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 终态错误：向网关应答成功，阻止无意义的重投
			return ErrTransactionNotFound
		}
		return err
	}

	user, err := s.userRepo.GetByID(sub.UserID)
	if err != nil {
		return err
	}

	// 订阅写在前、账号写在后，同一事务内提交：
	// 外部观察不到"订阅已激活而账号未激活"的中间态
	// 首次激活/首次失败的判定落在条件更新的影响行数上，
	// 并发重复投递在 MySQL 下也只有一次能赢，事件和邮件不重复
	firstActivation := false
	firstFailure := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txPayments := repository.NewPaymentRepository(tx)
		txSubs := repository.NewSubscriptionRepository(tx)
		txUsers := repository.NewUserRepository(tx)

		record, err := txPayments.GetByTransactionID(n.TransactionID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// 有单无流水（流水被人工清理等），按缺失补插
			record = &model.PaymentRecord{
				SubscriptionID: sub.ID,
				TransactionID:  n.TransactionID,
				Currency:       "IDR",
				GatewayName:    "autolaku_gateway",
			}
			if amount, perr := strconv.ParseInt(n.TotalAmount, 10, 64); perr == nil {
				record.Amount = amount
			}
			if err := txPayments.Create(record); err != nil {
				return err
			}
		}

		switch status {
		case gateway.StatusCompleted:
			record.Status = model.PaymentCompleted
			record.GatewayTxnID = n.GatewayTxnID
			record.Method = n.Channel
			paidAt := parsePaymentDate(n.PaymentDate)
			record.PaidAt = &paidAt
			if err := txPayments.Update(record); err != nil {
				return err
			}

			// 已激活订阅收到重放的 completed 只刷新流水
			now := time.Now()
			won, err := txSubs.Activate(sub.ID, now, s.planExpiry(sub.Plan, now))
			if err != nil {
				return err
			}
			firstActivation = won

			return txUsers.Activate(user.ID, sub.LicenseQuota, now)

		case gateway.StatusFailed:
			// 只改流水，不回退已激活的订阅
			won, err := txPayments.MarkFailed(record.ID, n.GatewayTxnID)
			if err != nil {
				return err
			}
			firstFailure = won
			return nil

		default: // pending
			record.Status = model.PaymentPending
			record.GatewayTxnID = n.GatewayTxnID
			return txPayments.Update(record)
		}
	})
	if err != nil {
		return err
	}

	// 事件和邮件只在持久化成功之后发
	if firstActivation {
		event := &bus.Event{
			Kind:      bus.KindStatusChange,
			Timestamp: time.Now(),
			Message:   "订阅已激活",
		}
		if err := s.eventBus.Publish(ctx, bus.AdminTopic(user.ID), event); err != nil {
			log.Printf("Failed to publish activation event for user %d: %v", user.ID, err)
		}

		if s.emailSvc != nil && user.Email != nil {
			if err := s.emailSvc.SendWelcome(*user.Email, user.Username, sub.Plan); err != nil {
				log.Printf("Failed to send welcome email to user %d: %v", user.ID, err)
			}
		}
	}

	if firstFailure && s.emailSvc != nil && user.Email != nil {
		if err := s.emailSvc.SendPaymentFailed(*user.Email, user.Username); err != nil {
			log.Printf("Failed to send payment failed email to user %d: %v", user.ID, err)
		}
	}

	s.archive(n.TransactionID, raw)
	return nil
}

// CreateChargeForSubscription 为订阅发起一次建单，账单号按订阅内流水序号递增
// 建单失败时删除刚插入的流水，不留没有对应支付尝试的孤儿记录
func (s *PaymentService) CreateChargeForSubscription(ctx context.Context, user *model.User, sub *model.Subscription) (*dto.RegisterResponse, error) {
	count, err := s.paymentRepo.CountBySubscription(sub.ID)
	if err != nil {
		return nil, err
	}
	transactionID := fmt.Sprintf("AUTOLAKU-%d-%03d", sub.ID, count+1)

	record := &model.PaymentRecord{
		SubscriptionID: sub.ID,
		TransactionID:  transactionID,
		Amount:         sub.TotalPrice,
		Currency:       "IDR",
		GatewayName:    "autolaku_gateway",
		Status:         model.PaymentPending,
	}
	if err := s.paymentRepo.Create(record); err != nil {
		return nil, err
	}

	plan := s.cfg.Plans[sub.Plan]
	chargeReq := &gateway.ChargeRequest{
		TransactionID: transactionID,
		Description:   fmt.Sprintf("Autolaku %s 订阅", plan.DisplayName),
		Amount:        sub.TotalPrice,
		CustomerName:  user.Username,
		CustomerPhone: user.Phone,
		Items: []gateway.ChargeItem{
			{Name: plan.DisplayName, Price: sub.BasePrice, Qty: 1},
		},
	}
	if user.Email != nil {
		chargeReq.CustomerEmail = *user.Email
	}

	charge, err := s.gw.CreateCharge(ctx, chargeReq)
	if err != nil {
		if derr := s.db.Delete(&model.PaymentRecord{}, record.ID).Error; derr != nil {
			log.Printf("Failed to rollback payment record %d: %v", record.ID, derr)
		}
		return nil, err
	}

	record.GatewayTxnID = charge.GatewayRef
	if err := s.paymentRepo.Update(record); err != nil {
		return nil, err
	}

	return &dto.RegisterResponse{
		UserID:        user.ID,
		TransactionID: transactionID,
		PaymentURL:    charge.PaymentURL,
	}, nil
}

// GetPaymentStatus 支付结果轮询（收银台跳回后的落地页使用）
func (s *PaymentService) GetPaymentStatus(transactionID string) (*dto.PaymentInfo, error) {
	record, err := s.paymentRepo.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	info := &dto.PaymentInfo{
		TransactionID: record.TransactionID,
		GatewayTxnID:  record.GatewayTxnID,
		Amount:        record.Amount,
		Currency:      record.Currency,
		Status:        string(record.Status),
	}
	if record.PaidAt != nil {
		info.PaidAt = record.PaidAt.Format(time.RFC3339)
	}
	return info, nil
}

func (s *PaymentService) planExpiry(plan string, from time.Time) *time.Time {
	p, ok := s.cfg.Plans[plan]
	if !ok || p.DurationDays <= 0 {
		return nil
	}
	expiresAt := from.AddDate(0, 0, p.DurationDays)
	return &expiresAt
}

func (s *PaymentService) archive(transactionID string, raw []byte) {
	if s.archiver == nil {
		return
	}
	if _, err := s.archiver.ArchiveNotification(transactionID, raw); err != nil {
		log.Printf("Failed to archive notification %s: %v", transactionID, err)
	}
}

func parsePaymentDate(value string) time.Time {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
		return t
	}
	return time.Now()
}
