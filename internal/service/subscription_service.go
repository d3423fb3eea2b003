package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/repository"
)

var (
	ErrSubscriptionNotFound = errors.New("订阅不存在")
	ErrAlreadyActive        = errors.New("订阅已激活，无需重复支付")
)

// SubscriptionService 订阅查询、取消与补单
type SubscriptionService struct {
	subRepo     *repository.SubscriptionRepository
	userRepo    *repository.UserRepository
	paymentRepo *repository.PaymentRepository
	paymentSvc  *PaymentService
	cfg         *config.Config
}

func NewSubscriptionService(
	subRepo *repository.SubscriptionRepository,
	userRepo *repository.UserRepository,
	paymentRepo *repository.PaymentRepository,
	paymentSvc *PaymentService,
	cfg *config.Config,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:     subRepo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		paymentSvc:  paymentSvc,
		cfg:         cfg,
	}
}

// GetByUser 当前用户订阅详情，含支付流水
func (s *SubscriptionService) GetByUser(userID int64) (*dto.SubscriptionInfo, []dto.PaymentInfo, error) {
	sub, err := s.subRepo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubscriptionNotFound
		}
		return nil, nil, err
	}

	records, err := s.paymentRepo.ListBySubscription(sub.ID)
	if err != nil {
		return nil, nil, err
	}

	payments := make([]dto.PaymentInfo, 0, len(records))
	for _, r := range records {
		info := dto.PaymentInfo{
			TransactionID: r.TransactionID,
			GatewayTxnID:  r.GatewayTxnID,
			Amount:        r.Amount,
			Currency:      r.Currency,
			Status:        string(r.Status),
		}
		if r.PaidAt != nil {
			info.PaidAt = r.PaidAt.Format(time.RFC3339)
		}
		payments = append(payments, info)
	}

	return subscriptionInfo(sub), payments, nil
}

// Cancel 取消订阅：关自动续费并置 cancelled
// 已生成的授权码按自身到期时间继续可用与否由校验侧判断归属订阅状态
func (s *SubscriptionService) Cancel(userID int64) error {
	sub, err := s.subRepo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}

	return s.subRepo.UpdateFields(sub.ID, map[string]interface{}{
		"status":     model.SubscriptionCancelled,
		"auto_renew": false,
	})
}

// Checkout 补单入口：OAuth 建号后首次选套餐，或注册后账单过期重新发起
// 已有 pending 订阅时改套餐重新下单，已激活则拒绝
func (s *SubscriptionService) Checkout(ctx context.Context, userID int64, planName string) (*dto.RegisterResponse, error) {
	plan, ok := s.cfg.Plans[planName]
	if !ok {
		return nil, ErrPlanNotFound
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.subRepo.GetByUserID(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		sub = &model.Subscription{
			UserID:       userID,
			Plan:         planName,
			Status:       model.SubscriptionPending,
			LicenseQuota: plan.LicenseQuota,
			BasePrice:    plan.Price,
			TotalPrice:   plan.Price,
		}
		if err := s.subRepo.Create(sub); err != nil {
			return nil, err
		}
	} else {
		if sub.Status == model.SubscriptionActive {
			return nil, ErrAlreadyActive
		}
		sub.Plan = planName
		sub.Status = model.SubscriptionPending
		sub.LicenseQuota = plan.LicenseQuota
		sub.BasePrice = plan.Price
		sub.TotalPrice = plan.Price
		if err := s.subRepo.Update(sub); err != nil {
			return nil, err
		}
	}

	return s.paymentSvc.CreateChargeForSubscription(ctx, user, sub)
}

// ListPlans 套餐目录，按价格升序
func (s *SubscriptionService) ListPlans() []dto.PlanInfo {
	plans := make([]dto.PlanInfo, 0, len(s.cfg.Plans))
	for name, p := range s.cfg.Plans {
		plans = append(plans, dto.PlanInfo{
			Name:         name,
			DisplayName:  p.DisplayName,
			Price:        p.Price,
			LicenseQuota: p.LicenseQuota,
			DurationDays: p.DurationDays,
			Description:  p.Description,
		})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
	return plans
}

func subscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	info := &dto.SubscriptionInfo{
		ID:           sub.ID,
		Plan:         sub.Plan,
		Status:       string(sub.Status),
		AutoRenew:    sub.AutoRenew,
		LicenseQuota: sub.LicenseQuota,
		BasePrice:    sub.BasePrice,
		TotalPrice:   sub.TotalPrice,
	}
	if sub.StartedAt != nil {
		info.StartedAt = sub.StartedAt.Format(time.RFC3339)
	}
	if sub.ExpiresAt != nil {
		info.ExpiresAt = sub.ExpiresAt.Format(time.RFC3339)
	}
	return info
}
