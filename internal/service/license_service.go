package service

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/repository"
)

var (
	ErrLicenseNotFound      = errors.New("授权码不存在")
	ErrLicenseInactive      = errors.New("授权码已失效")
	ErrLicenseExpired       = errors.New("授权码已过期")
	ErrForbidden            = errors.New("无权操作该授权码")
	ErrNoActiveDevice       = errors.New("授权码当前无绑定设备")
	ErrNoActiveSubscription = errors.New("订阅未激活")
	ErrQuotaExceeded        = errors.New("授权码数量已达套餐上限")
)

// LicenseService 授权码全生命周期：生成、校验绑定、在线状态、强制下线
type LicenseService struct {
	db          *gorm.DB
	licenseRepo *repository.LicenseRepository
	subRepo     *repository.SubscriptionRepository
	eventBus    bus.Bus
}

func NewLicenseService(
	db *gorm.DB,
	licenseRepo *repository.LicenseRepository,
	subRepo *repository.SubscriptionRepository,
	eventBus bus.Bus,
) *LicenseService {
	return &LicenseService{
		db:          db,
		licenseRepo: licenseRepo,
		subRepo:     subRepo,
		eventBus:    eventBus,
	}
}

// Generate 管理员生成授权码，受订阅配额约束
// 有效期跟随订阅到期时间，订阅未设到期则授权码长期有效
// 计数和写入在同一事务内，订阅行锁必须是事务内第一条语句，
// 否则 REPEATABLE READ 快照会让后面的计数读不到并发事务刚提交的插入
func (s *LicenseService) Generate(adminID int64, req *dto.GenerateLicenseRequest) (*dto.LicenseView, error) {
	var license *model.License
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txSubs := repository.NewSubscriptionRepository(tx)
		txLicenses := repository.NewLicenseRepository(tx)

		sub, err := txSubs.GetByUserIDForUpdate(adminID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveSubscription
			}
			return err
		}
		if sub.Status != model.SubscriptionActive {
			return ErrNoActiveSubscription
		}

		count, err := txLicenses.CountByAdmin(adminID)
		if err != nil {
			return err
		}
		if count >= int64(sub.LicenseQuota) {
			return ErrQuotaExceeded
		}

		license = &model.License{
			Name:           req.Name,
			Contact:        req.Contact,
			AdminID:        &adminID,
			SubscriptionID: &sub.ID,
			Status:         model.LicenseActive,
			ExpiresAt:      sub.ExpiresAt,
		}
		return txLicenses.CreateWithUniqueKey(license)
	})
	if err != nil {
		return nil, err
	}

	return licenseView(license), nil
}

// Validate 客户端校验授权码并绑定设备
// 绑定为后写者覆盖：换设备登录即接管，旧设备下次校验自然失败
func (s *LicenseService) Validate(req *dto.ValidateRequest) (*dto.LicenseView, error) {
	license, err := s.licenseRepo.GetByKey(req.Key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}

	if err := s.checkUsable(license); err != nil {
		return nil, err
	}

	if req.DeviceID != "" {
		if license.DeviceID == nil || *license.DeviceID != req.DeviceID {
			if err := s.licenseRepo.BindDevice(license.ID, req.DeviceID); err != nil {
				return nil, err
			}
			deviceID := req.DeviceID
			license.DeviceID = &deviceID
		}
	}

	return licenseView(license), nil
}

// checkUsable 惰性过期：读到已过期仍标 active 的记录时当场翻转
// 归属订阅失效时授权码连带不可用，即使自身未到期
func (s *LicenseService) checkUsable(license *model.License) error {
	if license.Status == model.LicenseRevoked {
		return ErrLicenseInactive
	}

	if license.Status == model.LicenseActive &&
		license.ExpiresAt != nil && license.ExpiresAt.Before(time.Now()) {
		if err := s.licenseRepo.UpdateFields(license.ID, map[string]interface{}{
			"status": model.LicenseExpired,
		}); err != nil {
			return err
		}
		license.Status = model.LicenseExpired
	}
	if license.Status == model.LicenseExpired {
		return ErrLicenseExpired
	}

	if license.SubscriptionID != nil {
		sub, err := s.subRepo.GetByID(*license.SubscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLicenseInactive
			}
			return err
		}
		if sub.Status != model.SubscriptionActive {
			return ErrLicenseInactive
		}
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(time.Now()) {
			return ErrLicenseExpired
		}
	}

	return nil
}

// ListByAdmin 管理员名下授权码列表
func (s *LicenseService) ListByAdmin(adminID int64) ([]dto.LicenseView, error) {
	licenses, err := s.licenseRepo.ListByAdmin(adminID)
	if err != nil {
		return nil, err
	}

	views := make([]dto.LicenseView, 0, len(licenses))
	for i := range licenses {
		views = append(views, *licenseView(&licenses[i]))
	}
	return views, nil
}

// AdminForceLogout 管理员强制下线：解绑设备并向该授权码的事件流推送登出指令
func (s *LicenseService) AdminForceLogout(ctx context.Context, adminID int64, key string) error {
	license, err := s.licenseRepo.GetByKey(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLicenseNotFound
		}
		return err
	}

	if license.AdminID == nil || *license.AdminID != adminID {
		return ErrForbidden
	}
	if license.DeviceID == nil {
		return ErrNoActiveDevice
	}

	if err := s.licenseRepo.ClearDevice(license.ID); err != nil {
		return err
	}

	event := &bus.Event{
		Kind:      bus.KindLogout,
		Timestamp: time.Now(),
		Message:   "管理员已强制下线该设备",
	}
	if err := s.eventBus.Publish(ctx, bus.LicenseTopic(key), event); err != nil {
		log.Printf("Failed to publish logout event for license %s: %v", key, err)
	}
	return nil
}

// MarkOnline 客户端事件流建立时调用，已在线则不重复写库
func (s *LicenseService) MarkOnline(ctx context.Context, license *model.License) error {
	if license.Online {
		return nil
	}

	now := time.Now()
	if err := s.licenseRepo.SetOnline(license.ID, now); err != nil {
		return err
	}
	license.Online = true
	license.ConnectedAt = &now

	s.publishPresence(ctx, license, true)
	return nil
}

// MarkOffline 事件流断开时调用，推进 last_seen_at
func (s *LicenseService) MarkOffline(ctx context.Context, license *model.License) error {
	now := time.Now()
	if err := s.licenseRepo.SetOffline(license.ID, now); err != nil {
		return err
	}
	license.Online = false
	license.LastSeenAt = &now

	s.publishPresence(ctx, license, false)
	return nil
}

// publishPresence 在线状态变化推送到管理员主题，控制台实时刷新
func (s *LicenseService) publishPresence(ctx context.Context, license *model.License, online bool) {
	if license.AdminID == nil {
		return
	}

	event := &bus.Event{
		Kind:       bus.KindStatusChange,
		Timestamp:  time.Now(),
		LicenseKey: license.Key,
		Online:     online,
	}
	if license.DeviceID != nil {
		event.DeviceID = *license.DeviceID
	}
	if err := s.eventBus.Publish(ctx, bus.AdminTopic(*license.AdminID), event); err != nil {
		log.Printf("Failed to publish presence event for license %s: %v", license.Key, err)
	}
}

// GetByKey 事件流握手时回查授权码（不做绑定）
func (s *LicenseService) GetByKey(key string) (*model.License, error) {
	license, err := s.licenseRepo.GetByKey(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return license, nil
}

// CheckUsable 暴露给事件流握手使用，语义与校验接口一致
func (s *LicenseService) CheckUsable(license *model.License) error {
	return s.checkUsable(license)
}

func licenseView(license *model.License) *dto.LicenseView {
	view := &dto.LicenseView{
		Key:    license.Key,
		Name:   license.Name,
		Status: string(license.Status),
		Online: license.Online,
	}
	if license.ExpiresAt != nil {
		view.ExpiresAt = license.ExpiresAt.Format(time.RFC3339)
	}
	if license.DeviceID != nil {
		view.DeviceID = *license.DeviceID
	}
	return view
}
