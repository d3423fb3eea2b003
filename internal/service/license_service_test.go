package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/repository"
	"github.com/qs3c/autolaku_server/internal/testutil"
)

func newLicenseTestEnv(t *testing.T) (*LicenseService, *gorm.DB, *bus.MemoryBus) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	memBus := bus.NewMemoryBus()
	svc := NewLicenseService(
		db,
		repository.NewLicenseRepository(db),
		repository.NewSubscriptionRepository(db),
		memBus,
	)
	return svc, db, memBus
}

func activeAdmin(t *testing.T, db *gorm.DB, quota int) (*model.User, *model.Subscription) {
	t.Helper()

	user := testutil.TestUser(t, db, testutil.WithActive(quota))
	expiresAt := time.Now().AddDate(0, 0, 30)
	sub := testutil.TestSubscription(t, db, user.ID,
		testutil.WithSubStatus(model.SubscriptionActive),
		testutil.WithSubQuota(quota),
		testutil.WithSubExpiresAt(expiresAt),
	)
	return user, sub
}

func TestGenerateLicense(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	admin, sub := activeAdmin(t, db, 5)

	view, err := svc.Generate(admin.ID, &dto.GenerateLicenseRequest{Name: "门店A", Contact: "store-a@example.com"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}(-[A-HJ-NP-Z2-9]{4}){3}$`), view.Key)
	assert.Equal(t, "门店A", view.Name)
	assert.Equal(t, "active", view.Status)

	var license model.License
	require.NoError(t, db.Where("`key` = ?", view.Key).First(&license).Error)
	require.NotNil(t, license.AdminID)
	assert.Equal(t, admin.ID, *license.AdminID)
	require.NotNil(t, license.SubscriptionID)
	assert.Equal(t, sub.ID, *license.SubscriptionID)
	require.NotNil(t, license.ExpiresAt)
	assert.Equal(t, sub.ExpiresAt.Unix(), license.ExpiresAt.Unix())
}

func TestGenerateLicenseQuotaExceeded(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	admin, _ := activeAdmin(t, db, 2)

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(admin.ID, &dto.GenerateLicenseRequest{Name: "门店"})
		require.NoError(t, err)
	}

	_, err := svc.Generate(admin.ID, &dto.GenerateLicenseRequest{Name: "超额"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestGenerateLicenseConcurrentAtQuotaBoundary(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)

	// 内存库限到单连接，连接池多开时每个连接是独立的空库
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	admin, _ := activeAdmin(t, db, 2)
	_, err = svc.Generate(admin.ID, &dto.GenerateLicenseRequest{Name: "门店A"})
	require.NoError(t, err)

	// 配额只剩最后一个名额时并发生成：只允许一个越过上限检查
	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Generate(admin.ID, &dto.GenerateLicenseRequest{Name: "门店B"})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrQuotaExceeded)
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, db.Model(&model.License{}).
		Where("admin_id = ?", admin.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGenerateLicenseRequiresActiveSubscription(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)

	// 无订阅
	orphan := testutil.TestUser(t, db)
	_, err := svc.Generate(orphan.ID, &dto.GenerateLicenseRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	// 订阅存在但未激活
	pending := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, pending.ID)
	_, err = svc.Generate(pending.ID, &dto.GenerateLicenseRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestValidateBindsDevice(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	_, sub := activeAdmin(t, db, 5)
	license := testutil.TestLicense(t, db, testutil.WithLicenseSubscription(sub.ID))

	view, err := svc.Validate(&dto.ValidateRequest{Key: license.Key, DeviceID: "device-x"})
	require.NoError(t, err)
	assert.Equal(t, "device-x", view.DeviceID)

	// 后写者覆盖：新设备登录直接接管
	view, err = svc.Validate(&dto.ValidateRequest{Key: license.Key, DeviceID: "device-y"})
	require.NoError(t, err)
	assert.Equal(t, "device-y", view.DeviceID)

	var got model.License
	require.NoError(t, db.First(&got, license.ID).Error)
	require.NotNil(t, got.DeviceID)
	assert.Equal(t, "device-y", *got.DeviceID)
}

func TestValidateNotFound(t *testing.T) {
	svc, _, _ := newLicenseTestEnv(t)

	_, err := svc.Validate(&dto.ValidateRequest{Key: "NONE-NONE-NONE-NONE", DeviceID: "d"})
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestValidateRevoked(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	license := testutil.TestLicense(t, db, testutil.WithLicenseStatus(model.LicenseRevoked))

	_, err := svc.Validate(&dto.ValidateRequest{Key: license.Key, DeviceID: "d"})
	assert.ErrorIs(t, err, ErrLicenseInactive)
}

func TestValidateLazyExpiry(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	license := testutil.TestLicense(t, db,
		testutil.WithLicenseExpiresAt(time.Now().Add(-time.Hour)))

	_, err := svc.Validate(&dto.ValidateRequest{Key: license.Key, DeviceID: "d"})
	assert.ErrorIs(t, err, ErrLicenseExpired)

	// 惰性翻转必须落库，后续清扫和列表读到的就是 expired
	var got model.License
	require.NoError(t, db.First(&got, license.ID).Error)
	assert.Equal(t, model.LicenseExpired, got.Status)
}

func TestValidateInactiveParentSubscription(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	user := testutil.TestUser(t, db)
	sub := testutil.TestSubscription(t, db, user.ID,
		testutil.WithSubStatus(model.SubscriptionCancelled))
	license := testutil.TestLicense(t, db, testutil.WithLicenseSubscription(sub.ID))

	// 授权码自身未到期，但归属订阅已取消
	_, err := svc.Validate(&dto.ValidateRequest{Key: license.Key, DeviceID: "d"})
	assert.ErrorIs(t, err, ErrLicenseInactive)
}

func TestAdminForceLogout(t *testing.T) {
	svc, db, memBus := newLicenseTestEnv(t)
	admin, sub := activeAdmin(t, db, 5)
	license := testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(admin.ID),
		testutil.WithLicenseSubscription(sub.ID),
		testutil.WithDevice("device-x"))

	var mu sync.Mutex
	var events []*bus.Event
	_, err := memBus.Subscribe(bus.LicenseTopic(license.Key), func(e *bus.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, svc.AdminForceLogout(context.Background(), admin.ID, license.Key))

	var got model.License
	require.NoError(t, db.First(&got, license.ID).Error)
	assert.Nil(t, got.DeviceID)
	assert.False(t, got.Online)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, bus.KindLogout, events[0].Kind)
}

func TestAdminForceLogoutForbidden(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	owner, sub := activeAdmin(t, db, 5)
	other, _ := activeAdmin(t, db, 5)
	license := testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(owner.ID),
		testutil.WithLicenseSubscription(sub.ID),
		testutil.WithDevice("device-x"))

	err := svc.AdminForceLogout(context.Background(), other.ID, license.Key)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminForceLogoutNoDevice(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	admin, sub := activeAdmin(t, db, 5)
	license := testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(admin.ID),
		testutil.WithLicenseSubscription(sub.ID))

	err := svc.AdminForceLogout(context.Background(), admin.ID, license.Key)
	assert.ErrorIs(t, err, ErrNoActiveDevice)
}

func TestMarkOnlineOffline(t *testing.T) {
	svc, db, memBus := newLicenseTestEnv(t)
	admin, sub := activeAdmin(t, db, 5)
	license := testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(admin.ID),
		testutil.WithLicenseSubscription(sub.ID),
		testutil.WithDevice("device-x"))

	var mu sync.Mutex
	var events []*bus.Event
	_, err := memBus.Subscribe(bus.AdminTopic(admin.ID), func(e *bus.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkOnline(context.Background(), license))

	var got model.License
	require.NoError(t, db.First(&got, license.ID).Error)
	assert.True(t, got.Online)
	assert.NotNil(t, got.ConnectedAt)

	// 已在线重复上报不写库不发事件
	require.NoError(t, svc.MarkOnline(context.Background(), license))

	require.NoError(t, svc.MarkOffline(context.Background(), license))
	require.NoError(t, db.First(&got, license.ID).Error)
	assert.False(t, got.Online)
	assert.NotNil(t, got.LastSeenAt)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.True(t, events[0].Online)
	assert.False(t, events[1].Online)
	assert.Equal(t, license.Key, events[0].LicenseKey)
}

func TestListByAdmin(t *testing.T) {
	svc, db, _ := newLicenseTestEnv(t)
	admin, sub := activeAdmin(t, db, 5)
	testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(admin.ID),
		testutil.WithLicenseSubscription(sub.ID))
	testutil.TestLicense(t, db,
		testutil.WithLicenseAdmin(admin.ID),
		testutil.WithLicenseSubscription(sub.ID))
	testutil.TestLicense(t, db) // 其他人的

	views, err := svc.ListByAdmin(admin.ID)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}
