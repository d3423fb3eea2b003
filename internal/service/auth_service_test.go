package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/jwt"
	"github.com/qs3c/autolaku_server/internal/repository"
	"github.com/qs3c/autolaku_server/internal/testutil"
)

func newAuthTestEnv(t *testing.T, gatewayURL string) (*AuthService, *paymentTestEnv) {
	t.Helper()

	env := newPaymentTestEnv(t, gatewayURL)
	svc := NewAuthService(
		repository.NewUserRepository(env.db),
		repository.NewSubscriptionRepository(env.db),
		env.svc,
		nil,
		env.cfg,
	)
	return svc, env
}

func okGatewayServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"responseCode": "00",
			"gatewayRef":   "GW-REF-1",
			"paymentUrl":   "https://pay.example.com/bill/1",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRegisterCreatesUserSubscriptionAndCharge(t *testing.T) {
	server := okGatewayServer(t)
	svc, env := newAuthTestEnv(t, server.URL)

	resp, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "tokoberkah",
		Email:    "owner@tokoberkah.id",
		Password: "rahasia-123",
		Plan:     "business",
		Company:  "Toko Berkah",
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.UserID)
	assert.Equal(t, "https://pay.example.com/bill/1", resp.PaymentURL)

	var user model.User
	require.NoError(t, env.db.First(&user, resp.UserID).Error)
	assert.False(t, user.IsActive)
	require.NotNil(t, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("rahasia-123")))

	var sub model.Subscription
	require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, model.SubscriptionPending, sub.Status)
	assert.Equal(t, "business", sub.Plan)
	assert.Equal(t, int64(249000), sub.TotalPrice)
	assert.Equal(t, fmt.Sprintf("AUTOLAKU-%d-001", sub.ID), resp.TransactionID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	server := okGatewayServer(t)
	svc, env := newAuthTestEnv(t, server.URL)
	testutil.TestUser(t, env.db, testutil.WithEmail("taken@example.com"))

	_, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "newuser",
		Email:    "taken@example.com",
		Password: "rahasia-123",
		Plan:     "business",
	})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestRegisterRejectsUnknownPlan(t *testing.T) {
	svc, _ := newAuthTestEnv(t, "")

	_, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "newuser",
		Email:    "new@example.com",
		Password: "rahasia-123",
		Plan:     "enterprise-max",
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestRegisterRollsBackOnGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>502</html>")
	}))
	defer server.Close()

	svc, env := newAuthTestEnv(t, server.URL)

	_, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "unlucky",
		Email:    "unlucky@example.com",
		Password: "rahasia-123",
		Plan:     "business",
	})
	require.Error(t, err)

	// 建单失败后账号、订阅、流水都不应残留，同一邮箱可以重试
	var count int64
	require.NoError(t, env.db.Model(&model.User{}).
		Where("email = ?", "unlucky@example.com").Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, env.db.Model(&model.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, env.db.Model(&model.PaymentRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestLogin(t *testing.T) {
	svc, env := newAuthTestEnv(t, "")

	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia-123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	passwordHash := string(hash)
	email := "login@example.com"
	user := &model.User{
		Username:     "loginuser",
		Email:        &email,
		PasswordHash: &passwordHash,
	}
	require.NoError(t, env.db.Create(user).Error)

	resp, err := svc.Login(&dto.LoginRequest{Email: email, Password: "rahasia-123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := jwt.ParseToken(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, env := newAuthTestEnv(t, "")

	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia-123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	passwordHash := string(hash)
	email := "login2@example.com"
	require.NoError(t, env.db.Create(&model.User{
		Username:     "loginuser2",
		Email:        &email,
		PasswordHash: &passwordHash,
	}).Error)

	_, err = svc.Login(&dto.LoginRequest{Email: email, Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthTestEnv(t, "")

	_, err := svc.Login(&dto.LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginOAuthAccountWithoutPassword(t *testing.T) {
	svc, env := newAuthTestEnv(t, "")

	githubID := "12345"
	email := "gh@example.com"
	require.NoError(t, env.db.Create(&model.User{
		Username: "ghuser",
		Email:    &email,
		GithubID: &githubID,
	}).Error)

	_, err := svc.Login(&dto.LoginRequest{Email: email, Password: "anything"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetUserInfo(t *testing.T) {
	svc, env := newAuthTestEnv(t, "")
	user := testutil.TestUser(t, env.db, testutil.WithActive(5))

	info, err := svc.GetUserInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, info.Username)
	assert.True(t, info.IsActive)
	assert.Equal(t, 5, info.LicenseQuota)
}
