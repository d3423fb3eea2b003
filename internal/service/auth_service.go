package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/model"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/jwt"
	"github.com/qs3c/autolaku_server/internal/pkg/oauth"
	"github.com/qs3c/autolaku_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrUsernameExists     = errors.New("用户名已被占用")
	ErrPlanNotFound       = errors.New("套餐不存在")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserNotActive      = errors.New("账号未激活，请先完成支付")
)

// AuthService 注册、登录与 GitHub OAuth
// 注册即下单：账号、订阅、首笔账单在一次注册请求内建齐
type AuthService struct {
	userRepo   *repository.UserRepository
	subRepo    *repository.SubscriptionRepository
	paymentSvc *PaymentService
	github     *oauth.GithubOAuth
	cfg        *config.Config
}

func NewAuthService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	paymentSvc *PaymentService,
	github *oauth.GithubOAuth,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		subRepo:    subRepo,
		paymentSvc: paymentSvc,
		github:     github,
		cfg:        cfg,
	}
}

// Register 注册并发起首笔支付
// 建单失败时回滚刚创建的订阅和账号，让用户可以用同一邮箱重试
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	plan, ok := s.cfg.Plans[req.Plan]
	if !ok {
		return nil, ErrPlanNotFound
	}

	exists, err := s.userRepo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	exists, err = s.userRepo.ExistsByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	passwordHash := string(hash)
	email := req.Email
	user := &model.User{
		Username:     req.Username,
		Email:        &email,
		PasswordHash: &passwordHash,
		Company:      req.Company,
		Phone:        req.Phone,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		UserID:       user.ID,
		Plan:         req.Plan,
		Status:       model.SubscriptionPending,
		LicenseQuota: plan.LicenseQuota,
		BasePrice:    plan.Price,
		TotalPrice:   plan.Price,
	}
	if err := s.subRepo.Create(sub); err != nil {
		s.rollbackRegistration(user.ID, 0)
		return nil, err
	}

	resp, err := s.paymentSvc.CreateChargeForSubscription(ctx, user, sub)
	if err != nil {
		s.rollbackRegistration(user.ID, sub.ID)
		return nil, err
	}
	return resp, nil
}

func (s *AuthService) rollbackRegistration(userID, subID int64) {
	if subID > 0 {
		if err := s.subRepo.Delete(subID); err != nil {
			log.Printf("Failed to rollback subscription %d: %v", subID, err)
		}
	}
	if err := s.userRepo.Delete(userID); err != nil {
		log.Printf("Failed to rollback user %d: %v", userID, err)
	}
}

// Login 邮箱密码登录
// 未激活账号也允许登录，前端据 is_active 引导去支付页
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		// OAuth 账号没有本地密码
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(user)
}

// GithubAuthURL 生成 GitHub 授权跳转地址
func (s *AuthService) GithubAuthURL(state string) string {
	return s.github.GetAuthURL(state)
}

// GithubCallback 处理 GitHub 回调
// 首次登录自动建号（未激活、无订阅），之后走正常的选套餐下单流程
func (s *AuthService) GithubCallback(ctx context.Context, code string) (*dto.LoginResponse, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	ghUser, err := s.github.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}

	githubID := strconv.FormatInt(ghUser.ID, 10)
	user, err := s.userRepo.GetByGithubID(githubID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user = &model.User{
			Username: ghUser.Login,
			GithubID: &githubID,
		}
		if ghUser.Email != "" {
			email := ghUser.Email
			user.Email = &email
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, err
		}
	}

	return s.issueSession(user)
}

// GetUserInfo 当前登录用户信息
func (s *AuthService) GetUserInfo(userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return userInfo(user), nil
}

func (s *AuthService) issueSession(user *model.User) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &dto.LoginResponse{
		Token: token,
		User:  userInfo(user),
	}, nil
}

func userInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		Company:      user.Company,
		IsActive:     user.IsActive,
		LicenseQuota: user.LicenseQuota,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	return info
}
