package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/internal/api/middleware"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册（注册即选套餐下单，返回收银台跳转地址）
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		var chargeErr *gateway.ChargeError
		switch {
		case errors.Is(err, service.ErrEmailExists):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrUsernameExists):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrPlanNotFound):
			response.ParamError(c, err.Error())
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			response.GatewayError(c, "")
		case errors.As(err, &chargeErr):
			response.GatewayError(c, chargeErr.Message)
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "注册成功，请完成支付", resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.AuthError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// GithubAuth 跳转 GitHub 授权页
// GET /api/v1/auth/github
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	state := c.Query("state")
	response.Success(c, gin.H{"url": h.authService.GithubAuthURL(state)})
}

// GithubCallback GitHub 授权回调
// GET /api/v1/auth/github/callback
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码")
		return
	}

	resp, err := h.authService.GithubCallback(c.Request.Context(), code)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// GetProfile 当前登录用户信息
// GET /api/v1/user/profile
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.authService.GetUserInfo(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}
