package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/internal/api/middleware"
	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ListPlans 套餐目录
// GET /api/v1/plans
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	response.Success(c, gin.H{"plans": h.subscriptionService.ListPlans()})
}

// Get 当前用户订阅详情（含支付流水）
// GET /api/v1/subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, payments, err := h.subscriptionService.GetByUser(userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubscriptionNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, gin.H{"subscription": info, "payments": payments})
}

// Cancel 取消订阅
// POST /api/v1/subscription/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	if err := h.subscriptionService.Cancel(userID); err != nil {
		switch {
		case errors.Is(err, service.ErrSubscriptionNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "订阅已取消", nil)
}

type checkoutRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// Checkout 补单：OAuth 建号后首次选套餐，或账单过期重新发起支付
// POST /api/v1/subscription/checkout
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.subscriptionService.Checkout(c.Request.Context(), userID, req.Plan)
	if err != nil {
		var chargeErr *gateway.ChargeError
		switch {
		case errors.Is(err, service.ErrPlanNotFound):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrAlreadyActive):
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

	response.SuccessWithMessage(c, "账单已创建，请完成支付", resp)
}
