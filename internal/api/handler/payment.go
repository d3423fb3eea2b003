package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Notify 网关回调入口
// POST /api/v1/payment/notify
// 应答语义面向网关的重投策略：200 停止重投，非 200 触发重投
// 终态错误（验签外的不可恢复错误）也应答 200，避免网关无意义地重试
func (h *PaymentHandler) Notify(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusInternalServerError, "FAILED")
		return
	}

	err = h.paymentService.HandleNotification(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			// 验签失败可能是凭据配置错误，401 让网关侧告警
			c.String(http.StatusUnauthorized, "INVALID SIGNATURE")
		case errors.Is(err, gateway.ErrMalformedNotification),
			errors.Is(err, service.ErrTransactionNotFound):
			// 重投不会让报文变好
			log.Printf("Dropped unprocessable notification: %v", err)
			c.String(http.StatusOK, "OK")
		default:
			c.String(http.StatusInternalServerError, "FAILED")
		}
		return
	}

	c.String(http.StatusOK, "OK")
}

// GetStatus 支付结果轮询
// GET /api/v1/payment/status/:transaction_id
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	transactionID := c.Param("transaction_id")

	info, err := h.paymentService.GetPaymentStatus(transactionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, info)
}
