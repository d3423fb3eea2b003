package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/autolaku_server/internal/api/middleware"
	"github.com/qs3c/autolaku_server/internal/model/dto"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/service"
)

type LicenseHandler struct {
	licenseService *service.LicenseService
}

func NewLicenseHandler(licenseService *service.LicenseService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

// Validate 客户端授权码校验与设备绑定
// POST /api/v1/licenses/validate
// 面向桌面客户端的接口，用裸 HTTP 状态码而非门户统一信封：
// 404 不存在，403 失效或过期，200 返回授权码视图
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.licenseService.Validate(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLicenseNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrLicenseInactive),
			errors.Is(err, service.ErrLicenseExpired):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, view)
}

// Generate 管理员生成授权码
// POST /api/v1/licenses
func (h *LicenseHandler) Generate(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.GenerateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	view, err := h.licenseService.Generate(userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSubscription):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrQuotaExceeded):
			response.QuotaError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "授权码已生成", view)
}

// List 管理员名下授权码列表
// GET /api/v1/licenses
func (h *LicenseHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	views, err := h.licenseService.ListByAdmin(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"licenses": views, "total": len(views)})
}

// ForceLogout 管理员强制下线
// POST /api/v1/licenses/force-logout
func (h *LicenseHandler) ForceLogout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ForceLogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	err := h.licenseService.AdminForceLogout(c.Request.Context(), userID, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLicenseNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrForbidden):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrNoActiveDevice):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已下发强制下线指令", nil)
}
