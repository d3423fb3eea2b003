package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeAuthFailed         = 1001
	CodePermissionDenied   = 1002
	CodeResourceNotFound   = 1003
	CodeQuotaExceeded      = 1004
	CodeGatewayUnavailable = 1006
	CodeServerError        = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeAuthFailed:         "认证失败",
	CodePermissionDenied:   "权限不足",
	CodeResourceNotFound:   "资源不存在",
	CodeQuotaExceeded:      "授权码配额不足",
	CodeGatewayUnavailable: "支付渠道暂时不可用，请稍后重试",
	CodeServerError:        "服务器内部错误",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// QuotaError 配额不足
func QuotaError(c *gin.Context, message string) {
	Error(c, CodeQuotaExceeded, message)
}

// GatewayError 支付渠道故障（与业务拒绝分开，前端可提示稍后重试）
func GatewayError(c *gin.Context, message string) {
	Error(c, CodeGatewayUnavailable, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
