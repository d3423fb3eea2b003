package dto

// ValidateRequest 授权码校验请求（客户端登录）
type ValidateRequest struct {
	Key      string `json:"key" binding:"required"`
	DeviceID string `json:"device_id" binding:"omitempty,max=100"`
}

// LicenseView 授权码对外视图（不含内部审计字段）
type LicenseView struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	Online    bool   `json:"online"`
}

// GenerateLicenseRequest 管理员生成授权码请求
type GenerateLicenseRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Contact string `json:"contact" binding:"omitempty,max=100"`
}

// ForceLogoutRequest 管理员强制下线请求
type ForceLogoutRequest struct {
	Key string `json:"key" binding:"required"`
}
