package dto

// RegisterRequest 注册请求（注册即选套餐下单）
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=32"`
	Plan     string `json:"plan" binding:"required"`
	Company  string `json:"company" binding:"omitempty,max=100"`
	Phone    string `json:"phone" binding:"omitempty,max=30"`
}

// RegisterResponse 注册响应，PaymentURL 为网关收银台跳转地址
type RegisterResponse struct {
	UserID        int64  `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Company      string `json:"company,omitempty"`
	IsActive     bool   `json:"is_active"`
	LicenseQuota int    `json:"license_quota"`
	CreatedAt    string `json:"created_at,omitempty"`
}
