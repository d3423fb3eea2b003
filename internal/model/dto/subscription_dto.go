package dto

// SubscriptionInfo 订阅信息
type SubscriptionInfo struct {
	ID           int64  `json:"id"`
	Plan         string `json:"plan"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	AutoRenew    bool   `json:"auto_renew"`
	LicenseQuota int    `json:"license_quota"`
	BasePrice    int64  `json:"base_price"`
	TotalPrice   int64  `json:"total_price"`
}

// PaymentInfo 支付流水信息
type PaymentInfo struct {
	TransactionID string `json:"transaction_id"`
	GatewayTxnID  string `json:"gateway_txn_id,omitempty"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaidAt        string `json:"paid_at,omitempty"`
}

// PlanInfo 套餐目录项
type PlanInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Price        int64  `json:"price"`
	LicenseQuota int    `json:"license_quota"`
	DurationDays int    `json:"duration_days"`
	Description  string `json:"description,omitempty"`
}
