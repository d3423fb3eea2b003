package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/autolaku_server/config"
	"github.com/qs3c/autolaku_server/internal/api/middleware"
	"github.com/qs3c/autolaku_server/internal/pkg/bus"
	"github.com/qs3c/autolaku_server/internal/pkg/email"
	"github.com/qs3c/autolaku_server/internal/pkg/gateway"
	"github.com/qs3c/autolaku_server/internal/pkg/response"
	"github.com/qs3c/autolaku_server/internal/pkg/sign"
	"github.com/qs3c/autolaku_server/internal/repository"
	"github.com/qs3c/autolaku_server/internal/service"
	"github.com/qs3c/autolaku_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerTestEnv struct {
	db             *gorm.DB
	bus            *bus.MemoryBus
	signer         *sign.Signer
	cfg            *config.Config
	paymentService *service.PaymentService
	licenseService *service.LicenseService
}

func newHandlerTestEnv(t *testing.T, gatewayURL string) *handlerTestEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret-key",
			ExpireHours: 24,
		},
		Gateway: config.GatewayConfig{
			BaseURL:      gatewayURL,
			MerchantCode: "AUTOLAKU01",
			APIKey:       "test-api-key",
			Channel:      "wallet_qris",
		},
		Plans: map[string]config.Plan{
			"business": {
				DisplayName:  "商业版",
				Price:        249000,
				LicenseQuota: 5,
				DurationDays: 30,
			},
		},
		Stream: config.StreamConfig{PingSeconds: 1},
	}

	signer := sign.NewSigner(cfg.Gateway.MerchantCode, cfg.Gateway.APIKey)
	memBus := bus.NewMemoryBus()

	subRepo := repository.NewSubscriptionRepository(db)
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	licenseRepo := repository.NewLicenseRepository(db)

	paymentService := service.NewPaymentService(
		db, subRepo, userRepo, paymentRepo,
		gateway.NewClient(&cfg.Gateway, signer),
		memBus, email.NewService(&cfg.Email), nil, cfg,
	)
	licenseService := service.NewLicenseService(db, licenseRepo, subRepo, memBus)

	return &handlerTestEnv{
		db:             db,
		bus:            memBus,
		signer:         signer,
		cfg:            cfg,
		paymentService: paymentService,
		licenseService: licenseService,
	}
}

// fakeAuth 测试用认证中间件，直接注入用户 ID
func fakeAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performRawRequest(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}
