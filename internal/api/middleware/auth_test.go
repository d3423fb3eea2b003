package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autolaku_server/internal/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key"

func setupAuthRouter() *gin.Engine {
	router := gin.New()
	router.GET("/protected", Auth(testSecret), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuthValidToken(t *testing.T) {
	router := setupAuthRouter()

	token, err := jwt.GenerateToken(42, testSecret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
}

func TestAuthMissingHeader(t *testing.T) {
	router := setupAuthRouter()

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 统一信封：HTTP 200，业务码标识认证失败
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":1001`)
}

func TestAuthMalformedHeader(t *testing.T) {
	router := setupAuthRouter()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"code":1001`)
}

func TestAuthWrongSecret(t *testing.T) {
	router := setupAuthRouter()

	token, err := jwt.GenerateToken(42, "other-secret", 1)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"code":1001`)
}
