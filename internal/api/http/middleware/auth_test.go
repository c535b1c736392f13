package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/auth"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/users"
)

const testSecret = "middleware-test-secret"

func protectedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	engine.GET("/protected", chain...)
	return engine
}

func doGet(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/protected", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestJWTAuth(t *testing.T) {
	router := protectedRouter(JWTAuth(testSecret))

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "user-1", "dana", users.RoleRequester)
		require.NoError(t, err)

		rr := doGet(router, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "dana")
	})

	t.Run("missing header", func(t *testing.T) {
		rr := doGet(router, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rr := doGet(router, map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.JWTConfig{Secret: "other"}, "user-1", "dana", users.RoleRequester)
		require.NoError(t, err)

		rr := doGet(router, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireRole(t *testing.T) {
	router := protectedRouter(JWTAuth(testSecret), RequireRole(users.RoleReviewer))

	t.Run("reviewer allowed", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "user-1", "rev", users.RoleReviewer)
		require.NoError(t, err)

		rr := doGet(router, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("requester forbidden", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "user-2", "dana", users.RoleRequester)
		require.NoError(t, err)

		rr := doGet(router, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		router := protectedRouter(APIKeyAuth("ops-key"))
		rr := doGet(router, map[string]string{apiKeyHeader: "ops-key"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		router := protectedRouter(APIKeyAuth("ops-key"))
		rr := doGet(router, map[string]string{apiKeyHeader: "bad"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		router := protectedRouter(APIKeyAuth("ops-key"))
		rr := doGet(router, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unconfigured", func(t *testing.T) {
		router := protectedRouter(APIKeyAuth(""))
		rr := doGet(router, map[string]string{apiKeyHeader: "anything"})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
