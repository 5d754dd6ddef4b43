package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/deal_anal_server/internal/pkg/jwt"
	"github.com/qs3c/deal_anal_server/internal/pkg/response"
)

const testJWTSecret = "auth-middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func authTestRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/protected", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.ServerError(c, "no user id in context")
			return
		}
		response.Success(c, gin.H{"user_id": userID})
	})
	return router
}

func doAuthRequest(t *testing.T, router *gin.Engine, authHeader string) (*httptest.ResponseRecorder, *response.Response) {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, &resp
}

func TestAuth_ValidToken(t *testing.T) {
	token, err := jwt.GenerateToken(123, testJWTSecret, 1)
	require.NoError(t, err)

	_, resp := doAuthRequest(t, authTestRouter(), "Bearer "+token)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(123), data["user_id"])
}

func TestAuth_MissingHeader(t *testing.T) {
	_, resp := doAuthRequest(t, authTestRouter(), "")

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_NotBearerFormat(t *testing.T) {
	token, err := jwt.GenerateToken(123, testJWTSecret, 1)
	require.NoError(t, err)

	_, resp := doAuthRequest(t, authTestRouter(), "Token "+token)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_EmptyBearerToken(t *testing.T) {
	_, resp := doAuthRequest(t, authTestRouter(), "Bearer ")

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	_, resp := doAuthRequest(t, authTestRouter(), "Bearer not-a-real-token")

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_WrongSecret(t *testing.T) {
	token, err := jwt.GenerateToken(123, "some-other-secret", 1)
	require.NoError(t, err)

	_, resp := doAuthRequest(t, authTestRouter(), "Bearer "+token)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	// 过期时间为负数小时，签出来就已过期
	token, err := jwt.GenerateToken(123, testJWTSecret, -1)
	require.NoError(t, err)

	_, resp := doAuthRequest(t, authTestRouter(), "Bearer "+token)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestGetUserID_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserID(c)
	assert.False(t, ok)
}

func TestGetUserID_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(UserIDKey, "not-an-int64")

	_, ok := GetUserID(c)
	assert.False(t, ok)
}
