package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func newEngine(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(secret, "token", roles...), func(c *gin.Context) {
		claims := CurrentClaims(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "role": claims.Role})
	})
	return r
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_TokenSources(t *testing.T) {
	r := newEngine()
	token := sign(t, secret, Claims{UserID: "u1", Role: RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":"u1"`)
}

func TestAuth_Rejects(t *testing.T) {
	r := newEngine()

	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)

	forged := sign(t, "other-secret", Claims{UserID: "u1", Role: RoleAdmin})
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me?token="+forged, nil)).Code)

	expired := sign(t, secret, Claims{
		UserID:           "u1",
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me?token="+expired, nil)).Code)

	anonymous := sign(t, secret, Claims{Role: RoleAdmin})
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me?token="+anonymous, nil)).Code)
}

func TestAuth_RoleGate(t *testing.T) {
	r := newEngine(RoleAdmin)

	user := sign(t, secret, Claims{UserID: "u1", Role: RoleUser})
	assert.Equal(t, http.StatusForbidden, do(r, httptest.NewRequest(http.MethodGet, "/me?token="+user, nil)).Code)

	admin := sign(t, secret, Claims{UserID: "a1", Role: RoleAdmin})
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/me?token="+admin, nil)).Code)
}
