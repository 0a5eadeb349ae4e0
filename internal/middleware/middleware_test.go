package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-secret"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", handlers...)
	return r
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "terminal/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ScopesRequestToOwner(t *testing.T) {
	var ownerID uint
	var actor services.Actor
	r := newRouter(Auth(secret), func(c *gin.Context) {
		ownerID, _ = repository.OwnerFrom(c.Request.Context())
		actor = services.ActorFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	token, err := SignToken(secret, 11, 4, "clerk", time.Hour)
	require.NoError(t, err)

	w := get(r, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, uint(4), ownerID)
	assert.Equal(t, uint(11), actor.UserID)
	assert.Equal(t, "terminal/1.0", actor.UserAgent)
}

func TestAuth_Rejections(t *testing.T) {
	r := newRouter(Auth(secret), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	expired, err := SignToken(secret, 1, 1, "admin", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignToken("other-secret", 1, 1, "admin", time.Hour)
	require.NoError(t, err)
	noOwner, err := SignToken(secret, 1, 0, "admin", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, OwnerID: 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no owner", noOwner},
		{"unsigned", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, tt.token).Code)
		})
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r := newRouter(Auth(secret), RequireRole("admin", "manager"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	manager, _ := SignToken(secret, 1, 1, "manager", time.Hour)
	clerk, _ := SignToken(secret, 2, 1, "clerk", time.Hour)

	assert.Equal(t, http.StatusNoContent, get(r, manager).Code)
	assert.Equal(t, http.StatusForbidden, get(r, clerk).Code)
}

func TestOwnerRateLimiter(t *testing.T) {
	limiter := NewOwnerRateLimiter(0.001, 2)
	r := newRouter(Auth(secret), limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	shopA, _ := SignToken(secret, 1, 1, "clerk", time.Hour)
	shopB, _ := SignToken(secret, 2, 2, "clerk", time.Hour)

	assert.Equal(t, http.StatusNoContent, get(r, shopA).Code)
	assert.Equal(t, http.StatusNoContent, get(r, shopA).Code)
	w := get(r, shopA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// other owners keep their own budget
	assert.Equal(t, http.StatusNoContent, get(r, shopB).Code)
}

func TestOwnerRateLimiter_Cleanup(t *testing.T) {
	limiter := NewOwnerRateLimiter(1, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.limiter(1)
	limiter.limiter(2)
	require.Len(t, limiter.limiters, 2)

	now = now.Add(5 * time.Minute)
	limiter.limiter(2)
	now = now.Add(6 * time.Minute)
	limiter.Cleanup()

	assert.Len(t, limiter.limiters, 1)
	assert.Contains(t, limiter.limiters, uint(2))
}

func TestMetricsAndLoggerPassThrough(t *testing.T) {
	r := newRouter(RequestLogger(), Metrics(), func(c *gin.Context) { c.Status(http.StatusTeapot) })
	assert.Equal(t, http.StatusTeapot, get(r, "").Code)
}
