package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T) (*miniredis.Miniredis, *RateLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRateLimiter(client)
}

func do(r http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPerIPBlocksAfterLimit(t *testing.T) {
	mr, rl := newLimiter(t)

	r := gin.New()
	r.POST("/test", rl.PerIP("api", 2, 2*time.Second), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 2; i++ {
		w := do(r, "")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := do(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	mr.FastForward(3 * time.Second)
	w = do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPerUserCountsEachUserSeparately(t *testing.T) {
	_, rl := newLimiter(t)

	r := gin.New()
	r.POST("/test", UserIdentity(), rl.PerUser("views", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	alice, bob := uuid.NewString(), uuid.NewString()

	assert.Equal(t, http.StatusNoContent, do(r, alice).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, alice).Code)
	assert.Equal(t, http.StatusNoContent, do(r, bob).Code)
}

func TestPerUserRequiresIdentity(t *testing.T) {
	_, rl := newLimiter(t)

	r := gin.New()
	r.POST("/test", rl.PerUser("views", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	t.Run("no client", func(t *testing.T) {
		rl := NewRateLimiter(nil)
		r := gin.New()
		r.POST("/test", rl.PerIP("api", 1, time.Minute), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusNoContent, do(r, "").Code)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		mr, rl := newLimiter(t)
		r := gin.New()
		r.POST("/test", rl.PerIP("api", 1, time.Minute), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		mr.Close()

		w := do(r, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "redis-error", w.Header().Get("X-RateLimit-Error"))
	})
}

func TestUserIdentity(t *testing.T) {
	r := gin.New()
	r.POST("/test", UserIdentity(), func(c *gin.Context) {
		id, ok := UserIDFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	id := uuid.NewString()
	w := do(r, id)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "42").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, uuid.Nil.String()).Code)
}
