package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestMemoryLimiter_BlocksOverLimit(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter()
	l.now = clk.now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}
	res, _ := l.Allow(ctx, "k", 5, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 12*time.Second, res.RetryAfter)

	// 別キーは独立
	res, _ = l.Allow(ctx, "other", 5, time.Minute)
	assert.True(t, res.Allowed)

	// 12秒で1トークン回復
	clk.t = clk.t.Add(12 * time.Second)
	res, _ = l.Allow(ctx, "k", 5, time.Minute)
	assert.True(t, res.Allowed)
}

func TestMiddleware_Headers(t *testing.T) {
	l := NewMemoryLimiter()
	r := gin.New()
	r.GET("/x", Middleware(l, Tier{Name: "read", PerMinute: 2}, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w
	}

	w := do()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	do()
	w = do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis: connection refused")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/x", Middleware(brokenLimiter{}, Tier{Name: "write", PerMinute: 1}, nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRedisLimiter_WindowKey(t *testing.T) {
	l := NewRedisLimiter(nil)
	now := time.Date(2026, 1, 1, 10, 0, 42, 0, time.UTC)
	k, end := l.windowKey("read:ip:1.2.3.4", time.Minute, now)
	assert.Equal(t, "ictserve:rl:read:ip:1.2.3.4:1767261600", k)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC), end)
}
