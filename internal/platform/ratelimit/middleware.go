package ratelimit

import (
	"log"
	"math"
	"strconv"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/metrics"

	"github.com/gin-gonic/gin"
)

// Tier はエンドポイント区分ごとの上限（1分あたり）
type Tier struct {
	Name      string
	PerMinute int
}

// Middleware: 認証済みなら user_id / api_token、未認証なら IP 単位で制限する
func Middleware(l Limiter, tier Tier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := tier.Name + ":" + clientKey(c)
		res, err := l.Allow(c.Request.Context(), key, tier.PerMinute, time.Minute)
		if err != nil {
			// ストア障害時は通す
			log.Printf("[WARN] rate limiter unavailable tier=%s: %v", tier.Name, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			m.RecordRateLimited(tier.Name)
			apierr.Respond(c, apierr.RateLimited("too many requests"))
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if v := c.GetString("api_token"); v != "" {
		return "token:" + v
	}
	if v := c.GetString("user_id"); v != "" {
		return "user:" + v
	}
	return "ip:" + c.ClientIP()
}
