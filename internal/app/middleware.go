package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"ICTSERVE-backend/internal/platform/config"
	"ICTSERVE-backend/internal/platform/metrics"
	"ICTSERVE-backend/internal/platform/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// RequestID: 受け取った X-Request-ID をそのまま使い、無ければ発番して返す
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog は gin.Logger の書式に request id を足したもの
func accessLog() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		return fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %#v rid=%v\n%s",
			p.TimeStamp.Format("2006/01/02 - 15:04:05"),
			p.StatusCode,
			p.Latency,
			p.ClientIP,
			p.Method,
			p.Path,
			p.Keys[ctxRequestID],
			p.ErrorMessage,
		)
	})
}

// CORS（開発中のみ必要）
func devCORS(cfg config.HTTPConfig) gin.HandlerFunc {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", RequestIDHeader, "X-API-Token"},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "Location"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// tiered: 参照系は read、それ以外は write の枠で数える
func tiered(l ratelimit.Limiter, read, write ratelimit.Tier, m *metrics.Metrics) gin.HandlerFunc {
	readMW := ratelimit.Middleware(l, read, m)
	writeMW := ratelimit.Middleware(l, write, m)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			readMW(c)
		default:
			writeMW(c)
		}
	}
}
