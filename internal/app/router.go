package app

import (
	"net/http"

	"ICTSERVE-backend/internal/asset_mgmt/assets"
	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/crossmodule"
	"ICTSERVE-backend/internal/exports"
	"ICTSERVE-backend/internal/helpdesk/categories"
	"ICTSERVE-backend/internal/helpdesk/tickets"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/auth"
	"ICTSERVE-backend/internal/platform/metrics"
	"ICTSERVE-backend/internal/platform/queue"
	"ICTSERVE-backend/internal/platform/ratelimit"

	"github.com/gin-gonic/gin"
)

// Router は全ルートを登録した gin.Engine を返す
//
//	/api/v2/auth       ログイン（公開）
//	/api/v2/admin      職員向け（JWT + admin|staff）
//	/api/v2/portal     ゲスト申請・追跡
//	/api/v2/approvals  メール承認リンク
//	/api/v1            外部連携（API トークン or JWT）
func (a *App) Router() *gin.Engine {
	if !a.cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RequestID(), accessLog(), gin.Recovery(), a.metrics.Middleware())
	_ = r.SetTrustedProxies(nil)

	if a.cfg.IsDev() {
		r.Use(devCORS(a.cfg.HTTP))
	}

	// ヘルス
	r.GET("/healthz", a.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	registerDocs(r)

	secret := a.cfg.JWTSecret()
	rl := a.cfg.RateLimit
	write := ratelimit.Tier{Name: "write", PerMinute: rl.WritePerMinute}
	read := ratelimit.Tier{Name: "read", PerMinute: rl.ReadPerMinute}
	status := ratelimit.Tier{Name: "status", PerMinute: rl.StatusPerMinute}

	v2 := r.Group("/api/v2")
	auth.RegisterRoutes(v2.Group("/auth", ratelimit.Middleware(a.limiter, write, a.metrics)), a.auth)

	admin := v2.Group("/admin", auth.RequireAuth(secret), auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	assets.RegisterRoutes(admin, a.assets)
	loans.RegisterAdminRoutes(admin, a.loans)
	categories.RegisterAdminRoutes(admin, a.categories)
	tickets.RegisterAdminRoutes(admin, a.tickets)
	crossmodule.RegisterRoutes(admin, a.links)
	exports.RegisterRoutes(admin, a.exports)
	adminOnly := admin.Group("", auth.RequireRole(auth.RoleAdmin))
	auth.RegisterAdminRoutes(adminOnly, a.auth)
	queue.RegisterAdminRoutes(adminOnly, a.queue)

	portal := v2.Group("/portal", auth.OptionalAuth(secret), tiered(a.limiter, status, write, a.metrics))
	loans.RegisterPortalRoutes(portal, a.loans)
	tickets.RegisterPortalRoutes(portal, a.tickets)
	categories.RegisterPortalRoutes(portal, a.categories)

	approvals := v2.Group("", tiered(a.limiter, status, write, a.metrics))
	loans.RegisterApprovalRoutes(approvals, a.loans)

	v1 := r.Group("/api/v1", auth.RequireAPIAuth(secret, a.authStore), tiered(a.limiter, read, write, a.metrics))
	crossmodule.RegisterRoutes(v1, a.links)
	loans.RegisterAPIRoutes(v1, a.loans)

	r.NoRoute(func(c *gin.Context) {
		apierr.Respond(c, apierr.NotFound("route not found"))
	})
	return r
}

func (a *App) healthz(c *gin.Context) {
	if err := a.db.PingContext(c.Request.Context()); err != nil {
		a.logger.Printf("[WARN] healthz: db ping failed: %v", err)
		c.String(http.StatusServiceUnavailable, "db unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}
