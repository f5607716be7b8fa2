package queue

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/gin-gonic/gin"
)

type adminHandler struct{ q *Queue }

// RegisterAdminRoutes: 失敗ジョブの再投入（管理者のみ）
func RegisterAdminRoutes(r gin.IRoutes, q *Queue) {
	h := &adminHandler{q: q}
	r.POST("/queue/jobs/:ulid/retry", h.Retry)
}

func (h *adminHandler) Retry(c *gin.Context) {
	jobULID := strings.TrimSpace(c.Param("ulid"))
	err := h.q.store.Retry(c.Request.Context(), jobULID, h.q.clock.Now())
	if errors.Is(err, sql.ErrNoRows) {
		apierr.Respond(c, apierr.NotFound("failed job not found"))
		return
	}
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_ulid": jobULID, "status": "requeued"})
}
