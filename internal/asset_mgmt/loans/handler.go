package loans

import (
	"net/http"
	"strconv"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/auth"
	"ICTSERVE-backend/internal/platform/paging"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterAdminRoutes: 管理者/職員向け（JWT 必須）
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/loans", h.List)
	r.GET("/loans/:id", h.Get)
	r.GET("/loans/:id/transactions", h.ListTransactions)
	r.DELETE("/loans/:id", h.Delete)

	// actions
	r.POST("/loans/:id/review", h.StartReview)
	r.POST("/loans/:id/approve", h.Approve)
	r.POST("/loans/:id/decline", h.Decline)
	r.POST("/loans/:id/request-info", h.RequestInfo)
	r.POST("/loans/:id/resubmit", h.Resubmit)
	r.POST("/loans/:id/extend", h.Extend)
	r.POST("/loans/:id/issue", h.Issue)
	r.POST("/loans/:id/in-use", h.MarkInUse)
	r.POST("/loans/:id/return", h.Return)
	r.POST("/loans/:id/recall", h.Recall)
	r.POST("/loans/:id/complete", h.Complete)
}

// RegisterPortalRoutes: ゲスト申請と追跡
func RegisterPortalRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/loans", h.Submit)
	r.GET("/loans/:application_number", h.Track)
}

// RegisterApprovalRoutes: メール承認リンク（ログイン不要）
func RegisterApprovalRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/approvals/:token", h.GetApproval)
	r.POST("/approvals/:token/approve", h.ApproveByToken)
	r.POST("/approvals/:token/decline", h.DeclineByToken)
}

// RegisterAPIRoutes: 外部連携 JSON API
func RegisterAPIRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/assets/:asset_id/return-notifications", h.ReturnNotification)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, name+" must be a number")
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) string { return c.GetString(auth.CtxUserIDKey) }

func actorName(c *gin.Context) string {
	if n := c.GetString(auth.CtxUserNameKey); n != "" {
		return n
	}
	return actor(c)
}

// bindOptional: 空ボディは許可する
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		apierr.BadRequest(c, "invalid json")
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, res ApplicationResponse, err error) {
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===== portal =====

func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), req, actor(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/api/v2/portal/loans/"+res.ApplicationNumber)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Track(c *gin.Context) {
	res, err := h.svc.Track(c.Request.Context(), c.Param("application_number"), c.Query("email"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===== admin =====

func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if v := c.Query("status"); v != "" {
		st, err := enums.ParseLoanStatus(v)
		if err != nil {
			apierr.BadRequest(c, "invalid status")
			return
		}
		f.Status = &st
	}
	if v := c.Query("priority"); v != "" {
		p, err := enums.ParseLoanPriority(v)
		if err != nil {
			apierr.BadRequest(c, "invalid priority")
			return
		}
		f.Priority = &p
	}
	if v := c.Query("applicant_email"); v != "" {
		f.ApplicantEmail = &v
	}
	if v := c.Query("start_from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			apierr.BadRequest(c, "start_from must be YYYY-MM-DD")
			return
		}
		f.StartFrom = &t
	}
	if v := c.Query("start_to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			apierr.BadRequest(c, "start_to must be YYYY-MM-DD")
			return
		}
		f.StartTo = &t
	}

	p := paging.FromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, paging.Response(items, total, p))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	h.respond(c, res, err)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListTransactions(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartReview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.StartReview(c.Request.Context(), id)
	h.respond(c, res, err)
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ApproveRequest
	if !bindOptional(c, &req) {
		return
	}
	name := req.ApproverName
	if name == "" {
		name = actorName(c)
	}
	res, err := h.svc.Approve(c.Request.Context(), id, name, req.Remarks, ApprovalMethodPortal)
	h.respond(c, res, err)
}

func (h *Handler) Decline(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req DeclineRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.svc.Decline(c.Request.Context(), id, req.Reason, ApprovalMethodPortal)
	h.respond(c, res, err)
}

func (h *Handler) RequestInfo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req RequestInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "note is required")
		return
	}
	res, err := h.svc.RequestInfo(c.Request.Context(), id, req.Note)
	h.respond(c, res, err)
}

func (h *Handler) Resubmit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Resubmit(c.Request.Context(), id)
	h.respond(c, res, err)
}

func (h *Handler) Extend(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "new_end_date and reason are required")
		return
	}
	res, err := h.svc.Extend(c.Request.Context(), id, req, actor(c))
	h.respond(c, res, err)
}

func (h *Handler) Issue(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req IssueRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.svc.Issue(c.Request.Context(), id, req, actor(c))
	h.respond(c, res, err)
}

func (h *Handler) MarkInUse(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.MarkInUse(c.Request.Context(), id)
	h.respond(c, res, err)
}

func (h *Handler) Return(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "items are required")
		return
	}
	res, err := h.svc.Return(c.Request.Context(), id, req, actor(c))
	h.respond(c, res, err)
}

func (h *Handler) Recall(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "reason is required")
		return
	}
	res, err := h.svc.Recall(c.Request.Context(), id, req.Reason, actor(c))
	h.respond(c, res, err)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Complete(c.Request.Context(), id)
	h.respond(c, res, err)
}

// ===== approvals =====

func (h *Handler) GetApproval(c *gin.Context) {
	res, err := h.svc.GetApproval(c.Request.Context(), c.Param("token"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ApproveByToken(c *gin.Context) {
	var req ApproveRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.svc.ApproveByToken(c.Request.Context(), c.Param("token"), req.ApproverName, req.Remarks)
	h.respond(c, res, err)
}

func (h *Handler) DeclineByToken(c *gin.Context) {
	var req DeclineRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.svc.DeclineByToken(c.Request.Context(), c.Param("token"), req.Reason)
	h.respond(c, res, err)
}

// ===== api =====

func (h *Handler) ReturnNotification(c *gin.Context) {
	assetID, ok := parseID(c, "asset_id")
	if !ok {
		return
	}
	var req ReturnNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "condition_after is required")
		return
	}
	if req.ProcessedBy == nil {
		by := actor(c)
		req.ProcessedBy = &by
	}
	res, err := h.svc.ReturnNotification(c.Request.Context(), assetID, req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}
