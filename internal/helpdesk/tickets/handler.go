package tickets

import (
	"net/http"
	"strconv"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/paging"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/helpdesk/tickets", h.List)
	r.POST("/helpdesk/tickets", h.CreateAdmin)
	r.GET("/helpdesk/tickets/number/:ticket_number", h.GetByNumber)
	r.GET("/helpdesk/tickets/:id", h.Get)
	r.PATCH("/helpdesk/tickets/:id", h.Update)
	r.POST("/helpdesk/tickets/:id/assign", h.Assign)
	r.POST("/helpdesk/tickets/:id/status", h.ChangeStatus)
	r.POST("/helpdesk/tickets/:id/recalculate-sla", h.RecalculateSLA)
}

// RegisterPortalRoutes: ゲスト起票と追跡
func RegisterPortalRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/tickets", h.CreatePortal)
	r.GET("/tickets/:ticket_number", h.Track)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, "id must be a number")
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(c *gin.Context, res Response, err error) {
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) create(c *gin.Context, source, location string) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req, source)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", location+res.TicketNumber)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) CreatePortal(c *gin.Context) {
	h.create(c, SourcePortal, "/api/v2/portal/tickets/")
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	h.create(c, SourceAdmin, "/api/v2/admin/helpdesk/tickets/number/")
}

func (h *Handler) Track(c *gin.Context) {
	res, err := h.svc.Track(c.Request.Context(), c.Param("ticket_number"), c.Query("email"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if v := c.Query("status"); v != "" {
		st, err := enums.ParseTicketStatus(v)
		if err != nil {
			apierr.BadRequest(c, "invalid status")
			return
		}
		f.Status = &st
	}
	if v := c.Query("priority"); v != "" {
		p, err := enums.ParseTicketPriority(v)
		if err != nil {
			apierr.BadRequest(c, "invalid priority")
			return
		}
		f.Priority = &p
	}
	for name, dst := range map[string]**int64{"category_id": &f.CategoryID, "asset_id": &f.AssetID} {
		if v := c.Query(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				apierr.BadRequest(c, name+" must be a number")
				return
			}
			*dst = &n
		}
	}
	if v := c.Query("requester_email"); v != "" {
		f.RequesterEmail = &v
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
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	h.respond(c, res, err)
}

func (h *Handler) GetByNumber(c *gin.Context) {
	res, err := h.svc.GetByNumber(c.Request.Context(), c.Param("ticket_number"))
	h.respond(c, res, err)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	h.respond(c, res, err)
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "assigned_to is required")
		return
	}
	res, err := h.svc.Assign(c.Request.Context(), id, req.AssignedTo)
	h.respond(c, res, err)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid status")
		return
	}
	res, err := h.svc.ChangeStatus(c.Request.Context(), id, req.Status)
	h.respond(c, res, err)
}

func (h *Handler) RecalculateSLA(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.RecalculateSLA(c.Request.Context(), id)
	h.respond(c, res, err)
}
