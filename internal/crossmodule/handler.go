package crossmodule

import (
	"net/http"
	"strconv"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/integrations/link", h.Link)
	r.GET("/integrations", h.List)
	r.GET("/integrations/:id", h.Get)
}

func (h *Handler) Link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "helpdesk_ticket_id and loan_application_id are required")
		return
	}
	res, created, err := h.svc.Link(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, res)
		return
	}
	c.Header("Location", "/api/v1/integrations/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, res)
}

// List: loan_application_id か helpdesk_ticket_id のどちらかが必須
func (h *Handler) List(c *gin.Context) {
	var (
		items []Response
		err   error
	)
	switch {
	case c.Query("loan_application_id") != "":
		id, perr := strconv.ParseInt(c.Query("loan_application_id"), 10, 64)
		if perr != nil {
			apierr.BadRequest(c, "loan_application_id must be a number")
			return
		}
		items, err = h.svc.ListByApplication(c.Request.Context(), id)
	case c.Query("helpdesk_ticket_id") != "":
		id, perr := strconv.ParseInt(c.Query("helpdesk_ticket_id"), 10, 64)
		if perr != nil {
			apierr.BadRequest(c, "helpdesk_ticket_id must be a number")
			return
		}
		items, err = h.svc.ListByTicket(c.Request.Context(), id)
	default:
		apierr.BadRequest(c, "loan_application_id or helpdesk_ticket_id is required")
		return
	}
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, "id must be a number")
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
