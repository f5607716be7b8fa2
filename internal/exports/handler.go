package exports

import (
	"net/http"

	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/auth"
	"ICTSERVE-backend/internal/platform/paging"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/exports", h.Create)
	r.GET("/exports", h.List)
	r.GET("/exports/:export_id", h.Get)
	r.GET("/exports/:export_id/download", h.Download)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "format is required")
		return
	}
	res, err := h.svc.Request(c.Request.Context(), req, c.GetString(auth.CtxUserIDKey))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/api/v2/admin/exports/"+res.ULID)
	c.JSON(http.StatusAccepted, res)
}

func (h *Handler) List(c *gin.Context) {
	p := paging.FromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, paging.Response(items, total, p))
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("export_id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Download(c *gin.Context) {
	path, name, err := h.svc.File(c.Request.Context(), c.Param("export_id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.FileAttachment(path, name)
}
