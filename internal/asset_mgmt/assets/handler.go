package assets

import (
	"net/http"
	"strconv"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/paging"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/assets", h.CreateAsset)
	r.GET("/assets", h.ListAssets)
	r.GET("/assets/available", h.ListAvailable)
	r.GET("/assets/tag/:asset_tag", h.GetAssetByTag)
	r.GET("/assets/:asset_id", h.GetAsset)
	r.PATCH("/assets/:asset_id", h.UpdateAsset)
	r.POST("/assets/:asset_id/retire", h.RetireAsset)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("asset_id"), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, "asset_id must be a number")
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateAsset(c *gin.Context) {
	var req CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/assets/"+strconv.FormatInt(res.AssetID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetAsset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetAssetByTag(c *gin.Context) {
	res, err := h.svc.GetByTag(c.Request.Context(), c.Param("asset_tag"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListAssets(c *gin.Context) {
	var q AssetSearchQuery
	if v := c.Query("status"); v != "" {
		st, err := enums.ParseAssetStatus(v)
		if err != nil {
			apierr.BadRequest(c, "invalid status")
			return
		}
		q.Status = &st
	}
	if v := c.Query("condition"); v != "" {
		cond, err := enums.ParseAssetCondition(v)
		if err != nil {
			apierr.BadRequest(c, "invalid condition")
			return
		}
		q.Condition = &cond
	}
	if v := c.Query("category"); v != "" {
		q.Category = &v
	}
	if v := c.Query("location"); v != "" {
		q.Location = &v
	}
	if v := c.Query("q"); v != "" {
		q.Q = &v
	}

	p := paging.FromQuery(c)
	items, total, err := h.svc.List(c.Request.Context(), q, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, paging.Response(items, total, p))
}

func (h *Handler) ListAvailable(c *gin.Context) {
	p := paging.FromQuery(c)
	items, total, err := h.svc.ListAvailable(c.Request.Context(), p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, paging.Response(items, total, p))
}

func (h *Handler) UpdateAsset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RetireAsset(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req RetireAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "reason is required")
		return
	}
	res, err := h.svc.Retire(c.Request.Context(), id, req.Reason)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
