package auth

import (
	"errors"
	"net/http"
	"time"

	"ICTSERVE-backend/internal/platform/apierr"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc AuthService }

// RegisterRoutes: /auth 配下（公開）
func RegisterRoutes(r gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	r.POST("/login", h.Login)
}

// RegisterAdminRoutes: アカウント管理（admin のみ）
func RegisterAdminRoutes(r gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	r.GET("/accounts", h.ListAccounts)
	r.POST("/accounts", h.Register)
	r.DELETE("/accounts/:id", h.DisableAccount)
	r.POST("/api-tokens", h.CreateAPIToken)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	ID          string  `json:"id" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	Role        *string `json:"role,omitempty"` // 未指定なら user
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email" binding:"omitempty,email"`
}

type AccountResponse struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	IsDisabled  bool      `json:"is_disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid request")
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			apierr.Respond(c, apierr.Unauthorized("invalid id or password"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Login successful",
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid request")
		return
	}

	if err := h.svc.Register(c.Request.Context(), req); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			apierr.Respond(c, apierr.Conflict("id already exists"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	c.Header("Location", "/api/v2/admin/accounts/"+req.ID)
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

func (h *AuthHandler) ListAccounts(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *AuthHandler) DisableAccount(c *gin.Context) {
	id := c.Param("id")
	if id == c.GetString(CtxUserIDKey) {
		apierr.Respond(c, apierr.Invalid("cannot disable your own account"))
		return
	}
	if err := h.svc.Disable(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			apierr.Respond(c, apierr.NotFound("account not found"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disabled"})
}

type CreateAPITokenRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *AuthHandler) CreateAPIToken(c *gin.Context) {
	var req CreateAPITokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "name is required")
		return
	}
	raw, err := h.svc.IssueAPIToken(c.Request.Context(), req.Name)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "token": raw})
}
