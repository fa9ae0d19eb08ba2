package permissions

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler serves the tenant's permission matrix.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a permissions handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// UpdateRequest is the body for PUT /permissions.
type UpdateRequest struct {
	Role        string `json:"role" binding:"required"`
	Module      string `json:"module" binding:"required"`
	AccessLevel string `json:"access_level" binding:"required"`
}

// List handles GET /permissions.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list permissions", zap.Error(err))
		response.Internal(c, "failed to list permissions")
		return
	}
	response.OK(c, list)
}

// Update handles PUT /permissions. The admin row is fixed at full access.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := models.RolePermission{
		Role:        models.Role(req.Role),
		Module:      models.Module(req.Module),
		AccessLevel: models.AccessLevel(req.AccessLevel),
	}
	switch {
	case !p.Role.Valid():
		response.BadRequest(c, "invalid role")
		return
	case p.Role == models.RoleAdmin:
		response.BadRequest(c, "admin access cannot be changed")
		return
	case !p.Module.Valid():
		response.BadRequest(c, "invalid module")
		return
	case !p.AccessLevel.Valid():
		response.BadRequest(c, "invalid access level")
		return
	}
	if err := h.repo.Set(c.Request.Context(), p); err != nil {
		h.logger.Error("update permission", zap.Error(err))
		response.Internal(c, "failed to update permission")
		return
	}
	response.OK(c, p)
}
