package platform

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/response"
)

// Directory is the tenant administration surface.
type Directory interface {
	Register(ctx context.Context, reg tenancy.Registration) (*models.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	AddDomain(ctx context.Context, tenantID uuid.UUID, host string, primary bool) (*models.Domain, error)
	SetPrimaryDomain(ctx context.Context, tenantID uuid.UUID, host string) error
	RemoveDomain(ctx context.Context, tenantID uuid.UUID, host string) error
	Deactivate(ctx context.Context, tenantID uuid.UUID) error
	Activate(ctx context.Context, tenantID uuid.UUID) error
}

// Handler serves /platform/tenants. It runs on the shared schema, outside any tenant scope.
type Handler struct {
	dir    Directory
	logger *zap.Logger
}

// NewHandler creates the platform handler.
func NewHandler(dir Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, logger: logger}
}

// Routes mounts the tenant endpoints on g.
func (h *Handler) Routes(g *gin.RouterGroup) {
	g.POST("/tenants", h.Create)
	g.GET("/tenants", h.List)
	g.GET("/tenants/:id", h.Get)
	g.POST("/tenants/:id/domains", h.AddDomain)
	g.DELETE("/tenants/:id/domains/:host", h.RemoveDomain)
	g.POST("/tenants/:id/deactivate", h.Deactivate)
	g.POST("/tenants/:id/activate", h.Activate)
}

// Create handles POST /platform/tenants.
func (h *Handler) Create(c *gin.Context) {
	var reg tenancy.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t, err := h.dir.Register(c.Request.Context(), reg)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, t)
}

// List handles GET /platform/tenants.
func (h *Handler) List(c *gin.Context) {
	list, err := h.dir.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /platform/tenants/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	t, err := h.dir.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, t)
}

type domainRequest struct {
	Domain  string `json:"domain" binding:"required"`
	Primary bool   `json:"primary"`
}

// AddDomain handles POST /platform/tenants/:id/domains. With primary set the new host
// also becomes the tenant's primary domain.
func (h *Handler) AddDomain(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	d, err := h.dir.AddDomain(ctx, id, req.Domain, false)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Primary {
		if err := h.dir.SetPrimaryDomain(ctx, id, d.Domain); err != nil {
			h.fail(c, err)
			return
		}
		d.IsPrimary = true
	}
	h.logger.Info("domain added", zap.String("tenant_id", id.String()), zap.String("domain", d.Domain))
	response.Created(c, d)
}

// RemoveDomain handles DELETE /platform/tenants/:id/domains/:host.
func (h *Handler) RemoveDomain(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.dir.RemoveDomain(c.Request.Context(), id, c.Param("host")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Deactivate handles POST /platform/tenants/:id/deactivate.
func (h *Handler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Activate handles POST /platform/tenants/:id/activate.
func (h *Handler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var err error
	if active {
		err = h.dir.Activate(ctx, id)
	} else {
		err = h.dir.Deactivate(ctx, id)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.dir.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, t)
}

func tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tenancy.ErrTenantNotFound), errors.Is(err, tenancy.ErrDomainNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, tenancy.ErrSchemaTaken), errors.Is(err, tenancy.ErrDomainTaken), errors.Is(err, tenancy.ErrPrimaryDomain):
		response.Conflict(c, err.Error())
	case errors.Is(err, tenancy.ErrInvalidHost), errors.Is(err, tenancy.ErrInvalidSchema), errors.Is(err, tenancy.ErrInvalidRegistration):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("platform request failed", zap.Error(err))
		response.Internal(c, "internal server error")
	}
}
