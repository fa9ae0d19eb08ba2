package customers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler handles customer HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a customers handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Request is the body for POST and PUT /customers.
type Request struct {
	FullName string `json:"full_name" binding:"required,max=255"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"max=20"`
	IDNumber string `json:"id_number" binding:"max=50"`
	Address  string `json:"address"`
}

// Create handles POST /customers.
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cu := models.Customer{FullName: req.FullName, Email: req.Email, Phone: req.Phone, IDNumber: req.IDNumber, Address: req.Address}
	if err := h.repo.Create(c.Request.Context(), &cu); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, cu)
}

// List handles GET /customers?q=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /customers/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid customer id")
		return
	}
	cu, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cu)
}

// Update handles PUT /customers/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid customer id")
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cu := models.Customer{ID: id, FullName: req.FullName, Email: req.Email, Phone: req.Phone, IDNumber: req.IDNumber, Address: req.Address}
	if err := h.repo.Update(c.Request.Context(), &cu); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cu)
}

// Delete handles DELETE /customers/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid customer id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "customer not found")
		return
	}
	h.logger.Error("customers", zap.Error(err))
	response.Internal(c, "customer operation failed")
}
