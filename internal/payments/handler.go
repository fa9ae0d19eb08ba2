package payments

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler handles installment endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// CreateRequest is the body for POST /payments.
type CreateRequest struct {
	CustomerID  uuid.UUID  `json:"customer_id" binding:"required"`
	VehicleID   *uuid.UUID `json:"vehicle_id"`
	AmountCents int64      `json:"amount_cents" binding:"required,gt=0"`
	DueDate     string     `json:"due_date" binding:"required,datetime=2006-01-02"`
	Reference   string     `json:"reference" binding:"max=100"`
}

// Create handles POST /payments.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	due, _ := time.Parse(time.DateOnly, req.DueDate)
	p := models.Payment{
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		AmountCents: req.AmountCents,
		DueDate:     due,
		Reference:   req.Reference,
	}
	if err := h.repo.Create(c.Request.Context(), &p); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, p)
}

// List handles GET /payments?status=&customer_id=.
func (h *Handler) List(c *gin.Context) {
	var customerID uuid.UUID
	if raw := c.Query("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid customer_id")
			return
		}
		customerID = id
	}
	list, err := h.repo.List(c.Request.Context(), c.Query("status"), customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// MarkPaid handles POST /payments/:id/pay.
func (h *Handler) MarkPaid(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment id")
		return
	}
	var req struct {
		Reference string `json:"reference" binding:"max=100"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	p, err := h.repo.MarkPaid(c.Request.Context(), id, req.Reference)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, p)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "payment not found")
	case errors.Is(err, ErrAlreadyPaid):
		response.Conflict(c, "payment already settled")
	case errors.Is(err, ErrUnknownCustomer):
		response.BadRequest(c, "customer or vehicle does not exist")
	default:
		h.logger.Error("payments", zap.Error(err))
		response.Internal(c, "payment operation failed")
	}
}
