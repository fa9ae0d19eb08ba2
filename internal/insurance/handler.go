package insurance

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler handles insurance policy endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an insurance handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// CreateRequest is the body for POST /insurance.
type CreateRequest struct {
	VehicleID    uuid.UUID `json:"vehicle_id" binding:"required"`
	Provider     string    `json:"provider" binding:"required,max=255"`
	PolicyNumber string    `json:"policy_number" binding:"required,max=100"`
	StartDate    string    `json:"start_date" binding:"required,datetime=2006-01-02"`
	ExpiryDate   string    `json:"expiry_date" binding:"required,datetime=2006-01-02"`
	PremiumCents int64     `json:"premium_cents" binding:"gte=0"`
}

// Create handles POST /insurance.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	expiry, _ := time.Parse(time.DateOnly, req.ExpiryDate)
	if !expiry.After(start) {
		response.BadRequest(c, "expiry_date must be after start_date")
		return
	}
	p := models.InsurancePolicy{
		VehicleID:    req.VehicleID,
		Provider:     req.Provider,
		PolicyNumber: req.PolicyNumber,
		StartDate:    start,
		ExpiryDate:   expiry,
		PremiumCents: req.PremiumCents,
	}
	if err := h.repo.Create(c.Request.Context(), &p); err != nil {
		switch {
		case errors.Is(err, ErrDuplicatePolicy):
			response.Conflict(c, "policy number already exists")
		case errors.Is(err, ErrUnknownVehicle):
			response.BadRequest(c, "vehicle does not exist")
		default:
			h.logger.Error("create policy", zap.Error(err))
			response.Internal(c, "failed to create policy")
		}
		return
	}
	response.Created(c, p)
}

// List handles GET /insurance?status=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.logger.Error("list policies", zap.Error(err))
		response.Internal(c, "failed to list policies")
		return
	}
	response.OK(c, list)
}
