package vehicles

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler handles vehicle HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a vehicles handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Request is the body for POST and PUT /vehicles.
type Request struct {
	StockNumber        string `json:"stock_number" binding:"required,max=50"`
	VIN                string `json:"vin" binding:"omitempty,len=17,alphanum"`
	Make               string `json:"make" binding:"required,max=100"`
	Model              string `json:"model" binding:"required,max=100"`
	Year               int    `json:"year" binding:"required,gte=1950,lte=2100"`
	Color              string `json:"color" binding:"max=50"`
	Mileage            int    `json:"mileage" binding:"gte=0"`
	PurchasePriceCents int64  `json:"purchase_price_cents" binding:"gte=0"`
	SellingPriceCents  int64  `json:"selling_price_cents" binding:"gte=0"`
	Status             string `json:"status" binding:"omitempty,oneof=available reserved sold repossessed"`
}

func (r Request) apply(v *models.Vehicle) {
	v.StockNumber, v.VIN, v.Make, v.Model = r.StockNumber, r.VIN, r.Make, r.Model
	v.Year, v.Color, v.Mileage = r.Year, r.Color, r.Mileage
	v.PurchasePriceCents, v.SellingPriceCents = r.PurchasePriceCents, r.SellingPriceCents
	v.Status = r.Status
	if v.Status == "" {
		v.Status = models.VehicleAvailable
	}
}

// Create handles POST /vehicles.
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var v models.Vehicle
	req.apply(&v)
	if err := h.repo.Create(c.Request.Context(), &v); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, v)
}

// List handles GET /vehicles?status=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /vehicles/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle id")
		return
	}
	v, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, v)
}

// Update handles PUT /vehicles/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle id")
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	req.apply(v)
	if err := h.repo.Update(c.Request.Context(), v); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, v)
}

// Delete handles DELETE /vehicles/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "vehicle not found")
	case errors.Is(err, ErrDuplicateStockNum):
		response.Conflict(c, "stock number already exists")
	default:
		h.logger.Error("vehicles", zap.Error(err))
		response.Internal(c, "vehicle operation failed")
	}
}
