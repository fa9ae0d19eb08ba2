package repossessions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler handles repossession endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a repossessions handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) today() time.Time {
	y, m, d := h.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// View is a case with its age in days.
type View struct {
	*models.Repossession
	DaysInProcess int `json:"days_in_process"`
}

func (h *Handler) view(rp *models.Repossession) View {
	return View{Repossession: rp, DaysInProcess: rp.DaysInProcess(h.today())}
}

// CreateRequest is the body for POST /repossessions.
type CreateRequest struct {
	VehicleID        uuid.UUID `json:"vehicle_id" binding:"required"`
	CustomerID       uuid.UUID `json:"customer_id" binding:"required"`
	Reason           string    `json:"reason" binding:"required,oneof=payment_default breach_of_contract insurance_lapse unauthorized_use other"`
	OutstandingCents int64     `json:"outstanding_cents" binding:"required,gt=0"`
	InitiatedDate    string    `json:"initiated_date" binding:"omitempty,datetime=2006-01-02"`
	CurrentLocation  string    `json:"current_location"`
	Notes            string    `json:"notes"`
}

// Create handles POST /repossessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	initiated := h.today()
	if req.InitiatedDate != "" {
		initiated, _ = time.Parse(time.DateOnly, req.InitiatedDate)
	}
	rp := models.Repossession{
		VehicleID:        req.VehicleID,
		CustomerID:       req.CustomerID,
		Reason:           req.Reason,
		OutstandingCents: req.OutstandingCents,
		InitiatedDate:    initiated,
		CurrentLocation:  req.CurrentLocation,
		Notes:            req.Notes,
		CreatedBy:        auth.ActorID(c),
	}
	if err := h.repo.Create(c.Request.Context(), &rp); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, h.view(&rp))
}

// List handles GET /repossessions?status=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]View, len(list))
	for i := range list {
		out[i] = h.view(&list[i])
	}
	response.OK(c, out)
}

// GetByID handles GET /repossessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	rp, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.view(rp))
}

// CostsRequest is the body for PUT /repossessions/:id/costs.
type CostsRequest struct {
	RecoveryCostCents int64 `json:"recovery_cost_cents" binding:"gte=0"`
	StorageCostCents  int64 `json:"storage_cost_cents" binding:"gte=0"`
	LegalCostCents    int64 `json:"legal_cost_cents" binding:"gte=0"`
	OtherCostsCents   int64 `json:"other_costs_cents" binding:"gte=0"`
}

// UpdateCosts handles PUT /repossessions/:id/costs.
func (h *Handler) UpdateCosts(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	var req CostsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rp, err := h.repo.UpdateCosts(c.Request.Context(), id, Costs{
		RecoveryCents: req.RecoveryCostCents,
		StorageCents:  req.StorageCostCents,
		LegalCents:    req.LegalCostCents,
		OtherCents:    req.OtherCostsCents,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.view(rp))
}

// StatusRequest is the body for POST /repossessions/:id/status.
type StatusRequest struct {
	Status         string `json:"status" binding:"required,oneof=notice_sent in_progress on_hold vehicle_recovered completed cancelled"`
	Date           string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Location       string `json:"location"`
	ResolutionType string `json:"resolution_type" binding:"omitempty,oneof=paid_in_full auctioned returned written_off other"`
	Notes          string `json:"notes"`
}

// SetStatus handles POST /repossessions/:id/status.
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	on := h.today()
	if req.Date != "" {
		on, _ = time.Parse(time.DateOnly, req.Date)
	}
	ctx := c.Request.Context()
	var (
		rp  *models.Repossession
		err error
	)
	switch req.Status {
	case models.RepoRecovered:
		rp, err = h.repo.MarkRecovered(ctx, id, on, req.Location)
	case models.RepoCompleted:
		if req.ResolutionType == "" {
			response.BadRequest(c, "resolution_type is required to complete a repossession")
			return
		}
		rp, err = h.repo.Complete(ctx, id, on, req.ResolutionType, req.Notes)
	case models.RepoCancelled:
		rp, err = h.repo.Cancel(ctx, id, req.Notes)
	default:
		rp, err = h.repo.Advance(ctx, id, req.Status)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.view(rp))
}

func param(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid repossession id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "repossession not found")
	case errors.Is(err, ErrUnknownParty):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrClosed), errors.Is(err, ErrTransition), errors.Is(err, ErrOpenCase):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("repossessions", zap.Error(err))
		response.Internal(c, "repossession operation failed")
	}
}
