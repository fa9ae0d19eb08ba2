package auctions

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

// Handler handles auction endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an auctions handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// CreateRequest is the body for POST /auctions.
type CreateRequest struct {
	Title                string    `json:"title" binding:"required,max=200"`
	Description          string    `json:"description"`
	Location             string    `json:"location" binding:"max=200"`
	StartDate            time.Time `json:"start_date" binding:"required"`
	EndDate              time.Time `json:"end_date" binding:"required"`
	RegistrationDeadline time.Time `json:"registration_deadline" binding:"required"`
	RegistrationFeeCents int64     `json:"registration_fee_cents" binding:"gte=0"`
}

// Create handles POST /auctions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !req.EndDate.After(req.StartDate) {
		response.BadRequest(c, "end_date must be after start_date")
		return
	}
	if req.RegistrationDeadline.After(req.StartDate) {
		response.BadRequest(c, "registration_deadline must not be after start_date")
		return
	}
	a := models.Auction{
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		RegistrationDeadline: req.RegistrationDeadline,
		RegistrationFeeCents: req.RegistrationFeeCents,
		CreatedBy:            auth.ActorID(c),
	}
	if err := h.repo.Create(c.Request.Context(), &a); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, a)
}

// List handles GET /auctions?status=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Detail is an auction with its lots.
type Detail struct {
	models.Auction
	Lots          []models.AuctionVehicle `json:"lots"`
	TotalVehicles int                     `json:"total_vehicles"`
}

// GetByID handles GET /auctions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := param(c, "id")
	if !ok {
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	lots, err := h.repo.Lots(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, Detail{Auction: *a, Lots: lots, TotalVehicles: len(lots)})
}

// StatusRequest is the body for PUT /auctions/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active completed cancelled"`
}

// SetStatus handles PUT /auctions/:id/status.
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := param(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.repo.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, a)
}

// LotRequest is the body for POST /auctions/:id/lots.
type LotRequest struct {
	VehicleID             uuid.UUID `json:"vehicle_id" binding:"required"`
	LotNumber             string    `json:"lot_number" binding:"required,max=20"`
	ReservePriceCents     int64     `json:"reserve_price_cents" binding:"gte=0"`
	StartingBidCents      int64     `json:"starting_bid_cents" binding:"gte=0"`
	ValuationFeeCents     int64     `json:"valuation_fee_cents" binding:"gte=0"`
	AdvertisementFeeCents int64     `json:"advertisement_fee_cents" binding:"gte=0"`
	ParkingFeeCents       int64     `json:"parking_fee_cents" binding:"gte=0"`
	OtherExpensesCents    int64     `json:"other_expenses_cents" binding:"gte=0"`
	Notes                 string    `json:"notes"`
}

// AddLot handles POST /auctions/:id/lots.
func (h *Handler) AddLot(c *gin.Context) {
	auctionID, ok := param(c, "id")
	if !ok {
		return
	}
	var req LotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	l := models.AuctionVehicle{
		AuctionID:             auctionID,
		VehicleID:             req.VehicleID,
		LotNumber:             req.LotNumber,
		ReservePriceCents:     req.ReservePriceCents,
		StartingBidCents:      req.StartingBidCents,
		ValuationFeeCents:     req.ValuationFeeCents,
		AdvertisementFeeCents: req.AdvertisementFeeCents,
		ParkingFeeCents:       req.ParkingFeeCents,
		OtherExpensesCents:    req.OtherExpensesCents,
		Notes:                 req.Notes,
		AddedBy:               auth.ActorID(c),
	}
	if err := h.repo.AddLot(c.Request.Context(), &l); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, l)
}

// SaleRequest is the body for POST /auctions/:id/lots/:lot/sell.
type SaleRequest struct {
	FinalBidCents int64  `json:"final_bid_cents" binding:"required,gt=0"`
	BuyerName     string `json:"buyer_name" binding:"required,max=100"`
	BuyerPhone    string `json:"buyer_phone" binding:"max=20"`
	BuyerIDNumber string `json:"buyer_id_number" binding:"max=20"`
}

// Sell handles POST /auctions/:id/lots/:lot/sell.
func (h *Handler) Sell(c *gin.Context) {
	auctionID, ok := param(c, "id")
	if !ok {
		return
	}
	lotID, ok := param(c, "lot")
	if !ok {
		return
	}
	var req SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	l, err := h.repo.Sell(c.Request.Context(), auctionID, lotID, Sale(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, l)
}

// LotStatusRequest is the body for PUT /auctions/:id/lots/:lot/status.
type LotStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=approved unsold withdrawn"`
}

// SetLotStatus handles PUT /auctions/:id/lots/:lot/status.
func (h *Handler) SetLotStatus(c *gin.Context) {
	auctionID, ok := param(c, "id")
	if !ok {
		return
	}
	lotID, ok := param(c, "lot")
	if !ok {
		return
	}
	var req LotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetLotStatus(c.Request.Context(), auctionID, lotID, req.Status); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func param(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "auction not found")
	case errors.Is(err, ErrLotNotFound):
		response.NotFound(c, "lot not found")
	case errors.Is(err, ErrDuplicateLot):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnknownVehicle):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrTransition), errors.Is(err, ErrLotClosed), errors.Is(err, ErrAuctionClosed):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("auctions", zap.Error(err))
		response.Internal(c, "auction operation failed")
	}
}
