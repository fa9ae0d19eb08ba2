package expenses

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

// Handler handles expense endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an expenses handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// CreateRequest is the body for POST /expenses.
type CreateRequest struct {
	Title         string     `json:"title" binding:"required,max=200"`
	Description   string     `json:"description"`
	ExpenseType   string     `json:"expense_type" binding:"required,oneof=operational administrative marketing maintenance utilities transport office fuel insurance taxes other"`
	AmountCents   int64      `json:"amount_cents" binding:"required,gt=0"`
	PaymentMethod string     `json:"payment_method" binding:"required,oneof=cash bank_transfer cheque card mobile_money"`
	VendorName    string     `json:"vendor_name" binding:"required,max=100"`
	VendorContact string     `json:"vendor_contact" binding:"max=100"`
	ReceiptNumber string     `json:"receipt_number" binding:"max=50"`
	InvoiceNumber string     `json:"invoice_number" binding:"max=50"`
	VehicleID     *uuid.UUID `json:"vehicle_id"`
	ExpenseDate   string     `json:"expense_date" binding:"required,datetime=2006-01-02"`
	Notes         string     `json:"notes"`
}

// Create handles POST /expenses.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, _ := time.Parse(time.DateOnly, req.ExpenseDate)
	e := models.Expense{
		Title:         req.Title,
		Description:   req.Description,
		ExpenseType:   req.ExpenseType,
		AmountCents:   req.AmountCents,
		PaymentMethod: req.PaymentMethod,
		VendorName:    req.VendorName,
		VendorContact: req.VendorContact,
		ReceiptNumber: req.ReceiptNumber,
		InvoiceNumber: req.InvoiceNumber,
		VehicleID:     req.VehicleID,
		ExpenseDate:   date,
		Notes:         req.Notes,
		RecordedBy:    auth.ActorID(c),
	}
	if err := h.repo.Create(c.Request.Context(), &e); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, e)
}

func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return nil, false
	}
	return &d, true
}

// List handles GET /expenses?status=&type=&vehicle_id=&from=&to=.
func (h *Handler) List(c *gin.Context) {
	f := Filter{Status: c.Query("status"), Type: c.Query("type")}
	if v := c.Query("vehicle_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid vehicle_id")
			return
		}
		f.VehicleID = &id
	}
	var ok bool
	if f.From, ok = dateQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = dateQuery(c, "to"); !ok {
		return
	}
	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Summary handles GET /expenses/summary?from=&to=. It defaults to the current month.
func (h *Handler) Summary(c *gin.Context) {
	y, m, _ := h.now().Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	f, ok := dateQuery(c, "from")
	if !ok {
		return
	}
	if f != nil {
		from = *f
	}
	t, ok := dateQuery(c, "to")
	if !ok {
		return
	}
	if t != nil {
		to = *t
	}
	if !to.After(from) {
		response.BadRequest(c, "to must be after from")
		return
	}
	totals, err := h.repo.Totals(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	var sum int64
	for _, tt := range totals {
		sum += tt.AmountCents
	}
	response.OK(c, gin.H{"from": from.Format(time.DateOnly), "to": to.Format(time.DateOnly), "by_type": totals, "total_cents": sum})
}

// DecisionRequest is the body for POST /expenses/:id/decision.
type DecisionRequest struct {
	Status          string `json:"status" binding:"required,oneof=approved rejected paid"`
	RejectionReason string `json:"rejection_reason"`
	PaymentDate     string `json:"payment_date" binding:"omitempty,datetime=2006-01-02"`
}

// Decide handles POST /expenses/:id/decision.
func (h *Handler) Decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid expense id")
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Status == models.ExpenseRejected && req.RejectionReason == "" {
		response.BadRequest(c, "rejection_reason is required")
		return
	}
	d := Decision{Status: req.Status, RejectionReason: req.RejectionReason, By: auth.ActorID(c)}
	if req.Status == models.ExpensePaid {
		paid := h.now()
		if req.PaymentDate != "" {
			paid, _ = time.Parse(time.DateOnly, req.PaymentDate)
		}
		d.PaymentDate = &paid
	}
	e, err := h.repo.Decide(c.Request.Context(), id, d)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /expenses/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid expense id")
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
		response.NotFound(c, "expense not found")
	case errors.Is(err, ErrUnknownVehicle):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrTransition):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("expenses", zap.Error(err))
		response.Internal(c, "expense operation failed")
	}
}
