package payroll

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

// Handler handles payroll and employee loan endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a payroll handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// CreateRequest is the body for POST /payroll.
type CreateRequest struct {
	EmployeeID              uuid.UUID  `json:"employee_id" binding:"required"`
	LoanID                  *uuid.UUID `json:"loan_id"`
	PayPeriodStart          string     `json:"pay_period_start" binding:"required,datetime=2006-01-02"`
	PayPeriodEnd            string     `json:"pay_period_end" binding:"required,datetime=2006-01-02"`
	PayDate                 string     `json:"pay_date" binding:"required,datetime=2006-01-02"`
	BasicSalaryCents        int64      `json:"basic_salary_cents" binding:"gte=0"`
	OvertimeMinutes         int        `json:"overtime_minutes" binding:"gte=0"`
	OvertimeRateCents       int64      `json:"overtime_rate_cents" binding:"gte=0"`
	CommissionCents         int64      `json:"commission_cents" binding:"gte=0"`
	AllowancesCents         int64      `json:"allowances_cents" binding:"gte=0"`
	BonusCents              int64      `json:"bonus_cents" binding:"gte=0"`
	TaxDeductionCents       int64      `json:"tax_deduction_cents" binding:"gte=0"`
	InsuranceDeductionCents int64      `json:"insurance_deduction_cents" binding:"gte=0"`
	LoanDeductionCents      int64      `json:"loan_deduction_cents" binding:"gte=0"`
	OtherDeductionsCents    int64      `json:"other_deductions_cents" binding:"gte=0"`
	Notes                   string     `json:"notes"`
}

// Create handles POST /payroll.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	start, _ := time.Parse(time.DateOnly, req.PayPeriodStart)
	end, _ := time.Parse(time.DateOnly, req.PayPeriodEnd)
	payDate, _ := time.Parse(time.DateOnly, req.PayDate)
	if end.Before(start) {
		response.BadRequest(c, "pay_period_end must not be before pay_period_start")
		return
	}
	p := models.Payroll{
		EmployeeID:              req.EmployeeID,
		LoanID:                  req.LoanID,
		PayPeriodStart:          start,
		PayPeriodEnd:            end,
		PayDate:                 payDate,
		BasicSalaryCents:        req.BasicSalaryCents,
		OvertimeMinutes:         req.OvertimeMinutes,
		OvertimeRateCents:       req.OvertimeRateCents,
		CommissionCents:         req.CommissionCents,
		AllowancesCents:         req.AllowancesCents,
		BonusCents:              req.BonusCents,
		TaxDeductionCents:       req.TaxDeductionCents,
		InsuranceDeductionCents: req.InsuranceDeductionCents,
		LoanDeductionCents:      req.LoanDeductionCents,
		OtherDeductionsCents:    req.OtherDeductionsCents,
		Notes:                   req.Notes,
		CreatedBy:               auth.ActorID(c),
	}
	if err := h.repo.Create(c.Request.Context(), &p); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, p)
}

// List handles GET /payroll?employee_id=&status=.
func (h *Handler) List(c *gin.Context) {
	var f Filter
	if v := c.Query("employee_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid employee_id")
			return
		}
		f.EmployeeID = &id
	}
	f.Status = c.Query("status")
	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /payroll/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, p)
}

// Approve handles POST /payroll/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	p, err := h.repo.Approve(c.Request.Context(), id, auth.ActorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, p)
}

// Pay handles POST /payroll/:id/pay.
func (h *Handler) Pay(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	p, err := h.repo.MarkPaid(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, p)
}

// Cancel handles POST /payroll/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	p, err := h.repo.Cancel(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, p)
}

// LoanRequest is the body for POST /employee-loans.
type LoanRequest struct {
	EmployeeID            uuid.UUID `json:"employee_id" binding:"required"`
	LoanType              string    `json:"loan_type" binding:"required,oneof=salary_advance personal_loan emergency_loan"`
	PrincipalCents        int64     `json:"principal_cents" binding:"required,gt=0"`
	InterestRateBP        int       `json:"interest_rate_bp" binding:"gte=0,lte=10000"`
	RepaymentMonths       int       `json:"repayment_months" binding:"required,gt=0,lte=120"`
	MonthlyDeductionCents int64     `json:"monthly_deduction_cents" binding:"gte=0"`
	Reason                string    `json:"reason" binding:"required"`
}

// CreateLoan handles POST /employee-loans.
func (h *Handler) CreateLoan(c *gin.Context) {
	var req LoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	l := models.EmployeeLoan{
		EmployeeID:            req.EmployeeID,
		LoanType:              req.LoanType,
		PrincipalCents:        req.PrincipalCents,
		InterestRateBP:        req.InterestRateBP,
		RepaymentMonths:       req.RepaymentMonths,
		MonthlyDeductionCents: req.MonthlyDeductionCents,
		Reason:                req.Reason,
		AppliedBy:             auth.ActorID(c),
	}
	if err := h.repo.CreateLoan(c.Request.Context(), &l); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, l)
}

// Loans handles GET /employee-loans?employee_id=.
func (h *Handler) Loans(c *gin.Context) {
	var employee *uuid.UUID
	if v := c.Query("employee_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid employee_id")
			return
		}
		employee = &id
	}
	list, err := h.repo.Loans(c.Request.Context(), employee)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// DecisionRequest is the body for POST /employee-loans/:id/decision.
type DecisionRequest struct {
	Approve bool `json:"approve"`
}

// DecideLoan handles POST /employee-loans/:id/decision.
func (h *Handler) DecideLoan(c *gin.Context) {
	id, ok := param(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	y, m, d := h.now().Date()
	l, err := h.repo.DecideLoan(c.Request.Context(), id, req.Approve, auth.ActorID(c), time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, l)
}

func param(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "payroll not found")
	case errors.Is(err, ErrLoanNotFound):
		response.NotFound(c, "loan not found")
	case errors.Is(err, ErrDuplicatePeriod), errors.Is(err, ErrTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnknownEmployee), errors.Is(err, ErrLoanNotRepayable),
		errors.Is(err, ErrNegativeNet), errors.Is(err, ErrInvalidLoan):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("payroll", zap.Error(err))
		response.Internal(c, "payroll operation failed")
	}
}
