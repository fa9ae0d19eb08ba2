package models

import (
	"time"

	"github.com/google/uuid"
)

// Payroll statuses.
const (
	PayrollDraft     = "draft"
	PayrollApproved  = "approved"
	PayrollPaid      = "paid"
	PayrollCancelled = "cancelled"
)

// Loan statuses.
const (
	LoanPending   = "pending"
	LoanApproved  = "approved"
	LoanActive    = "active"
	LoanCompleted = "completed"
	LoanDefaulted = "defaulted"
	LoanCancelled = "cancelled"
)

// Loan types.
const (
	LoanSalaryAdvance = "salary_advance"
	LoanPersonal      = "personal_loan"
	LoanEmergency     = "emergency_loan"
)

// Payroll is one employee's pay for a period. Gross, deductions and net are derived by Compute.
type Payroll struct {
	ID                      uuid.UUID  `json:"id"`
	EmployeeID              uuid.UUID  `json:"employee_id"`
	LoanID                  *uuid.UUID `json:"loan_id,omitempty"`
	PayPeriodStart          time.Time  `json:"pay_period_start"`
	PayPeriodEnd            time.Time  `json:"pay_period_end"`
	PayDate                 time.Time  `json:"pay_date"`
	BasicSalaryCents        int64      `json:"basic_salary_cents"`
	OvertimeMinutes         int        `json:"overtime_minutes"`
	OvertimeRateCents       int64      `json:"overtime_rate_cents"` // per hour
	CommissionCents         int64      `json:"commission_cents"`
	AllowancesCents         int64      `json:"allowances_cents"`
	BonusCents              int64      `json:"bonus_cents"`
	TaxDeductionCents       int64      `json:"tax_deduction_cents"`
	InsuranceDeductionCents int64      `json:"insurance_deduction_cents"`
	LoanDeductionCents      int64      `json:"loan_deduction_cents"`
	OtherDeductionsCents    int64      `json:"other_deductions_cents"`
	GrossSalaryCents        int64      `json:"gross_salary_cents"`
	TotalDeductionsCents    int64      `json:"total_deductions_cents"`
	NetSalaryCents          int64      `json:"net_salary_cents"`
	Status                  string     `json:"status"`
	Notes                   string     `json:"notes"`
	CreatedBy               *uuid.UUID `json:"created_by,omitempty"`
	ApprovedBy              *uuid.UUID `json:"approved_by,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// OvertimePay is overtime minutes at the hourly rate, rounded down to the cent.
func (p *Payroll) OvertimePay() int64 {
	return int64(p.OvertimeMinutes) * p.OvertimeRateCents / 60
}

// Compute fills the gross, deduction and net totals.
func (p *Payroll) Compute() {
	p.GrossSalaryCents = p.BasicSalaryCents + p.OvertimePay() + p.CommissionCents + p.AllowancesCents + p.BonusCents
	p.TotalDeductionsCents = p.TaxDeductionCents + p.InsuranceDeductionCents + p.LoanDeductionCents + p.OtherDeductionsCents
	p.NetSalaryCents = p.GrossSalaryCents - p.TotalDeductionsCents
}

// EmployeeLoan is a loan or salary advance repaid through payroll deductions.
type EmployeeLoan struct {
	ID                    uuid.UUID  `json:"id"`
	EmployeeID            uuid.UUID  `json:"employee_id"`
	LoanType              string     `json:"loan_type"`
	PrincipalCents        int64      `json:"principal_cents"`
	InterestRateBP        int        `json:"interest_rate_bp"` // annual, basis points
	RepaymentMonths       int        `json:"repayment_months"`
	MonthlyDeductionCents int64      `json:"monthly_deduction_cents"`
	RepaidCents           int64      `json:"repaid_cents"`
	Status                string     `json:"status"`
	Reason                string     `json:"reason"`
	ApprovalDate          *time.Time `json:"approval_date,omitempty"`
	StartDate             *time.Time `json:"start_date,omitempty"`
	AppliedBy             *uuid.UUID `json:"applied_by,omitempty"`
	ApprovedBy            *uuid.UUID `json:"approved_by,omitempty"`
	TotalCents            int64      `json:"total_cents"`
	RemainingBalanceCents int64      `json:"remaining_balance_cents"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Total is the principal plus simple interest over the repayment period.
func (l *EmployeeLoan) Total() int64 {
	interest := l.PrincipalCents * int64(l.InterestRateBP) * int64(l.RepaymentMonths) / (10000 * 12)
	return l.PrincipalCents + interest
}

// RemainingBalance is what is left after the deductions paid so far, never below zero.
func (l *EmployeeLoan) RemainingBalance() int64 {
	if rest := l.Total() - l.RepaidCents; rest > 0 {
		return rest
	}
	return 0
}

// Derive fills TotalCents and RemainingBalanceCents.
func (l *EmployeeLoan) Derive() {
	l.TotalCents = l.Total()
	l.RemainingBalanceCents = l.RemainingBalance()
}
