package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var (
	ErrNotFound         = errors.New("payroll not found")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrDuplicatePeriod  = errors.New("payroll already exists for this employee and period")
	ErrUnknownEmployee  = errors.New("employee does not exist")
	ErrTransition       = errors.New("status change not allowed")
	ErrLoanNotRepayable = errors.New("loan is not approved for this employee")
	ErrNegativeNet      = errors.New("deductions exceed gross salary")
	ErrInvalidLoan      = errors.New("loan needs a positive principal and repayment period")
)

// Repository handles payroll and employee loans in the current tenant schema.
type Repository struct{}

// NewRepository creates a payroll repository.
func NewRepository() *Repository {
	return &Repository{}
}

const payrollColumns = `id, employee_id, loan_id, pay_period_start, pay_period_end, pay_date, basic_salary_cents,
	overtime_minutes, overtime_rate_cents, commission_cents, allowances_cents, bonus_cents, tax_deduction_cents,
	insurance_deduction_cents, loan_deduction_cents, other_deductions_cents, gross_salary_cents,
	total_deductions_cents, net_salary_cents, status, notes, created_by, approved_by, created_at, updated_at`

func scanPayroll(row pgx.Row) (*models.Payroll, error) {
	var p models.Payroll
	err := row.Scan(&p.ID, &p.EmployeeID, &p.LoanID, &p.PayPeriodStart, &p.PayPeriodEnd, &p.PayDate, &p.BasicSalaryCents,
		&p.OvertimeMinutes, &p.OvertimeRateCents, &p.CommissionCents, &p.AllowancesCents, &p.BonusCents, &p.TaxDeductionCents,
		&p.InsuranceDeductionCents, &p.LoanDeductionCents, &p.OtherDeductionsCents, &p.GrossSalaryCents,
		&p.TotalDeductionsCents, &p.NetSalaryCents, &p.Status, &p.Notes, &p.CreatedBy, &p.ApprovedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create computes the totals and inserts a draft payroll. A payroll tied to a loan deducts the
// loan's monthly instalment, capped at its remaining balance, unless a deduction is given.
func (r *Repository) Create(ctx context.Context, p *models.Payroll) error {
	if p.LoanID != nil {
		loan, err := r.GetLoan(ctx, *p.LoanID)
		if err != nil {
			return err
		}
		if loan.EmployeeID != p.EmployeeID || (loan.Status != models.LoanApproved && loan.Status != models.LoanActive) {
			return ErrLoanNotRepayable
		}
		if p.LoanDeductionCents == 0 {
			p.LoanDeductionCents = min(loan.MonthlyDeductionCents, loan.RemainingBalance())
		}
	}
	p.Compute()
	if p.NetSalaryCents < 0 {
		return ErrNegativeNet
	}
	p.Status = models.PayrollDraft
	const q = `INSERT INTO payrolls (employee_id, loan_id, pay_period_start, pay_period_end, pay_date, basic_salary_cents,
		overtime_minutes, overtime_rate_cents, commission_cents, allowances_cents, bonus_cents, tax_deduction_cents,
		insurance_deduction_cents, loan_deduction_cents, other_deductions_cents, gross_salary_cents,
		total_deductions_cents, net_salary_cents, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, p.EmployeeID, p.LoanID, p.PayPeriodStart, p.PayPeriodEnd, p.PayDate, p.BasicSalaryCents,
			p.OvertimeMinutes, p.OvertimeRateCents, p.CommissionCents, p.AllowancesCents, p.BonusCents, p.TaxDeductionCents,
			p.InsuranceDeductionCents, p.LoanDeductionCents, p.OtherDeductionsCents, p.GrossSalaryCents,
			p.TotalDeductionsCents, p.NetSalaryCents, p.Status, p.Notes, p.CreatedBy).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrDuplicatePeriod
			case "23503":
				return ErrUnknownEmployee
			}
		}
		return err
	})
}

// GetByID returns one payroll.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanPayroll(db.QueryRow(ctx, `SELECT `+payrollColumns+` FROM payrolls WHERE id = $1`, id))
}

// Filter narrows List.
type Filter struct {
	EmployeeID *uuid.UUID
	Status     string
}

// List returns payrolls, latest period first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Payroll, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+payrollColumns+` FROM payrolls
		WHERE ($1::uuid IS NULL OR employee_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY pay_period_end DESC`, f.EmployeeID, f.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payroll
	for rows.Next() {
		p, err := scanPayroll(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func (r *Repository) move(ctx context.Context, id uuid.UUID, to string, from []string, approver *uuid.UUID) (*models.Payroll, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scanPayroll(db.QueryRow(ctx, `UPDATE payrolls SET status = $2, approved_by = COALESCE($4, approved_by),
		updated_at = NOW() WHERE id = $1 AND status = ANY($3) RETURNING `+payrollColumns, id, to, from, approver))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTransition
	}
	return p, err
}

// Approve moves a draft payroll to approved.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID, approver *uuid.UUID) (*models.Payroll, error) {
	return r.move(ctx, id, models.PayrollApproved, []string{models.PayrollDraft}, approver)
}

// Cancel cancels a payroll that has not been paid.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	return r.move(ctx, id, models.PayrollCancelled, []string{models.PayrollDraft, models.PayrollApproved}, nil)
}

// MarkPaid pays an approved payroll and applies its loan deduction to the loan, completing the
// loan once the total is repaid.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID) (*models.Payroll, error) {
	p, err := r.move(ctx, id, models.PayrollPaid, []string{models.PayrollApproved}, nil)
	if err != nil {
		return nil, err
	}
	if p.LoanID == nil || p.LoanDeductionCents == 0 {
		return p, nil
	}
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(ctx, `UPDATE employee_loans SET repaid_cents = repaid_cents + $2,
		status = CASE WHEN repaid_cents + $2 >= `+loanTotalSQL+` THEN 'completed' ELSE 'active' END,
		start_date = COALESCE(start_date, CURRENT_DATE)
		WHERE id = $1`, *p.LoanID, p.LoanDeductionCents)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// loanTotalSQL mirrors EmployeeLoan.Total.
const loanTotalSQL = `(principal_cents + principal_cents * interest_rate_bp * repayment_months / 120000)`

const loanColumns = `id, employee_id, loan_type, principal_cents, interest_rate_bp, repayment_months,
	monthly_deduction_cents, repaid_cents, status, reason, approval_date, start_date, applied_by, approved_by, created_at`

func scanLoan(row pgx.Row) (*models.EmployeeLoan, error) {
	var l models.EmployeeLoan
	err := row.Scan(&l.ID, &l.EmployeeID, &l.LoanType, &l.PrincipalCents, &l.InterestRateBP, &l.RepaymentMonths,
		&l.MonthlyDeductionCents, &l.RepaidCents, &l.Status, &l.Reason, &l.ApprovalDate, &l.StartDate, &l.AppliedBy,
		&l.ApprovedBy, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Derive()
	return &l, nil
}

// CreateLoan records a pending loan application. Without a monthly deduction the total is spread
// evenly over the repayment months, rounded up.
func (r *Repository) CreateLoan(ctx context.Context, l *models.EmployeeLoan) error {
	if l.PrincipalCents <= 0 || l.RepaymentMonths <= 0 {
		return ErrInvalidLoan
	}
	if l.MonthlyDeductionCents == 0 {
		months := int64(l.RepaymentMonths)
		l.MonthlyDeductionCents = (l.Total() + months - 1) / months
	}
	l.Status = models.LoanPending
	const q = `INSERT INTO employee_loans (employee_id, loan_type, principal_cents, interest_rate_bp, repayment_months,
		monthly_deduction_cents, status, reason, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`
	err := tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, l.EmployeeID, l.LoanType, l.PrincipalCents, l.InterestRateBP, l.RepaymentMonths,
			l.MonthlyDeductionCents, l.Status, l.Reason, l.AppliedBy).Scan(&l.ID, &l.CreatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrUnknownEmployee
		}
		return err
	})
	if err != nil {
		return err
	}
	l.Derive()
	return nil
}

// GetLoan returns one loan with its derived balance.
func (r *Repository) GetLoan(ctx context.Context, id uuid.UUID) (*models.EmployeeLoan, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanLoan(db.QueryRow(ctx, `SELECT `+loanColumns+` FROM employee_loans WHERE id = $1`, id))
}

// Loans returns loans, newest first, optionally for one employee.
func (r *Repository) Loans(ctx context.Context, employeeID *uuid.UUID) ([]models.EmployeeLoan, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+loanColumns+` FROM employee_loans
		WHERE ($1::uuid IS NULL OR employee_id = $1) ORDER BY created_at DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmployeeLoan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// DecideLoan approves or cancels a pending loan.
func (r *Repository) DecideLoan(ctx context.Context, id uuid.UUID, approve bool, approver *uuid.UUID, today time.Time) (*models.EmployeeLoan, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	status := models.LoanCancelled
	var approvedOn *time.Time
	if approve {
		status, approvedOn = models.LoanApproved, &today
	}
	l, err := scanLoan(db.QueryRow(ctx, `UPDATE employee_loans SET status = $2, approved_by = $3, approval_date = $4
		WHERE id = $1 AND status = 'pending' RETURNING `+loanColumns, id, status, approver, approvedOn))
	if errors.Is(err, ErrLoanNotFound) {
		if _, getErr := r.GetLoan(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTransition
	}
	return l, err
}
