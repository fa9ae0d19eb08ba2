package expenses

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
	ErrNotFound       = errors.New("expense not found")
	ErrUnknownVehicle = errors.New("vehicle does not exist")
	ErrTransition     = errors.New("status change not allowed")
)

// Repository handles expense persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates an expenses repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, title, description, expense_type, amount_cents, payment_method, vendor_name, vendor_contact,
	receipt_number, invoice_number, vehicle_id, expense_date, payment_date, status, notes, rejection_reason,
	recorded_by, approved_by, created_at, updated_at`

func scan(row pgx.Row) (*models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.ExpenseType, &e.AmountCents, &e.PaymentMethod, &e.VendorName,
		&e.VendorContact, &e.ReceiptNumber, &e.InvoiceNumber, &e.VehicleID, &e.ExpenseDate, &e.PaymentDate, &e.Status,
		&e.Notes, &e.RejectionReason, &e.RecordedBy, &e.ApprovedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a pending expense.
func (r *Repository) Create(ctx context.Context, e *models.Expense) error {
	e.Status = models.ExpensePending
	const q = `INSERT INTO expenses (title, description, expense_type, amount_cents, payment_method, vendor_name,
		vendor_contact, receipt_number, invoice_number, vehicle_id, expense_date, status, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id, created_at, updated_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, e.Title, e.Description, e.ExpenseType, e.AmountCents, e.PaymentMethod, e.VendorName,
			e.VendorContact, e.ReceiptNumber, e.InvoiceNumber, e.VehicleID, e.ExpenseDate, e.Status, e.Notes, e.RecordedBy).
			Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrUnknownVehicle
		}
		return err
	})
}

// GetByID returns one expense.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM expenses WHERE id = $1`, id))
}

// Filter narrows List. Zero values match everything; To is exclusive.
type Filter struct {
	Status    string
	Type      string
	VehicleID *uuid.UUID
	From, To  *time.Time
}

// List returns expenses, latest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Expense, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM expenses
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR expense_type = $2)
		  AND ($3::uuid IS NULL OR vehicle_id = $3)
		  AND ($4::date IS NULL OR expense_date >= $4) AND ($5::date IS NULL OR expense_date < $5)
		ORDER BY expense_date DESC, created_at DESC`, f.Status, f.Type, f.VehicleID, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Expense
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// TypeTotal is the approved or paid spend of one expense type.
type TypeTotal struct {
	ExpenseType string `json:"expense_type"`
	Count       int    `json:"count"`
	AmountCents int64  `json:"amount_cents"`
}

// Totals sums approved and paid expenses per type in [from, to).
func (r *Repository) Totals(ctx context.Context, from, to time.Time) ([]TypeTotal, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT expense_type, COUNT(*), COALESCE(SUM(amount_cents), 0) FROM expenses
		WHERE status IN ('approved', 'paid') AND expense_date >= $1 AND expense_date < $2
		GROUP BY expense_type ORDER BY expense_type`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TypeTotal
	for rows.Next() {
		var t TypeTotal
		if err := rows.Scan(&t.ExpenseType, &t.Count, &t.AmountCents); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Decision moves an expense through review.
type Decision struct {
	Status          string
	RejectionReason string
	PaymentDate     *time.Time
	By              *uuid.UUID
}

// allowedFrom lists the statuses each review outcome may be applied to.
var allowedFrom = map[string][]string{
	models.ExpenseApproved: {models.ExpensePending},
	models.ExpenseRejected: {models.ExpensePending},
	models.ExpensePaid:     {models.ExpenseApproved},
}

// Decide approves or rejects a pending expense, or pays an approved one.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, d Decision) (*models.Expense, error) {
	from, ok := allowedFrom[d.Status]
	if !ok {
		return nil, ErrTransition
	}
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	e, err := scan(db.QueryRow(ctx, `UPDATE expenses SET status = $2, rejection_reason = $4,
		payment_date = COALESCE($5, payment_date),
		approved_by = CASE WHEN $2 IN ('approved', 'rejected') THEN $6 ELSE approved_by END,
		updated_at = NOW()
		WHERE id = $1 AND status = ANY($3) RETURNING `+columns, id, d.Status, from, d.RejectionReason, d.PaymentDate, d.By))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTransition
	}
	return e, err
}

// Delete removes an expense that is still pending or was rejected.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND status IN ('pending', 'rejected')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrTransition
	}
	return nil
}
