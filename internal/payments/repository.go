package payments

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
	ErrNotFound        = errors.New("payment not found")
	ErrAlreadyPaid     = errors.New("payment already settled")
	ErrUnknownCustomer = errors.New("customer or vehicle does not exist")
)

// Repository handles installment persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates a payments repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, customer_id, vehicle_id, amount_cents, due_date, paid_at, status, reference, reminder_sent_at, created_at`

func scan(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.CustomerID, &p.VehicleID, &p.AmountCents, &p.DueDate, &p.PaidAt,
		&p.Status, &p.Reference, &p.ReminderSentAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create records an installment.
func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	const q = `INSERT INTO payments (customer_id, vehicle_id, amount_cents, due_date, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, p.CustomerID, p.VehicleID, p.AmountCents, p.DueDate, p.Status, p.Reference).
			Scan(&p.ID, &p.CreatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrUnknownCustomer
		}
		return err
	})
}

// GetByID returns one installment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM payments WHERE id = $1`, id))
}

// List returns installments ordered by due date. Zero-valued filters are ignored.
func (r *Repository) List(ctx context.Context, status string, customerID uuid.UUID) ([]models.Payment, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	var customer *uuid.UUID
	if customerID != uuid.Nil {
		customer = &customerID
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM payments
		WHERE ($1 = '' OR status = $1) AND ($2::uuid IS NULL OR customer_id = $2)
		ORDER BY due_date`, status, customer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payment
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// MarkPaid settles an installment.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, reference string) (*models.Payment, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scan(db.QueryRow(ctx, `UPDATE payments SET status = 'paid', paid_at = NOW(),
		reference = CASE WHEN $2 = '' THEN reference ELSE $2 END
		WHERE id = $1 AND status <> 'paid' RETURNING `+columns, id, reference))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrAlreadyPaid
		}
	}
	return p, err
}

// MarkOverdue flags pending installments whose due date is before today.
func (r *Repository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, `UPDATE payments SET status = 'overdue'
		WHERE status = 'pending' AND due_date < $1::date`, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Upcoming is an unpaid installment due soon, with the customer's name for the reminder text.
type Upcoming struct {
	models.Payment
	CustomerName string
}

// DueForReminder returns unpaid installments due between today and today+days that have not been reminded.
func (r *Repository) DueForReminder(ctx context.Context, today time.Time, days int) ([]Upcoming, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT p.id, p.customer_id, p.vehicle_id, p.amount_cents, p.due_date, p.paid_at, p.status,
		p.reference, p.reminder_sent_at, p.created_at, c.full_name
		FROM payments p JOIN customers c ON c.id = p.customer_id
		WHERE p.status = 'pending' AND p.reminder_sent_at IS NULL
		  AND p.due_date BETWEEN $1::date AND $1::date + $2::int
		ORDER BY p.due_date`
	rows, err := db.Query(ctx, q, today, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Upcoming
	for rows.Next() {
		var u Upcoming
		if err := rows.Scan(&u.ID, &u.CustomerID, &u.VehicleID, &u.AmountCents, &u.DueDate, &u.PaidAt, &u.Status,
			&u.Reference, &u.ReminderSentAt, &u.CreatedAt, &u.CustomerName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// MarkReminded stamps reminder_sent_at so the sweep skips the installment next time.
func (r *Repository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `UPDATE payments SET reminder_sent_at = NOW() WHERE id = $1`, id)
	return err
}
