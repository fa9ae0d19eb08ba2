package insurance

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
	ErrNotFound        = errors.New("policy not found")
	ErrDuplicatePolicy = errors.New("policy number already exists")
	ErrUnknownVehicle  = errors.New("vehicle does not exist")
)

// Repository handles insurance policy persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates an insurance repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, vehicle_id, provider, policy_number, start_date, expiry_date, premium_cents, status, reminder_sent_at, created_at`

func scan(row pgx.Row) (*models.InsurancePolicy, error) {
	var p models.InsurancePolicy
	err := row.Scan(&p.ID, &p.VehicleID, &p.Provider, &p.PolicyNumber, &p.StartDate, &p.ExpiryDate,
		&p.PremiumCents, &p.Status, &p.ReminderSentAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a policy.
func (r *Repository) Create(ctx context.Context, p *models.InsurancePolicy) error {
	if p.Status == "" {
		p.Status = models.PolicyActive
	}
	const q = `INSERT INTO insurance_policies (vehicle_id, provider, policy_number, start_date, expiry_date, premium_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, p.VehicleID, p.Provider, p.PolicyNumber, p.StartDate, p.ExpiryDate, p.PremiumCents, p.Status).
			Scan(&p.ID, &p.CreatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrDuplicatePolicy
			case "23503":
				return ErrUnknownVehicle
			}
		}
		return err
	})
}

// List returns policies ordered by expiry, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.InsurancePolicy, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM insurance_policies
		WHERE ($1 = '' OR status = $1) ORDER BY expiry_date`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.InsurancePolicy
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// MarkExpired flags active policies whose expiry date has passed.
func (r *Repository) MarkExpired(ctx context.Context, today time.Time) (int64, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, `UPDATE insurance_policies SET status = 'expired'
		WHERE status = 'active' AND expiry_date < $1::date`, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Expiring is an active policy close to expiry, with a vehicle label for the notification.
type Expiring struct {
	models.InsurancePolicy
	Vehicle string
}

// ExpiringWithin returns active, un-reminded policies expiring between today and today+days.
func (r *Repository) ExpiringWithin(ctx context.Context, today time.Time, days int) ([]Expiring, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT p.id, p.vehicle_id, p.provider, p.policy_number, p.start_date, p.expiry_date,
		p.premium_cents, p.status, p.reminder_sent_at, p.created_at,
		v.year::text || ' ' || v.make || ' ' || v.model || ' (' || v.stock_number || ')'
		FROM insurance_policies p JOIN vehicles v ON v.id = p.vehicle_id
		WHERE p.status = 'active' AND p.reminder_sent_at IS NULL
		  AND p.expiry_date BETWEEN $1::date AND $1::date + $2::int
		ORDER BY p.expiry_date`
	rows, err := db.Query(ctx, q, today, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expiring
	for rows.Next() {
		var e Expiring
		if err := rows.Scan(&e.ID, &e.VehicleID, &e.Provider, &e.PolicyNumber, &e.StartDate, &e.ExpiryDate,
			&e.PremiumCents, &e.Status, &e.ReminderSentAt, &e.CreatedAt, &e.Vehicle); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkReminded stamps reminder_sent_at.
func (r *Repository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `UPDATE insurance_policies SET reminder_sent_at = NOW() WHERE id = $1`, id)
	return err
}
