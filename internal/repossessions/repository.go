package repossessions

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
	ErrNotFound     = errors.New("repossession not found")
	ErrUnknownParty = errors.New("vehicle or customer does not exist")
	ErrClosed       = errors.New("repossession is closed")
	ErrTransition   = errors.New("status change not allowed")
	ErrOpenCase     = errors.New("vehicle already has an open repossession")
)

// Repository handles repossession cases in the current tenant schema.
type Repository struct{}

// NewRepository creates a repossessions repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, repossession_number, vehicle_id, customer_id, reason, status, outstanding_cents, initiated_date,
	recovery_date, completion_date, current_location, recovery_cost_cents, storage_cost_cents, legal_cost_cents,
	other_costs_cents, resolution_type, resolution_notes, notes, created_by, created_at, updated_at`

func scan(row pgx.Row) (*models.Repossession, error) {
	var r models.Repossession
	err := row.Scan(&r.ID, &r.Number, &r.VehicleID, &r.CustomerID, &r.Reason, &r.Status, &r.OutstandingCents,
		&r.InitiatedDate, &r.RecoveryDate, &r.CompletionDate, &r.CurrentLocation, &r.RecoveryCostCents,
		&r.StorageCostCents, &r.LegalCostCents, &r.OtherCostsCents, &r.ResolutionType, &r.ResolutionNotes, &r.Notes,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Derive()
	return &r, nil
}

// Create opens a pending case numbered REPO-<year>-<seq>. A vehicle has at most one open case.
func (r *Repository) Create(ctx context.Context, rp *models.Repossession) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	var open bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM repossessions
		WHERE vehicle_id = $1 AND status NOT IN ('completed', 'cancelled'))`, rp.VehicleID).Scan(&open); err != nil {
		return err
	}
	if open {
		return ErrOpenCase
	}
	rp.Status = models.RepoPending
	const q = `INSERT INTO repossessions (repossession_number, vehicle_id, customer_id, reason, status, outstanding_cents,
		initiated_date, current_location, notes, created_by)
		VALUES ('REPO-' || to_char($6::date, 'YYYY') || '-' || lpad(nextval('repossession_number_seq')::text, 4, '0'),
			$1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING repossession_number, id, created_at, updated_at`
	err = tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, rp.VehicleID, rp.CustomerID, rp.Reason, rp.Status, rp.OutstandingCents,
			rp.InitiatedDate, rp.CurrentLocation, rp.Notes, rp.CreatedBy).Scan(&rp.Number, &rp.ID, &rp.CreatedAt, &rp.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrUnknownParty
		}
		return err
	})
	if err != nil {
		return err
	}
	rp.Derive()
	return nil
}

// GetByID returns one case.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Repossession, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM repossessions WHERE id = $1`, id))
}

// List returns cases, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.Repossession, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM repossessions
		WHERE ($1 = '' OR status = $1) ORDER BY initiated_date DESC, created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Repossession
	for rows.Next() {
		rp, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rp)
	}
	return list, rows.Err()
}

// Costs are the running costs of a case.
type Costs struct {
	RecoveryCents int64
	StorageCents  int64
	LegalCents    int64
	OtherCents    int64
}

// UpdateCosts replaces the costs of an open case.
func (r *Repository) UpdateCosts(ctx context.Context, id uuid.UUID, c Costs) (*models.Repossession, error) {
	return r.update(ctx, id, `recovery_cost_cents = $2, storage_cost_cents = $3, legal_cost_cents = $4, other_costs_cents = $5`,
		c.RecoveryCents, c.StorageCents, c.LegalCents, c.OtherCents)
}

// Advance moves an open case to notice_sent, in_progress or on_hold.
func (r *Repository) Advance(ctx context.Context, id uuid.UUID, status string) (*models.Repossession, error) {
	switch status {
	case models.RepoNotice, models.RepoProgress, models.RepoOnHold:
	default:
		return nil, ErrTransition
	}
	return r.update(ctx, id, `status = $2`, status)
}

// MarkRecovered records the recovery and marks the vehicle repossessed.
func (r *Repository) MarkRecovered(ctx context.Context, id uuid.UUID, on time.Time, location string) (*models.Repossession, error) {
	rp, err := r.update(ctx, id, `status = 'vehicle_recovered', recovery_date = $2,
		current_location = CASE WHEN $3 = '' THEN current_location ELSE $3 END`, on, location)
	if err != nil {
		return nil, err
	}
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ctx, `UPDATE vehicles SET status = 'repossessed', updated_at = NOW() WHERE id = $1`, rp.VehicleID); err != nil {
		return nil, err
	}
	return rp, nil
}

// Complete closes a case with a resolution.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, on time.Time, resolution, notes string) (*models.Repossession, error) {
	return r.update(ctx, id, `status = 'completed', completion_date = $2, resolution_type = $3, resolution_notes = $4`,
		on, resolution, notes)
}

// Cancel closes a case without resolution.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, notes string) (*models.Repossession, error) {
	return r.update(ctx, id, `status = 'cancelled', resolution_notes = $2`, notes)
}

// update applies set to an open case. Arguments start at $2.
func (r *Repository) update(ctx context.Context, id uuid.UUID, set string, args ...any) (*models.Repossession, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rp, err := scan(db.QueryRow(ctx, `UPDATE repossessions SET `+set+`, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled') RETURNING `+columns, append([]any{id}, args...)...))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrClosed
	}
	return rp, err
}
