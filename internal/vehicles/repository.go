package vehicles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var (
	ErrNotFound          = errors.New("vehicle not found")
	ErrDuplicateStockNum = errors.New("stock number already exists")
)

// Repository handles vehicle persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates a vehicles repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, stock_number, vin, make, model, year, color, mileage,
	purchase_price_cents, selling_price_cents, status, created_at, updated_at`

func scan(row pgx.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(&v.ID, &v.StockNumber, &v.VIN, &v.Make, &v.Model, &v.Year, &v.Color, &v.Mileage,
		&v.PurchasePriceCents, &v.SellingPriceCents, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateStockNum
	}
	return err
}

// Create inserts a vehicle. A duplicate stock number only rolls back its savepoint.
func (r *Repository) Create(ctx context.Context, v *models.Vehicle) error {
	const q = `INSERT INTO vehicles (stock_number, vin, make, model, year, color, mileage,
		purchase_price_cents, selling_price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, v.StockNumber, v.VIN, v.Make, v.Model, v.Year, v.Color, v.Mileage,
			v.PurchasePriceCents, v.SellingPriceCents, v.Status).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
		return mapErr(err)
	})
}

// GetByID returns a vehicle by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM vehicles WHERE id = $1`, id))
}

// List returns vehicles, optionally filtered by status, newest first.
func (r *Repository) List(ctx context.Context, status string) ([]models.Vehicle, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM vehicles
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Vehicle
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// Update overwrites the mutable fields of a vehicle.
func (r *Repository) Update(ctx context.Context, v *models.Vehicle) error {
	const q = `UPDATE vehicles SET stock_number = $2, vin = $3, make = $4, model = $5, year = $6, color = $7,
		mileage = $8, purchase_price_cents = $9, selling_price_cents = $10, status = $11, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		err := db.QueryRow(ctx, q, v.ID, v.StockNumber, v.VIN, v.Make, v.Model, v.Year, v.Color, v.Mileage,
			v.PurchasePriceCents, v.SellingPriceCents, v.Status).Scan(&v.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return mapErr(err)
	})
}

// Delete removes a vehicle.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
