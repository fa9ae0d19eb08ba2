package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var ErrNotFound = errors.New("customer not found")

// Repository handles customer persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates a customers repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, full_name, email, phone, id_number, address, created_at, updated_at`

func scan(row pgx.Row) (*models.Customer, error) {
	var cu models.Customer
	err := row.Scan(&cu.ID, &cu.FullName, &cu.Email, &cu.Phone, &cu.IDNumber, &cu.Address, &cu.CreatedAt, &cu.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cu, nil
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, cu *models.Customer) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `INSERT INTO customers (full_name, email, phone, id_number, address)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	return db.QueryRow(ctx, q, cu.FullName, cu.Email, cu.Phone, cu.IDNumber, cu.Address).
		Scan(&cu.ID, &cu.CreatedAt, &cu.UpdatedAt)
}

// GetByID returns a customer by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1`, id))
}

// List returns customers matching an optional name/phone search.
func (r *Repository) List(ctx context.Context, search string) ([]models.Customer, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM customers
		WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY full_name`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Customer
	for rows.Next() {
		cu, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *cu)
	}
	return list, rows.Err()
}

// Update overwrites a customer's details.
func (r *Repository) Update(ctx context.Context, cu *models.Customer) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `UPDATE customers SET full_name = $2, email = $3, phone = $4, id_number = $5, address = $6,
		updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	err = db.QueryRow(ctx, q, cu.ID, cu.FullName, cu.Email, cu.Phone, cu.IDNumber, cu.Address).Scan(&cu.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a customer.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
