package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var ErrNotFound = errors.New("document not found")

// Repository stores document metadata in the current tenant schema.
type Repository struct{}

// NewRepository creates a documents repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, title, category, file_name, content_type, size_bytes, object_key, vehicle_id, customer_id, uploaded_by, created_at`

func scan(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Title, &d.Category, &d.FileName, &d.ContentType, &d.SizeBytes, &d.ObjectKey,
		&d.VehicleID, &d.CustomerID, &d.UploadedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts metadata. d.ID must already be set so the object key can embed it.
func (r *Repository) Create(ctx context.Context, d *models.Document) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `INSERT INTO documents (id, title, category, file_name, content_type, size_bytes, object_key,
		vehicle_id, customer_id, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at`
	return db.QueryRow(ctx, q, d.ID, d.Title, d.Category, d.FileName, d.ContentType, d.SizeBytes, d.ObjectKey,
		d.VehicleID, d.CustomerID, d.UploadedBy).Scan(&d.CreatedAt)
}

// GetByID returns one document.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM documents WHERE id = $1`, id))
}

// List returns documents, newest first, optionally for one vehicle or customer.
func (r *Repository) List(ctx context.Context, vehicleID, customerID *uuid.UUID) ([]models.Document, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM documents
		WHERE ($1::uuid IS NULL OR vehicle_id = $1) AND ($2::uuid IS NULL OR customer_id = $2)
		ORDER BY created_at DESC`, vehicleID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Document
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// Delete removes the metadata row and returns it so the caller can remove the object.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `DELETE FROM documents WHERE id = $1 RETURNING `+columns, id))
}
