package audit

import (
	"context"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

// Repository stores audit entries in the tenant schema.
type Repository struct{}

// NewRepository creates an audit repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert writes one entry in its own savepoint, so a failed insert leaves the request's work intact.
func (r *Repository) Insert(ctx context.Context, e *models.AuditLog) error {
	const q = `INSERT INTO audit_logs (user_id, user_email, action, method, path, status_code, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`
	return tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		return db.QueryRow(ctx, q, e.UserID, e.UserEmail, e.Action, e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent).
			Scan(&e.ID, &e.CreatedAt)
	})
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT id, user_id, user_email, action, method, path, status_code, ip_address, user_agent, created_at
		FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := db.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Method, &e.Path, &e.StatusCode,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
