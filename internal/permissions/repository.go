package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

// Repository reads and writes the current tenant's permission matrix.
type Repository struct{}

// NewRepository creates a permissions repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Access returns a role's access to a module. Admin always has full access; missing cells mean none.
func (r *Repository) Access(ctx context.Context, role models.Role, module models.Module) (models.AccessLevel, error) {
	if role == models.RoleAdmin {
		return models.AccessFull, nil
	}
	db, err := tenancy.DB(ctx)
	if err != nil {
		return models.AccessNone, err
	}
	var level string
	err = db.QueryRow(ctx, `SELECT access_level FROM role_permissions WHERE role = $1 AND module_name = $2`,
		string(role), string(module)).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AccessNone, nil
	}
	if err != nil {
		return models.AccessNone, err
	}
	return models.AccessLevel(level), nil
}

// List returns the whole matrix.
func (r *Repository) List(ctx context.Context) ([]models.RolePermission, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT role, module_name, access_level FROM role_permissions ORDER BY role, module_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RolePermission
	for rows.Next() {
		var p models.RolePermission
		var role, module, level string
		if err := rows.Scan(&role, &module, &level); err != nil {
			return nil, err
		}
		p.Role, p.Module, p.AccessLevel = models.Role(role), models.Module(module), models.AccessLevel(level)
		list = append(list, p)
	}
	return list, rows.Err()
}

// Set upserts one cell.
func (r *Repository) Set(ctx context.Context, p models.RolePermission) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `INSERT INTO role_permissions (role, module_name, access_level) VALUES ($1, $2, $3)
		ON CONFLICT (role, module_name) DO UPDATE SET access_level = EXCLUDED.access_level, updated_at = NOW()`
	_, err = db.Exec(ctx, q, string(p.Role), string(p.Module), string(p.AccessLevel))
	return err
}
