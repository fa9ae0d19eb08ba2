package auth

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
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when creating a user with an email already in the tenant.
	ErrEmailTaken = errors.New("email already registered")
)

// Repository handles user persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates an auth repository.
func NewRepository() *Repository {
	return &Repository{}
}

const userColumns = `id, email, password_hash, full_name, role, phone, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &role, &u.Phone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// ListByRoles returns active users holding any of roles, e.g. everyone to notify about overdue payments.
func (r *Repository) ListByRoles(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active AND role = ANY($1) ORDER BY email`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// List returns all users of the tenant.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u.ToPublic())
	}
	return list, rows.Err()
}

// CreateUserParams holds the fields for a new user.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Role         models.Role
	Phone        string
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	q := `INSERT INTO users (email, password_hash, full_name, role, phone)
		VALUES ($1, $2, $3, $4, $5) RETURNING ` + userColumns
	var u *models.User
	err := tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
		var err error
		u, err = scanUser(db.QueryRow(ctx, q, p.Email, p.PasswordHash, p.FullName, string(p.Role), p.Phone))
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetActive enables or disables a user.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
