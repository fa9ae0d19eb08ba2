package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorsales/vsms/internal/models"
)

// Store persists the tenant directory in the shared schema.
type Store interface {
	CreateTenant(ctx context.Context, t *models.Tenant, primaryDomain string, prov Provisioner) error
	SchemaExists(ctx context.Context, schema string) (bool, error)
	DomainExists(ctx context.Context, host string) (bool, error)
	TenantByHost(ctx context.Context, host string) (*models.Tenant, error)
	TenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	TenantBySchema(ctx context.Context, schema string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	Domains(ctx context.Context, tenantID uuid.UUID) ([]models.Domain, error)
	AddDomain(ctx context.Context, tenantID uuid.UUID, host string, primary bool) (*models.Domain, error)
	SetPrimary(ctx context.Context, tenantID uuid.UUID, host string) error
	DeleteDomain(ctx context.Context, tenantID uuid.UUID, host string) error
	SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error
}

// PGStore is the PostgreSQL Store. Tables are schema-qualified because registration runs the
// provisioner, which moves search_path, in the same transaction.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a directory store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const tenantColumns = `t.id, t.schema_name, t.name, t.company_name, t.company_email, t.company_phone,
	t.company_address, t.primary_color, t.secondary_color, t.is_active, t.subscription_end_date,
	t.created_at, t.updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.SchemaName, &t.Name, &t.CompanyName, &t.CompanyEmail, &t.CompanyPhone,
		&t.CompanyAddress, &t.PrimaryColor, &t.SecondaryColor, &t.IsActive, &t.SubscriptionEndDate,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mapUniqueViolation turns unique-constraint races into directory errors.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "domains_domain_key":
			return ErrDomainTaken
		case "tenants_schema_name_key":
			return ErrSchemaTaken
		}
	}
	return err
}

// CreateTenant inserts the tenant and its primary domain and provisions the schema in one transaction.
func (s *PGStore) CreateTenant(ctx context.Context, t *models.Tenant, primaryDomain string, prov Provisioner) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO public.tenants (schema_name, name, company_name, company_email, company_phone,
			company_address, primary_color, secondary_color, is_active, subscription_end_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at`
		err := tx.QueryRow(ctx, q, t.SchemaName, t.Name, t.CompanyName, t.CompanyEmail, t.CompanyPhone,
			t.CompanyAddress, t.PrimaryColor, t.SecondaryColor, t.IsActive, t.SubscriptionEndDate).
			Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}

		d := models.Domain{TenantID: t.ID, Domain: primaryDomain, IsPrimary: true}
		err = tx.QueryRow(ctx, `INSERT INTO public.domains (tenant_id, domain, is_primary)
			VALUES ($1, $2, TRUE) RETURNING id, created_at`, t.ID, primaryDomain).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}
		t.Domains = []models.Domain{d}

		if prov != nil {
			return prov.Provision(ctx, tx, t.SchemaName)
		}
		return nil
	})
}

// SchemaExists reports whether a tenant row or a database schema already uses the name.
func (s *PGStore) SchemaExists(ctx context.Context, schema string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM public.tenants WHERE schema_name = $1)
		OR EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`
	var exists bool
	err := s.pool.QueryRow(ctx, q, schema).Scan(&exists)
	return exists, err
}

// DomainExists reports whether any tenant already owns host.
func (s *PGStore) DomainExists(ctx context.Context, host string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM public.domains WHERE domain = $1)`, host).Scan(&exists)
	return exists, err
}

// TenantByHost returns the tenant bound to host, active or not.
func (s *PGStore) TenantByHost(ctx context.Context, host string) (*models.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM public.tenants t
		JOIN public.domains d ON d.tenant_id = t.id WHERE d.domain = $1`
	return scanTenant(s.pool.QueryRow(ctx, q, host))
}

// TenantByID returns a tenant by ID.
func (s *PGStore) TenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM public.tenants t WHERE t.id = $1`
	return scanTenant(s.pool.QueryRow(ctx, q, id))
}

// TenantBySchema returns a tenant by schema name.
func (s *PGStore) TenantBySchema(ctx context.Context, schema string) (*models.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM public.tenants t WHERE t.schema_name = $1`
	return scanTenant(s.pool.QueryRow(ctx, q, schema))
}

// ListTenants returns all tenants ordered by schema name.
func (s *PGStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM public.tenants t ORDER BY t.schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Domains returns a tenant's domains, primary first.
func (s *PGStore) Domains(ctx context.Context, tenantID uuid.UUID) ([]models.Domain, error) {
	const q = `SELECT id, tenant_id, domain, is_primary, created_at FROM public.domains
		WHERE tenant_id = $1 ORDER BY is_primary DESC, domain`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Domain, &d.IsPrimary, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// AddDomain binds host to the tenant. A new primary demotes the old one in the same transaction.
func (s *PGStore) AddDomain(ctx context.Context, tenantID uuid.UUID, host string, primary bool) (*models.Domain, error) {
	d := &models.Domain{TenantID: tenantID, Domain: host, IsPrimary: primary}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if primary {
			if _, err := tx.Exec(ctx, `UPDATE public.domains SET is_primary = FALSE WHERE tenant_id = $1 AND is_primary`, tenantID); err != nil {
				return err
			}
		}
		err := tx.QueryRow(ctx, `INSERT INTO public.domains (tenant_id, domain, is_primary)
			VALUES ($1, $2, $3) RETURNING id, created_at`, tenantID, host, primary).Scan(&d.ID, &d.CreatedAt)
		return mapUniqueViolation(err)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetPrimary makes host the tenant's primary domain.
func (s *PGStore) SetPrimary(ctx context.Context, tenantID uuid.UUID, host string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE public.domains SET is_primary = FALSE WHERE tenant_id = $1 AND is_primary`, tenantID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE public.domains SET is_primary = TRUE WHERE tenant_id = $1 AND domain = $2`, tenantID, host)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDomainNotFound
		}
		return nil
	})
}

// DeleteDomain unbinds a non-primary domain.
func (s *PGStore) DeleteDomain(ctx context.Context, tenantID uuid.UUID, host string) error {
	var isPrimary bool
	err := s.pool.QueryRow(ctx, `SELECT is_primary FROM public.domains WHERE tenant_id = $1 AND domain = $2`, tenantID, host).Scan(&isPrimary)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDomainNotFound
	}
	if err != nil {
		return err
	}
	if isPrimary {
		return ErrPrimaryDomain
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM public.domains WHERE tenant_id = $1 AND domain = $2 AND NOT is_primary`, tenantID, host)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrimaryDomain
	}
	return nil
}

// SetActive activates or deactivates a tenant. Tenants are never deleted.
func (s *PGStore) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE public.tenants SET is_active = $2, updated_at = NOW() WHERE id = $1`, tenantID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}
