package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/pkg/database"
)

// Provisioner creates the storage for a new tenant inside the registration transaction.
type Provisioner interface {
	Provision(ctx context.Context, tx pgx.Tx, schema string) error
}

// Seeder fills a freshly migrated tenant schema with initial rows.
type Seeder func(ctx context.Context, db DBTX) error

// SchemaProvisioner creates the schema, applies the tenant migrations and runs seeders.
type SchemaProvisioner struct {
	Seeders []Seeder
	logger  *zap.Logger
}

// NewSchemaProvisioner creates a provisioner with the given seeders.
func NewSchemaProvisioner(logger *zap.Logger, seeders ...Seeder) *SchemaProvisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaProvisioner{Seeders: seeders, logger: logger}
}

// Provision runs in the caller's transaction; a failure anywhere leaves no schema behind.
func (p *SchemaProvisioner) Provision(ctx context.Context, tx pgx.Tx, schema string) error {
	if err := ValidateSchema(schema); err != nil {
		return err
	}
	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := tx.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P06" {
			return ErrSchemaTaken
		}
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, ident); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if err := database.MigrateTenant(ctx, tx); err != nil {
		return fmt.Errorf("migrate %s: %w", schema, err)
	}
	for _, seed := range p.Seeders {
		if err := seed(ctx, tx); err != nil {
			return fmt.Errorf("seed %s: %w", schema, err)
		}
	}
	p.logger.Info("tenant schema provisioned", zap.String("schema", schema))
	return nil
}

// MigrateSchemas applies pending tenant migrations to every schema, one scope per schema.
func MigrateSchemas(ctx context.Context, router *Router, schemas []string) error {
	for _, schema := range schemas {
		err := router.ScopeSchema(ctx, schema, func(ctx context.Context) error {
			db, err := DB(ctx)
			if err != nil {
				return err
			}
			return database.MigrateTenant(ctx, db)
		})
		if err != nil {
			return fmt.Errorf("migrate %s: %w", schema, err)
		}
	}
	return nil
}
