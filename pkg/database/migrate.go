package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/shared/*.sql migrations/tenant/*.sql
var migrationsFS embed.FS

const (
	sharedDir = "migrations/shared"
	tenantDir = "migrations/tenant"
)

// Execer is the subset of pgx used to apply migrations; *pgxpool.Pool and pgx.Tx both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MigrateShared applies the shared-schema migrations (tenant directory, job failures).
func MigrateShared(ctx context.Context, db Execer) error {
	return apply(ctx, db, migrationsFS, sharedDir)
}

// MigrateTenant applies the per-tenant migrations to whatever schema the
// connection's search_path currently points at. Callers set search_path first.
func MigrateTenant(ctx context.Context, db Execer) error {
	return apply(ctx, db, migrationsFS, tenantDir)
}

// apply runs embedded SQL migrations in order (001_*.sql, 002_*.sql, ...), recording each in
// schema_migrations of the current schema so every migration runs once per schema.
func apply(ctx context.Context, db Execer, fsys fs.FS, dir string) error {
	const ensure = `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Exec(ctx, ensure); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := migrationNames(fsys, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		var applied bool
		err := db.QueryRow(ctx, `SELECT TRUE FROM schema_migrations WHERE name = $1`, name).Scan(&applied)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		sql, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err = db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err = db.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationNames(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
