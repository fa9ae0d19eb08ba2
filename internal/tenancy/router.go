package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
)

// DBTX is what tenant repositories query through. Inside a scope it is the scope's transaction,
// whose search_path points at exactly one tenant schema.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type scopeKey struct{}

type scope struct {
	tenant      *models.Tenant
	schema      string
	tx          pgx.Tx
	afterCommit []func()
}

// Router confines storage access to a single tenant schema.
//
// Business repositories never see the pool. They get a DBTX from the context with DB, and that
// handle only exists inside Scope, so a query can never land on another tenant's tables.
type Router struct {
	db     Beginner
	logger *zap.Logger
}

// NewRouter creates a schema router over db.
func NewRouter(db Beginner, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{db: db, logger: logger}
}

// Scope runs fn inside a transaction whose search_path is the tenant's schema only.
// The transaction commits when fn returns nil and rolls back on error or panic.
// A nested Scope for the same tenant joins the outer transaction.
func (r *Router) Scope(ctx context.Context, t *models.Tenant, fn func(ctx context.Context) error) error {
	if t == nil {
		return ErrTenantNotFound
	}
	return r.scope(ctx, t, t.SchemaName, fn)
}

// ScopeSchema is Scope for callers that only know the schema name (migrations, operator tooling).
func (r *Router) ScopeSchema(ctx context.Context, schema string, fn func(ctx context.Context) error) error {
	return r.scope(ctx, nil, schema, fn)
}

func (r *Router) scope(ctx context.Context, t *models.Tenant, schema string, fn func(ctx context.Context) error) (err error) {
	if cur, ok := ctx.Value(scopeKey{}).(*scope); ok {
		if cur.schema != schema {
			return fmt.Errorf("%w: %s inside %s", ErrScopeConflict, schema, cur.schema)
		}
		return fn(ctx)
	}
	if err := ValidateSchema(schema); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	// Rollback must not depend on the request context, which may already be cancelled.
	cleanup := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(cleanup)
			panic(p)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{schema}.Sanitize()); err != nil {
		_ = tx.Rollback(cleanup)
		return fmt.Errorf("set search_path: %w", err)
	}

	s := &scope{tenant: t, schema: schema, tx: tx}
	if err := fn(context.WithValue(ctx, scopeKey{}, s)); err != nil {
		if rbErr := tx.Rollback(cleanup); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Warn("rollback failed", zap.String("schema", schema), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(cleanup); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, hook := range s.afterCommit {
		hook()
	}
	return nil
}

// DB returns the tenant-scoped transaction from ctx, or ErrNoTenantScope.
func DB(ctx context.Context) (DBTX, error) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return nil, ErrNoTenantScope
	}
	return s.tx, nil
}

// Savepoint runs fn inside a savepoint of the current scope. When fn fails, only the savepoint
// is rolled back and the scope's transaction stays usable, so statements whose constraint
// errors are mapped to client errors go through here.
func Savepoint(ctx context.Context, fn func(db DBTX) error) error {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return ErrNoTenantScope
	}
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// TenantFrom returns the tenant whose scope ctx is in. Scopes opened with ScopeSchema carry no tenant.
func TenantFrom(ctx context.Context) (*models.Tenant, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s.tenant == nil {
		return nil, false
	}
	return s.tenant, true
}

// SchemaFrom returns the schema of the current scope, or "".
func SchemaFrom(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.schema
	}
	return ""
}

// AfterCommit registers fn to run once the current scope commits. Rolled-back scopes drop it.
// Outside a scope fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		fn()
		return
	}
	s.afterCommit = append(s.afterCommit, fn)
}
