package tenancy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

var acme = &models.Tenant{SchemaName: "acme", Name: "Acme Motors", IsActive: true}

func TestScopeSetsSearchPathAndCommits(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)

	var seen tenancy.DBTX
	err := router.Scope(context.Background(), acme, func(ctx context.Context) error {
		var err error
		seen, err = tenancy.DB(ctx)
		require.NoError(t, err)
		got, ok := tenancy.TenantFrom(ctx)
		require.True(t, ok)
		assert.Equal(t, "acme", got.SchemaName)
		assert.Equal(t, "acme", tenancy.SchemaFrom(ctx))
		return nil
	})
	require.NoError(t, err)

	require.Len(t, db.Txs, 1)
	tx := db.Txs[0]
	assert.Same(t, tx, seen)
	require.NotEmpty(t, tx.Statements)
	assert.Contains(t, tx.Statements[0], "set_config('search_path'")
	assert.Equal(t, []any{`"acme"`}, tx.Args[0])
	assert.True(t, tx.Committed)
	assert.False(t, tx.RolledBack)
}

func TestScopeRollsBackOnError(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)
	boom := errors.New("boom")

	err := router.Scope(context.Background(), acme, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.Len(t, db.Txs, 1)
	assert.True(t, db.Txs[0].RolledBack)
	assert.False(t, db.Txs[0].Committed)
}

func TestScopeRollsBackOnPanic(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = router.Scope(context.Background(), acme, func(context.Context) error { panic("kaboom") })
	})
	require.Len(t, db.Txs, 1)
	assert.True(t, db.Txs[0].RolledBack)
}

func TestScopeFailsFastWhenStorageDown(t *testing.T) {
	db := &tenancytest.Beginner{Err: tenancytest.ErrDown}
	router := tenancy.NewRouter(db, nil)
	called := false

	err := router.Scope(context.Background(), acme, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, tenancy.ErrStorageUnavailable)
	assert.False(t, called)
	assert.Equal(t, 1, db.Calls(), "no retries")
}

func TestDBOutsideScope(t *testing.T) {
	_, err := tenancy.DB(context.Background())
	assert.ErrorIs(t, err, tenancy.ErrNoTenantScope)
	_, ok := tenancy.TenantFrom(context.Background())
	assert.False(t, ok)
}

func TestNestedScopes(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)
	beta := &models.Tenant{SchemaName: "beta", IsActive: true}

	err := router.Scope(context.Background(), acme, func(ctx context.Context) error {
		require.NoError(t, router.Scope(ctx, acme, func(context.Context) error { return nil }))
		return router.Scope(ctx, beta, func(context.Context) error {
			t.Fatal("must not run in another tenant's scope")
			return nil
		})
	})
	assert.ErrorIs(t, err, tenancy.ErrScopeConflict)
	assert.Equal(t, 1, db.Calls(), "same-tenant nesting joins the outer transaction")
}

func TestScopeRejectsInvalidSchema(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)

	err := router.ScopeSchema(context.Background(), "public", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, tenancy.ErrInvalidSchema)
	assert.Zero(t, db.Calls())
}

func TestAfterCommitHooks(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)

	var ran []string
	_ = router.Scope(context.Background(), acme, func(ctx context.Context) error {
		tenancy.AfterCommit(ctx, func() { ran = append(ran, "committed") })
		return nil
	})
	_ = router.Scope(context.Background(), acme, func(ctx context.Context) error {
		tenancy.AfterCommit(ctx, func() { ran = append(ran, "rolled back") })
		return errors.New("fail")
	})
	tenancy.AfterCommit(context.Background(), func() { ran = append(ran, "unscoped") })

	assert.Equal(t, []string{"committed", "unscoped"}, ran)
}

func TestSavepointKeepsScopeUsableAfterFailure(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)
	dup := errors.New("duplicate key")

	err := router.Scope(context.Background(), acme, func(ctx context.Context) error {
		err := tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
			_, _ = db.Exec(ctx, "INSERT INTO vehicles (stock_number) VALUES ($1)", "S-1")
			return dup
		})
		assert.ErrorIs(t, err, dup)

		require.NoError(t, tenancy.Savepoint(ctx, func(db tenancy.DBTX) error {
			_, err := db.Exec(ctx, "INSERT INTO audit_logs (action) VALUES ($1)", "create")
			return err
		}))
		return nil
	})
	require.NoError(t, err)

	tx := db.Txs[0]
	assert.True(t, tx.Committed)
	require.Len(t, tx.Savepoints, 2)
	assert.True(t, tx.Savepoints[0].RolledBack)
	assert.True(t, tx.Savepoints[1].Committed)
	assert.Equal(t, []string{"INSERT INTO audit_logs (action) VALUES ($1)"}, tx.Savepoints[1].Statements)
}

func TestSavepointOutsideScope(t *testing.T) {
	err := tenancy.Savepoint(context.Background(), func(tenancy.DBTX) error { return nil })
	assert.ErrorIs(t, err, tenancy.ErrNoTenantScope)
}
