package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/payments"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
	"github.com/motorsales/vsms/internal/vehicles"
)

type failedRow struct{ err error }

func (r failedRow) Scan(...any) error { return r.err }

func constraintRows(sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "INSERT INTO vehicles"):
		return failedRow{&pgconn.PgError{Code: "23505"}}
	case strings.Contains(sql, "INSERT INTO payments"):
		return failedRow{&pgconn.PgError{Code: "23503"}}
	default:
		return tenancytest.Row{uuid.New(), time.Now()}
	}
}

func TestRejectedWritesAreStillAudited(t *testing.T) {
	db := &tenancytest.Beginner{NewTx: func(tx *tenancytest.Tx) { tx.Rows = constraintRows }}
	router := tenancy.NewRouter(db, nil)
	audit := NewRepository()
	tenant := &models.Tenant{SchemaName: "acme", IsActive: true}

	err := router.Scope(context.Background(), tenant, func(ctx context.Context) error {
		err := vehicles.NewRepository().Create(ctx, &models.Vehicle{StockNumber: "S-1"})
		assert.ErrorIs(t, err, vehicles.ErrDuplicateStockNum)
		err = payments.NewRepository().Create(ctx, &models.Payment{CustomerID: uuid.New()})
		assert.ErrorIs(t, err, payments.ErrUnknownCustomer)

		entry := &models.AuditLog{Action: "create", Method: "POST", Path: "/api/vehicles", StatusCode: 409}
		require.NoError(t, audit.Insert(ctx, entry))
		assert.NotEqual(t, uuid.Nil, entry.ID)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, db.Txs, 1)
	tx := db.Txs[0]
	assert.True(t, tx.Committed)
	require.Len(t, tx.Savepoints, 3)
	assert.True(t, tx.Savepoints[0].RolledBack, "duplicate stock number rolled back to its savepoint")
	assert.True(t, tx.Savepoints[1].RolledBack, "unknown customer rolled back to its savepoint")
	assert.True(t, tx.Savepoints[2].Committed, "audit entry kept")
}
