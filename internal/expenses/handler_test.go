package expenses

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

type failedRow struct{ err error }

func (r failedRow) Scan(...any) error { return r.err }

func expenseRow(status string) tenancytest.Row {
	now := time.Now()
	return tenancytest.Row{uuid.New(), "Tyres", "", "maintenance", int64(48_000_00), "cash", "Kwik Fit", "", "", "",
		nil, now, nil, status, "", "", nil, nil, now, now}
}

func serve(t *testing.T, rows func(sql string, args ...any) pgx.Row, method, path, route, body string, h gin.HandlerFunc) (*httptest.ResponseRecorder, *tenancytest.Beginner) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := &tenancytest.Beginner{NewTx: func(tx *tenancytest.Tx) { tx.Rows = rows }}
	router := tenancy.NewRouter(db, nil)
	engine := gin.New()
	engine.Handle(method, route, func(c *gin.Context) {
		_ = router.ScopeSchema(c.Request.Context(), "acme", func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			h(c)
			return nil
		})
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w, db
}

func TestCreateExpenseForUnknownVehicle(t *testing.T) {
	rows := func(string, ...any) pgx.Row { return failedRow{&pgconn.PgError{Code: "23503"}} }
	h := NewHandler(NewRepository(), zap.NewNop())
	body := `{"title":"Tyres","expense_type":"maintenance","amount_cents":4800000,"payment_method":"cash",
		"vendor_name":"Kwik Fit","vehicle_id":"` + uuid.NewString() + `","expense_date":"2026-03-14"}`

	w, db := serve(t, rows, http.MethodPost, "/expenses", "/expenses", body, h.Create)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Len(t, db.Txs[0].Savepoints, 1)
	assert.True(t, db.Txs[0].Savepoints[0].RolledBack)
	assert.True(t, db.Txs[0].Committed, "the request transaction stays usable")
}

func TestRejectingNeedsReason(t *testing.T) {
	h := NewHandler(NewRepository(), zap.NewNop())
	w, db := serve(t, nil, http.MethodPost, "/expenses/"+uuid.NewString()+"/decision", "/expenses/:id/decision",
		`{"status":"rejected"}`, h.Decide)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, db.Txs[0].Statements, 1, "only the search_path statement ran")
}

func TestPayingPendingExpenseConflicts(t *testing.T) {
	rows := func(sql string, _ ...any) pgx.Row {
		if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE expenses") {
			return failedRow{pgx.ErrNoRows}
		}
		return expenseRow(models.ExpensePending)
	}
	h := NewHandler(NewRepository(), zap.NewNop())
	w, db := serve(t, rows, http.MethodPost, "/expenses/"+uuid.NewString()+"/decision", "/expenses/:id/decision",
		`{"status":"paid","payment_date":"2026-03-20"}`, h.Decide)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	args := db.Txs[0].Args[1]
	assert.Equal(t, models.ExpensePaid, args[1])
	assert.Equal(t, []string{models.ExpenseApproved}, args[2])
	paid := args[4].(*time.Time)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), *paid)
}
