package auctions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

func auctionRow(status string) tenancytest.Row {
	now := time.Now()
	return tenancytest.Row{uuid.New(), "March clearance", "", "Mombasa Road", now, now.Add(48 * time.Hour), now,
		int64(0), status, nil, now, now}
}

func lotRow(status string) tenancytest.Row {
	now := time.Now()
	return tenancytest.Row{uuid.New(), uuid.New(), uuid.New(), "L-01", int64(0), int64(0), nil, int64(0), int64(0),
		int64(0), int64(0), "", "", "", status, "", nil, int64(0), now, now}
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

func TestTotalVehicleCost(t *testing.T) {
	l := models.AuctionVehicle{
		PurchasePriceCents:    800_000_00,
		ValuationFeeCents:     5_000_00,
		AdvertisementFeeCents: 2_500_00,
		ParkingFeeCents:       1_200_00,
		OtherExpensesCents:    300_00,
	}
	assert.Equal(t, int64(809_000_00), l.TotalVehicleCost())
	assert.False(t, l.IsSold())

	bid := int64(750_000_00)
	l.FinalBidCents, l.ReservePriceCents, l.Status = &bid, 700_000_00, models.LotSold
	assert.True(t, l.IsSold())
	assert.True(t, l.ReserveMet())
}

func TestAddLotReportsTotalVehicleCost(t *testing.T) {
	auctionID := uuid.New()
	rows := func(sql string, _ ...any) pgx.Row {
		if strings.Contains(sql, "INSERT INTO auction_vehicles") {
			now := time.Now()
			return tenancytest.Row{uuid.New(), int64(800_000_00), now, now}
		}
		return auctionRow(models.AuctionPlanned)
	}
	h := NewHandler(NewRepository(), zap.NewNop())
	body := `{"vehicle_id":"` + uuid.NewString() + `","lot_number":"L-07","reserve_price_cents":70000000,
		"valuation_fee_cents":500000,"advertisement_fee_cents":250000,"parking_fee_cents":120000,"other_expenses_cents":30000}`

	w, db := serve(t, rows, http.MethodPost, "/auctions/"+auctionID.String()+"/lots", "/auctions/:id/lots", body, h.AddLot)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data models.AuctionVehicle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, auctionID, resp.Data.AuctionID)
	assert.Equal(t, models.LotPending, resp.Data.Status)
	assert.Equal(t, int64(809_000_00), resp.Data.TotalVehicleCostCents)

	require.Len(t, db.Txs, 1)
	require.Len(t, db.Txs[0].Savepoints, 1)
	assert.True(t, db.Txs[0].Savepoints[0].Committed)
}

func TestAddLotToCompletedAuctionConflicts(t *testing.T) {
	rows := func(string, ...any) pgx.Row { return auctionRow(models.AuctionCompleted) }
	h := NewHandler(NewRepository(), zap.NewNop())
	body := `{"vehicle_id":"` + uuid.NewString() + `","lot_number":"L-01"}`

	w, db := serve(t, rows, http.MethodPost, "/auctions/"+uuid.NewString()+"/lots", "/auctions/:id/lots", body, h.AddLot)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Empty(t, db.Txs[0].Savepoints)
}

func TestSellingClosedLotConflicts(t *testing.T) {
	rows := func(sql string, _ ...any) pgx.Row {
		if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE auction_vehicles") {
			return noRow{}
		}
		return lotRow(models.LotWithdrawn)
	}
	h := NewHandler(NewRepository(), zap.NewNop())
	path := "/auctions/" + uuid.NewString() + "/lots/" + uuid.NewString() + "/sell"

	w, db := serve(t, rows, http.MethodPost, path, "/auctions/:id/lots/:lot/sell",
		`{"final_bid_cents":75000000,"buyer_name":"Otieno"}`, h.Sell)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	for _, stmt := range db.Txs[0].Statements {
		assert.NotContains(t, stmt, "UPDATE vehicles", "vehicle untouched when the lot is closed")
	}
}

func TestSetStatusRejectsSkippingAhead(t *testing.T) {
	rows := func(sql string, _ ...any) pgx.Row {
		if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE auctions") {
			return noRow{}
		}
		return auctionRow(models.AuctionCancelled)
	}
	h := NewHandler(NewRepository(), zap.NewNop())

	w, _ := serve(t, rows, http.MethodPut, "/auctions/"+uuid.NewString()+"/status", "/auctions/:id/status",
		`{"status":"active"}`, h.SetStatus)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{models.AuctionPlanned}, sourcesOf(models.AuctionActive))
	assert.ElementsMatch(t, []string{models.AuctionPlanned, models.AuctionActive}, sourcesOf(models.AuctionCancelled))
}
