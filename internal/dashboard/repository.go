package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

// Summary is the tenant's at-a-glance view of stock, receivables and insurance.
type Summary struct {
	VehiclesAvailable     int      `json:"vehicles_available"`
	VehiclesReserved      int      `json:"vehicles_reserved"`
	VehiclesSold          int      `json:"vehicles_sold"`
	StockValueCents       int64    `json:"stock_value_cents"`
	Customers             int      `json:"customers"`
	PendingPayments       int      `json:"pending_payments"`
	PendingCents          int64    `json:"pending_cents"`
	OverduePayments       int      `json:"overdue_payments"`
	OverdueCents          int64    `json:"overdue_cents"`
	CollectedMonthCents   int64    `json:"collected_month_cents"`
	PoliciesExpiringSoon  int      `json:"policies_expiring_soon"`
	ExpiringWithinDays    int      `json:"expiring_within_days"`
	CurrencySymbol        string   `json:"currency_symbol"`
	CollectionRatePercent *float64 `json:"collection_rate_percent,omitempty"`
}

// Repository computes dashboard figures in the current tenant scope.
type Repository struct{}

// NewRepository creates a dashboard repository.
func NewRepository() *Repository {
	return &Repository{}
}

const summaryQ = `SELECT
	(SELECT COUNT(*) FROM vehicles WHERE status = $1),
	(SELECT COUNT(*) FROM vehicles WHERE status = $2),
	(SELECT COUNT(*) FROM vehicles WHERE status = $3),
	(SELECT COALESCE(SUM(selling_price_cents), 0) FROM vehicles WHERE status IN ($1, $2)),
	(SELECT COUNT(*) FROM customers),
	(SELECT COUNT(*) FROM payments WHERE status = $4),
	(SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = $4),
	(SELECT COUNT(*) FROM payments WHERE status = $5),
	(SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = $5),
	(SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = $6 AND paid_at >= $7),
	(SELECT COUNT(*) FROM insurance_policies WHERE status = $8 AND expiry_date BETWEEN $9 AND $10)`

// Summary computes the figures. monthStart bounds "collected this month"; policies expiring
// between today and today+days count as expiring soon.
func (r *Repository) Summary(ctx context.Context, monthStart, today time.Time, days int) (*Summary, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	s := &Summary{ExpiringWithinDays: days}
	err = db.QueryRow(ctx, summaryQ,
		models.VehicleAvailable, models.VehicleReserved, models.VehicleSold,
		models.PaymentPending, models.PaymentOverdue, models.PaymentPaid, monthStart,
		models.PolicyActive, today, today.AddDate(0, 0, days),
	).Scan(
		&s.VehiclesAvailable, &s.VehiclesReserved, &s.VehiclesSold, &s.StockValueCents,
		&s.Customers,
		&s.PendingPayments, &s.PendingCents, &s.OverduePayments, &s.OverdueCents,
		&s.CollectedMonthCents,
		&s.PoliciesExpiringSoon,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}
	return s, nil
}
