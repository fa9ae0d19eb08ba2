package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

// Repository reads the current tenant's system settings row.
type Repository struct{}

// NewRepository creates a settings repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Get returns the settings; a missing row yields the defaults.
func (r *Repository) Get(ctx context.Context) (models.SystemSettings, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return models.SystemSettings{}, err
	}
	const q = `SELECT default_interest_rate::float8, late_payment_penalty::float8, payment_reminder_days,
		insurance_expiry_days, max_document_size_mb, currency_symbol, currency_code, updated_at
		FROM system_settings WHERE id = 1`
	var s models.SystemSettings
	err = db.QueryRow(ctx, q).Scan(&s.DefaultInterestRate, &s.LatePaymentPenalty, &s.PaymentReminderDays,
		&s.InsuranceExpiryDays, &s.MaxDocumentSizeMB, &s.CurrencySymbol, &s.CurrencyCode, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.SystemSettings{}, err
	}
	return s, nil
}

// Update replaces the settings row.
func (r *Repository) Update(ctx context.Context, s models.SystemSettings) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `INSERT INTO system_settings (id, default_interest_rate, late_payment_penalty, payment_reminder_days,
		insurance_expiry_days, max_document_size_mb, currency_symbol, currency_code)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET default_interest_rate = EXCLUDED.default_interest_rate,
		late_payment_penalty = EXCLUDED.late_payment_penalty, payment_reminder_days = EXCLUDED.payment_reminder_days,
		insurance_expiry_days = EXCLUDED.insurance_expiry_days, max_document_size_mb = EXCLUDED.max_document_size_mb,
		currency_symbol = EXCLUDED.currency_symbol, currency_code = EXCLUDED.currency_code, updated_at = NOW()`
	_, err = db.Exec(ctx, q, s.DefaultInterestRate, s.LatePaymentPenalty, s.PaymentReminderDays,
		s.InsuranceExpiryDays, s.MaxDocumentSizeMB, s.CurrencySymbol, s.CurrencyCode)
	return err
}
