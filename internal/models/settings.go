package models

import "time"

// SystemSettings is the single settings row of a tenant.
type SystemSettings struct {
	DefaultInterestRate float64   `json:"default_interest_rate"`
	LatePaymentPenalty  float64   `json:"late_payment_penalty"`
	PaymentReminderDays int       `json:"payment_reminder_days"`
	InsuranceExpiryDays int       `json:"insurance_expiry_days"`
	MaxDocumentSizeMB   int       `json:"max_document_size_mb"`
	CurrencySymbol      string    `json:"currency_symbol"`
	CurrencyCode        string    `json:"currency_code"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultSettings mirrors the column defaults of system_settings.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		DefaultInterestRate: 5.00,
		LatePaymentPenalty:  2.00,
		PaymentReminderDays: 3,
		InsuranceExpiryDays: 30,
		MaxDocumentSizeMB:   10,
		CurrencySymbol:      "KSH",
		CurrencyCode:        "KES",
	}
}

// MaxDocumentBytes returns the upload limit in bytes.
func (s SystemSettings) MaxDocumentBytes() int64 {
	return int64(s.MaxDocumentSizeMB) * 1024 * 1024
}
