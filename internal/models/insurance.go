package models

import (
	"time"

	"github.com/google/uuid"
)

// Insurance policy statuses.
const (
	PolicyActive  = "active"
	PolicyExpired = "expired"
)

// InsurancePolicy covers one vehicle until ExpiryDate.
type InsurancePolicy struct {
	ID             uuid.UUID  `json:"id"`
	VehicleID      uuid.UUID  `json:"vehicle_id"`
	Provider       string     `json:"provider"`
	PolicyNumber   string     `json:"policy_number"`
	StartDate      time.Time  `json:"start_date"`
	ExpiryDate     time.Time  `json:"expiry_date"`
	PremiumCents   int64      `json:"premium_cents"`
	Status         string     `json:"status"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
