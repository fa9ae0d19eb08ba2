package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentOverdue = "overdue"
)

// Payment is one installment owed by a customer.
type Payment struct {
	ID             uuid.UUID  `json:"id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	VehicleID      *uuid.UUID `json:"vehicle_id,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	DueDate        time.Time  `json:"due_date"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	Status         string     `json:"status"`
	Reference      string     `json:"reference"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
