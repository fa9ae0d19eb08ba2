package models

import (
	"time"

	"github.com/google/uuid"
)

// Expense statuses.
const (
	ExpensePending  = "pending"
	ExpenseApproved = "approved"
	ExpenseRejected = "rejected"
	ExpensePaid     = "paid"
)

// Expense is a business cost, optionally charged to one vehicle.
type Expense struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ExpenseType     string     `json:"expense_type"`
	AmountCents     int64      `json:"amount_cents"`
	PaymentMethod   string     `json:"payment_method"`
	VendorName      string     `json:"vendor_name"`
	VendorContact   string     `json:"vendor_contact"`
	ReceiptNumber   string     `json:"receipt_number"`
	InvoiceNumber   string     `json:"invoice_number"`
	VehicleID       *uuid.UUID `json:"vehicle_id,omitempty"`
	ExpenseDate     time.Time  `json:"expense_date"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes"`
	RejectionReason string     `json:"rejection_reason"`
	RecordedBy      *uuid.UUID `json:"recorded_by,omitempty"`
	ApprovedBy      *uuid.UUID `json:"approved_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
