package models

import (
	"time"

	"github.com/google/uuid"
)

// Repossession statuses.
const (
	RepoPending   = "pending"
	RepoNotice    = "notice_sent"
	RepoProgress  = "in_progress"
	RepoRecovered = "vehicle_recovered"
	RepoCompleted = "completed"
	RepoCancelled = "cancelled"
	RepoOnHold    = "on_hold"
)

// Repossession tracks recovery of a vehicle from a defaulting customer.
type Repossession struct {
	ID                uuid.UUID  `json:"id"`
	Number            string     `json:"repossession_number"`
	VehicleID         uuid.UUID  `json:"vehicle_id"`
	CustomerID        uuid.UUID  `json:"customer_id"`
	Reason            string     `json:"reason"`
	Status            string     `json:"status"`
	OutstandingCents  int64      `json:"outstanding_cents"`
	InitiatedDate     time.Time  `json:"initiated_date"`
	RecoveryDate      *time.Time `json:"recovery_date,omitempty"`
	CompletionDate    *time.Time `json:"completion_date,omitempty"`
	CurrentLocation   string     `json:"current_location"`
	RecoveryCostCents int64      `json:"recovery_cost_cents"`
	StorageCostCents  int64      `json:"storage_cost_cents"`
	LegalCostCents    int64      `json:"legal_cost_cents"`
	OtherCostsCents   int64      `json:"other_costs_cents"`
	TotalCostCents    int64      `json:"total_cost_cents"`
	AmountDueCents    int64      `json:"amount_due_cents"`
	ResolutionType    string     `json:"resolution_type"`
	ResolutionNotes   string     `json:"resolution_notes"`
	Notes             string     `json:"notes"`
	CreatedBy         *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Derive fills TotalCostCents and AmountDueCents.
func (r *Repossession) Derive() {
	r.TotalCostCents = r.RecoveryCostCents + r.StorageCostCents + r.LegalCostCents + r.OtherCostsCents
	r.AmountDueCents = r.OutstandingCents + r.TotalCostCents
}

// Closed reports whether the case can no longer change.
func (r *Repossession) Closed() bool {
	return r.Status == RepoCompleted || r.Status == RepoCancelled
}

// DaysInProcess counts days from initiation to completion, or to today while open.
func (r *Repossession) DaysInProcess(today time.Time) int {
	end := today
	if r.CompletionDate != nil {
		end = *r.CompletionDate
	}
	return int(end.Sub(r.InitiatedDate).Hours() / 24)
}
