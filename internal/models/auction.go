package models

import (
	"time"

	"github.com/google/uuid"
)

// Auction statuses.
const (
	AuctionPlanned   = "planned"
	AuctionActive    = "active"
	AuctionCompleted = "completed"
	AuctionCancelled = "cancelled"
)

// Lot statuses.
const (
	LotPending   = "pending"
	LotApproved  = "approved"
	LotSold      = "sold"
	LotUnsold    = "unsold"
	LotWithdrawn = "withdrawn"
)

// Auction is an auction event that vehicles are entered into as lots.
type Auction struct {
	ID                   uuid.UUID  `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Location             string     `json:"location"`
	StartDate            time.Time  `json:"start_date"`
	EndDate              time.Time  `json:"end_date"`
	RegistrationDeadline time.Time  `json:"registration_deadline"`
	RegistrationFeeCents int64      `json:"registration_fee_cents"`
	Status               string     `json:"status"`
	CreatedBy            *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsActive reports whether the auction is running at now.
func (a *Auction) IsActive(now time.Time) bool {
	return a.Status == AuctionActive && !now.Before(a.StartDate) && !now.After(a.EndDate)
}

// AuctionVehicle is one lot. PurchasePriceCents is read from the vehicle.
type AuctionVehicle struct {
	ID                    uuid.UUID  `json:"id"`
	AuctionID             uuid.UUID  `json:"auction_id"`
	VehicleID             uuid.UUID  `json:"vehicle_id"`
	LotNumber             string     `json:"lot_number"`
	ReservePriceCents     int64      `json:"reserve_price_cents"`
	StartingBidCents      int64      `json:"starting_bid_cents"`
	FinalBidCents         *int64     `json:"final_bid_cents,omitempty"`
	ValuationFeeCents     int64      `json:"valuation_fee_cents"`
	AdvertisementFeeCents int64      `json:"advertisement_fee_cents"`
	ParkingFeeCents       int64      `json:"parking_fee_cents"`
	OtherExpensesCents    int64      `json:"other_expenses_cents"`
	BuyerName             string     `json:"buyer_name"`
	BuyerPhone            string     `json:"buyer_phone"`
	BuyerIDNumber         string     `json:"buyer_id_number"`
	Status                string     `json:"status"`
	Notes                 string     `json:"notes"`
	AddedBy               *uuid.UUID `json:"added_by,omitempty"`
	PurchasePriceCents    int64      `json:"purchase_price_cents"`
	TotalVehicleCostCents int64      `json:"total_vehicle_cost_cents"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TotalVehicleCost is the vehicle's purchase price plus every auction fee.
func (l *AuctionVehicle) TotalVehicleCost() int64 {
	return l.PurchasePriceCents + l.ValuationFeeCents + l.AdvertisementFeeCents + l.ParkingFeeCents + l.OtherExpensesCents
}

// IsSold reports whether the lot closed with a winning bid.
func (l *AuctionVehicle) IsSold() bool {
	return l.Status == LotSold && l.FinalBidCents != nil
}

// ReserveMet reports whether the final bid reached the reserve.
func (l *AuctionVehicle) ReserveMet() bool {
	return l.FinalBidCents != nil && *l.FinalBidCents >= l.ReservePriceCents
}
