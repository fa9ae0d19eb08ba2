package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle statuses.
const (
	VehicleAvailable   = "available"
	VehicleReserved    = "reserved"
	VehicleSold        = "sold"
	VehicleRepossessed = "repossessed"
)

// Vehicle is a unit of stock.
type Vehicle struct {
	ID                 uuid.UUID `json:"id"`
	StockNumber        string    `json:"stock_number"`
	VIN                string    `json:"vin"`
	Make               string    `json:"make"`
	Model              string    `json:"model"`
	Year               int       `json:"year"`
	Color              string    `json:"color"`
	Mileage            int       `json:"mileage"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SellingPriceCents  int64     `json:"selling_price_cents"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Customer is a buyer. Called "client" in the UI.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	IDNumber  string    `json:"id_number"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
