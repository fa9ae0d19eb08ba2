package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is metadata for an uploaded file; the bytes live in object storage under ObjectKey.
type Document struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	ObjectKey   string     `json:"-"`
	VehicleID   *uuid.UUID `json:"vehicle_id,omitempty"`
	CustomerID  *uuid.UUID `json:"customer_id,omitempty"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
