package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records one mutating or viewing request by an authenticated user.
type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	UserEmail  string     `json:"user_email"`
	Action     string     `json:"action"`
	Method     string     `json:"method"`
	Path       string     `json:"path"`
	StatusCode int        `json:"status_code"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
	CreatedAt  time.Time  `json:"created_at"`
}
