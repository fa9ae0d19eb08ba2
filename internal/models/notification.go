package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is a message to one user, delivered through one or more channels.
type Notification struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Kind              string     `json:"kind"`
	Priority          string     `json:"priority"`
	Channels          []string   `json:"channels"`
	DeliveredChannels []string   `json:"delivered_channels"`
	Status            string     `json:"status"`
	IsRead            bool       `json:"is_read"`
	LastError         string     `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
}

// Delivered reports whether channel has already been delivered.
func (n *Notification) Delivered(channel string) bool {
	for _, c := range n.DeliveredChannels {
		if c == channel {
			return true
		}
	}
	return false
}
