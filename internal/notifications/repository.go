package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var ErrNotFound = errors.New("notification not found")

// Repository handles notification persistence in the current tenant schema.
type Repository struct{}

// NewRepository creates a notifications repository.
func NewRepository() *Repository {
	return &Repository{}
}

const columns = `id, user_id, title, message, kind, priority, channels, delivered_channels, status,
	is_read, last_error, created_at, sent_at, read_at`

func scan(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Kind, &n.Priority, &n.Channels, &n.DeliveredChannels,
		&n.Status, &n.IsRead, &n.LastError, &n.CreatedAt, &n.SentAt, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a pending notification.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	n.Status = models.NotificationPending
	const q = `INSERT INTO notifications (user_id, title, message, kind, priority, channels, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	return db.QueryRow(ctx, q, n.UserID, n.Title, n.Message, n.Kind, n.Priority, n.Channels, n.Status).
		Scan(&n.ID, &n.CreatedAt)
}

// GetByID returns one notification.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	return scan(db.QueryRow(ctx, `SELECT `+columns+` FROM notifications WHERE id = $1`, id))
}

// ListForUser returns a user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// UnreadCount returns how many unread notifications a user has.
func (r *Repository) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

// MarkRead marks one of the user's notifications read.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordDelivery appends channel to delivered_channels once. When every requested channel is
// delivered the notification becomes sent.
func (r *Repository) RecordDelivery(ctx context.Context, id uuid.UUID, channel string) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	const q = `UPDATE notifications SET
		delivered_channels = CASE WHEN $2 = ANY(delivered_channels) THEN delivered_channels
			ELSE array_append(delivered_channels, $2) END,
		status = CASE WHEN channels <@ array_append(delivered_channels, $2) THEN 'sent' ELSE status END,
		sent_at = CASE WHEN channels <@ array_append(delivered_channels, $2) THEN NOW() ELSE sent_at END,
		last_error = ''
		WHERE id = $1`
	_, err = db.Exec(ctx, q, id, channel)
	return err
}

// MarkFailed records the last delivery error; status becomes failed only when final is set.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause string, final bool) error {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `UPDATE notifications SET last_error = $2,
		status = CASE WHEN $3 THEN 'failed' ELSE status END WHERE id = $1`, id, cause, final)
	return err
}

// DeleteReadBefore removes read notifications created before cutoff.
func (r *Repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, `DELETE FROM notifications WHERE is_read AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// StalePending returns pending notifications created before cutoff that no delivery attempt has
// touched yet, oldest first.
func (r *Repository) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Notification, error) {
	db, err := tenancy.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `SELECT `+columns+` FROM notifications
		WHERE status = 'pending' AND last_error = '' AND created_at < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
