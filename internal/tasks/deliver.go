package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/worker"
	"github.com/motorsales/vsms/pkg/queue"
)

// Publisher pushes in-app events to connected users.
type Publisher interface {
	PublishToUser(ctx context.Context, schema string, userID uuid.UUID, event string, payload any) (int64, error)
}

// NotificationStore is what delivery reads and updates.
type NotificationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, channel string) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, final bool) error
}

// UserStore looks up recipients.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Deliverer handles notification.deliver jobs.
type Deliverer struct {
	scoper worker.Scoper
	store  NotificationStore
	users  UserStore
	push   Publisher
	mail   Mailer
	sms    SMSSender
	logger *zap.Logger
}

// NewDeliverer creates the delivery handler.
func NewDeliverer(scoper worker.Scoper, store NotificationStore, users UserStore, push Publisher, mail Mailer, sms SMSSender, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{scoper: scoper, store: store, users: users, push: push, mail: mail, sms: sms, logger: logger}
}

// Handle delivers every channel not yet delivered. Each successful channel is committed on its
// own, so a retry after a partial failure never repeats a channel that already went out.
func (d *Deliverer) Handle(ctx context.Context, job *queue.Job) error {
	var p notifications.DeliverPayload
	if err := job.Decode(&p); err != nil || p.NotificationID == uuid.Nil {
		return worker.Permanent(fmt.Errorf("invalid payload: %v", err))
	}

	var n *models.Notification
	var user *models.User
	err := d.scoper.Run(ctx, job.Tenant, func(ctx context.Context) error {
		var err error
		if n, err = d.store.GetByID(ctx, p.NotificationID); err != nil {
			return err
		}
		user, err = d.users.GetByID(ctx, n.UserID)
		return err
	})
	if errors.Is(err, notifications.ErrNotFound) {
		// Deleted by cleanup before delivery ran.
		return nil
	}
	if err != nil {
		return err
	}

	var failures []error
	permanent := true
	for _, ch := range n.Channels {
		if n.Delivered(ch) {
			continue
		}
		if err := d.send(ctx, job.Tenant, ch, n, user); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", ch, err))
			if !isPermanentDelivery(err) {
				permanent = false
			}
			continue
		}
		err := d.scoper.Run(ctx, job.Tenant, func(ctx context.Context) error {
			return d.store.RecordDelivery(ctx, n.ID, ch)
		})
		if err != nil {
			return fmt.Errorf("record %s delivery: %w", ch, err)
		}
	}
	if len(failures) == 0 {
		return nil
	}

	cause := errors.Join(failures...)
	final := permanent || job.Attempt >= job.MaxRetries
	if err := d.scoper.Run(ctx, job.Tenant, func(ctx context.Context) error {
		return d.store.MarkFailed(ctx, n.ID, cause.Error(), final)
	}); err != nil {
		d.logger.Warn("record delivery failure", zap.Error(err), zap.String("notification_id", n.ID.String()))
	}
	if permanent {
		return worker.Permanent(cause)
	}
	return cause
}

func (d *Deliverer) send(ctx context.Context, schema, channel string, n *models.Notification, user *models.User) error {
	switch channel {
	case models.ChannelInApp:
		_, err := d.push.PublishToUser(ctx, schema, n.UserID, "notification", n)
		return err
	case models.ChannelEmail:
		if user.Email == "" {
			return errNoAddress
		}
		return d.mail.Send(ctx, user.Email, n.Title, n.Message)
	case models.ChannelSMS:
		if user.Phone == "" {
			return errNoAddress
		}
		return d.sms.Send(ctx, user.Phone, n.Title+": "+n.Message)
	default:
		return fmt.Errorf("%w %q", errUnknownChannel, channel)
	}
}

var (
	errNoAddress      = errors.New("recipient has no address for this channel")
	errUnknownChannel = errors.New("unknown channel")
)

func isPermanentDelivery(err error) bool {
	var gw *GatewayError
	if errors.As(err, &gw) && gw.Permanent {
		return true
	}
	return errors.Is(err, ErrChannelDisabled) || errors.Is(err, errNoAddress) || errors.Is(err, errUnknownChannel)
}
