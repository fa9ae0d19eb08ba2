package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/insurance"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/payments"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/queue"
)

// Job types run by the scheduler, one job per active tenant.
const (
	PaymentReminderSweep = "payments.reminder_sweep"
	InsuranceExpirySweep = "insurance.expiry_sweep"
	NotificationCleanup  = "notifications.cleanup"
	PendingNotifications = "notifications.resend_pending"
)

// NotificationRetention is how long read notifications are kept.
const NotificationRetention = 90 * 24 * time.Hour

// Pending notifications older than PendingGrace are assumed to have lost their delivery job.
const (
	PendingGrace     = 10 * time.Minute
	pendingBatchSize = 200
)

// PaymentStore is what the reminder sweep needs from payments.
type PaymentStore interface {
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	DueForReminder(ctx context.Context, today time.Time, days int) ([]payments.Upcoming, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}

// PolicyStore is what the expiry sweep needs from insurance.
type PolicyStore interface {
	MarkExpired(ctx context.Context, today time.Time) (int64, error)
	ExpiringWithin(ctx context.Context, today time.Time, days int) ([]insurance.Expiring, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}

// SettingsStore supplies the tenant's reminder windows and currency.
type SettingsStore interface {
	Get(ctx context.Context) (models.SystemSettings, error)
}

// RoleDirectory lists the staff to notify.
type RoleDirectory interface {
	ListByRoles(ctx context.Context, roles ...models.Role) ([]models.User, error)
}

// Notifier creates notifications in the current scope.
type Notifier interface {
	Notify(ctx context.Context, recipients []uuid.UUID, msg notifications.Message) ([]models.Notification, error)
}

// CleanupStore deletes old notifications.
type CleanupStore interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingStore lists notifications whose delivery never started.
type PendingStore interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Notification, error)
}

// Enqueuer accepts jobs for the background runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// Sweeps implements the periodic per-tenant jobs. Each runs inside the job's tenant scope.
type Sweeps struct {
	payments PaymentStore
	policies PolicyStore
	settings SettingsStore
	staff    RoleDirectory
	notifier Notifier
	cleanup  CleanupStore
	pending  PendingStore
	jobs     Enqueuer
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// SweepDeps groups the stores the sweeps use.
type SweepDeps struct {
	Payments PaymentStore
	Policies PolicyStore
	Settings SettingsStore
	Staff    RoleDirectory
	Notifier Notifier
	Cleanup  CleanupStore
	Pending  PendingStore
	Jobs     Enqueuer
}

// NewSweeps creates the sweep handlers. Dates are evaluated in loc.
func NewSweeps(deps SweepDeps, loc *time.Location, logger *zap.Logger) *Sweeps {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeps{
		payments: deps.Payments,
		policies: deps.Policies,
		settings: deps.Settings,
		staff:    deps.Staff,
		notifier: deps.Notifier,
		cleanup:  deps.Cleanup,
		pending:  deps.Pending,
		jobs:     deps.Jobs,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Sweeps) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Sweeps) recipients(ctx context.Context, roles ...models.Role) ([]uuid.UUID, error) {
	users, err := s.staff.ListByRoles(ctx, roles...)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// PaymentReminders marks overdue installments and notifies admins and accountants about
// installments falling due within payment_reminder_days.
func (s *Sweeps) PaymentReminders(ctx context.Context, job *queue.Job) error {
	today := s.today()
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	overdue, err := s.payments.MarkOverdue(ctx, today)
	if err != nil {
		return fmt.Errorf("mark overdue: %w", err)
	}
	due, err := s.payments.DueForReminder(ctx, today, cfg.PaymentReminderDays)
	if err != nil {
		return fmt.Errorf("due payments: %w", err)
	}
	if len(due) > 0 {
		to, err := s.recipients(ctx, models.RoleAdmin, models.RoleAccountant)
		if err != nil {
			return err
		}
		for _, p := range due {
			msg := notifications.Message{
				Title:    "Payment due " + p.DueDate.Format("2 Jan 2006"),
				Body:     fmt.Sprintf("**%s** owes %s %s, due on %s.", p.CustomerName, cfg.CurrencySymbol, money(p.AmountCents), p.DueDate.Format("2 Jan 2006")),
				Kind:     "warning",
				Priority: notifications.PriorityMedium,
				Channels: []string{models.ChannelInApp, models.ChannelEmail},
			}
			if len(to) > 0 {
				if _, err := s.notifier.Notify(ctx, to, msg); err != nil {
					return err
				}
			}
			if err := s.payments.MarkReminded(ctx, p.ID); err != nil {
				return err
			}
		}
	}
	s.logger.Info("payment reminder sweep",
		zap.String("tenant", tenancy.SchemaFrom(ctx)),
		zap.Int64("marked_overdue", overdue),
		zap.Int("reminders", len(due)),
	)
	return nil
}

// InsuranceExpiry marks lapsed policies and warns admins and managers about policies
// expiring within insurance_expiry_days.
func (s *Sweeps) InsuranceExpiry(ctx context.Context, job *queue.Job) error {
	today := s.today()
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	expired, err := s.policies.MarkExpired(ctx, today)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	expiring, err := s.policies.ExpiringWithin(ctx, today, cfg.InsuranceExpiryDays)
	if err != nil {
		return fmt.Errorf("expiring policies: %w", err)
	}
	if len(expiring) > 0 {
		to, err := s.recipients(ctx, models.RoleAdmin, models.RoleManager)
		if err != nil {
			return err
		}
		for _, p := range expiring {
			days := int(p.ExpiryDate.Sub(today).Hours() / 24)
			priority := notifications.PriorityMedium
			if days <= 7 {
				priority = notifications.PriorityHigh
			}
			msg := notifications.Message{
				Title:    "Insurance expiring: " + p.Vehicle,
				Body:     fmt.Sprintf("Policy %s with %s expires on %s (%d days).", p.PolicyNumber, p.Provider, p.ExpiryDate.Format("2 Jan 2006"), days),
				Kind:     "warning",
				Priority: priority,
				Channels: []string{models.ChannelInApp, models.ChannelEmail},
			}
			if len(to) > 0 {
				if _, err := s.notifier.Notify(ctx, to, msg); err != nil {
					return err
				}
			}
			if err := s.policies.MarkReminded(ctx, p.ID); err != nil {
				return err
			}
		}
	}
	s.logger.Info("insurance expiry sweep",
		zap.String("tenant", tenancy.SchemaFrom(ctx)),
		zap.Int64("marked_expired", expired),
		zap.Int("reminders", len(expiring)),
	)
	return nil
}

// CleanupNotifications deletes read notifications older than NotificationRetention.
func (s *Sweeps) CleanupNotifications(ctx context.Context, job *queue.Job) error {
	n, err := s.cleanup.DeleteReadBefore(ctx, s.now().Add(-NotificationRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("deleted old notifications", zap.String("tenant", tenancy.SchemaFrom(ctx)), zap.Int64("count", n))
	}
	return nil
}

// ResendPending enqueues delivery again for notifications that stayed pending past PendingGrace
// without any attempt, which happens when the enqueue after commit failed.
func (s *Sweeps) ResendPending(ctx context.Context, job *queue.Job) error {
	stale, err := s.pending.StalePending(ctx, s.now().Add(-PendingGrace), pendingBatchSize)
	if err != nil {
		return fmt.Errorf("stale notifications: %w", err)
	}
	schema := tenancy.SchemaFrom(ctx)
	for i := range stale {
		dj, err := notifications.DeliveryJob(schema, &stale[i])
		if err != nil {
			return err
		}
		if err := s.jobs.Enqueue(ctx, dj); err != nil {
			return fmt.Errorf("enqueue delivery: %w", err)
		}
	}
	if len(stale) > 0 {
		s.logger.Warn("re-enqueued stale notifications", zap.String("tenant", schema), zap.Int("count", len(stale)))
	}
	return nil
}

func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	for i := len(whole) - 3; i > 0; i -= 3 {
		whole = whole[:i] + "," + whole[i:]
	}
	return fmt.Sprintf("%s%s.%02d", sign, whole, cents%100)
}
