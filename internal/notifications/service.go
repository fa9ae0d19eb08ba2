package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/queue"
)

// DeliverJobType is the job that pushes one notification through its channels.
const DeliverJobType = "notification.deliver"

// Priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DeliverPayload is the payload of a DeliverJobType job.
type DeliverPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// Enqueuer accepts jobs for the background runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// Store is the subset of the repository the service writes through.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// DeliveryJob builds the delivery job for n. High priority notifications go to the critical queue.
func DeliveryJob(schema string, n *models.Notification) (*queue.Job, error) {
	job, err := queue.NewJob(DeliverJobType, schema, DeliverPayload{NotificationID: n.ID})
	if err != nil {
		return nil, err
	}
	if n.Priority == PriorityHigh {
		job.Queue = queue.QueueCritical
	}
	return job, nil
}

// Message describes a notification to fan out to recipients.
type Message struct {
	Title    string
	Body     string
	Kind     string
	Priority string
	Channels []string
}

// Service creates notifications and schedules their delivery.
type Service struct {
	store  Store
	jobs   Enqueuer
	logger *zap.Logger
}

// NewService creates a notification service.
func NewService(store Store, jobs Enqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, jobs: jobs, logger: logger}
}

// Notify stores one notification per recipient in the current tenant scope and enqueues
// delivery once the scope commits, so workers never see rows that were rolled back.
func (s *Service) Notify(ctx context.Context, recipients []uuid.UUID, msg Message) ([]models.Notification, error) {
	schema := tenancy.SchemaFrom(ctx)
	if schema == "" {
		return nil, tenancy.ErrNoTenantScope
	}
	if msg.Kind == "" {
		msg.Kind = "info"
	}
	if msg.Priority == "" {
		msg.Priority = PriorityMedium
	}
	if len(msg.Channels) == 0 {
		msg.Channels = []string{models.ChannelInApp}
	}

	created := make([]models.Notification, 0, len(recipients))
	jobs := make([]*queue.Job, 0, len(recipients))
	for _, uid := range recipients {
		n := models.Notification{
			UserID:   uid,
			Title:    msg.Title,
			Message:  msg.Body,
			Kind:     msg.Kind,
			Priority: msg.Priority,
			Channels: msg.Channels,
		}
		if err := s.store.Create(ctx, &n); err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		job, err := DeliveryJob(schema, &n)
		if err != nil {
			return nil, err
		}
		created = append(created, n)
		jobs = append(jobs, job)
	}

	tenancy.AfterCommit(ctx, func() {
		// The request context may already be done by the time the scope commits.
		ctx := context.WithoutCancel(ctx)
		for _, job := range jobs {
			if err := s.jobs.Enqueue(ctx, job); err != nil {
				s.logger.Error("enqueue notification delivery", zap.Error(err),
					zap.String("tenant", schema), zap.String("job_id", job.ID))
			}
		}
	})
	return created, nil
}
