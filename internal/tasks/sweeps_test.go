package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorsales/vsms/internal/insurance"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/payments"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
	"github.com/motorsales/vsms/pkg/queue"
)

type fakePayments struct {
	today    time.Time
	days     int
	due      []payments.Upcoming
	reminded []uuid.UUID
}

func (f *fakePayments) MarkOverdue(_ context.Context, today time.Time) (int64, error) {
	f.today = today
	return 2, nil
}

func (f *fakePayments) DueForReminder(_ context.Context, _ time.Time, days int) ([]payments.Upcoming, error) {
	f.days = days
	return f.due, nil
}

func (f *fakePayments) MarkReminded(_ context.Context, id uuid.UUID) error {
	f.reminded = append(f.reminded, id)
	return nil
}

type fakePolicies struct {
	expiring []insurance.Expiring
	reminded []uuid.UUID
}

func (f *fakePolicies) MarkExpired(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakePolicies) ExpiringWithin(context.Context, time.Time, int) ([]insurance.Expiring, error) {
	return f.expiring, nil
}
func (f *fakePolicies) MarkReminded(_ context.Context, id uuid.UUID) error {
	f.reminded = append(f.reminded, id)
	return nil
}

type fixedSettings struct{}

func (fixedSettings) Get(context.Context) (models.SystemSettings, error) {
	return models.DefaultSettings(), nil
}

type staffList struct {
	users []models.User
	roles []models.Role
}

func (s *staffList) ListByRoles(_ context.Context, roles ...models.Role) ([]models.User, error) {
	s.roles = roles
	return s.users, nil
}

type capturingNotifier struct{ msgs []notifications.Message }

func (c *capturingNotifier) Notify(_ context.Context, to []uuid.UUID, msg notifications.Message) ([]models.Notification, error) {
	c.msgs = append(c.msgs, msg)
	return make([]models.Notification, len(to)), nil
}

func TestPaymentReminderSweep(t *testing.T) {
	due := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	pay := &fakePayments{due: []payments.Upcoming{{
		Payment:      models.Payment{ID: uuid.New(), AmountCents: 1_250_000_00, DueDate: due},
		CustomerName: "Jane Wanjiku",
	}}}
	staff := &staffList{users: []models.User{{ID: uuid.New()}}}
	notifier := &capturingNotifier{}
	nairobi := time.FixedZone("EAT", 3*3600)

	s := NewSweeps(SweepDeps{Payments: pay, Settings: fixedSettings{}, Staff: staff, Notifier: notifier}, nairobi, nil)
	// 22:30 UTC on 28 Feb is already 1 March in Nairobi.
	s.now = func() time.Time { return time.Date(2026, 2, 28, 22, 30, 0, 0, time.UTC) }

	require.NoError(t, s.PaymentReminders(context.Background(), nil))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), pay.today)
	assert.Equal(t, 3, pay.days)
	assert.ElementsMatch(t, []models.Role{models.RoleAdmin, models.RoleAccountant}, staff.roles)
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Body, "Jane Wanjiku")
	assert.Contains(t, notifier.msgs[0].Body, "KSH 1,250,000.00")
	assert.Equal(t, []uuid.UUID{pay.due[0].ID}, pay.reminded)
}

func TestInsuranceExpirySweepEscalatesLastWeek(t *testing.T) {
	today := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pol := &fakePolicies{expiring: []insurance.Expiring{
		{InsurancePolicy: models.InsurancePolicy{ID: uuid.New(), PolicyNumber: "P-1", ExpiryDate: today.AddDate(0, 0, 5)}, Vehicle: "2016 Toyota Axio (S-001)"},
		{InsurancePolicy: models.InsurancePolicy{ID: uuid.New(), PolicyNumber: "P-2", ExpiryDate: today.AddDate(0, 0, 20)}, Vehicle: "2015 Mazda Demio (S-002)"},
	}}
	notifier := &capturingNotifier{}
	s := NewSweeps(SweepDeps{Policies: pol, Settings: fixedSettings{}, Staff: &staffList{users: []models.User{{ID: uuid.New()}}}, Notifier: notifier}, time.UTC, nil)
	s.now = func() time.Time { return today.Add(9 * time.Hour) }

	require.NoError(t, s.InsuranceExpiry(context.Background(), nil))
	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, notifications.PriorityHigh, notifier.msgs[0].Priority)
	assert.Equal(t, notifications.PriorityMedium, notifier.msgs[1].Priority)
	assert.Len(t, pol.reminded, 2)
}

func TestSweepWithoutStaffStillMarksReminded(t *testing.T) {
	pay := &fakePayments{due: []payments.Upcoming{{Payment: models.Payment{ID: uuid.New()}}}}
	notifier := &capturingNotifier{}
	s := NewSweeps(SweepDeps{Payments: pay, Settings: fixedSettings{}, Staff: &staffList{}, Notifier: notifier}, time.UTC, nil)

	require.NoError(t, s.PaymentReminders(context.Background(), nil))
	assert.Empty(t, notifier.msgs)
	assert.Len(t, pay.reminded, 1)
}

type fakeCleanup struct{ cutoff time.Time }

func (f *fakeCleanup) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 4, nil
}

func TestCleanupUsesRetention(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &fakeCleanup{}
	s := NewSweeps(SweepDeps{Cleanup: c}, time.UTC, nil)
	s.now = func() time.Time { return now }

	require.NoError(t, s.CleanupNotifications(context.Background(), nil))
	assert.Equal(t, now.Add(-90*24*time.Hour), c.cutoff)
}

type stalePending struct {
	cutoff time.Time
	stale  []models.Notification
}

func (f *stalePending) StalePending(_ context.Context, cutoff time.Time, _ int) ([]models.Notification, error) {
	f.cutoff = cutoff
	return f.stale, nil
}

type jobSink struct{ jobs []*queue.Job }

func (j *jobSink) Enqueue(_ context.Context, job *queue.Job) error {
	j.jobs = append(j.jobs, job)
	return nil
}

func TestResendPendingReenqueuesStaleNotifications(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &stalePending{stale: []models.Notification{
		{ID: uuid.New(), Priority: notifications.PriorityMedium},
		{ID: uuid.New(), Priority: notifications.PriorityHigh},
	}}
	sink := &jobSink{}
	s := NewSweeps(SweepDeps{Pending: store, Jobs: sink}, time.UTC, nil)
	s.now = func() time.Time { return now }

	router := tenancy.NewRouter(&tenancytest.Beginner{}, nil)
	require.NoError(t, router.ScopeSchema(context.Background(), "acme", func(ctx context.Context) error {
		return s.ResendPending(ctx, nil)
	}))

	assert.Equal(t, now.Add(-PendingGrace), store.cutoff)
	require.Len(t, sink.jobs, 2)
	for i, job := range sink.jobs {
		assert.Equal(t, notifications.DeliverJobType, job.Type)
		assert.Equal(t, "acme", job.Tenant)
		var p notifications.DeliverPayload
		require.NoError(t, job.Decode(&p))
		assert.Equal(t, store.stale[i].ID, p.NotificationID)
	}
	assert.Equal(t, queue.QueueCritical, sink.jobs[1].Queue)
}
