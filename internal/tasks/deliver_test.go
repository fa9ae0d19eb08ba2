package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/worker"
	"github.com/motorsales/vsms/pkg/queue"
)

type passScoper struct{ runs int }

func (p *passScoper) Run(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	p.runs++
	return fn(ctx)
}

type memNotifications struct {
	mu     sync.Mutex
	n      *models.Notification
	failed string
	final  bool
}

func (m *memNotifications) GetByID(_ context.Context, id uuid.UUID) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == nil || m.n.ID != id {
		return nil, notifications.ErrNotFound
	}
	cp := *m.n
	cp.DeliveredChannels = append([]string(nil), m.n.DeliveredChannels...)
	return &cp, nil
}

func (m *memNotifications) RecordDelivery(_ context.Context, _ uuid.UUID, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.n.Delivered(channel) {
		m.n.DeliveredChannels = append(m.n.DeliveredChannels, channel)
	}
	return nil
}

func (m *memNotifications) MarkFailed(_ context.Context, _ uuid.UUID, cause string, final bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed, m.final = cause, final
	return nil
}

type oneUser struct{ u models.User }

func (o oneUser) GetByID(context.Context, uuid.UUID) (*models.User, error) { return &o.u, nil }

type countingPush struct{ calls int }

func (c *countingPush) PublishToUser(context.Context, string, uuid.UUID, string, any) (int64, error) {
	c.calls++
	return 1, nil
}

type scriptedMailer struct {
	errs  []error
	calls int
}

func (s *scriptedMailer) Send(context.Context, string, string, string) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type scriptedSMS struct{ err error }

func (s scriptedSMS) Send(context.Context, string, string) error { return s.err }

func deliverJob(t *testing.T, id uuid.UUID, attempt int) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(notifications.DeliverJobType, "acme", notifications.DeliverPayload{NotificationID: id})
	require.NoError(t, err)
	job.MaxRetries = 3
	job.Attempt = attempt
	return job
}

func TestRetryAfterPartialFailureDoesNotResendDeliveredChannels(t *testing.T) {
	n := &models.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "Due", Message: "Pay",
		Channels: []string{models.ChannelInApp, models.ChannelEmail}}
	store := &memNotifications{n: n}
	push := &countingPush{}
	mail := &scriptedMailer{errs: []error{errors.New("421 try later")}}
	d := NewDeliverer(&passScoper{}, store, oneUser{models.User{Email: "a@acme.test"}}, push, mail, scriptedSMS{}, nil)

	err := d.Handle(context.Background(), deliverJob(t, n.ID, 0))
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
	assert.Equal(t, []string{models.ChannelInApp}, store.n.DeliveredChannels)
	assert.Contains(t, store.failed, "421 try later")
	assert.False(t, store.final)

	require.NoError(t, d.Handle(context.Background(), deliverJob(t, n.ID, 1)))
	assert.Equal(t, 1, push.calls, "in-app not pushed twice")
	assert.Equal(t, 2, mail.calls)
	assert.ElementsMatch(t, n.Channels, store.n.DeliveredChannels)

	require.NoError(t, d.Handle(context.Background(), deliverJob(t, n.ID, 2)))
	assert.Equal(t, 1, push.calls)
	assert.Equal(t, 2, mail.calls, "fully delivered notification is a no-op")
}

func TestPermanentChannelFailureBuriesJob(t *testing.T) {
	n := &models.Notification{ID: uuid.New(), UserID: uuid.New(), Channels: []string{models.ChannelSMS}}
	store := &memNotifications{n: n}
	sms := scriptedSMS{err: &GatewayError{Status: 400, Body: "bad number", Permanent: true}}
	d := NewDeliverer(&passScoper{}, store, oneUser{models.User{Phone: "+254700000000"}}, &countingPush{}, &scriptedMailer{}, sms, nil)

	err := d.Handle(context.Background(), deliverJob(t, n.ID, 0))
	assert.True(t, worker.IsPermanent(err))
	assert.True(t, store.final)
}

func TestLastAttemptMarksNotificationFailed(t *testing.T) {
	n := &models.Notification{ID: uuid.New(), UserID: uuid.New(), Channels: []string{models.ChannelEmail}}
	store := &memNotifications{n: n}
	mail := &scriptedMailer{errs: []error{errors.New("timeout")}}
	d := NewDeliverer(&passScoper{}, store, oneUser{models.User{Email: "a@acme.test"}}, &countingPush{}, mail, scriptedSMS{}, nil)

	err := d.Handle(context.Background(), deliverJob(t, n.ID, 3))
	require.Error(t, err)
	assert.True(t, store.final)
}

func TestDeletedNotificationIsNoop(t *testing.T) {
	d := NewDeliverer(&passScoper{}, &memNotifications{}, oneUser{}, &countingPush{}, &scriptedMailer{}, scriptedSMS{}, nil)
	assert.NoError(t, d.Handle(context.Background(), deliverJob(t, uuid.New(), 0)))
}

func TestMalformedPayloadIsPermanent(t *testing.T) {
	d := NewDeliverer(&passScoper{}, &memNotifications{}, oneUser{}, &countingPush{}, &scriptedMailer{}, scriptedSMS{}, nil)
	job, err := queue.NewJob(notifications.DeliverJobType, "acme", map[string]int{"notification_id": 7})
	require.NoError(t, err)
	assert.True(t, worker.IsPermanent(d.Handle(context.Background(), job)))
}
