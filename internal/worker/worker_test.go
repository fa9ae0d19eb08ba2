package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/queue"
)

type memFailures struct {
	mu   sync.Mutex
	seen map[string]string
}

func (m *memFailures) RecordFailure(_ context.Context, job *queue.Job, cause error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]string{}
	}
	if _, dup := m.seen[job.ID]; dup {
		return false, nil
	}
	m.seen[job.ID] = cause.Error()
	return true, nil
}

func (m *memFailures) get(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.seen[id]
	return v, ok
}

type harness struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	queue    *queue.Queue
	registry *Registry
	failures *memFailures
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &harness{
		mr:       mr,
		client:   client,
		queue:    queue.NewQueue(client, nil),
		registry: NewRegistry(),
		failures: &memFailures{},
	}
}

func (h *harness) close() {
	_ = h.client.Close()
	h.mr.Close()
}

// start runs a runner until the returned stop function is called.
func (h *harness) start(t *testing.T, opts Options, logger *zap.Logger) (stop func()) {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "test"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	r := NewRunner(h.queue, h.registry, h.failures, opts, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("runner did not stop")
		}
	}
}

func enqueue(t *testing.T, q *queue.Queue, jobType string, maxRetries int) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(jobType, "acme", nil)
	require.NoError(t, err)
	job.MaxRetries = maxRetries
	require.NoError(t, q.Enqueue(context.Background(), job))
	return job
}

func TestTransientFailureRetriedThenRecordedOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t)
	defer h.close()

	var calls atomic.Int32
	h.registry.Register("flaky", func(context.Context, *queue.Job) error {
		calls.Add(1)
		return errors.New("smtp unavailable")
	})
	job := enqueue(t, h.queue, "flaky", 2)

	core, logs := observer.New(zapcore.ErrorLevel)
	stop := h.start(t, Options{Concurrency: 2}, zap.New(core))
	require.Eventually(t, func() bool {
		_, ok := h.failures.get(job.ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.EqualValues(t, 3, calls.Load(), "first attempt plus two retries")
	cause, _ := h.failures.get(job.ID)
	assert.Equal(t, "smtp unavailable", cause)
	assert.Equal(t, 1, logs.FilterMessage("job failed permanently").Len())

	dead, err := h.queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempt)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	var calls atomic.Int32
	h.registry.Register("bad", func(context.Context, *queue.Job) error {
		calls.Add(1)
		return Permanent(errors.New("malformed payload"))
	})
	gone := enqueue(t, h.queue, "gone-tenant", 3)
	h.registry.Register("gone-tenant", func(context.Context, *queue.Job) error {
		return tenancy.ErrTenantNotFound
	})
	job := enqueue(t, h.queue, "bad", 3)

	stop := h.start(t, Options{}, nil)
	require.Eventually(t, func() bool {
		_, a := h.failures.get(job.ID)
		_, b := h.failures.get(gone.ID)
		return a && b
	}, 5*time.Second, 10*time.Millisecond)
	stop()
	assert.EqualValues(t, 1, calls.Load())
}

func TestUnknownJobTypeIsBuried(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	job := enqueue(t, h.queue, "nobody.handles.this", 3)
	stop := h.start(t, Options{}, nil)
	require.Eventually(t, func() bool {
		_, ok := h.failures.get(job.ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	stop()
}

func TestJobTimeoutIsEnforced(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	h.registry.Register("slow", func(ctx context.Context, _ *queue.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	job := enqueue(t, h.queue, "slow", 0)

	stop := h.start(t, Options{JobTimeout: 20 * time.Millisecond}, nil)
	require.Eventually(t, func() bool {
		_, ok := h.failures.get(job.ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	cause, _ := h.failures.get(job.ID)
	assert.Contains(t, cause, "timed out")
}

func TestPanicIsRecoveredAndRetried(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	var calls atomic.Int32
	done := make(chan struct{})
	h.registry.Register("panicky", func(context.Context, *queue.Job) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		close(done)
		return nil
	})
	enqueue(t, h.queue, "panicky", 1)

	stop := h.start(t, Options{}, nil)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job not retried after panic")
	}
	stop()
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunnerRecoversJobsOfDeadConsumer(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	ctx := context.Background()

	ran := make(chan string, 1)
	h.registry.Register("orphan", func(_ context.Context, job *queue.Job) error {
		ran <- job.ID
		return nil
	})
	job := enqueue(t, h.queue, "orphan", 3)

	// A previous worker reserved the job and died before acking it.
	require.NoError(t, h.queue.Heartbeat(ctx, "crashed-0", time.Second))
	_, err := h.queue.Reserve(ctx, "crashed-0", queue.PriorityOrder)
	require.NoError(t, err)
	h.mr.FastForward(2 * time.Second)

	stop := h.start(t, Options{}, nil)
	select {
	case id := <-ran:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("orphaned job not recovered")
	}
	stop()
}

func TestDuplicateTerminalFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRunner(nil, NewRegistry(), &memFailures{}, Options{Name: "t"}, zap.New(core))
	job := &queue.Job{ID: "job-1", Type: "x"}

	r.terminal(context.Background(), job, errors.New("boom"), r.logger)
	r.terminal(context.Background(), job, errors.New("boom"), r.logger)

	assert.Equal(t, 1, logs.FilterMessage("job failed permanently").Len())
	assert.Equal(t, 1, logs.FilterMessage("duplicate terminal failure ignored").Len())
}

type fakeExec struct {
	tags []string
	sql  []string
}

func (f *fakeExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	tag := f.tags[0]
	f.tags = f.tags[1:]
	return pgconn.NewCommandTag(tag), nil
}

func TestPGFailuresReportsDuplicates(t *testing.T) {
	db := &fakeExec{tags: []string{"INSERT 0 1", "INSERT 0 0"}}
	rec := NewPGFailures(db)
	job := &queue.Job{ID: "job-1", Type: "x", Queue: queue.QueueDefault}

	first, err := rec.RecordFailure(context.Background(), job, errors.New("boom"))
	require.NoError(t, err)
	second, err := rec.RecordFailure(context.Background(), job, errors.New("boom"))
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Contains(t, db.sql[0], "ON CONFLICT (job_id) DO NOTHING")
}

type recordingScoper struct{ schemas []string }

func (s *recordingScoper) Run(ctx context.Context, schema string, fn func(ctx context.Context) error) error {
	s.schemas = append(s.schemas, schema)
	return fn(ctx)
}

func TestScopedRunsInJobTenant(t *testing.T) {
	sc := &recordingScoper{}
	h := Scoped(sc, func(context.Context, *queue.Job) error { return nil })

	require.NoError(t, h(context.Background(), &queue.Job{ID: "1", Tenant: "acme"}))
	assert.Equal(t, []string{"acme"}, sc.schemas)

	err := h(context.Background(), &queue.Job{ID: "2"})
	assert.True(t, IsPermanent(err))
}

func TestHeartbeatOutlivesInFlightJobOnShutdown(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	h.registry.Register("long", func(context.Context, *queue.Job) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	})
	enqueue(t, h.queue, "long", 3)

	ttl := 150 * time.Millisecond
	r := NewRunner(h.queue, h.registry, h.failures, Options{
		Name:         "draining",
		PollInterval: 5 * time.Millisecond,
		HeartbeatTTL: ttl,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job not started")
	}
	cancel()
	h.mr.FastForward(2 * ttl)
	time.Sleep(3 * ttl)

	other := queue.NewQueue(h.client, nil)
	recovered, err := other.RecoverOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, recovered, "a job still executing stays with its consumer")
	n, err := other.Len(context.Background(), queue.QueueDefault)
	require.NoError(t, err)
	assert.Zero(t, n)

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.EqualValues(t, 1, calls.Load())
}

// failingOnce rejects the first recording and checks the job is still undelivered to the
// dead-letter list whenever a recording is attempted.
type failingOnce struct {
	memFailures
	q        *queue.Queue
	attempts atomic.Int32
	deadSeen atomic.Int32
}

func (f *failingOnce) RecordFailure(ctx context.Context, job *queue.Job, cause error) (bool, error) {
	if dead, _ := f.q.DeadLetters(ctx, 10); len(dead) > 0 {
		f.deadSeen.Add(1)
	}
	if f.attempts.Add(1) == 1 {
		return false, errors.New("connection reset")
	}
	return f.memFailures.RecordFailure(ctx, job, cause)
}

func TestFailureRecordedBeforeBuryAndRetriedWhenRecordingFails(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	rec := &failingOnce{q: h.queue}
	var calls atomic.Int32
	h.registry.Register("doomed", func(context.Context, *queue.Job) error {
		calls.Add(1)
		return Permanent(errors.New("invalid recipient"))
	})
	job := enqueue(t, h.queue, "doomed", 3)

	r := NewRunner(h.queue, h.registry, rec, Options{
		Name:         "rec",
		PollInterval: 5 * time.Millisecond,
		RetryBackoff: time.Millisecond,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		dead, err := h.queue.DeadLetters(context.Background(), 10)
		return err == nil && len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	cause, ok := rec.get(job.ID)
	require.True(t, ok)
	assert.Equal(t, "invalid recipient", cause)
	assert.EqualValues(t, 2, rec.attempts.Load())
	assert.EqualValues(t, 2, calls.Load(), "job delivered again after the recording error")
	assert.Zero(t, rec.deadSeen.Load(), "job reached the dead-letter list before its failure was recorded")
}
