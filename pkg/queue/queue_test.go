package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func mustJob(t *testing.T, jobType, queueName string) *Job {
	t.Helper()
	job, err := NewJob(jobType, "acme", map[string]string{"k": "v"})
	require.NoError(t, err)
	job.Queue = queueName
	return job
}

func TestReservePollsInPriorityOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, mustJob(t, "low.job", QueueLow)))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "default.job", QueueDefault)))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "critical.job", QueueCritical)))

	var got []string
	for i := 0; i < 3; i++ {
		r, err := q.Reserve(ctx, "c1", PriorityOrder)
		require.NoError(t, err)
		got = append(got, r.Job.Type)
		require.NoError(t, q.Ack(ctx, "c1", r))
	}
	assert.Equal(t, []string{"critical.job", "default.job", "low.job"}, got)

	_, err := q.Reserve(ctx, "c1", PriorityOrder)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestReserveKeepsJobInProcessingUntilAck(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, mustJob(t, "a", QueueDefault)))
	r, err := q.Reserve(ctx, "c1", PriorityOrder)
	require.NoError(t, err)

	items, err := mr.List(processingKey("c1"))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, q.Ack(ctx, "c1", r))
	assert.False(t, mr.Exists(processingKey("c1")))
}

func TestRetryUntilBuried(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := mustJob(t, "flaky", QueueDefault)
	job.MaxRetries = 2
	require.NoError(t, q.Enqueue(ctx, job))

	attempts := 0
	for {
		_, err := q.PromoteDue(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		r, err := q.Reserve(ctx, "c1", PriorityOrder)
		if errors.Is(err, ErrEmpty) {
			break
		}
		require.NoError(t, err)
		attempts++
		buried, err := q.Retry(ctx, "c1", r, errors.New("boom"), time.Millisecond)
		require.NoError(t, err)
		if buried {
			assert.Equal(t, 3, r.Job.Attempt)
			break
		}
	}

	assert.Equal(t, 3, attempts, "first attempt plus two retries")
	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, "boom", dead[0].LastError)

	delayed, err := q.Delayed(ctx)
	require.NoError(t, err)
	assert.Zero(t, delayed)
}

func TestPromoteDueOnlyMovesReadyJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueIn(ctx, mustJob(t, "soon", QueueLow), time.Minute))
	require.NoError(t, q.EnqueueIn(ctx, mustJob(t, "later", QueueLow), time.Hour))

	moved, err := q.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	n, err := q.Len(ctx, QueueLow)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRecoverOrphansRequeuesDeadConsumerJobs(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Heartbeat(ctx, "dead", time.Second))
	require.NoError(t, q.Heartbeat(ctx, "alive", time.Hour))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "one", QueueDefault)))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "two", QueueDefault)))

	_, err := q.Reserve(ctx, "dead", PriorityOrder)
	require.NoError(t, err)
	_, err = q.Reserve(ctx, "alive", PriorityOrder)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	recovered, err := q.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	n, err := q.Len(ctx, QueueDefault)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	items, err := mr.List(processingKey("alive"))
	require.NoError(t, err)
	assert.Len(t, items, 1, "live consumer keeps its in-flight job")
}

func TestReserveBuriesMalformedEntries(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.RPush(queueKey(QueueDefault), "{not json")
	require.NoError(t, err)

	_, err = q.Reserve(ctx, "c1", PriorityOrder)
	assert.True(t, errors.Is(err, ErrEmpty))

	items, err := mr.List(deadKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, items)
}

func TestEnqueueAppliesConfiguredRetryBound(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	q.SetMaxRetries(5)

	inherit := mustJob(t, "inherit", QueueDefault)
	explicit := mustJob(t, "explicit", QueueDefault)
	explicit.MaxRetries = 0
	require.NoError(t, q.Enqueue(ctx, inherit))
	require.NoError(t, q.Enqueue(ctx, explicit))

	r, err := q.Reserve(ctx, "c1", PriorityOrder)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Job.MaxRetries)
	r, err = q.Reserve(ctx, "c1", PriorityOrder)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Job.MaxRetries)
}

func TestReleaseRequeuesWithoutCountingAnAttempt(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, mustJob(t, "a", QueueCritical)))
	r, err := q.Reserve(ctx, "c1", PriorityOrder)
	require.NoError(t, err)

	require.NoError(t, q.Release(ctx, "c1", r, time.Minute))
	assert.False(t, mr.Exists(processingKey("c1")))

	moved, err := q.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := q.Reserve(ctx, "c1", PriorityOrder)
	require.NoError(t, err)
	assert.Equal(t, r.Job.ID, again.Job.ID)
	assert.Zero(t, again.Job.Attempt)
	assert.Equal(t, QueueCritical, again.Job.Queue)
}

func TestPromoteDueSkipsMembersAlreadyTaken(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueIn(ctx, mustJob(t, "x", QueueCritical), time.Second))
	members, err := mr.ZMembers(delayedKey)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// A concurrent promoter moved it first.
	n, err := promoteScript.Run(ctx, q.client, []string{delayedKey, queueKey(QueueCritical)}, members[0]).Int()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = promoteScript.Run(ctx, q.client, []string{delayedKey, queueKey(QueueCritical)}, members[0]).Int()
	require.NoError(t, err)
	assert.Zero(t, n)

	l, err := q.Len(ctx, QueueCritical)
	require.NoError(t, err)
	assert.EqualValues(t, 1, l)
}

func TestRecoverOrphansKeepsTargetQueue(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Heartbeat(ctx, "gone", time.Second))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "urgent", QueueCritical)))
	require.NoError(t, q.Enqueue(ctx, mustJob(t, "sweep", QueueLow)))
	for i := 0; i < 2; i++ {
		_, err := q.Reserve(ctx, "gone", PriorityOrder)
		require.NoError(t, err)
	}
	mr.FastForward(2 * time.Second)

	recovered, err := q.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.False(t, mr.Exists(processingKey("gone")))

	for _, name := range []string{QueueCritical, QueueLow} {
		n, err := q.Len(ctx, name)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, name)
	}
}
