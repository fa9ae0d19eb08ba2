package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueCritical holds jobs that should jump ahead of routine work (user-facing notifications).
	QueueCritical = "critical"
	// QueueDefault is the queue used when a job does not name one.
	QueueDefault = "default"
	// QueueLow holds sweeps and housekeeping.
	QueueLow = "low"
	// DefaultMaxRetries is the number of retries after the first attempt before a job is buried.
	DefaultMaxRetries = 3
	// InheritRetries on a job means "use the queue's configured bound".
	InheritRetries = -1

	keyPrefix = "vsms:queue:"
)

// PriorityOrder is the order consumers poll queues in.
var PriorityOrder = []string{QueueCritical, QueueDefault, QueueLow}

// ErrEmpty is returned by Reserve when no queue has a ready job.
var ErrEmpty = errors.New("queue: no job available")

// Job is the envelope stored in Redis.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Tenant     string          `json:"tenant,omitempty"` // tenant schema; empty for platform-level jobs
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempt    int             `json:"attempt"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewJob builds a job for the default queue. It inherits the queue's retry bound unless MaxRetries is set.
func NewJob(jobType, tenant string, payload any) (*Job, error) {
	var body json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = raw
	}
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Tenant:     tenant,
		Queue:      QueueDefault,
		Payload:    body,
		MaxRetries: InheritRetries,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(j.Payload, v)
}

// Reservation is a job taken from a queue into a consumer's processing list.
// Raw is the exact stored form, needed to remove it again.
type Reservation struct {
	Job *Job
	Raw string
}

// Queue enqueues and dequeues jobs via Redis lists.
//
// Layout: one list per queue, a sorted set of delayed jobs scored by their ready time,
// a processing list and heartbeat key per consumer, and a dead-letter list.
type Queue struct {
	client     *redis.Client
	logger     *zap.Logger
	maxRetries int
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, maxRetries: DefaultMaxRetries}
}

// SetMaxRetries sets the retry bound for jobs that inherit it.
func (q *Queue) SetMaxRetries(n int) {
	if n >= 0 {
		q.maxRetries = n
	}
}

func (q *Queue) prepare(job *Job) {
	if job.Queue == "" {
		job.Queue = QueueDefault
	}
	if job.MaxRetries < 0 {
		job.MaxRetries = q.maxRetries
	}
}

func queueKey(name string) string          { return keyPrefix + name }
func processingKey(consumer string) string { return keyPrefix + "processing:" + consumer }
func heartbeatKey(consumer string) string  { return keyPrefix + "heartbeat:" + consumer }

const (
	delayedKey   = keyPrefix + "delayed"
	deadKey      = keyPrefix + "dead"
	consumersKey = keyPrefix + "consumers"
)

// Enqueue pushes a job onto its queue. It is fire-and-forget for callers: the job runs later on a worker.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	q.prepare(job)
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queueKey(job.Queue), raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.String("queue", job.Queue),
		zap.String("tenant", job.Tenant),
	)
	return nil
}

// EnqueueIn schedules a job to become ready after delay.
func (q *Queue) EnqueueIn(ctx context.Context, job *Job, delay time.Duration) error {
	q.prepare(job)
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	readyAt := time.Now().Add(delay)
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: raw}).Err(); err != nil {
		return fmt.Errorf("zadd delayed: %w", err)
	}
	return nil
}

// Reserve moves the first ready job, polling queues in the given order, into the consumer's
// processing list and returns it. ErrEmpty when all queues are empty.
func (q *Queue) Reserve(ctx context.Context, consumer string, queues []string) (*Reservation, error) {
	for _, name := range queues {
		raw, err := q.client.LMove(ctx, queueKey(name), processingKey(consumer), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lmove %s: %w", name, err)
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Malformed entries cannot be retried; park them in the dead-letter list.
			q.logger.Warn("invalid job payload", zap.String("raw", raw), zap.Error(err))
			_, _ = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.LRem(ctx, processingKey(consumer), 1, raw)
				p.RPush(ctx, deadKey, raw)
				return nil
			})
			continue
		}
		return &Reservation{Job: &job, Raw: raw}, nil
	}
	return nil, ErrEmpty
}

// Ack removes a finished job from the consumer's processing list.
func (q *Queue) Ack(ctx context.Context, consumer string, r *Reservation) error {
	return q.client.LRem(ctx, processingKey(consumer), 1, r.Raw).Err()
}

// Retry records the failure and either schedules another attempt after backoff*attempt, or,
// once the job has used up its retries, buries it in the dead-letter list.
// It reports whether the job was buried.
func (q *Queue) Retry(ctx context.Context, consumer string, r *Reservation, cause error, backoff time.Duration) (bool, error) {
	job := *r.Job
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}

	buried := job.Attempt > job.MaxRetries
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, processingKey(consumer), 1, r.Raw)
		if buried {
			p.RPush(ctx, deadKey, raw)
		} else {
			readyAt := time.Now().Add(backoff * time.Duration(job.Attempt))
			p.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: raw})
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("retry job %s: %w", job.ID, err)
	}
	r.Job = &job
	if buried {
		q.logger.Warn("job moved to dead-letter list", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	} else {
		q.logger.Info("job scheduled for retry", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	}
	return buried, nil
}

// Bury moves a job straight to the dead-letter list without further retries.
func (q *Queue) Bury(ctx context.Context, consumer string, r *Reservation, cause error) error {
	job := *r.Job
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, processingKey(consumer), 1, r.Raw)
		p.RPush(ctx, deadKey, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bury job %s: %w", job.ID, err)
	}
	r.Job = &job
	return nil
}

// Release hands a reserved job back unchanged, ready again after delay. The attempt
// counter is not advanced.
func (q *Queue) Release(ctx context.Context, consumer string, r *Reservation, delay time.Duration) error {
	readyAt := time.Now().Add(delay)
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, processingKey(consumer), 1, r.Raw)
		p.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: r.Raw})
		return nil
	})
	if err != nil {
		return fmt.Errorf("release job %s: %w", r.Job.ID, err)
	}
	return nil
}

// promoteScript moves one delayed member onto a ready queue. Only the caller whose ZREM
// succeeds pushes it, so concurrent promoters never duplicate a job.
var promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// recoverScript moves the head of a processing list onto a ready queue if it is still the
// entry the caller inspected.
var recoverScript = redis.NewScript(`
if redis.call('LINDEX', KEYS[1], 0) == ARGV[1] then
	redis.call('LPOP', KEYS[1])
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// targetQueue returns the ready list a stored job belongs on.
func targetQueue(raw string) (string, string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.Queue == "" {
		job.Queue = QueueDefault
	}
	return job.ID, queueKey(job.Queue)
}

// PromoteDue moves delayed jobs whose ready time has passed onto their queues.
// Each move is a single script call, so a crash cannot drop a job between the two lists.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}
	moved := 0
	for _, raw := range members {
		_, target := targetQueue(raw)
		n, err := promoteScript.Run(ctx, q.client, []string{delayedKey, target}, raw).Int()
		if err != nil {
			return moved, fmt.Errorf("promote: %w", err)
		}
		moved += n
	}
	return moved, nil
}

// Heartbeat registers the consumer and refreshes its liveness key.
func (q *Queue) Heartbeat(ctx context.Context, consumer string, ttl time.Duration) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, consumersKey, consumer)
		p.Set(ctx, heartbeatKey(consumer), time.Now().Unix(), ttl)
		return nil
	})
	return err
}

// RecoverOrphans re-queues jobs left in the processing lists of consumers whose heartbeat
// expired (crashed or killed workers). Handlers are idempotent, so re-running is safe.
func (q *Queue) RecoverOrphans(ctx context.Context) (int, error) {
	consumers, err := q.client.SMembers(ctx, consumersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("smembers: %w", err)
	}
	recovered := 0
	for _, consumer := range consumers {
		alive, err := q.client.Exists(ctx, heartbeatKey(consumer)).Result()
		if err != nil {
			return recovered, fmt.Errorf("exists: %w", err)
		}
		if alive > 0 {
			continue
		}
		for {
			raw, err := q.client.LIndex(ctx, processingKey(consumer), 0).Result()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return recovered, fmt.Errorf("lindex: %w", err)
			}
			id, target := targetQueue(raw)
			n, err := recoverScript.Run(ctx, q.client, []string{processingKey(consumer), target}, raw).Int()
			if err != nil {
				return recovered, fmt.Errorf("recover: %w", err)
			}
			if n == 0 {
				continue
			}
			recovered++
			q.logger.Warn("recovered orphaned job", zap.String("job_id", id), zap.String("consumer", consumer))
		}
		q.client.SRem(ctx, consumersKey, consumer)
	}
	return recovered, nil
}

// Deregister removes a consumer that shut down cleanly. Anything still in its processing
// list is handed back to the queues first.
func (q *Queue) Deregister(ctx context.Context, consumer string) error {
	if err := q.client.Del(ctx, heartbeatKey(consumer)).Err(); err != nil {
		return err
	}
	_, err := q.RecoverOrphans(ctx)
	return err
}

// Len returns the number of ready jobs in a queue.
func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	return q.client.LLen(ctx, queueKey(name)).Result()
}

// Delayed returns the number of jobs waiting for a retry.
func (q *Queue) Delayed(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, delayedKey).Result()
}

// DeadLetters returns up to n buried jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, n int64) ([]Job, error) {
	raws, err := q.client.LRange(ctx, deadKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
