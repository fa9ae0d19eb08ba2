package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/queue"
)

// Handler executes one job. Returning an error schedules a retry unless it is Permanent.
type Handler func(ctx context.Context, job *queue.Job) error

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type, replacing any previous one.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Lookup returns the handler for jobType.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the job is buried without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err should not be retried. Jobs for tenants that no longer
// resolve are permanent failures too.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) || errors.Is(err, tenancy.ErrTenantNotFound)
}

// Queue is the reliable queue the runner consumes.
type Queue interface {
	Reserve(ctx context.Context, consumer string, queues []string) (*queue.Reservation, error)
	Ack(ctx context.Context, consumer string, r *queue.Reservation) error
	Retry(ctx context.Context, consumer string, r *queue.Reservation, cause error, backoff time.Duration) (bool, error)
	Bury(ctx context.Context, consumer string, r *queue.Reservation, cause error) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Heartbeat(ctx context.Context, consumer string, ttl time.Duration) error
	RecoverOrphans(ctx context.Context) (int, error)
	Release(ctx context.Context, consumer string, r *queue.Reservation, delay time.Duration) error
	Deregister(ctx context.Context, consumer string) error
}

// FailureRecorder persists terminal failures, once per job id.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, job *queue.Job, cause error) (bool, error)
}

// Options tune the runner.
type Options struct {
	Name         string // consumer name prefix; hostname-pid when empty
	Concurrency  int
	JobTimeout   time.Duration
	RetryBackoff time.Duration
	PollInterval time.Duration
	HeartbeatTTL time.Duration
}

func (o *Options) defaults() {
	if o.Name == "" {
		host, _ := os.Hostname()
		o.Name = host + "-" + strconv.Itoa(os.Getpid())
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Minute
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.HeartbeatTTL <= 0 {
		o.HeartbeatTTL = 30 * time.Second
	}
}

// Runner consumes jobs with a fixed number of goroutines.
type Runner struct {
	queue    Queue
	registry *Registry
	failures FailureRecorder
	opts     Options
	logger   *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(q Queue, registry *Registry, failures FailureRecorder, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	return &Runner{queue: q, registry: registry, failures: failures, opts: opts, logger: logger}
}

func (r *Runner) consumers() []string {
	names := make([]string, r.opts.Concurrency)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%d", r.opts.Name, i)
	}
	return names
}

// Run blocks until ctx is cancelled. In-flight jobs finish before it returns; their
// contexts carry only the per-job timeout, not ctx's cancellation. Heartbeats continue
// until the last consumer has returned, so no other worker recovers a job still running here.
func (r *Runner) Run(ctx context.Context) error {
	consumers := r.consumers()
	for _, c := range consumers {
		if err := r.queue.Heartbeat(ctx, c, r.opts.HeartbeatTTL); err != nil {
			return fmt.Errorf("register consumer %s: %w", c, err)
		}
	}
	if n, err := r.queue.RecoverOrphans(ctx); err != nil {
		r.logger.Warn("recover orphaned jobs", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("re-queued orphaned jobs", zap.Int("count", n))
	}

	hbCtx, stopHeartbeat := context.WithCancel(context.WithoutCancel(ctx))
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(hbCtx, consumers)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.promote(gctx); return nil })
	for _, c := range consumers {
		consumer := c
		g.Go(func() error { r.consume(gctx, consumer); return nil })
	}
	r.logger.Info("worker started", zap.Int("concurrency", len(consumers)), zap.Strings("job_types", r.registry.Types()))
	err := g.Wait()
	stopHeartbeat()
	<-hbDone

	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, c := range consumers {
		if err := r.queue.Deregister(shutdown, c); err != nil {
			r.logger.Warn("deregister consumer", zap.String("consumer", c), zap.Error(err))
		}
	}
	r.logger.Info("worker stopped")
	return err
}

func (r *Runner) heartbeat(ctx context.Context, consumers []string) {
	ticker := time.NewTicker(r.opts.HeartbeatTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range consumers {
				if err := r.queue.Heartbeat(ctx, c, r.opts.HeartbeatTTL); err != nil && ctx.Err() == nil {
					r.logger.Warn("heartbeat", zap.String("consumer", c), zap.Error(err))
				}
			}
			if n, err := r.queue.RecoverOrphans(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("recover orphaned jobs", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("re-queued orphaned jobs", zap.Int("count", n))
			}
		}
	}
}

func (r *Runner) promote(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.queue.PromoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				r.logger.Warn("promote delayed jobs", zap.Error(err))
			}
		}
	}
}

func (r *Runner) consume(ctx context.Context, consumer string) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := r.queue.Reserve(ctx, consumer, queue.PriorityOrder)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
				r.logger.Warn("reserve job", zap.String("consumer", consumer), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.opts.PollInterval):
			}
			continue
		}
		r.process(context.WithoutCancel(ctx), consumer, res)
	}
}

// process runs one reserved job and settles it: ack, retry, or bury.
func (r *Runner) process(ctx context.Context, consumer string, res *queue.Reservation) {
	job := res.Job
	log := r.logger.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.String("tenant", job.Tenant),
		zap.Int("attempt", job.Attempt+1),
	)

	start := time.Now()
	err := r.execute(ctx, job)
	if err == nil {
		if ackErr := r.queue.Ack(ctx, consumer, res); ackErr != nil {
			log.Error("ack job", zap.Error(ackErr))
		}
		log.Debug("job done", zap.Duration("took", time.Since(start)))
		return
	}

	if !IsPermanent(err) && job.Attempt+1 <= job.MaxRetries {
		if _, retryErr := r.queue.Retry(ctx, consumer, res, err, r.opts.RetryBackoff); retryErr != nil {
			// The job stays in the processing list and is recovered once this consumer is gone.
			log.Error("schedule retry", zap.Error(retryErr), zap.NamedError("cause", err))
			return
		}
		log.Warn("job failed, will retry", zap.Error(err), zap.Int("max_retries", job.MaxRetries))
		return
	}

	// The failure row is written before the job leaves the processing list. Recording is
	// idempotent per job id, so a crash in between only leads to a second, ignored insert.
	failed := *job
	failed.Attempt++
	failed.LastError = err.Error()
	if recErr := r.terminal(ctx, &failed, err, log); recErr != nil {
		if relErr := r.queue.Release(ctx, consumer, res, r.opts.RetryBackoff); relErr != nil {
			log.Error("release job", zap.Error(relErr))
		}
		return
	}
	if buryErr := r.queue.Bury(ctx, consumer, res, err); buryErr != nil {
		log.Error("bury job", zap.Error(buryErr))
	}
}

func (r *Runner) execute(ctx context.Context, job *queue.Job) (err error) {
	h, ok := r.registry.Lookup(job.Type)
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.JobTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	err = h(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("job timed out after %s: %w", r.opts.JobTimeout, err)
	}
	return err
}

// terminal records a job that will never run again. Only the first recording is logged as an error.
// A recording error is returned so the job can be delivered again.
func (r *Runner) terminal(ctx context.Context, job *queue.Job, cause error, log *zap.Logger) error {
	if r.failures == nil {
		log.Error("job failed permanently", zap.Error(cause))
		return nil
	}
	inserted, err := r.failures.RecordFailure(ctx, job, cause)
	switch {
	case err != nil:
		log.Error("could not record job failure; job will be delivered again", zap.Error(cause), zap.NamedError("record_error", err))
		return err
	case inserted:
		log.Error("job failed permanently", zap.Error(cause))
	default:
		log.Debug("duplicate terminal failure ignored")
	}
	return nil
}

// Scoper runs fn inside a tenant's scope; *tenancy.JobScoper implements it.
type Scoper interface {
	Run(ctx context.Context, schema string, fn func(ctx context.Context) error) error
}

// Scoped runs h inside the tenant scope of the job. Jobs without a tenant are rejected.
func Scoped(scoper Scoper, h Handler) Handler {
	return func(ctx context.Context, job *queue.Job) error {
		if job.Tenant == "" {
			return Permanent(fmt.Errorf("job %s has no tenant", job.ID))
		}
		return scoper.Run(ctx, job.Tenant, func(ctx context.Context) error {
			return h(ctx, job)
		})
	}
}
