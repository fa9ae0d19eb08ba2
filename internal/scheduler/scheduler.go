package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motorsales/vsms/pkg/queue"
)

const lockPrefix = "vsms:schedule:"

// Enqueuer accepts the fanned-out jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// Tenants lists the schemas a firing fans out to.
type Tenants interface {
	ActiveSchemas(ctx context.Context) ([]string, error)
}

// Options configures a Scheduler.
type Options struct {
	File     string // YAML schedule; DefaultEntries when empty
	Location *time.Location
	Tick     time.Duration
	Grace    time.Duration // how late a daily entry may still fire
	JobTypes []string      // registered job types; entries naming anything else are rejected
}

// Scheduler fires periodic entries, one job per active tenant per slot.
// Several instances may run; a Redis slot lock lets only one of them fire a given slot.
type Scheduler struct {
	rdb      *redis.Client
	jobs     Enqueuer
	tenants  Tenants
	opts     Options
	instance string
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries []Entry
}

// New loads the schedule and returns a scheduler ready to Run.
func New(rdb *redis.Client, jobs Enqueuer, tenants Tenants, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Tick <= 0 {
		opts.Tick = 30 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = time.Hour
	}
	s := &Scheduler{
		rdb:      rdb,
		jobs:     jobs,
		tenants:  tenants,
		opts:     opts,
		instance: uuid.NewString(),
		logger:   logger,
		now:      time.Now,
	}
	if opts.File == "" {
		entries := DefaultEntries()
		if err := s.checkJobTypes(entries); err != nil {
			return nil, err
		}
		s.entries = entries
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) checkJobTypes(entries []Entry) error {
	if len(s.opts.JobTypes) == 0 {
		return nil
	}
	known := make(map[string]bool, len(s.opts.JobTypes))
	for _, t := range s.opts.JobTypes {
		known[t] = true
	}
	for _, e := range entries {
		if !known[e.JobType] {
			return fmt.Errorf("entry %q: no handler for job type %q", e.Name, e.JobType)
		}
	}
	return nil
}

// Entries returns the active schedule.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Reload re-reads the schedule file. On error the current entries stay in effect.
func (s *Scheduler) Reload() error {
	entries, err := LoadFile(s.opts.File)
	if err != nil {
		return err
	}
	if err := s.checkJobTypes(entries); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	for _, e := range entries {
		s.logger.Info("schedule entry", zap.String("name", e.Name), zap.String("schedule", e.String()))
	}
	return nil
}

// Run ticks until ctx is cancelled, watching the schedule file when one is set.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(s.opts.Tick)
		defer ticker.Stop()
		for {
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduler tick", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	if s.opts.File != "" {
		g.Go(func() error { return s.watch(ctx) })
	}
	return g.Wait()
}

// releaseScript deletes a slot lock only if this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Tick fires every entry whose current slot has not been claimed yet and returns the number of jobs enqueued.
// Tenants are listed before any slot is claimed; a slot whose firing enqueued nothing is released for the next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()
	var (
		errs    []error
		schemas []string
		listed  bool
	)
	total := 0
	for _, e := range s.Entries() {
		start, ttl, ok := e.slot(now, s.opts.Location, s.opts.Grace)
		if !ok {
			continue
		}
		if !listed {
			var err error
			schemas, err = s.tenants.ActiveSchemas(ctx)
			if err != nil {
				return 0, fmt.Errorf("list tenants: %w", err)
			}
			listed = true
		}
		key := lockPrefix + e.Name + ":" + strconv.FormatInt(start.Unix(), 10)
		won, err := s.rdb.SetNX(ctx, key, s.instance, ttl).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: lock: %w", e.Name, err))
			continue
		}
		if !won {
			continue
		}
		n, err := s.fanOut(ctx, e, schemas)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			if n == 0 {
				if relErr := releaseScript.Run(ctx, s.rdb, []string{key}, s.instance).Err(); relErr != nil {
					errs = append(errs, fmt.Errorf("%s: release slot: %w", e.Name, relErr))
				}
				continue
			}
		}
		s.logger.Info("schedule fired",
			zap.String("name", e.Name),
			zap.String("job_type", e.JobType),
			zap.Time("slot", start),
			zap.Int("tenants", n),
		)
	}
	return total, errors.Join(errs...)
}

func (s *Scheduler) fanOut(ctx context.Context, e Entry, schemas []string) (int, error) {
	var errs []error
	n := 0
	for _, schema := range schemas {
		job, err := queue.NewJob(e.JobType, schema, nil)
		if err != nil {
			return n, err
		}
		job.Queue = e.Queue
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue for %s: %w", schema, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// watch reloads the schedule when its file changes. The directory is watched so that
// editors replacing the file by rename are picked up.
func (s *Scheduler) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schedule watcher: %w", err)
	}
	defer w.Close()
	path, err := filepath.Abs(s.opts.File)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Error("schedule reload failed, keeping previous entries", zap.Error(err))
				continue
			}
			s.logger.Info("schedule reloaded", zap.String("file", path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("schedule watcher", zap.Error(err))
		}
	}
}
