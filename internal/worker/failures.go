package worker

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/motorsales/vsms/pkg/queue"
)

// Execer runs a statement on the shared schema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGFailures records terminal job failures in public.job_failures.
type PGFailures struct {
	db Execer
}

// NewPGFailures creates a failure recorder on the shared pool.
func NewPGFailures(db Execer) *PGFailures {
	return &PGFailures{db: db}
}

// RecordFailure inserts the failure once per job id. It reports false when the job was already recorded.
func (f *PGFailures) RecordFailure(ctx context.Context, job *queue.Job, cause error) (bool, error) {
	payload := "{}"
	if len(job.Payload) > 0 {
		payload = string(job.Payload)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	const q = `INSERT INTO public.job_failures (job_id, job_type, tenant_schema, queue, attempts, last_error, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (job_id) DO NOTHING`
	tag, err := f.db.Exec(ctx, q, job.ID, job.Type, job.Tenant, job.Queue, job.Attempt, msg, payload)
	if err != nil {
		return false, fmt.Errorf("record job failure: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
