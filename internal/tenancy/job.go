package tenancy

import (
	"context"

	"github.com/motorsales/vsms/internal/models"
)

// SchemaLookup finds a tenant by schema name.
type SchemaLookup interface {
	GetBySchema(ctx context.Context, schema string) (*models.Tenant, error)
}

// JobScoper runs background jobs inside the scope of the tenant they were enqueued for.
type JobScoper struct {
	lookup SchemaLookup
	router *Router
}

// NewJobScoper creates a job scoper.
func NewJobScoper(lookup SchemaLookup, router *Router) *JobScoper {
	return &JobScoper{lookup: lookup, router: router}
}

// Run looks up the tenant and runs fn in its scope. Deactivated tenants get ErrTenantNotFound.
func (j *JobScoper) Run(ctx context.Context, schema string, fn func(ctx context.Context) error) error {
	t, err := j.lookup.GetBySchema(ctx, schema)
	if err != nil {
		return err
	}
	if !t.IsActive {
		return ErrTenantNotFound
	}
	return j.router.Scope(ctx, t, fn)
}
