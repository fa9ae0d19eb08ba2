package tenancy

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// ContextTenant is the gin context key for the resolved tenant.
const ContextTenant = "tenant"

// Resolver maps a Host header to an active tenant.
type Resolver interface {
	Resolve(ctx context.Context, host string) (*models.Tenant, error)
}

var errRequestFailed = errors.New("request failed")

// ResolveHost rejects requests whose Host is not bound to an active tenant with 404, before any
// business handler runs and without touching a tenant schema.
func ResolveHost(resolver Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				response.NotFound(c, "unknown host")
			} else {
				logger.Error("resolve tenant", zap.String("host", c.Request.Host), zap.Error(err))
				response.ServiceUnavailable(c, "tenant directory unavailable")
			}
			c.Abort()
			return
		}
		c.Set(ContextTenant, t)
		c.Next()
	}
}

// ScopeRequests runs the rest of the chain inside the resolved tenant's scope.
// The transaction commits unless the handler produced a 5xx or recorded an error. The response
// is held back until the commit has succeeded; a failed commit answers 500 instead.
// If no connection can be had the request fails fast with 503.
func ScopeRequests(router *Router, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := TenantFromGin(c)
		if !ok {
			response.NotFound(c, "unknown host")
			c.Abort()
			return
		}
		orig, out := c.Request, c.Writer
		header := out.Header().Clone()
		buf := &bufferedWriter{ResponseWriter: out, status: http.StatusOK}
		defer func() { c.Request, c.Writer = orig, out }()

		err := router.Scope(c.Request.Context(), t, func(ctx context.Context) error {
			c.Request = orig.WithContext(ctx)
			c.Writer = buf
			c.Next()
			if buf.Status() >= http.StatusInternalServerError || len(c.Errors) > 0 {
				return errRequestFailed
			}
			return nil
		})
		c.Request, c.Writer = orig, out
		switch {
		case err == nil, errors.Is(err, errRequestFailed):
			buf.flush()
			return
		case errors.Is(err, ErrStorageUnavailable):
			logger.Error("tenant scope unavailable", zap.String("schema", t.SchemaName), zap.Error(err))
			resetHeader(out.Header(), header)
			response.ServiceUnavailable(c, "storage unavailable")
		default:
			logger.Error("tenant scope failed", zap.String("schema", t.SchemaName), zap.Error(err))
			resetHeader(out.Header(), header)
			response.Internal(c, "internal error")
		}
		c.Abort()
	}
}

func resetHeader(h, to http.Header) {
	for k := range h {
		delete(h, k)
	}
	for k, v := range to {
		h[k] = v
	}
}

// bufferedWriter keeps a scoped handler's response in memory until the transaction is settled.
type bufferedWriter struct {
	gin.ResponseWriter
	status int
	wrote  bool
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.wrote {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.wrote = true }

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wrote = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Size() int {
	if !w.wrote {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool { return w.wrote }

func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() == 0 {
		w.ResponseWriter.WriteHeaderNow()
		return
	}
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}

// TenantFromGin returns the tenant set by ResolveHost.
func TenantFromGin(c *gin.Context) (*models.Tenant, bool) {
	v, ok := c.Get(ContextTenant)
	if !ok {
		return nil, false
	}
	t, ok := v.(*models.Tenant)
	return t, ok && t != nil
}
