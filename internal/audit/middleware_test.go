package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/middleware"
	"github.com/motorsales/vsms/internal/models"
)

type memRecorder struct{ entries []*models.AuditLog }

func (m *memRecorder) Insert(_ context.Context, e *models.AuditLog) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestMiddlewareRecordsAuthenticatedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &memRecorder{}
	userID := uuid.New()

	engine := gin.New()
	engine.Use(Middleware(rec, zap.NewNop()))
	authed := func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserEmail, "a@acme.test")
		c.Status(http.StatusCreated)
	}
	engine.POST("/vehicles", authed)
	engine.OPTIONS("/vehicles", authed)
	engine.GET("/media/x.png", authed)
	engine.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/vehicles"},
		{http.MethodOptions, "/vehicles"},
		{http.MethodGet, "/media/x.png"},
		{http.MethodPost, "/auth/login"},
	} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "create", e.Action)
	assert.Equal(t, "/vehicles", e.Path)
	assert.Equal(t, http.StatusCreated, e.StatusCode)
	assert.Equal(t, userID, *e.UserID)
	assert.Equal(t, "a@acme.test", e.UserEmail)
}
