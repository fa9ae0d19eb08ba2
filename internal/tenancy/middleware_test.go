package tenancy_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

type tenantServer struct {
	engine  *gin.Engine
	db      *tenancytest.Beginner
	store   *tenancytest.Store
	handled int
}

func newTenantServer(t *testing.T, handler gin.HandlerFunc) *tenantServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &tenantServer{db: &tenancytest.Beginner{}, store: tenancytest.NewStore()}
	s.store.Seed("acme", "acme.example.com")
	s.store.Seed("beta", "beta.example.com")

	dir := tenancy.NewDirectory(s.store, nil, nil, nil)
	router := tenancy.NewRouter(s.db, nil)
	s.engine = gin.New()
	s.engine.Use(tenancy.ResolveHost(dir, zap.NewNop()), tenancy.ScopeRequests(router, zap.NewNop()))
	s.engine.GET("/vehicles", func(c *gin.Context) {
		s.handled++
		handler(c)
	})
	return s
}

func (s *tenantServer) get(host string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/vehicles", nil)
	req.Host = host
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestUnknownHostIs404WithoutSchemaAccess(t *testing.T) {
	s := newTenantServer(t, func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, host := range []string{"unknown.example.com", "", "bad_host!"} {
		w := s.get(host)
		assert.Equal(t, http.StatusNotFound, w.Code, host)
	}
	assert.Zero(t, s.handled, "business handler must not run")
	assert.Zero(t, s.db.Calls(), "no tenant transaction for unknown hosts")
}

func TestRequestTouchesOnlyItsTenantSchema(t *testing.T) {
	var schemas []string
	s := newTenantServer(t, func(c *gin.Context) {
		_, err := tenancy.DB(c.Request.Context())
		require.NoError(t, err)
		schemas = append(schemas, tenancy.SchemaFrom(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, s.get("ACME.example.com:443").Code)
	assert.Equal(t, http.StatusOK, s.get("beta.example.com").Code)

	assert.Equal(t, []string{"acme", "beta"}, schemas)
	require.Len(t, s.db.Txs, 2)
	assert.Equal(t, []any{`"acme"`}, s.db.Txs[0].Args[0])
	assert.Equal(t, []any{`"beta"`}, s.db.Txs[1].Args[0])
	for _, tx := range s.db.Txs {
		assert.True(t, tx.Committed)
		assert.Len(t, tx.Statements, 1, "only the search_path statement ran")
	}
}

func TestServerErrorRollsBack(t *testing.T) {
	s := newTenantServer(t, func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusInternalServerError, s.get("acme.example.com").Code)
	require.Len(t, s.db.Txs, 1)
	assert.True(t, s.db.Txs[0].RolledBack)
}

func TestStorageDownIs503(t *testing.T) {
	s := newTenantServer(t, func(c *gin.Context) { c.Status(http.StatusOK) })
	s.db.Err = tenancytest.ErrDown

	assert.Equal(t, http.StatusServiceUnavailable, s.get("acme.example.com").Code)
	assert.Zero(t, s.handled)
	assert.Equal(t, 1, s.db.Calls())
}

func TestDeactivatedTenantIs404(t *testing.T) {
	s := newTenantServer(t, func(c *gin.Context) { c.Status(http.StatusOK) })
	tn, err := s.store.TenantBySchema(context.Background(), "acme")
	require.NoError(t, err)
	require.NoError(t, s.store.SetActive(context.Background(), tn.ID, false))

	assert.Equal(t, http.StatusNotFound, s.get("acme.example.com").Code)
	assert.Zero(t, s.db.Calls())
}

func TestFailedCommitIsNotReportedAsSuccess(t *testing.T) {
	s := newTenantServer(t, func(c *gin.Context) {
		c.Header("Location", "/vehicles/v1")
		c.JSON(http.StatusCreated, gin.H{"id": "v1"})
	})
	s.db.NewTx = func(tx *tenancytest.Tx) { tx.CommitErr = errors.New("serialization failure") }

	w := s.get("acme.example.com")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "v1")
	assert.Empty(t, w.Header().Get("Location"))
	require.Len(t, s.db.Txs, 1)
	assert.True(t, s.db.Txs[0].Committed)
}

func TestCommitSurvivesCancelledRequest(t *testing.T) {
	var cancel context.CancelFunc
	s := newTenantServer(t, func(c *gin.Context) {
		cancel()
		c.Status(http.StatusNoContent)
	})

	ctx, cancelFn := context.WithCancel(context.Background())
	cancel = cancelFn
	req := httptest.NewRequest(http.MethodGet, "/vehicles", nil).WithContext(ctx)
	req.Host = "acme.example.com"
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, s.db.Txs, 1)
	assert.True(t, s.db.Txs[0].Committed)
	assert.NoError(t, s.db.Txs[0].CommitCtxErr)
}
