package documents

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
	"github.com/motorsales/vsms/pkg/storage"
)

type memMeta struct {
	mu   sync.Mutex
	docs map[uuid.UUID]models.Document
}

func (m *memMeta) Create(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = *d
	return nil
}

func (m *memMeta) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *memMeta) List(context.Context, *uuid.UUID, *uuid.UUID) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memMeta) Delete(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.docs, id)
	return &d, nil
}

type fixedLimits struct{ mb int }

func (f fixedLimits) Get(context.Context) (models.SystemSettings, error) {
	s := models.DefaultSettings()
	s.MaxDocumentSizeMB = f.mb
	return s, nil
}

type fixture struct {
	engine *gin.Engine
	meta   *memMeta
	root   string
}

func newFixture(t *testing.T, limitMB int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	store, err := storage.NewLocal(root)
	require.NoError(t, err)
	meta := &memMeta{docs: map[uuid.UUID]models.Document{}}
	h := NewHandler(meta, fixedLimits{limitMB}, store, zap.NewNop())

	router := tenancy.NewRouter(&tenancytest.Beginner{}, nil)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		_ = router.ScopeSchema(c.Request.Context(), "acme", func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return nil
		})
	})
	engine.POST("/documents", h.Upload)
	engine.GET("/documents/:id/download", h.Download)
	engine.GET("/documents/:id/url", h.DownloadURL)
	engine.DELETE("/documents/:id", h.Delete)
	return &fixture{engine: engine, meta: meta, root: root}
}

func (f *fixture) upload(t *testing.T, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Logbook"))
	require.NoError(t, mw.WriteField("category", "logbook"))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) only(t *testing.T) models.Document {
	t.Helper()
	require.Len(t, f.meta.docs, 1)
	for _, d := range f.meta.docs {
		return d
	}
	return models.Document{}
}

func TestUploadStoresUnderTenantPrefix(t *testing.T) {
	f := newFixture(t, 1)
	w := f.upload(t, "../../log book.pdf", []byte("%PDF-1.4 test"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	doc := f.only(t)
	assert.Equal(t, "log_book.pdf", doc.FileName)
	assert.Equal(t, "tenants/acme/documents/"+doc.ID.String()+"/log_book.pdf", doc.ObjectKey)
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(doc.ObjectKey)))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/download", nil)
	dl := httptest.NewRecorder()
	f.engine.ServeHTTP(dl, req)
	assert.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "%PDF-1.4 test", dl.Body.String())
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "log_book.pdf")
}

func TestUploadOverLimitIs413(t *testing.T) {
	f := newFixture(t, 1)
	w := f.upload(t, "big.bin", bytes.Repeat([]byte("x"), 1<<20+512<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, f.meta.docs)

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing written to storage")
}

func TestLocalStoreFallsBackToStreamingURL(t *testing.T) {
	f := newFixture(t, 1)
	require.Equal(t, http.StatusCreated, f.upload(t, "a.txt", []byte("hi")).Code)
	doc := f.only(t)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/url", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/documents/"+doc.ID.String()+"/download")
}

func TestDeleteRemovesObjectAfterCommit(t *testing.T) {
	f := newFixture(t, 1)
	require.Equal(t, http.StatusCreated, f.upload(t, "a.txt", []byte("hi")).Code)
	doc := f.only(t)
	path := filepath.Join(f.root, filepath.FromSlash(doc.ObjectKey))

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/"+doc.ID.String(), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
