package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/response"
	"github.com/motorsales/vsms/pkg/storage"
)

// Metadata is the document row store.
type Metadata interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, vehicleID, customerID *uuid.UUID) ([]models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// Limits supplies the tenant's upload size limit.
type Limits interface {
	Get(ctx context.Context) (models.SystemSettings, error)
}

// Presigner is implemented by stores that can hand out direct download URLs.
type Presigner interface {
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Handler handles document upload and download.
type Handler struct {
	meta   Metadata
	limits Limits
	store  storage.Store
	logger *zap.Logger
}

// NewHandler creates a documents handler.
func NewHandler(meta Metadata, limits Limits, store storage.Store, logger *zap.Logger) *Handler {
	return &Handler{meta: meta, limits: limits, store: store, logger: logger}
}

var categories = map[string]bool{
	"logbook": true, "sale_agreement": true, "id_copy": true, "insurance": true, "receipt": true, "other": true,
}

// Upload handles POST /documents (multipart: file, title, category, vehicle_id, customer_id).
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := h.limits.Get(ctx)
	if err != nil {
		h.logger.Error("load settings", zap.Error(err))
		response.Internal(c, "failed to load settings")
		return
	}
	limit := settings.MaxDocumentBytes()
	// Multipart overhead on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(c, fmt.Sprintf("file exceeds %d MB limit", settings.MaxDocumentSizeMB))
			return
		}
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > limit {
		response.TooLarge(c, fmt.Sprintf("file exceeds %d MB limit", settings.MaxDocumentSizeMB))
		return
	}
	category := c.DefaultPostForm("category", "other")
	if !categories[category] {
		response.BadRequest(c, "invalid category")
		return
	}
	vehicleID, err := optionalUUID(c.PostForm("vehicle_id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle_id")
		return
	}
	customerID, err := optionalUUID(c.PostForm("customer_id"))
	if err != nil {
		response.BadRequest(c, "invalid customer_id")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(file.Filename)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}
	title := c.PostForm("title")
	if title == "" {
		title = file.Filename
	}

	doc := models.Document{
		ID:          uuid.New(),
		Title:       title,
		Category:    category,
		FileName:    storage.SafeFilename(file.Filename),
		ContentType: contentType,
		SizeBytes:   file.Size,
		VehicleID:   vehicleID,
		CustomerID:  customerID,
	}
	if uid, ok := c.Get(auth.ContextUserID); ok {
		if id, ok := uid.(uuid.UUID); ok {
			doc.UploadedBy = &id
		}
	}
	doc.ObjectKey = storage.DocumentKey(tenancy.SchemaFrom(ctx), doc.ID.String(), file.Filename)

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	if err := h.store.Put(ctx, doc.ObjectKey, contentType, rc, file.Size); err != nil {
		h.logger.Error("document upload failed", zap.Error(err), zap.String("key", doc.ObjectKey))
		response.ServiceUnavailable(c, "document storage unavailable")
		return
	}
	if err := h.meta.Create(ctx, &doc); err != nil {
		h.removeObject(doc.ObjectKey)
		h.logger.Error("save document metadata", zap.Error(err))
		response.Internal(c, "failed to save document")
		return
	}
	response.Created(c, doc)
}

// List handles GET /documents?vehicle_id=&customer_id=.
func (h *Handler) List(c *gin.Context) {
	vehicleID, err := optionalUUID(c.Query("vehicle_id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle_id")
		return
	}
	customerID, err := optionalUUID(c.Query("customer_id"))
	if err != nil {
		response.BadRequest(c, "invalid customer_id")
		return
	}
	list, err := h.meta.List(c.Request.Context(), vehicleID, customerID)
	if err != nil {
		h.logger.Error("list documents", zap.Error(err))
		response.Internal(c, "failed to list documents")
		return
	}
	response.OK(c, list)
}

// DownloadURL handles GET /documents/:id/url. Stores without presigning get the streaming endpoint instead.
func (h *Handler) DownloadURL(c *gin.Context) {
	doc, ok := h.load(c)
	if !ok {
		return
	}
	p, ok := h.store.(Presigner)
	if !ok {
		response.OK(c, gin.H{"url": "/documents/" + doc.ID.String() + "/download"})
		return
	}
	url, err := p.PresignedDownloadURL(c.Request.Context(), doc.ObjectKey)
	if err != nil {
		h.logger.Error("presign document", zap.Error(err), zap.String("key", doc.ObjectKey))
		response.ServiceUnavailable(c, "document storage unavailable")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Download handles GET /documents/:id/download by streaming the object.
func (h *Handler) Download(c *gin.Context) {
	doc, ok := h.load(c)
	if !ok {
		return
	}
	body, contentType, err := h.store.Open(c.Request.Context(), doc.ObjectKey)
	if errors.Is(err, storage.ErrNotFound) {
		response.NotFound(c, "document file missing")
		return
	}
	if err != nil {
		h.logger.Error("open document", zap.Error(err), zap.String("key", doc.ObjectKey))
		response.ServiceUnavailable(c, "document storage unavailable")
		return
	}
	defer body.Close()
	if contentType == "" {
		contentType = doc.ContentType
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	c.Header("Cache-Control", "private, max-age=300")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
}

// Delete handles DELETE /documents/:id. The object goes once the row deletion commits.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid document id")
		return
	}
	doc, err := h.meta.Delete(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "document not found")
		return
	}
	if err != nil {
		h.logger.Error("delete document", zap.Error(err))
		response.Internal(c, "failed to delete document")
		return
	}
	tenancy.AfterCommit(c.Request.Context(), func() { h.removeObject(doc.ObjectKey) })
	response.NoContent(c)
}

func (h *Handler) load(c *gin.Context) (*models.Document, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid document id")
		return nil, false
	}
	doc, err := h.meta.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "document not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get document", zap.Error(err))
		response.Internal(c, "failed to load document")
		return nil, false
	}
	return doc, true
}

func (h *Handler) removeObject(key string) {
	if err := h.store.Delete(context.Background(), key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Warn("remove document object", zap.Error(err), zap.String("key", key))
	}
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
