package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/middleware"
	"github.com/motorsales/vsms/internal/models"
)

// Recorder persists audit entries.
type Recorder interface {
	Insert(ctx context.Context, e *models.AuditLog) error
}

var excludedPrefixes = []string{"/static/", "/media/", "/favicon.ico"}

var actions = map[string]string{
	http.MethodGet:    "read",
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// Middleware records requests of authenticated users once the handler has run.
// It sits inside the tenant scope, so the entry commits or rolls back with the request.
// A failed insert is logged and never fails the request.
func Middleware(rec Recorder, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := actions[c.Request.Method]
		if !ok || excluded(c.Request.URL.Path) {
			return
		}
		v, ok := c.Get(middleware.ContextUserID)
		if !ok {
			return
		}
		userID, _ := v.(uuid.UUID)
		ua := c.Request.UserAgent()
		if len(ua) > 500 {
			ua = ua[:500]
		}
		entry := &models.AuditLog{
			UserID:     &userID,
			UserEmail:  c.GetString(middleware.ContextUserEmail),
			Action:     action,
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			IPAddress:  c.ClientIP(),
			UserAgent:  ua,
		}
		if err := rec.Insert(c.Request.Context(), entry); err != nil {
			logger.Error("audit insert failed", zap.String("path", entry.Path), zap.Error(err))
		}
	}
}

func excluded(path string) bool {
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
