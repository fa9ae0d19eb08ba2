package notifications

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Recipients resolves the users a broadcast targets.
type Recipients interface {
	ListByRoles(ctx context.Context, roles ...models.Role) ([]models.User, error)
}

// Handler handles notification endpoints.
type Handler struct {
	repo    *Repository
	svc     *Service
	targets Recipients
	logger  *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo *Repository, svc *Service, targets Recipients, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, svc: svc, targets: targets, logger: logger}
}

// SendRequest is the body for POST /notifications.
type SendRequest struct {
	Title    string      `json:"title" binding:"required,max=255"`
	Message  string      `json:"message" binding:"required"`
	Kind     string      `json:"kind" binding:"omitempty,oneof=info warning success error"`
	Priority string      `json:"priority" binding:"omitempty,oneof=low medium high"`
	Channels []string    `json:"channels" binding:"omitempty,dive,oneof=in_app email sms"`
	UserIDs  []uuid.UUID `json:"user_ids"`
	Roles    []string    `json:"roles"`
}

// List handles GET /notifications?unread=true&limit=.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := h.repo.ListForUser(c.Request.Context(), userID, c.Query("unread") == "true", limit)
	if err != nil {
		h.logger.Error("list notifications", zap.Error(err))
		response.Internal(c, "failed to list notifications")
		return
	}
	unread, err := h.repo.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("count notifications", zap.Error(err))
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, gin.H{"notifications": list, "unread": unread})
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
	if err := h.repo.MarkRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		h.logger.Error("mark notification read", zap.Error(err))
		response.Internal(c, "failed to update notification")
		return
	}
	response.NoContent(c)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
	n, err := h.repo.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("mark all read", zap.Error(err))
		response.Internal(c, "failed to update notifications")
		return
	}
	response.OK(c, gin.H{"updated": n})
}

// Send handles POST /notifications: explicit users and/or every active user of the given roles.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	seen := make(map[uuid.UUID]bool)
	var recipients []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	for _, id := range req.UserIDs {
		add(id)
	}
	if len(req.Roles) > 0 {
		roles := make([]models.Role, 0, len(req.Roles))
		for _, r := range req.Roles {
			role := models.Role(r)
			if !role.Valid() {
				response.BadRequest(c, "invalid role: "+r)
				return
			}
			roles = append(roles, role)
		}
		users, err := h.targets.ListByRoles(c.Request.Context(), roles...)
		if err != nil {
			h.logger.Error("resolve recipients", zap.Error(err))
			response.Internal(c, "failed to resolve recipients")
			return
		}
		for _, u := range users {
			add(u.ID)
		}
	}
	if len(recipients) == 0 {
		response.BadRequest(c, "no recipients")
		return
	}
	created, err := h.svc.Notify(c.Request.Context(), recipients, Message{
		Title: req.Title, Body: req.Message, Kind: req.Kind, Priority: req.Priority, Channels: req.Channels,
	})
	if err != nil {
		h.logger.Error("send notification", zap.Error(err))
		response.Internal(c, "failed to send notification")
		return
	}
	response.Created(c, gin.H{"sent": len(created)})
}
