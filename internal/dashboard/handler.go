package dashboard

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Source computes the summary.
type Source interface {
	Summary(ctx context.Context, monthStart, today time.Time, days int) (*Summary, error)
}

// SettingsReader supplies the insurance window and currency.
type SettingsReader interface {
	Get(ctx context.Context) (models.SystemSettings, error)
}

// Handler handles GET /dashboard.
type Handler struct {
	source   Source
	settings SettingsReader
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a dashboard handler. Month and day boundaries are taken in loc.
func NewHandler(source Source, settings SettingsReader, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{source: source, settings: settings, loc: loc, now: time.Now, logger: logger}
}

// Get handles GET /dashboard.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	cfg, err := h.settings.Get(ctx)
	if err != nil {
		h.logger.Error("load settings", zap.Error(err))
		response.Internal(c, "failed to load settings")
		return
	}
	now := h.now().In(h.loc)
	y, m, d := now.Date()
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, h.loc)
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	s, err := h.source.Summary(ctx, monthStart, today, cfg.InsuranceExpiryDays)
	if err != nil {
		h.logger.Error("dashboard summary", zap.Error(err))
		response.Internal(c, "failed to load dashboard")
		return
	}
	s.CurrencySymbol = cfg.CurrencySymbol
	if due := s.CollectedMonthCents + s.PendingCents + s.OverdueCents; due > 0 {
		rate := float64(s.CollectedMonthCents) / float64(due) * 100
		s.CollectionRatePercent = &rate
	}
	response.OK(c, s)
}
