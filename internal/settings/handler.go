package settings

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// Handler serves tenant system settings.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a settings handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// UpdateRequest is the body for PUT /settings.
type UpdateRequest struct {
	DefaultInterestRate float64 `json:"default_interest_rate" binding:"gte=0,lte=100"`
	LatePaymentPenalty  float64 `json:"late_payment_penalty" binding:"gte=0,lte=100"`
	PaymentReminderDays int     `json:"payment_reminder_days" binding:"gte=1,lte=60"`
	InsuranceExpiryDays int     `json:"insurance_expiry_days" binding:"gte=1,lte=365"`
	MaxDocumentSizeMB   int     `json:"max_document_size_mb" binding:"gte=1,lte=100"`
	CurrencySymbol      string  `json:"currency_symbol" binding:"required,max=10"`
	CurrencyCode        string  `json:"currency_code" binding:"required,len=3"`
}

// Get handles GET /settings.
func (h *Handler) Get(c *gin.Context) {
	s, err := h.repo.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("get settings", zap.Error(err))
		response.Internal(c, "failed to load settings")
		return
	}
	response.OK(c, s)
}

// Update handles PUT /settings.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := models.SystemSettings{
		DefaultInterestRate: req.DefaultInterestRate,
		LatePaymentPenalty:  req.LatePaymentPenalty,
		PaymentReminderDays: req.PaymentReminderDays,
		InsuranceExpiryDays: req.InsuranceExpiryDays,
		MaxDocumentSizeMB:   req.MaxDocumentSizeMB,
		CurrencySymbol:      req.CurrencySymbol,
		CurrencyCode:        req.CurrencyCode,
	}
	if err := h.repo.Update(c.Request.Context(), s); err != nil {
		h.logger.Error("update settings", zap.Error(err))
		response.Internal(c, "failed to update settings")
		return
	}
	response.OK(c, s)
}
