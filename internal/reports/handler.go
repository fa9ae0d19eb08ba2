package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// VehicleLister lists the tenant's vehicles.
type VehicleLister interface {
	List(ctx context.Context, status string) ([]models.Vehicle, error)
}

// SettingsReader supplies the tenant currency.
type SettingsReader interface {
	Get(ctx context.Context) (models.SystemSettings, error)
}

// Handler serves spreadsheet exports.
type Handler struct {
	vehicles VehicleLister
	settings SettingsReader
	logger   *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(vehicles VehicleLister, settings SettingsReader, logger *zap.Logger) *Handler {
	return &Handler{vehicles: vehicles, settings: settings, logger: logger}
}

// Inventory handles GET /reports/inventory.xlsx?status=.
func (h *Handler) Inventory(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.vehicles.List(ctx, c.Query("status"))
	if err != nil {
		h.logger.Error("inventory report", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	s, err := h.settings.Get(ctx)
	if err != nil {
		h.logger.Error("inventory report settings", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	data, err := Inventory(list, s.CurrencySymbol)
	if err != nil {
		h.logger.Error("render inventory workbook", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	name := fmt.Sprintf("inventory-%s-%s.xlsx", tenancy.SchemaFrom(ctx), time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(200, xlsxContentType, data)
}
