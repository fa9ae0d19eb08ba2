package audit

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/motorsales/vsms/pkg/response"
)

// Handler serves the audit trail.
type Handler struct {
	repo *Repository
}

// NewHandler creates an audit handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /audit?limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Internal(c, "failed to load audit log")
		return
	}
	response.OK(c, list)
}
