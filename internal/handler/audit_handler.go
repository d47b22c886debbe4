package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type auditReader interface {
	List(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error)
}

// AuditHandler exposes the attendance audit trail to administrators.
type AuditHandler struct {
	audit auditReader
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary Audit trail of an attendance record
// @Tags Attendance Admin
// @Produce json
// @Param recordId path string true "Record ID"
// @Param limit query int false "Maximum entries (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/{recordId}/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.AuditListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, queryError(err))
		return
	}
	entries, err := h.audit.List(c.Request.Context(), c.Param("recordId"), query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, "", map[string]interface{}{"count": len(entries)})
}
