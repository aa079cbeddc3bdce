package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temporade/chronicle-api/internal/models"
	"github.com/temporade/chronicle-api/internal/service"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
	"github.com/temporade/chronicle-api/pkg/response"
)

// ExportHandler serves agenda downloads.
type ExportHandler struct {
	exports *service.ExportService
	loc     *time.Location
}

// NewExportHandler creates a new handler.
func NewExportHandler(exports *service.ExportService, loc *time.Location) *ExportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportHandler{exports: exports, loc: loc}
}

// Agenda godoc
// @Summary Export agenda
// @Description Download the expanded agenda of [start, end) as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param calendarId path string true "Calendar id"
// @Param start query string true "Range start (YYYY-MM-DD)"
// @Param end query string true "Range end (YYYY-MM-DD)"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /calendars/{calendarId}/export [get]
func (h *ExportHandler) Agenda(c *gin.Context) {
	rangeStart, err := time.ParseInLocation(models.DateLayout, c.Query("start"), h.loc)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid start"))
		return
	}
	rangeEnd, err := time.ParseInLocation(models.DateLayout, c.Query("end"), h.loc)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid end"))
		return
	}

	calendarID := c.Param("calendarId")
	filename := fmt.Sprintf("agenda-%s-%s", c.Query("start"), c.Query("end"))

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.exports.AgendaCSV(c.Request.Context(), calendarID, rangeStart, rangeEnd)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, filename))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.exports.AgendaPDF(c.Request.Context(), calendarID, rangeStart, rangeEnd)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported export format"))
	}
}
