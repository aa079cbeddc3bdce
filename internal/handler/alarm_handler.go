package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temporade/chronicle-api/internal/service"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
	"github.com/temporade/chronicle-api/pkg/response"
)

// AlarmHandler exposes the alarm scanner.
type AlarmHandler struct {
	alarms *service.AlarmService
}

// NewAlarmHandler creates a new handler.
func NewAlarmHandler(alarms *service.AlarmService) *AlarmHandler {
	return &AlarmHandler{alarms: alarms}
}

// List godoc
// @Summary List active alarms
// @Description Alarms of the calendar ringing at the probe time (default now)
// @Tags Alarms
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param at query string false "Probe time (RFC 3339)"
// @Param full query bool false "Return full alarm states instead of event ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /calendars/{calendarId}/alarms [get]
func (h *AlarmHandler) List(c *gin.Context) {
	asOf := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid probe time"))
			return
		}
		asOf = parsed
	}

	alarms, err := h.alarms.ActiveAlarms(c.Request.Context(), c.Param("calendarId"), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("full") == "true" {
		response.JSON(c, http.StatusOK, alarms, nil)
		return
	}
	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.EventID)
	}
	response.JSON(c, http.StatusOK, ids, nil)
}
