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

// OccurrenceHandler serves interval queries over a calendar.
type OccurrenceHandler struct {
	planner *service.OccurrenceService
	loc     *time.Location
}

// NewOccurrenceHandler creates a new handler.
func NewOccurrenceHandler(planner *service.OccurrenceService, loc *time.Location) *OccurrenceHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &OccurrenceHandler{planner: planner, loc: loc}
}

// listEventsResponse groups occurrences per covered day so calendar views
// can render without re-bucketing; sig lets clients match a response to the
// view that requested it.
type listEventsResponse struct {
	Calendar string                         `json:"cal"`
	Sig      string                         `json:"sig"`
	Days     map[string][]models.Occurrence `json:"days"`
}

// List godoc
// @Summary List occurrences
// @Description Expand every occurrence of the calendar intersecting [start, end)
// @Tags Occurrences
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param start query string true "Range start (RFC 3339 or YYYY-MM-DD)"
// @Param end query string true "Range end (RFC 3339 or YYYY-MM-DD)"
// @Param expand query bool false "Expand recurring series (default true)"
// @Param alarms query bool false "Only events with alarms"
// @Param hide_exceptions query bool false "Drop detached exception records"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /calendars/{calendarId}/occurrences [get]
func (h *OccurrenceHandler) List(c *gin.Context) {
	rangeStart, err := h.parseTime(c.Query("start"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid start"))
		return
	}
	rangeEnd, err := h.parseTime(c.Query("end"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid end"))
		return
	}

	opts := service.DefaultListOptions()
	if c.Query("expand") == "false" {
		opts.ExpandRecurrence = false
	}
	opts.IncludeAlarmsOnly = c.Query("alarms") == "true"
	opts.ExcludeExceptions = c.Query("hide_exceptions") == "true"

	calendarID := c.Param("calendarId")
	occurrences, err := h.planner.ListOccurrences(c.Request.Context(), calendarID, rangeStart, rangeEnd, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	res := listEventsResponse{
		Calendar: calendarID,
		Sig:      fmt.Sprintf("%s%s", rangeStart.Format("20060102"), rangeEnd.Format("20060102")),
		Days:     h.planner.GroupByDay(occurrences, rangeStart, rangeEnd),
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func (h *OccurrenceHandler) parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.ParseInLocation(models.DateLayout, raw, h.loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(h.loc), nil
}
