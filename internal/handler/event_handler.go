package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temporade/chronicle-api/internal/service"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
	"github.com/temporade/chronicle-api/pkg/response"
)

// EventHandler exposes the event lifecycle over HTTP.
type EventHandler struct {
	events *service.EventService
}

// NewEventHandler creates a new handler.
func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// Get godoc
// @Summary Get event
// @Description Fetch one event of a calendar by id
// @Tags Events
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param eventId path string true "Event id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{calendarId}/events/{eventId} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), c.Param("calendarId"), c.Param("eventId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// GetByUID godoc
// @Summary Resolve event by uid
// @Description Find an event by its portable uid across calendars
// @Tags Events
// @Produce json
// @Param uid path string true "Event uid"
// @Param calendars query []string false "Calendar ids to search"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{uid} [get]
func (h *EventHandler) GetByUID(c *gin.Context) {
	event, err := h.events.GetByUID(c.Request.Context(), c.Param("uid"), c.QueryArray("calendars"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Description Persist a new event, single or recurring
// @Tags Events
// @Accept json
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param payload body service.SaveEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calendars/{calendarId}/events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.SaveEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	req.CalendarID = c.Param("calendarId")

	event, err := h.events.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update event
// @Description Rewrite a persisted event
// @Tags Events
// @Accept json
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param eventId path string true "Event id"
// @Param payload body service.SaveEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{calendarId}/events/{eventId} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req service.SaveEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	if req.CalendarID == "" {
		req.CalendarID = c.Param("calendarId")
	}

	event, err := h.events.Update(c.Request.Context(), c.Param("calendarId"), c.Param("eventId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Description Delete an event; a recurring root cascades over its exceptions
// @Tags Events
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param eventId path string true "Event id"
// @Param silent query bool false "Suppress notifications"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{calendarId}/events/{eventId} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("silent") == "true" {
		ctx = service.WithSilent(ctx)
	}
	if err := h.events.Delete(ctx, c.Param("calendarId"), c.Param("eventId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Move godoc
// @Summary Move event
// @Description Reassign an event to another calendar, keeping id and uid
// @Tags Events
// @Accept json
// @Produce json
// @Param calendarId path string true "Source calendar id"
// @Param eventId path string true "Event id"
// @Param payload body object true "Target calendar"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{calendarId}/events/{eventId}/move [post]
func (h *EventHandler) Move(c *gin.Context) {
	var payload struct {
		TargetCalendarID string `json:"target_calendar_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "target calendar required"))
		return
	}

	event, err := h.events.Move(c.Request.Context(), c.Param("eventId"), c.Param("calendarId"), payload.TargetCalendarID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// DeleteCalendar godoc
// @Summary Delete calendar contents
// @Description Drop every event of a calendar
// @Tags Events
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Success 204 {object} response.Envelope
// @Router /calendars/{calendarId} [delete]
func (h *EventHandler) DeleteCalendar(c *gin.Context) {
	if err := h.events.DeleteCalendar(c.Request.Context(), c.Param("calendarId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Event history
// @Description Mutation log of an event, newest first
// @Tags Events
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Param uid path string true "Event uid"
// @Success 200 {object} response.Envelope
// @Router /calendars/{calendarId}/history/{uid} [get]
func (h *EventHandler) History(c *gin.Context) {
	entries, err := h.events.History(c.Request.Context(), c.Param("calendarId"), c.Param("uid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Count godoc
// @Summary Count events
// @Description Number of stored events in a calendar
// @Tags Events
// @Produce json
// @Param calendarId path string true "Calendar id"
// @Success 200 {object} response.Envelope
// @Router /calendars/{calendarId}/events/count [get]
func (h *EventHandler) Count(c *gin.Context) {
	total, err := h.events.Count(c.Request.Context(), c.Param("calendarId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": total}, nil)
}
