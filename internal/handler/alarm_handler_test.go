package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporade/chronicle-api/internal/models"
	"github.com/temporade/chronicle-api/internal/service"
)

func newAlarmTestHandler(events []models.EventRecord) *AlarmHandler {
	store := &occurrenceStoreMock{events: events}
	planner := service.NewOccurrenceService(store, nil, nil, time.UTC, 0, nil)
	return NewAlarmHandler(service.NewAlarmService(store, planner, 0, nil))
}

func TestAlarmHandlerListDefaultsToEventIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAlarmTestHandler([]models.EventRecord{
		{
			ID: "ev1", UID: "u1", CalendarID: "cal1", Title: "standup", Alarm: 10,
			StartAt:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
			EndAt:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			RecurType: models.RecurNone,
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/alarms?at=2024-01-02T08:55:00Z", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "calendarId", Value: "cal1"}}

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, []string{"ev1"}, envelope.Data)
}

func TestAlarmHandlerListRejectsBadProbeTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAlarmTestHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/alarms?at=noon", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "calendarId", Value: "cal1"}}

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
