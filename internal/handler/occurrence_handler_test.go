package handler

import (
	"context"
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

type occurrenceStoreMock struct {
	events []models.EventRecord
}

func (m *occurrenceStoreMock) GetByID(ctx context.Context, calendarID, id string) (*models.EventRecord, error) {
	return nil, nil
}

func (m *occurrenceStoreMock) ListByUID(ctx context.Context, eventUID string, calendarIDs []string) ([]models.EventRecord, error) {
	return nil, nil
}

func (m *occurrenceStoreMock) ListInRange(ctx context.Context, calendarID string, filter models.EventFilter) ([]models.EventRecord, error) {
	return m.events, nil
}

func newOccurrenceTestHandler(events []models.EventRecord) *OccurrenceHandler {
	planner := service.NewOccurrenceService(&occurrenceStoreMock{events: events}, nil, nil, time.UTC, 0, nil)
	return NewOccurrenceHandler(planner, time.UTC)
}

func TestOccurrenceHandlerListGroupsByDay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newOccurrenceTestHandler([]models.EventRecord{
		{
			ID: "ev1", UID: "u1", CalendarID: "cal1", Title: "standup",
			StartAt:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
			EndAt:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			RecurType: models.RecurNone,
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/occurrences?start=2024-01-01&end=2024-01-08", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "calendarId", Value: "cal1"}}

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Calendar string                     `json:"cal"`
			Sig      string                     `json:"sig"`
			Days     map[string]json.RawMessage `json:"days"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "cal1", envelope.Data.Calendar)
	assert.Equal(t, "2024010120240108", envelope.Data.Sig)
	assert.Contains(t, envelope.Data.Days, "20240102")
}

func TestOccurrenceHandlerListInvalidStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newOccurrenceTestHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/occurrences?start=tomorrow&end=2024-01-08", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "calendarId", Value: "cal1"}}

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
