package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

type mockEventStore struct {
	events    map[string]*models.EventRecord
	insertErr error
	deleteErr error
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{events: make(map[string]*models.EventRecord)}
}

func (m *mockEventStore) GetByID(ctx context.Context, calendarID, id string) (*models.EventRecord, error) {
	if e, ok := m.events[id]; ok && e.CalendarID == calendarID {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventStore) ListByUID(ctx context.Context, eventUID string, calendarIDs []string) ([]models.EventRecord, error) {
	var out []models.EventRecord
	for _, e := range m.events {
		if e.UID == eventUID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEventStore) ListInRange(ctx context.Context, calendarID string, filter models.EventFilter) ([]models.EventRecord, error) {
	var out []models.EventRecord
	for _, e := range m.events {
		if e.CalendarID == calendarID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEventStore) ListByBaseID(ctx context.Context, calendarID, baseUID string) ([]models.EventRecord, error) {
	var out []models.EventRecord
	for _, e := range m.events {
		if e.CalendarID == calendarID && e.BaseID == baseUID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEventStore) Insert(ctx context.Context, event *models.EventRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.UID == "" {
		event.UID = uuid.NewString()
	}
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *mockEventStore) Update(ctx context.Context, event *models.EventRecord) error {
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *mockEventStore) Delete(ctx context.Context, calendarID, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.events, id)
	return nil
}

func (m *mockEventStore) DeleteCalendar(ctx context.Context, calendarID string) error {
	for id, e := range m.events {
		if e.CalendarID == calendarID {
			delete(m.events, id)
		}
	}
	return nil
}

func (m *mockEventStore) Move(ctx context.Context, id, fromCalendar, toCalendar string) error {
	if e, ok := m.events[id]; ok && e.CalendarID == fromCalendar {
		e.CalendarID = toCalendar
	}
	return nil
}

func (m *mockEventStore) Count(ctx context.Context, calendarID string) (int, error) {
	var n int
	for _, e := range m.events {
		if e.CalendarID == calendarID {
			n++
		}
	}
	return n, nil
}

type recordingHook struct {
	name  string
	fatal bool
	err   error
	calls []string
}

func (h *recordingHook) Name() string { return h.name }
func (h *recordingHook) Fatal() bool  { return h.fatal }
func (h *recordingHook) Run(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	h.calls = append(h.calls, string(action)+":"+event.UID)
	return h.err
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

type recordingHistory struct {
	entries [][2]string
}

func (r *recordingHistory) Log(ctx context.Context, calendarID, eventUID string, action models.HistoryAction) error {
	r.entries = append(r.entries, [2]string{eventUID, string(action)})
	return nil
}

func validSaveRequest() SaveEventRequest {
	return SaveEventRequest{
		CalendarID: "cal1",
		Title:      "standup",
		StartAt:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		EndAt:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEventServiceCreateRunsHooks(t *testing.T) {
	store := newMockEventStore()
	hook := &recordingHook{name: "probe"}
	svc := NewEventService(store, nil, nil, nil, []Hook{hook}, nil)

	event, err := svc.Create(context.Background(), validSaveRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.UID)
	require.Len(t, hook.calls, 1)
	assert.Equal(t, "add:"+event.UID, hook.calls[0])
}

func TestEventServiceCreateFatalHookFailure(t *testing.T) {
	store := newMockEventStore()
	hook := &recordingHook{name: "tags", fatal: true, err: errors.New("tag store down")}
	svc := NewEventService(store, nil, nil, nil, []Hook{hook}, nil)

	_, err := svc.Create(context.Background(), validSaveRequest())
	require.Error(t, err)
}

func TestEventServiceCreateNonFatalHookSwallowed(t *testing.T) {
	store := newMockEventStore()
	hook := &recordingHook{name: "notifications", err: errors.New("smtp down")}
	svc := NewEventService(store, nil, nil, nil, []Hook{hook}, nil)

	_, err := svc.Create(context.Background(), validSaveRequest())
	require.NoError(t, err)
}

func TestEventServiceCreateZeroIntervalRejected(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	req := validSaveRequest()
	req.RecurType = string(models.RecurDaily)
	req.RecurInterval = 0
	_, err := svc.Create(context.Background(), req)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErr.Code)
}

func TestEventServiceCreateRecurringExceptionRejected(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	req := validSaveRequest()
	req.RecurType = string(models.RecurDaily)
	req.RecurInterval = 1
	req.BaseID = "root-uid"
	_, err := svc.Create(context.Background(), req)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEventServiceExceptionSaveTouchesBaseHistory(t *testing.T) {
	store := newMockEventStore()
	history := &recordingHistory{}
	svc := NewEventService(store, nil, nil, nil, []Hook{NewHistoryHook(history)}, nil)

	req := validSaveRequest()
	req.BaseID = "root-uid"
	req.OriginalDate = timePtr(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	event, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, history.entries, 2)
	assert.Equal(t, [2]string{event.UID, "add"}, history.entries[0])
	assert.Equal(t, [2]string{"root-uid", "modify"}, history.entries[1])
}

func TestEventServiceUpdateKeepsUID(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	created, err := svc.Create(context.Background(), validSaveRequest())
	require.NoError(t, err)

	req := validSaveRequest()
	req.Title = "renamed"
	updated, err := svc.Update(context.Background(), "cal1", created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.UID, updated.UID)
	assert.Equal(t, "renamed", updated.Title)
}

func TestEventServiceUpdateMissingEventNotFound(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	_, err := svc.Update(context.Background(), "cal1", "ghost", validSaveRequest())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEventServiceDeleteCascadesExceptions(t *testing.T) {
	store := newMockEventStore()
	hook := &recordingHook{name: "probe"}
	svc := NewEventService(store, nil, nil, nil, []Hook{hook}, nil)

	root := &models.EventRecord{
		ID: "root", UID: "root-uid", CalendarID: "cal1", Title: "standup",
		StartAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RecurType: models.RecurDaily, RecurInterval: 1,
	}
	exc := &models.EventRecord{
		ID: "exc", UID: "exc-uid", CalendarID: "cal1", Title: "standup (moved)",
		StartAt: time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		RecurType: models.RecurNone, BaseID: "root-uid",
	}
	store.events[root.ID] = root
	store.events[exc.ID] = exc

	require.NoError(t, svc.Delete(context.Background(), "cal1", "root"))
	assert.Empty(t, store.events)
	assert.Contains(t, hook.calls, "delete:root-uid")
	assert.Contains(t, hook.calls, "delete:exc-uid")

	// a repeated cascade finds nothing left and succeeds trivially
	require.NoError(t, svc.CascadeExceptions(context.Background(), "cal1", "root-uid"))
}

func TestEventServiceDeleteCascadeDetectsCorruptException(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	root := &models.EventRecord{
		ID: "root", UID: "root-uid", CalendarID: "cal1", Title: "standup",
		StartAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RecurType: models.RecurDaily, RecurInterval: 1,
	}
	corrupt := &models.EventRecord{
		ID: "exc", UID: "exc-uid", CalendarID: "cal1", Title: "bad",
		StartAt: time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		RecurType: models.RecurWeekly, RecurInterval: 1, BaseID: "root-uid",
	}
	store.events[root.ID] = root
	store.events[corrupt.ID] = corrupt

	err := svc.Delete(context.Background(), "cal1", "root")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDataIntegrity.Code, appErr.Code)
	// the corrupt record is left in place for repair
	assert.Contains(t, store.events, "exc")
}

func TestEventServiceMoveInvalidatesBothCalendars(t *testing.T) {
	store := newMockEventStore()
	invalidator := &recordingInvalidator{}
	svc := NewEventService(store, invalidator, nil, nil, nil, nil)

	created, err := svc.Create(context.Background(), validSaveRequest())
	require.NoError(t, err)
	invalidator.patterns = nil

	moved, err := svc.Move(context.Background(), created.ID, "cal1", "cal2")
	require.NoError(t, err)
	assert.Equal(t, "cal2", moved.CalendarID)
	assert.Equal(t, created.UID, moved.UID)
	assert.Contains(t, invalidator.patterns, "occurrences:cal1:*")
	assert.Contains(t, invalidator.patterns, "occurrences:cal2:*")
}

func TestEventServiceDeleteMissingEventNotFound(t *testing.T) {
	store := newMockEventStore()
	svc := NewEventService(store, nil, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), "cal1", "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
