package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporade/chronicle-api/internal/models"
)

func newEventRepoMock(t *testing.T) (*EventRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewEventRepository(sqlx.NewDb(db, "sqlmock"), NewEventCache(), time.UTC, false)
	return repo, mock, func() { db.Close() }
}

var eventCols = []string{
	"id", "uid", "calendar_id", "title", "description", "location", "creator_id", "status", "private", "all_day",
	"start_at", "end_at", "alarm", "recur_type", "recur_interval", "recur_count", "recur_end_at", "recur_days",
	"base_id", "original_date", "exception_dates", "exception_overrides", "created_at", "updated_at",
}

func addEventRow(rows *sqlmock.Rows, id, uid, calendarID, recurType string) *sqlmock.Rows {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, uid, calendarID, "standup", "", "", "user1", 2, false, false,
		now, now.Add(time.Hour), 0, recurType, 1, 0, nil, 0,
		"", nil, "{}", []byte("{}"), now, now,
	)
}

func TestEventRepositoryGetByIDCachesRecord(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	rows := addEventRow(sqlmock.NewRows(eventCols), "ev1", "uid1", "cal1", "none")
	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE id = $1 AND calendar_id = $2")).
		WithArgs("ev1", "cal1").
		WillReturnRows(rows)

	event, err := repo.GetByID(context.Background(), "cal1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, "uid1", event.UID)

	// second fetch is served from the memo cache, no query expected
	again, err := repo.GetByID(context.Background(), "cal1", "ev1")
	require.NoError(t, err)
	assert.Equal(t, event.ID, again.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListInRangeCoarseScan(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	rows := addEventRow(sqlmock.NewRows(eventCols), "ev1", "uid1", "cal1", "daily")
	mock.ExpectQuery(regexp.QuoteMeta("recur_type <> 'none'")).
		WithArgs("cal1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	events, err := repo.ListInRange(context.Background(), "cal1", models.EventFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.RecurDaily, events[0].RecurType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListInRangeBackfillsUID(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	rows := addEventRow(sqlmock.NewRows(eventCols), "ev1", "", "cal1", "none")
	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE calendar_id = $1")).
		WithArgs("cal1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE calendar_events SET uid = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "ev1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	events, err := repo.ListInRange(context.Background(), "cal1", models.EventFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].UID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryInsertAssignsIdentity(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO calendar_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.EventRecord{
		CalendarID: "cal1",
		Title:      "standup",
		StartAt:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		EndAt:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RecurType:  models.RecurNone,
	}
	require.NoError(t, repo.Insert(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.UID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryDeleteInvalidatesCache(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	rows := addEventRow(sqlmock.NewRows(eventCols), "ev1", "uid1", "cal1", "none")
	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE id = $1 AND calendar_id = $2")).
		WithArgs("ev1", "cal1").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events WHERE id = $1 AND calendar_id = $2")).
		WithArgs("ev1", "cal1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// post-delete fetch must go back to the store
	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE id = $1 AND calendar_id = $2")).
		WithArgs("ev1", "cal1").
		WillReturnRows(sqlmock.NewRows(eventCols))

	_, err := repo.GetByID(context.Background(), "cal1", "ev1")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(context.Background(), "cal1", "ev1"))
	_, err = repo.GetByID(context.Background(), "cal1", "ev1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryMoveKeepsIdentity(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE calendar_events SET calendar_id = $1")).
		WithArgs("cal2", sqlmock.AnyArg(), "cal1", "ev1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Move(context.Background(), "ev1", "cal1", "cal2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCount(t *testing.T) {
	repo, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM calendar_events WHERE calendar_id = $1")).
		WithArgs("cal1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.Count(context.Background(), "cal1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
