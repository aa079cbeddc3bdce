package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/temporade/chronicle-api/internal/models"
)

const eventColumns = `id, uid, calendar_id, title, description, location, creator_id, status, private, all_day,
start_at, end_at, alarm, recur_type, recur_interval, recur_count, recur_end_at, recur_days,
base_id, original_date, exception_dates, exception_overrides, created_at, updated_at`

// EventRepository persists calendar event records. Civil timestamps are
// interpreted in the reference location and optionally normalized to UTC at
// the storage boundary.
type EventRepository struct {
	db       *sqlx.DB
	cache    *EventCache
	loc      *time.Location
	storeUTC bool
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *sqlx.DB, cache *EventCache, loc *time.Location, storeUTC bool) *EventRepository {
	if cache == nil {
		cache = NewEventCache()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EventRepository{db: db, cache: cache, loc: loc, storeUTC: storeUTC}
}

// GetByID fetches one event of a calendar, read-through cached.
func (r *EventRepository) GetByID(ctx context.Context, calendarID, id string) (*models.EventRecord, error) {
	if event, ok := r.cache.Get(calendarID, id); ok {
		return event, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE id = $1 AND calendar_id = $2`, eventColumns)
	var event models.EventRecord
	if err := r.db.GetContext(ctx, &event, query, id, calendarID); err != nil {
		return nil, err
	}
	r.normalize(&event)
	r.cache.Put(calendarID, &event)
	return &event, nil
}

// ListByUID returns every event carrying the uid, optionally restricted to
// a set of calendars, ordered so lookups are deterministic.
func (r *EventRepository) ListByUID(ctx context.Context, eventUID string, calendarIDs []string) ([]models.EventRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE uid = $1`, eventColumns)
	args := []interface{}{eventUID}
	if len(calendarIDs) > 0 {
		query += ` AND calendar_id = ANY($2)`
		args = append(args, pq.Array(calendarIDs))
	}
	query += ` ORDER BY calendar_id ASC, id ASC`

	var events []models.EventRecord
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events by uid: %w", err)
	}
	for i := range events {
		r.normalize(&events[i])
		r.cache.Put(events[i].CalendarID, &events[i])
	}
	return events, nil
}

// ListInRange performs the coarse candidate scan: every record whose own
// span overlaps the interval, or whose recurrence window could still reach
// into it. A nil filter end leaves the scan open-ended.
func (r *EventRepository) ListInRange(ctx context.Context, calendarID string, filter models.EventFilter) ([]models.EventRecord, error) {
	where := []string{"calendar_id = $1"}
	args := []interface{}{calendarID}

	if filter.AlarmsOnly {
		where = append(where, "alarm > 0")
	}
	if filter.HideExceptions {
		where = append(where, "base_id = ''")
	}

	switch {
	case filter.Start != nil && filter.End != nil:
		s, e := r.toStore(*filter.Start), r.toStore(*filter.End)
		where = append(where, fmt.Sprintf(
			`((end_at >= $%d AND start_at <= $%d) OR (recur_type <> 'none' AND start_at <= $%d AND (recur_end_at IS NULL OR recur_end_at >= $%d)))`,
			len(args)+1, len(args)+2, len(args)+2, len(args)+1))
		args = append(args, s, e)
	case filter.Start != nil:
		s := r.toStore(*filter.Start)
		where = append(where, fmt.Sprintf(
			`(end_at >= $%d OR (recur_type <> 'none' AND (recur_end_at IS NULL OR recur_end_at >= $%d)))`,
			len(args)+1, len(args)+1))
		args = append(args, s)
	case filter.End != nil:
		where = append(where, fmt.Sprintf("start_at <= $%d", len(args)+1))
		args = append(args, r.toStore(*filter.End))
	}

	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE %s ORDER BY start_at ASC, id ASC`,
		eventColumns, strings.Join(where, " AND "))

	var events []models.EventRecord
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("scan calendar range: %w", err)
	}

	for i := range events {
		r.normalize(&events[i])
		if events[i].UID == "" {
			// legacy rows may predate uid assignment; backfill immediately
			// so exception linkage stays sound
			if err := r.backfillUID(ctx, &events[i]); err != nil {
				return nil, err
			}
		}
		r.cache.Put(calendarID, &events[i])
	}
	return events, nil
}

// ListByBaseID returns the detached exception records of a root event,
// identified by the root's uid.
func (r *EventRepository) ListByBaseID(ctx context.Context, calendarID, baseUID string) ([]models.EventRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events WHERE base_id = $1 AND calendar_id = $2 ORDER BY id ASC`, eventColumns)
	var events []models.EventRecord
	if err := r.db.SelectContext(ctx, &events, query, baseUID, calendarID); err != nil {
		return nil, fmt.Errorf("list exception events: %w", err)
	}
	for i := range events {
		r.normalize(&events[i])
	}
	return events, nil
}

// Insert stores a transient record, allocating id and uid when absent.
func (r *EventRepository) Insert(ctx context.Context, event *models.EventRecord) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.UID == "" {
		event.UID = uuid.NewString()
	}
	now := time.Now().In(r.loc)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	stored := r.storable(event)
	query := `INSERT INTO calendar_events (` + strings.ReplaceAll(eventColumns, "\n", " ") + `)
VALUES (:id, :uid, :calendar_id, :title, :description, :location, :creator_id, :status, :private, :all_day,
:start_at, :end_at, :alarm, :recur_type, :recur_interval, :recur_count, :recur_end_at, :recur_days,
:base_id, :original_date, :exception_dates, :exception_overrides, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, stored); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	r.cache.Invalidate(event.CalendarID, event.ID)
	return nil
}

// Update rewrites a persisted record in place.
func (r *EventRepository) Update(ctx context.Context, event *models.EventRecord) error {
	event.UpdatedAt = time.Now().In(r.loc)
	stored := r.storable(event)
	query := `UPDATE calendar_events SET uid = :uid, calendar_id = :calendar_id, title = :title,
description = :description, location = :location, creator_id = :creator_id, status = :status,
private = :private, all_day = :all_day, start_at = :start_at, end_at = :end_at, alarm = :alarm,
recur_type = :recur_type, recur_interval = :recur_interval, recur_count = :recur_count,
recur_end_at = :recur_end_at, recur_days = :recur_days, base_id = :base_id,
original_date = :original_date, exception_dates = :exception_dates,
exception_overrides = :exception_overrides, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, stored); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	r.cache.Invalidate(event.CalendarID, event.ID)
	return nil
}

// Delete removes one event of a calendar.
func (r *EventRepository) Delete(ctx context.Context, calendarID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = $1 AND calendar_id = $2", id, calendarID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	r.cache.Invalidate(calendarID, id)
	return nil
}

// DeleteCalendar removes every event of a calendar.
func (r *EventRepository) DeleteCalendar(ctx context.Context, calendarID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE calendar_id = $1", calendarID); err != nil {
		return fmt.Errorf("delete calendar: %w", err)
	}
	r.cache.DropCalendar(calendarID)
	return nil
}

// Move reassigns an event to another calendar, keeping id and uid stable.
func (r *EventRepository) Move(ctx context.Context, id, fromCalendar, toCalendar string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE calendar_events SET calendar_id = $1, updated_at = $2 WHERE calendar_id = $3 AND id = $4",
		toCalendar, time.Now().In(r.loc), fromCalendar, id); err != nil {
		return fmt.Errorf("move event: %w", err)
	}
	r.cache.Invalidate(fromCalendar, id)
	r.cache.Invalidate(toCalendar, id)
	return nil
}

// Count returns the number of events in a calendar.
func (r *EventRepository) Count(ctx context.Context, calendarID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM calendar_events WHERE calendar_id = $1", calendarID); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}

func (r *EventRepository) backfillUID(ctx context.Context, event *models.EventRecord) error {
	event.UID = uuid.NewString()
	if _, err := r.db.ExecContext(ctx, "UPDATE calendar_events SET uid = $1 WHERE id = $2", event.UID, event.ID); err != nil {
		return fmt.Errorf("backfill event uid: %w", err)
	}
	return nil
}

// normalize rebases timestamps read from the store into the reference
// location.
func (r *EventRepository) normalize(event *models.EventRecord) {
	event.StartAt = event.StartAt.In(r.loc)
	event.EndAt = event.EndAt.In(r.loc)
	if event.RecurEndAt != nil {
		t := event.RecurEndAt.In(r.loc)
		event.RecurEndAt = &t
	}
	if event.OriginalDate != nil {
		t := event.OriginalDate.In(r.loc)
		event.OriginalDate = &t
	}
}

// storable returns a copy with timestamps converted for storage.
func (r *EventRepository) storable(event *models.EventRecord) *models.EventRecord {
	if !r.storeUTC {
		return event
	}
	stored := *event
	stored.StartAt = event.StartAt.UTC()
	stored.EndAt = event.EndAt.UTC()
	if event.RecurEndAt != nil {
		t := event.RecurEndAt.UTC()
		stored.RecurEndAt = &t
	}
	if event.OriginalDate != nil {
		t := event.OriginalDate.UTC()
		stored.OriginalDate = &t
	}
	return &stored
}

func (r *EventRepository) toStore(t time.Time) time.Time {
	if r.storeUTC {
		return t.UTC()
	}
	return t
}
