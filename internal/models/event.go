package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DateLayout is the civil-date key format used for exception dates and
// override lookups.
const DateLayout = "2006-01-02"

// EventStatus is the scheduling status of an event.
type EventStatus int

const (
	StatusNone      EventStatus = 0
	StatusTentative EventStatus = 1
	StatusConfirmed EventStatus = 2
	StatusCancelled EventStatus = 3
	StatusFree      EventStatus = 4
)

// EventKind selects behavior where it genuinely differs between record
// flavours (cascade eligibility); there is no subclassing.
type EventKind string

const (
	// KindSingle is a plain one-occurrence event.
	KindSingle EventKind = "single"
	// KindRoot is the stored record carrying a recurrence rule.
	KindRoot EventKind = "root"
	// KindException is a detached record overriding one instance of a root.
	KindException EventKind = "exception"
)

// OverrideMap maps an instance-origin date (DateLayout) to the uid of the
// detached event record replacing that instance. Stored as JSONB.
type OverrideMap map[string]string

// Value implements driver.Valuer.
func (m OverrideMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *OverrideMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported override map source %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// EventRecord is the persisted calendar entity, single or recurring.
type EventRecord struct {
	ID          string `db:"id" json:"id"`
	UID         string `db:"uid" json:"uid"`
	CalendarID  string `db:"calendar_id" json:"calendar_id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Location    string `db:"location" json:"location"`
	CreatorID   string `db:"creator_id" json:"creator_id"`

	Status  EventStatus `db:"status" json:"status"`
	Private bool        `db:"private" json:"private"`

	AllDay  bool      `db:"all_day" json:"all_day"`
	StartAt time.Time `db:"start_at" json:"start_at"`
	EndAt   time.Time `db:"end_at" json:"end_at"`
	// Alarm is the offset in minutes before StartAt during which an alarm is
	// considered active; zero means no alarm.
	Alarm int `db:"alarm" json:"alarm"`

	RecurType     RecurrenceType `db:"recur_type" json:"recur_type"`
	RecurInterval int            `db:"recur_interval" json:"recur_interval,omitempty"`
	RecurCount    int            `db:"recur_count" json:"recur_count,omitempty"`
	RecurEndAt    *time.Time     `db:"recur_end_at" json:"recur_end_at,omitempty"`
	RecurDays     WeekdayMask    `db:"recur_days" json:"recur_days,omitempty"`

	// BaseID references the uid of the root event this record overrides as a
	// detached exception; empty for singles and roots.
	BaseID string `db:"base_id" json:"base_id,omitempty"`
	// OriginalDate is the instance-origin date an exception record replaces,
	// kept for history correlation even when the exception moved days.
	OriginalDate *time.Time `db:"original_date" json:"original_date,omitempty"`

	ExceptionDates     pq.StringArray `db:"exception_dates" json:"exception_dates,omitempty"`
	ExceptionOverrides OverrideMap    `db:"exception_overrides" json:"exception_overrides,omitempty"`

	Tags pq.StringArray `db:"-" json:"tags,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Persisted reports whether the record carries a store-assigned id.
func (e *EventRecord) Persisted() bool {
	return e.ID != ""
}

// Recurs reports whether the record is the root of a series.
func (e *EventRecord) Recurs() bool {
	return e.RecurType.Valid() && e.RecurType != RecurNone
}

// Kind classifies the record; exceptions win over recurrence so a corrupt
// recurring exception still reports KindException for integrity checks.
func (e *EventRecord) Kind() EventKind {
	switch {
	case e.BaseID != "":
		return KindException
	case e.Recurs():
		return KindRoot
	default:
		return KindSingle
	}
}

// Rule assembles the recurrence value type from the persisted columns.
func (e *EventRecord) Rule() RecurrenceRule {
	return RecurrenceRule{
		Type:     e.RecurType,
		Interval: e.RecurInterval,
		Days:     e.RecurDays,
		Count:    e.RecurCount,
		Until:    e.RecurEndAt,
	}
}

// HasExceptionOn reports whether the instance on the given civil date is
// suppressed, either skipped outright or replaced by a detached override.
func (e *EventRecord) HasExceptionOn(date time.Time) bool {
	key := date.Format(DateLayout)
	for _, d := range e.ExceptionDates {
		if d == key {
			return true
		}
	}
	_, overridden := e.ExceptionOverrides[key]
	return overridden
}

// OverrideUIDOn returns the uid of the detached record replacing the
// instance on the given date, if any.
func (e *EventRecord) OverrideUIDOn(date time.Time) (string, bool) {
	uid, ok := e.ExceptionOverrides[date.Format(DateLayout)]
	return uid, ok
}

// DaySpan returns the whole-day difference between the start and end civil
// dates, used to project an instance's effective end onto a new date.
func (e *EventRecord) DaySpan() int {
	start := time.Date(e.StartAt.Year(), e.StartAt.Month(), e.StartAt.Day(), 0, 0, 0, 0, e.StartAt.Location())
	end := time.Date(e.EndAt.Year(), e.EndAt.Month(), e.EndAt.Day(), 0, 0, 0, 0, e.EndAt.Location())
	days := int(end.Sub(start).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Occurrence is one concrete materialization of an event. Derived, never
// persisted; its lifetime is query-scoped.
type Occurrence struct {
	EventID      string    `json:"event_id"`
	UID          string    `json:"uid"`
	CalendarID   string    `json:"calendar_id"`
	InstanceDate time.Time `json:"instance_date"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IsOverride   bool      `json:"is_override"`

	// Display fields copied off the record so cached occurrences survive
	// the round trip without it.
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	AllDay   bool   `json:"all_day,omitempty"`

	Event *EventRecord `json:"-"`
}

// AlarmState reports whether an occurrence currently has an active alarm.
type AlarmState struct {
	EventID    string     `json:"event_id"`
	Occurrence Occurrence `json:"occurrence"`
	Active     bool       `json:"active"`
}

// EventFilter narrows the coarse candidate scan.
type EventFilter struct {
	// Start/End bound the query interval; a nil End leaves the scan
	// open-ended (used by the alarm scanner).
	Start *time.Time
	End   *time.Time
	// AlarmsOnly keeps only events with a non-zero alarm offset.
	AlarmsOnly bool
	// HideExceptions drops candidates whose base_id is set.
	HideExceptions bool
}
