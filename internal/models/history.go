package models

import "time"

// HistoryAction enumerates the mutations recorded in the history log.
type HistoryAction string

const (
	HistoryAdd    HistoryAction = "add"
	HistoryModify HistoryAction = "modify"
	HistoryDelete HistoryAction = "delete"
)

// HistoryEntry is one line of an event's mutation history.
type HistoryEntry struct {
	ID         string    `db:"id" json:"id"`
	CalendarID string    `db:"calendar_id" json:"calendar_id"`
	EventUID   string    `db:"event_uid" json:"event_uid"`
	Action     string    `db:"action" json:"action"`
	LoggedAt   time.Time `db:"logged_at" json:"logged_at"`
}
