package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/temporade/chronicle-api/internal/models"
)

// HistoryRepository appends mutation entries to the event history log.
// Entries are keyed by calendar and event uid; sync clients replay them to
// pick up changes, which is why exception saves also touch the base event.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs a history repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Log appends one history entry.
func (r *HistoryRepository) Log(ctx context.Context, calendarID, eventUID string, action models.HistoryAction) error {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO event_history (id, calendar_id, event_uid, action, logged_at) VALUES ($1, $2, $3, $4, $5)",
		uuid.NewString(), calendarID, eventUID, string(action), time.Now().UTC()); err != nil {
		return fmt.Errorf("log event history: %w", err)
	}
	return nil
}

// ListByUID returns the history of one event, newest first.
func (r *HistoryRepository) ListByUID(ctx context.Context, calendarID, eventUID string) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries,
		"SELECT id, calendar_id, event_uid, action, logged_at FROM event_history WHERE calendar_id = $1 AND event_uid = $2 ORDER BY logged_at DESC",
		calendarID, eventUID); err != nil {
		return nil, fmt.Errorf("list event history: %w", err)
	}
	return entries, nil
}
