package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TagRepository persists the tag sets attached to events, keyed by event
// uid so tags survive calendar moves.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository constructs a tag repository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Replace rewrites the complete tag set of an event.
func (r *TagRepository) Replace(ctx context.Context, eventUID string, tags []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_uid = $1", eventUID); err != nil {
		return fmt.Errorf("clear event tags: %w", err)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_tags (event_uid, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			eventUID, tag); err != nil {
			return fmt.Errorf("insert event tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag replace: %w", err)
	}
	return nil
}

// List returns the tags of an event.
func (r *TagRepository) List(ctx context.Context, eventUID string) ([]string, error) {
	var tags []string
	if err := r.db.SelectContext(ctx, &tags,
		"SELECT tag FROM event_tags WHERE event_uid = $1 ORDER BY tag ASC", eventUID); err != nil {
		return nil, fmt.Errorf("list event tags: %w", err)
	}
	return tags, nil
}
