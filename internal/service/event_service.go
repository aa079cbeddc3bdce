package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

type eventWriter interface {
	eventStore
	ListByBaseID(ctx context.Context, calendarID, baseUID string) ([]models.EventRecord, error)
	Insert(ctx context.Context, event *models.EventRecord) error
	Update(ctx context.Context, event *models.EventRecord) error
	Delete(ctx context.Context, calendarID, id string) error
	DeleteCalendar(ctx context.Context, calendarID string) error
	Move(ctx context.Context, id, fromCalendar, toCalendar string) error
	Count(ctx context.Context, calendarID string) (int, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type tagReader interface {
	List(ctx context.Context, eventUID string) ([]string, error)
}

type historyReader interface {
	ListByUID(ctx context.Context, calendarID, eventUID string) ([]models.HistoryEntry, error)
}

// SaveEventRequest carries the mutable fields of an event through create
// and update. Recurrence fields are ignored unless RecurType names an
// actual pattern.
type SaveEventRequest struct {
	CalendarID  string `json:"calendar_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	Location    string `json:"location"`
	CreatorID   string `json:"creator_id"`
	Status      int    `json:"status" validate:"gte=0,lte=4"`
	Private     bool   `json:"private"`

	AllDay  bool      `json:"all_day"`
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
	Alarm   int       `json:"alarm" validate:"gte=0"`

	RecurType     string     `json:"recur_type" validate:"omitempty,recurtype"`
	RecurInterval int        `json:"recur_interval"`
	RecurCount    int        `json:"recur_count" validate:"gte=0"`
	RecurEndAt    *time.Time `json:"recur_end_at"`
	RecurDays     int        `json:"recur_days" validate:"gte=0,lt=128"`

	BaseID       string     `json:"base_id"`
	OriginalDate *time.Time `json:"original_date"`

	ExceptionDates     []string          `json:"exception_dates"`
	ExceptionOverrides map[string]string `json:"exception_overrides"`

	Tags []string `json:"tags"`
}

// EventService owns the event lifecycle: validation, insert-or-update
// dispatch, cascade deletion and the post-commit hook chain.
type EventService struct {
	store    eventWriter
	cache    cacheInvalidator
	tags     tagReader
	history  historyReader
	hooks    []Hook
	validate *validator.Validate
	logger   *zap.Logger
}

// NewEventService constructs the lifecycle service. Hooks run in the given
// order after every committed mutation.
func NewEventService(store eventWriter, cache cacheInvalidator, tags tagReader, history historyReader, hooks []Hook, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	_ = v.RegisterValidation("recurtype", func(fl validator.FieldLevel) bool {
		return models.RecurrenceType(fl.Field().String()).Valid()
	})
	return &EventService{store: store, cache: cache, tags: tags, history: history, hooks: hooks, validate: v, logger: logger}
}

// Get fetches one event by id.
func (s *EventService) Get(ctx context.Context, calendarID, id string) (*models.EventRecord, error) {
	event, err := s.store.GetByID(ctx, calendarID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event lookup failed")
	}
	s.attachTags(ctx, event)
	return event, nil
}

// History returns the mutation log of an event, newest first.
func (s *EventService) History(ctx context.Context, calendarID, eventUID string) ([]models.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	entries, err := s.history.ListByUID(ctx, calendarID, eventUID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "history lookup failed")
	}
	return entries, nil
}

func (s *EventService) attachTags(ctx context.Context, event *models.EventRecord) {
	if s.tags == nil {
		return
	}
	tags, err := s.tags.List(ctx, event.UID)
	if err != nil {
		s.logger.Warn("tag lookup failed", zap.String("event_uid", event.UID), zap.Error(err))
		return
	}
	event.Tags = tags
}

// GetByUID resolves an event by its portable uid, searching the given
// calendars (or all, when none are named) and returning the first match.
func (s *EventService) GetByUID(ctx context.Context, eventUID string, calendarIDs []string) (*models.EventRecord, error) {
	events, err := s.store.ListByUID(ctx, eventUID, calendarIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event lookup failed")
	}
	if len(events) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	event := &events[0]
	s.attachTags(ctx, event)
	return event, nil
}

// Create validates and persists a new event, then runs the hook chain.
func (s *EventService) Create(ctx context.Context, req SaveEventRequest) (*models.EventRecord, error) {
	event, err := s.buildRecord(req, nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event insert failed")
	}
	if err := s.runHooks(ctx, event, models.HistoryAdd); err != nil {
		return nil, err
	}
	s.invalidateQueries(ctx, event.CalendarID)
	return event, nil
}

// Update validates and rewrites a persisted event, then runs the hook
// chain. The uid never changes across updates.
func (s *EventService) Update(ctx context.Context, calendarID, id string, req SaveEventRequest) (*models.EventRecord, error) {
	existing, err := s.Get(ctx, calendarID, id)
	if err != nil {
		return nil, err
	}
	event, err := s.buildRecord(req, existing)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event update failed")
	}
	if err := s.runHooks(ctx, event, models.HistoryModify); err != nil {
		return nil, err
	}
	s.invalidateQueries(ctx, event.CalendarID)
	if event.CalendarID != calendarID {
		s.invalidateQueries(ctx, calendarID)
	}
	return event, nil
}

// Delete removes one event. Deleting a recurring root cascades over its
// detached exceptions; a residual exception that itself recurs aborts the
// cascade as corrupt linkage. The cascade is restartable: retrying after a
// partial failure finds only the remaining exceptions.
func (s *EventService) Delete(ctx context.Context, calendarID, id string) error {
	event, err := s.Get(ctx, calendarID, id)
	if err != nil {
		return err
	}

	recurring := event.Recurs()

	if err := s.store.Delete(ctx, calendarID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event delete failed")
	}
	if err := s.runHooks(ctx, event, models.HistoryDelete); err != nil {
		return err
	}

	if recurring {
		if err := s.CascadeExceptions(ctx, calendarID, event.UID); err != nil {
			return err
		}
	}
	s.invalidateQueries(ctx, calendarID)
	return nil
}

// CascadeExceptions removes every detached exception whose base id matches
// the given root uid. Safe to re-run: a cascade that finds nothing left is
// a no-op.
func (s *EventService) CascadeExceptions(ctx context.Context, calendarID, baseUID string) error {
	exceptions, err := s.store.ListByBaseID(ctx, calendarID, baseUID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "exception scan failed")
	}
	for i := range exceptions {
		exc := &exceptions[i]
		if exc.Recurs() {
			return appErrors.Clone(appErrors.ErrDataIntegrity,
				fmt.Sprintf("exception %s of base %s carries a recurrence rule", exc.ID, baseUID))
		}
		if err := s.store.Delete(ctx, calendarID, exc.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "exception delete failed")
		}
		if err := s.runHooks(ctx, exc, models.HistoryDelete); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCalendar drops every event of a calendar in one pass, without
// per-event hooks. Used when the calendar itself goes away.
func (s *EventService) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := s.store.DeleteCalendar(ctx, calendarID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "calendar delete failed")
	}
	s.invalidateQueries(ctx, calendarID)
	return nil
}

// Move reassigns an event to another calendar, keeping id and uid stable.
func (s *EventService) Move(ctx context.Context, id, fromCalendar, toCalendar string) (*models.EventRecord, error) {
	event, err := s.Get(ctx, fromCalendar, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Move(ctx, id, fromCalendar, toCalendar); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event move failed")
	}
	event.CalendarID = toCalendar
	if err := s.runHooks(ctx, event, models.HistoryModify); err != nil {
		return nil, err
	}
	s.invalidateQueries(ctx, fromCalendar)
	s.invalidateQueries(ctx, toCalendar)
	return event, nil
}

// Count returns the number of stored events in a calendar.
func (s *EventService) Count(ctx context.Context, calendarID string) (int, error) {
	total, err := s.store.Count(ctx, calendarID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "event count failed")
	}
	return total, nil
}

// buildRecord validates the request and assembles the record to persist,
// carrying identity over from an existing record on update.
func (s *EventService) buildRecord(req SaveEventRequest, existing *models.EventRecord) (*models.EventRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if req.EndAt.Before(req.StartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event end precedes start")
	}

	recurType := models.RecurrenceType(req.RecurType)
	if recurType == "" {
		recurType = models.RecurNone
	}
	recurring := recurType != models.RecurNone

	if recurring && req.RecurInterval <= 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "recurrence interval must be positive")
	}
	if recurring && req.BaseID != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a detached exception cannot itself recur")
	}
	if req.BaseID != "" && req.OriginalDate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a detached exception requires its original instance date")
	}

	event := &models.EventRecord{
		CalendarID:         req.CalendarID,
		Title:              req.Title,
		Description:        req.Description,
		Location:           req.Location,
		CreatorID:          req.CreatorID,
		Status:             models.EventStatus(req.Status),
		Private:            req.Private,
		AllDay:             req.AllDay,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		Alarm:              req.Alarm,
		RecurType:          recurType,
		BaseID:             req.BaseID,
		OriginalDate:       req.OriginalDate,
		ExceptionDates:     req.ExceptionDates,
		ExceptionOverrides: req.ExceptionOverrides,
		Tags:               req.Tags,
	}
	if recurring {
		event.RecurInterval = req.RecurInterval
		event.RecurCount = req.RecurCount
		event.RecurEndAt = req.RecurEndAt
		event.RecurDays = models.WeekdayMask(req.RecurDays)
	}
	if existing != nil {
		event.ID = existing.ID
		event.UID = existing.UID
		event.CreatedAt = existing.CreatedAt
	}
	return event, nil
}

// runHooks dispatches the post-commit chain in order. A fatal hook failure
// fails the operation; others are logged and swallowed so a history or
// notification outage never blocks the mutation.
func (s *EventService) runHooks(ctx context.Context, event *models.EventRecord, action models.HistoryAction) error {
	for _, hook := range s.hooks {
		if err := hook.Run(ctx, event, action); err != nil {
			if hook.Fatal() {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
					fmt.Sprintf("%s hook failed", hook.Name()))
			}
			s.logger.Warn("post-commit hook failed",
				zap.String("hook", hook.Name()),
				zap.String("event_uid", event.UID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *EventService) invalidateQueries(ctx context.Context, calendarID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "occurrences:"+calendarID+":*"); err != nil {
		s.logger.Warn("query cache invalidation failed",
			zap.String("calendar_id", calendarID), zap.Error(err))
	}
}
