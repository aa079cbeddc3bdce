package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/temporade/chronicle-api/internal/models"
	"github.com/temporade/chronicle-api/internal/recurrence"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

type eventStore interface {
	GetByID(ctx context.Context, calendarID, id string) (*models.EventRecord, error)
	ListByUID(ctx context.Context, eventUID string, calendarIDs []string) ([]models.EventRecord, error)
	ListInRange(ctx context.Context, calendarID string, filter models.EventFilter) ([]models.EventRecord, error)
}

type queryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ListOptions tunes an interval query.
type ListOptions struct {
	// IncludeAlarmsOnly keeps only events with a non-zero alarm offset,
	// sharpening the coarse candidate scan as well.
	IncludeAlarmsOnly bool
	// ExpandRecurrence false returns a recurring base at most once,
	// representing its first in-range instance.
	ExpandRecurrence bool
	// ExcludeExceptions drops candidates whose base id is set.
	ExcludeExceptions bool
}

// DefaultListOptions expands recurrences and applies no filter.
func DefaultListOptions() ListOptions {
	return ListOptions{ExpandRecurrence: true}
}

// OccurrenceService is the interval query planner: it materializes the
// concrete occurrences of a calendar that intersect a half-open interval
// [start, end), merging detached exception records in by their own spans.
type OccurrenceService struct {
	store   eventStore
	cache   queryCache
	metrics *MetricsService
	logger  *zap.Logger
	loc     *time.Location
	ttl     time.Duration
}

// NewOccurrenceService constructs the planner. The query cache and metrics
// are optional.
func NewOccurrenceService(store eventStore, cache queryCache, metrics *MetricsService, loc *time.Location, ttl time.Duration, logger *zap.Logger) *OccurrenceService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OccurrenceService{store: store, cache: cache, metrics: metrics, logger: logger, loc: loc, ttl: ttl}
}

// ListOccurrences returns every occurrence of the calendar intersecting
// [rangeStart, rangeEnd), in ascending start order. An inverted range is
// empty, not an error. A store failure aborts the whole query; no partial
// result is ever returned.
func (s *OccurrenceService) ListOccurrences(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time, opts ListOptions) ([]models.Occurrence, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, nil
	}

	key := s.cacheKey(calendarID, rangeStart, rangeEnd, opts)
	if s.cache != nil {
		var cached []models.Occurrence
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheHit()
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("occurrence cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheMiss()
	}

	started := time.Now()
	occurrences, err := s.materialize(ctx, calendarID, rangeStart, rangeEnd, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveExpansion(time.Since(started), len(occurrences))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, occurrences, s.ttl); err != nil {
			s.logger.Warn("occurrence cache write failed", zap.Error(err))
		}
	}
	return occurrences, nil
}

func (s *OccurrenceService) materialize(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time, opts ListOptions) ([]models.Occurrence, error) {
	filter := models.EventFilter{
		Start:          &rangeStart,
		End:            &rangeEnd,
		AlarmsOnly:     opts.IncludeAlarmsOnly,
		HideExceptions: opts.ExcludeExceptions,
	}
	candidates, err := s.store.ListInRange(ctx, calendarID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "calendar range scan failed")
	}

	occurrences := make([]models.Occurrence, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for i := range candidates {
		event := &candidates[i]
		if opts.ExcludeExceptions && event.Kind() == models.KindException {
			continue
		}

		if !event.Recurs() {
			occ, ok := s.singleOccurrence(event, rangeStart, rangeEnd)
			if !ok {
				continue
			}
			s.emit(&occurrences, seen, occ)
			continue
		}

		expanded, err := s.expand(event, rangeStart, rangeEnd, opts)
		if err != nil {
			return nil, err
		}
		for _, occ := range expanded {
			s.emit(&occurrences, seen, occ)
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].EventID < occurrences[j].EventID
		}
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
	return occurrences, nil
}

// singleOccurrence maps a non-recurring record (including detached
// overrides, which are range-tested by their own stored span) onto the
// interval.
func (s *OccurrenceService) singleOccurrence(event *models.EventRecord, rangeStart, rangeEnd time.Time) (models.Occurrence, bool) {
	start, end := s.effectiveSpan(event, dateIn(event.StartAt, s.loc))
	if !intersects(start, end, rangeStart, rangeEnd) {
		return models.Occurrence{}, false
	}
	instance := dateIn(event.StartAt, s.loc)
	if event.OriginalDate != nil {
		instance = dateIn(*event.OriginalDate, s.loc)
	}
	return models.Occurrence{
		EventID:      event.ID,
		UID:          event.UID,
		CalendarID:   event.CalendarID,
		InstanceDate: instance,
		Start:        start,
		End:          end,
		IsOverride:   event.Kind() == models.KindException,
		Title:        event.Title,
		Location:     event.Location,
		AllDay:       event.AllDay,
		Event:        event,
	}, true
}

// expand materializes the in-range instances of a recurring base record.
// Skipped and overridden instance dates are suppressed here; the override
// records themselves are emitted through the single-event path, so a
// substituted instance can never appear twice.
func (s *OccurrenceService) expand(event *models.EventRecord, rangeStart, rangeEnd time.Time, opts ListOptions) ([]models.Occurrence, error) {
	// widen the cursor start so multi-day instances straddling the range
	// boundary are not lost
	cursorStart := rangeStart.AddDate(0, 0, -event.DaySpan())
	x, err := recurrence.New(event.Rule(), event.StartAt, cursorStart, rangeEnd)
	if err != nil {
		return nil, err
	}

	var out []models.Occurrence
	for {
		d, ok := x.Next()
		if !ok {
			return out, nil
		}
		if event.HasExceptionOn(d) {
			continue
		}
		start, end := s.effectiveSpan(event, d)
		if !intersects(start, end, rangeStart, rangeEnd) {
			continue
		}
		out = append(out, models.Occurrence{
			EventID:      event.ID,
			UID:          event.UID,
			CalendarID:   event.CalendarID,
			InstanceDate: d,
			Start:        start,
			End:          end,
			Title:        event.Title,
			Location:     event.Location,
			AllDay:       event.AllDay,
			Event:        event,
		})
		if !opts.ExpandRecurrence {
			// one representative row per series
			return out, nil
		}
	}
}

// NextOccurrence resolves the first surviving occurrence of a recurring
// event on or after the given time, bounded by horizon. A terminated
// series returns ok == false and no error.
func (s *OccurrenceService) NextOccurrence(event *models.EventRecord, after, horizon time.Time) (models.Occurrence, bool, error) {
	d, ok, err := recurrence.NextInstance(event, after, horizon)
	if err != nil || !ok {
		return models.Occurrence{}, false, err
	}
	start, end := s.effectiveSpan(event, d)
	return models.Occurrence{
		EventID:      event.ID,
		UID:          event.UID,
		CalendarID:   event.CalendarID,
		InstanceDate: d,
		Start:        start,
		End:          end,
		Title:        event.Title,
		Location:     event.Location,
		AllDay:       event.AllDay,
		Event:        event,
	}, true, nil
}

// GroupByDay buckets occurrences under every civil date they cover within
// the queried interval, keyed YYYYMMDD.
func (s *OccurrenceService) GroupByDay(occurrences []models.Occurrence, rangeStart, rangeEnd time.Time) map[string][]models.Occurrence {
	days := make(map[string][]models.Occurrence)
	lowest := dateIn(rangeStart, s.loc)
	for _, occ := range occurrences {
		day := dateIn(occ.Start, s.loc)
		if day.Before(lowest) {
			day = lowest
		}
		lastDay := dateIn(occ.End, s.loc)
		// a span ending exactly at midnight does not cover that day
		if occ.End.Equal(lastDay) {
			lastDay = lastDay.AddDate(0, 0, -1)
		}
		for ; !day.After(lastDay) && day.Before(rangeEnd); day = day.AddDate(0, 0, 1) {
			key := day.Format("20060102")
			days[key] = append(days[key], occ)
		}
	}
	return days
}

// effectiveSpan shifts the event's clock times onto an instance date. The
// end lands the same number of civil days after the instance as the base
// end is after the base start; all-day events span whole days.
func (s *OccurrenceService) effectiveSpan(event *models.EventRecord, instanceDate time.Time) (time.Time, time.Time) {
	d := instanceDate.In(s.loc)
	endDate := d.AddDate(0, 0, event.DaySpan())
	if event.AllDay {
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
		return start, time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	}
	start := time.Date(d.Year(), d.Month(), d.Day(),
		event.StartAt.Hour(), event.StartAt.Minute(), event.StartAt.Second(), 0, s.loc)
	end := time.Date(endDate.Year(), endDate.Month(), endDate.Day(),
		event.EndAt.Hour(), event.EndAt.Minute(), event.EndAt.Second(), 0, s.loc)
	return start, end
}

func (s *OccurrenceService) emit(out *[]models.Occurrence, seen map[string]struct{}, occ models.Occurrence) {
	key := occ.EventID + "@" + occ.InstanceDate.Format(models.DateLayout)
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}
	*out = append(*out, occ)
}

func (s *OccurrenceService) cacheKey(calendarID string, rangeStart, rangeEnd time.Time, opts ListOptions) string {
	return fmt.Sprintf("occurrences:%s:%d:%d:%t:%t:%t",
		calendarID, rangeStart.Unix(), rangeEnd.Unix(),
		opts.IncludeAlarmsOnly, opts.ExpandRecurrence, opts.ExcludeExceptions)
}

// intersects tests half-open interval overlap: [aStart, aEnd) ∩ [bStart,
// bEnd) ≠ ∅. Zero-duration spans still match when they sit inside the
// range.
func intersects(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		// zero-length span: treat as a point
		return !aStart.Before(bStart) && (aStart.Before(bEnd) || bEnd.Equal(bStart) && aStart.Equal(bStart))
	}
	if bEnd.Equal(bStart) {
		// point query, e.g. an "as of" probe
		return !bStart.Before(aStart) && bStart.Before(aEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
