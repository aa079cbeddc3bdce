package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

// AlarmService answers "which alarms are ringing right now". An alarm is
// active on [occurrence start - alarm offset, occurrence end); a recurring
// event contributes its next surviving occurrence only.
type AlarmService struct {
	store     eventStore
	planner   *OccurrenceService
	logger    *zap.Logger
	lookahead time.Duration
}

// NewAlarmService constructs the alarm scanner. The lookahead bounds how
// far ahead the next occurrence of an unbounded series is resolved.
func NewAlarmService(store eventStore, planner *OccurrenceService, lookahead time.Duration, logger *zap.Logger) *AlarmService {
	if lookahead <= 0 {
		lookahead = 365 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlarmService{store: store, planner: planner, logger: logger, lookahead: lookahead}
}

// ActiveAlarms returns the events of a calendar whose alarm window covers
// the probe time, ordered by occurrence start.
func (s *AlarmService) ActiveAlarms(ctx context.Context, calendarID string, asOf time.Time) ([]models.AlarmState, error) {
	// open-ended coarse scan: the alarm of a future occurrence can already
	// be ringing, so only fully elapsed spans are pruned up front
	filter := models.EventFilter{Start: &asOf, AlarmsOnly: true}
	candidates, err := s.store.ListInRange(ctx, calendarID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "alarm candidate scan failed")
	}

	var active []models.AlarmState
	for i := range candidates {
		event := &candidates[i]
		if event.Status == models.StatusCancelled {
			continue
		}
		occ, ok, err := s.currentOccurrence(event, asOf)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		offset := time.Duration(event.Alarm) * time.Minute
		if asOf.Before(occ.Start.Add(-offset)) || !asOf.Before(occ.End) {
			continue
		}
		active = append(active, models.AlarmState{EventID: event.ID, Occurrence: occ, Active: true})
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Occurrence.Start.Before(active[j].Occurrence.Start)
	})
	return active, nil
}

// currentOccurrence picks the occurrence whose alarm window could contain
// asOf: a single event's own span, or a recurring event's next surviving
// instance on or after the probe's civil date.
func (s *AlarmService) currentOccurrence(event *models.EventRecord, asOf time.Time) (models.Occurrence, bool, error) {
	if !event.Recurs() {
		occ, ok := s.planner.singleOccurrence(event, time.Time{}, asOf.Add(s.lookahead))
		return occ, ok, nil
	}
	occ, ok, err := s.planner.NextOccurrence(event, asOf, asOf.Add(s.lookahead))
	if err != nil {
		s.logger.Warn("alarm expansion failed",
			zap.String("event_id", event.ID), zap.Error(err))
		// a malformed rule poisons only its own event
		return models.Occurrence{}, false, nil
	}
	return occ, ok, err
}
