package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Format(models.DateLayout))
	}
	return out
}

func TestExpandDaily(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 3}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 10), date(2024, 1, 20))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10", "2024-01-13", "2024-01-16", "2024-01-19"}, dates(got))
}

func TestExpandWeeklyMondayWednesday(t *testing.T) {
	// 2024-01-01 is a Monday
	rule := models.RecurrenceRule{
		Type:     models.RecurWeekly,
		Interval: 1,
		Days:     models.MaskOf(time.Monday, time.Wednesday),
	}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 14))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"}, dates(got))
}

func TestExpandWeeklySkipsSlotsBeforeAnchor(t *testing.T) {
	// anchored on a Wednesday; the Monday of the anchor week is not an
	// instance even though the mask includes it
	rule := models.RecurrenceRule{
		Type:     models.RecurWeekly,
		Interval: 1,
		Days:     models.MaskOf(time.Monday, time.Wednesday),
	}
	got, err := Expand(rule, date(2024, 1, 3), date(2024, 1, 1), date(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03", "2024-01-08", "2024-01-10"}, dates(got))
}

func TestExpandWeeklyDefaultsToAnchorWeekday(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurWeekly, Interval: 2}
	got, err := Expand(rule, date(2024, 1, 2), date(2024, 1, 1), date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-16", "2024-01-30"}, dates(got))
}

func TestExpandMonthlyClampsShortMonths(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurMonthly, Interval: 1}
	got, err := Expand(rule, date(2024, 1, 31), date(2024, 1, 1), date(2024, 5, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"}, dates(got))
}

func TestExpandMonthlyClampCommonFebruary(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurMonthly, Interval: 1}
	got, err := Expand(rule, date(2023, 1, 31), date(2023, 2, 1), date(2023, 2, 28))
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-02-28"}, dates(got))
}

func TestExpandYearlyLeapAnchor(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurYearly, Interval: 1}
	got, err := Expand(rule, date(2024, 2, 29), date(2024, 1, 1), date(2028, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"}, dates(got))
}

func TestExpandCountBound(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 1, Count: 5}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, dates(got))
}

func TestExpandCountBoundQueryPastStart(t *testing.T) {
	// the count is consumed from the series anchor regardless of the range
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 1, Count: 5}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 4), date(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-04", "2024-01-05"}, dates(got))
}

func TestExpandUntilInclusive(t *testing.T) {
	until := date(2024, 1, 10)
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 3, Until: &until}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-04", "2024-01-07", "2024-01-10"}, dates(got))
}

func TestExpandZeroIntervalIsConfigurationError(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 0}
	_, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 31))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErr.Code)
}

func TestExpandUnknownTypeIsConfigurationError(t *testing.T) {
	rule := models.RecurrenceRule{Type: "fortnightly", Interval: 1}
	_, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 31))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConfiguration.Code, appErr.Code)
}

func TestExpandInvertedRangeIsEmpty(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 1}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 31), date(2024, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandNonRecurringIsEmpty(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurNone}
	got, err := Expand(rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandRangeBeforeAnchorIsEmpty(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 1}
	got, err := Expand(rule, date(2024, 6, 1), date(2024, 1, 1), date(2024, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandEventExceptionDoesNotShiftSeries(t *testing.T) {
	event := &models.EventRecord{
		StartAt:        date(2024, 1, 1),
		EndAt:          date(2024, 1, 1).Add(time.Hour),
		RecurType:      models.RecurDaily,
		RecurInterval:  1,
		RecurCount:     5,
		ExceptionDates: []string{"2024-01-03"},
	}
	got, err := ExpandEvent(event, date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	// the removed instance still consumes its count slot
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-04", "2024-01-05"}, dates(got))
}

func TestExpandEventSuppressesOverriddenDates(t *testing.T) {
	event := &models.EventRecord{
		StartAt:            date(2024, 1, 1),
		EndAt:              date(2024, 1, 1).Add(time.Hour),
		RecurType:          models.RecurDaily,
		RecurInterval:      1,
		ExceptionOverrides: models.OverrideMap{"2024-01-02": "override-uid"},
	}
	got, err := ExpandEvent(event, date(2024, 1, 1), date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, dates(got))
}

func TestNextInstanceSkipsExceptions(t *testing.T) {
	event := &models.EventRecord{
		StartAt:        date(2024, 1, 1),
		EndAt:          date(2024, 1, 1).Add(time.Hour),
		RecurType:      models.RecurWeekly,
		RecurInterval:  1,
		RecurDays:      models.MaskOf(time.Monday),
		ExceptionDates: []string{"2024-01-08"},
	}
	d, ok, err := NextInstance(event, date(2024, 1, 2), date(2024, 12, 31))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", d.Format(models.DateLayout))
}

func TestNextInstanceTerminatedSeries(t *testing.T) {
	until := date(2024, 1, 31)
	event := &models.EventRecord{
		StartAt:       date(2024, 1, 1),
		EndAt:         date(2024, 1, 1).Add(time.Hour),
		RecurType:     models.RecurDaily,
		RecurInterval: 1,
		RecurEndAt:    &until,
	}
	_, ok, err := NextInstance(event, date(2024, 2, 1), date(2024, 12, 31))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpandFarFutureRangeFastForward(t *testing.T) {
	rule := models.RecurrenceRule{Type: models.RecurDaily, Interval: 7}
	got, err := Expand(rule, date(2000, 1, 1), date(2024, 3, 1), date(2024, 3, 15))
	require.NoError(t, err)
	// 2024-03-02 is 8827 days after the anchor, divisible by 7
	assert.Equal(t, []string{"2024-03-02", "2024-03-09"}, dates(got))
}
