package recurrence

import (
	"math"
	"time"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
)

// Expansion is a restartable cursor over the instance dates of a recurrence
// rule, in ascending order. It holds no shared state; construct a new one to
// re-expand the same rule over a different range.
//
// Dates are yielded at civil-date granularity (midnight in the base event's
// location). Range bounds are inclusive at that granularity; exact interval
// filtering against effective start/end times is the caller's concern.
type Expansion struct {
	rule models.RecurrenceRule
	days models.WeekdayMask

	base time.Time // series anchor date
	from time.Time // first date eligible for emission
	to   time.Time // last date eligible for emission

	k       int // period index since the series anchor
	wd      int // weekday slot within the current weekly period
	emitted int // instances generated since the series start
	done    bool
}

// New validates the rule and positions a cursor for the given range.
//
// A rule of type "none" and an inverted range (rangeEnd before rangeStart)
// both produce an empty, error-free expansion. A non-positive interval is
// rejected with a configuration error.
func New(rule models.RecurrenceRule, baseStart, rangeStart, rangeEnd time.Time) (*Expansion, error) {
	x := &Expansion{rule: rule, days: rule.Days}
	if !rule.Recurs() {
		x.done = true
		return x, nil
	}
	if !rule.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "unknown recurrence type "+string(rule.Type))
	}
	if rule.Interval <= 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "recurrence interval must be positive")
	}
	if rangeEnd.Before(rangeStart) {
		x.done = true
		return x, nil
	}

	loc := baseStart.Location()
	x.base = dateOf(baseStart, loc)
	x.from = dateOf(rangeStart, loc)
	if x.from.Before(x.base) {
		x.from = x.base
	}
	x.to = dateOf(rangeEnd, loc)
	if rule.Until != nil {
		if until := dateOf(*rule.Until, loc); until.Before(x.to) {
			x.to = until
		}
	}
	if x.to.Before(x.base) {
		x.done = true
		return x, nil
	}

	if rule.Type == models.RecurWeekly && x.days.Empty() {
		x.days = models.MaskOf(x.base.Weekday())
	}

	// With no count bound the cursor can skip straight to the first period
	// that might reach the range. With a count bound every generated
	// instance must be accounted for, so generation starts at the anchor.
	if rule.Count == 0 {
		x.fastForward()
	}

	return x, nil
}

// Next yields the following instance date, or false once the series is
// exhausted for this range.
func (x *Expansion) Next() (time.Time, bool) {
	for !x.done {
		d, counted := x.advance()
		if counted {
			x.emitted++
			if x.rule.Count > 0 && x.emitted > x.rule.Count {
				x.done = true
				return time.Time{}, false
			}
		}
		if d.After(x.to) {
			x.done = true
			return time.Time{}, false
		}
		if counted && !d.Before(x.from) {
			return d, true
		}
	}
	return time.Time{}, false
}

// advance generates the next candidate date of the raw series. The counted
// flag is false for weekly slots that precede the series anchor inside its
// first week; those are not instances at all.
func (x *Expansion) advance() (time.Time, bool) {
	switch x.rule.Type {
	case models.RecurDaily:
		d := x.base.AddDate(0, 0, x.k*x.rule.Interval)
		x.k++
		return d, true

	case models.RecurWeekly:
		anchor := x.weekAnchor()
		for {
			for ; x.wd < 7; x.wd++ {
				if !x.days.Has(time.Weekday(x.wd)) {
					continue
				}
				d := anchor.AddDate(0, 0, x.k*7*x.rule.Interval+x.wd)
				x.wd++
				if d.Before(x.base) {
					return d, false
				}
				return d, true
			}
			x.k++
			x.wd = 0
			if first := anchor.AddDate(0, 0, x.k*7*x.rule.Interval); first.After(x.to) {
				// no slot of this period can be in range
				return first, true
			}
		}

	case models.RecurMonthly:
		month := time.Date(x.base.Year(), x.base.Month(), 1, 0, 0, 0, 0, x.base.Location()).
			AddDate(0, x.k*x.rule.Interval, 0)
		x.k++
		return clampDay(month, x.base.Day()), true

	case models.RecurYearly:
		year := x.base.Year() + x.k*x.rule.Interval
		month := time.Date(year, x.base.Month(), 1, 0, 0, 0, 0, x.base.Location())
		x.k++
		// Feb 29 anchors roll back to Feb 28 in common years, same clamp
		// family as monthly day-31 rules in short months.
		return clampDay(month, x.base.Day()), true
	}

	x.done = true
	return time.Time{}, false
}

// fastForward skips whole periods that end before the range starts. Only
// valid without a count bound.
func (x *Expansion) fastForward() {
	switch x.rule.Type {
	case models.RecurDaily:
		days := daysBetween(x.base, x.from)
		if days > 0 {
			x.k = days / x.rule.Interval
		}
	case models.RecurWeekly:
		days := daysBetween(x.weekAnchor(), x.from)
		period := 7 * x.rule.Interval
		if days >= period {
			// back off one period so boundary slots are never skipped
			x.k = days/period - 1
		}
	case models.RecurMonthly:
		months := (x.from.Year()-x.base.Year())*12 + int(x.from.Month()-x.base.Month())
		if k := months/x.rule.Interval - 1; k > 0 {
			x.k = k
		}
	case models.RecurYearly:
		if k := (x.from.Year()-x.base.Year())/x.rule.Interval - 1; k > 0 {
			x.k = k
		}
	}
}

func (x *Expansion) weekAnchor() time.Time {
	return x.base.AddDate(0, 0, -int(x.base.Weekday()))
}

// Expand collects every instance date of the rule that falls inside the
// range. See New for the edge-case policy.
func Expand(rule models.RecurrenceRule, baseStart, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	x, err := New(rule, baseStart, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for {
		d, ok := x.Next()
		if !ok {
			return dates, nil
		}
		dates = append(dates, d)
	}
}

// ExpandEvent expands a recurring event's rule and drops every instance the
// event suppresses, whether skipped outright or replaced by a detached
// override.
func ExpandEvent(event *models.EventRecord, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	x, err := New(event.Rule(), event.StartAt, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for {
		d, ok := x.Next()
		if !ok {
			return dates, nil
		}
		if event.HasExceptionOn(d) {
			continue
		}
		dates = append(dates, d)
	}
}

// NextInstance returns the first surviving instance date of a recurring
// event on or after the given time, searching no further than horizon.
func NextInstance(event *models.EventRecord, after, horizon time.Time) (time.Time, bool, error) {
	x, err := New(event.Rule(), event.StartAt, after, horizon)
	if err != nil {
		return time.Time{}, false, err
	}
	for {
		d, ok := x.Next()
		if !ok {
			return time.Time{}, false, nil
		}
		if event.HasExceptionOn(d) {
			continue
		}
		return d, true, nil
	}
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// daysBetween counts civil days from a to b; both must be midnights in the
// same location. Rounding absorbs DST-shortened or -lengthened days.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// clampDay pins a day-of-month anchor to the month's last day when the
// month is shorter, so a rule anchored on the 31st never skips February.
func clampDay(firstOfMonth time.Time, day int) time.Time {
	last := firstOfMonth.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, 0, 0, 0, 0, firstOfMonth.Location())
}
