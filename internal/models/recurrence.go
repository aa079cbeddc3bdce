package models

import "time"

// RecurrenceType enumerates the supported repetition patterns.
type RecurrenceType string

const (
	RecurNone    RecurrenceType = "none"
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
	RecurYearly  RecurrenceType = "yearly"
)

// Valid reports whether the type is one of the known patterns.
func (t RecurrenceType) Valid() bool {
	switch t {
	case RecurNone, RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// WeekdayMask is a day-of-week bitmask, bit 0 = Sunday, matching
// time.Weekday numbering. Meaningful only for weekly rules.
type WeekdayMask int

// MaskOf builds a mask from the given weekdays.
func MaskOf(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

// Has reports whether the weekday is set in the mask.
func (m WeekdayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// Empty reports whether no weekday is set.
func (m WeekdayMask) Empty() bool {
	return m == 0
}

// RecurrenceRule is the pure value type encoding a repetition pattern plus
// termination. Type == RecurNone means the event is a single occurrence and
// every other field is ignored.
type RecurrenceRule struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval,omitempty"`
	Days     WeekdayMask    `json:"days,omitempty"`
	// Count terminates the series after N generated instances; zero means
	// no count bound.
	Count int `json:"count,omitempty"`
	// Until terminates the series on the given date (inclusive); nil means
	// no date bound.
	Until *time.Time `json:"until,omitempty"`
}

// Recurs reports whether the rule describes an actual series.
func (r RecurrenceRule) Recurs() bool {
	return r.Type != "" && r.Type != RecurNone
}

// Unbounded reports whether the series has neither a count nor a date bound.
func (r RecurrenceRule) Unbounded() bool {
	return r.Recurs() && r.Count == 0 && r.Until == nil
}
