package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day, timezone-naive
// =============================================================================

// DateLayout is the canonical local Y-M-D representation used everywhere a
// day is rendered or parsed (storage, API, map keys).
const DateLayout = "2006-01-02"

// TimePoint is a single calendar day. The wall-clock part is always midnight
// UTC so two TimePoints for the same day compare equal with ==.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime drops the clock and zone of t, keeping its local calendar day.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a canonical YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for fixtures and tests.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return FromTime(tp.Time.AddDate(0, 0, n)) }
func (tp TimePoint) AddMonths(n int) TimePoint { return FromTime(tp.Time.AddDate(0, n, 0)) }
func (tp TimePoint) AddYears(n int) TimePoint  { return FromTime(tp.Time.AddDate(n, 0, 0)) }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// MinTime / MaxTime return the earlier / later of two days.
func MinTime(a, b TimePoint) TimePoint {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxTime(a, b TimePoint) TimePoint {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a non-working day that is not a weekend.
type Holiday struct {
	ID   string
	Date TimePoint
	Name string
}

// HolidayCalendar answers whether a day is a public holiday.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// HolidaySet is a flat holiday calendar keyed by day.
type HolidaySet map[TimePoint]struct{}

// NewHolidaySet builds a set from holiday rows.
func NewHolidaySet(holidays []Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[h.Date] = struct{}{}
	}
	return set
}

// NewHolidaySetFromDates builds a set from plain days.
func NewHolidaySetFromDates(days ...TimePoint) HolidaySet {
	set := make(HolidaySet, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

func (s HolidaySet) IsHoliday(date TimePoint) bool {
	_, ok := s[date]
	return ok
}

// =============================================================================
// CALENDAR MATH
// =============================================================================

// IsNonWorkingDay is true for Saturday, Sunday, or a day in the holiday set.
// A nil calendar means weekends only.
func IsNonWorkingDay(date TimePoint, calendar HolidayCalendar) bool {
	if date.IsWeekend() {
		return true
	}
	return calendar != nil && calendar.IsHoliday(date)
}

// IsWorkingDay is the complement of IsNonWorkingDay.
func IsWorkingDay(date TimePoint, calendar HolidayCalendar) bool {
	return !IsNonWorkingDay(date, calendar)
}

// CountCalendarDays counts days in [from, to], both ends inclusive.
func CountCalendarDays(from, to TimePoint) int {
	if to.Before(from) {
		return 0
	}
	return DaysBetween(from, to) + 1
}

// CountBusinessDays counts working days in [from, to], both ends inclusive.
func CountBusinessDays(from, to TimePoint, calendar HolidayCalendar) int {
	count := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if IsWorkingDay(d, calendar) {
			count++
		}
	}
	return count
}

func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return FromTime(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}
func DaysInMonth(year int, month time.Month) int { return EndOfMonth(year, month).Day() }

// MonthPeriod returns [first, last] of the month.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// ShiftMonth moves (year, month) by n months, n may be negative.
func ShiftMonth(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return t.Year(), t.Month()
}
