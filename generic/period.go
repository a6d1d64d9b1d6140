package generic

import "time"

// =============================================================================
// PERIOD - Closed date range [Start, End]
// =============================================================================

// Period is an inclusive range of days. All interval algebra in the engine
// (rate segments, employment spans, license validity, leave spans) is
// expressed with it.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the day is within [Start, End].
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// IsEmpty is true for an inverted range.
func (p Period) IsEmpty() bool {
	return p.End.Before(p.Start)
}

// Len is the number of days in the period, 0 when empty.
func (p Period) Len() int {
	return CountCalendarDays(p.Start, p.End)
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Overlaps is true when the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.IsEmpty() && !other.IsEmpty() &&
		p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Intersect returns the shared days, ok=false when disjoint.
func (p Period) Intersect(other Period) (Period, bool) {
	if !p.Overlaps(other) {
		return Period{}, false
	}
	return Period{Start: MaxTime(p.Start, other.Start), End: MinTime(p.End, other.End)}, true
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FISCAL YEAR
// =============================================================================

// ThaiFiscalYearStart is the first month of the Thai government fiscal year.
const ThaiFiscalYearStart = time.October

// PeriodConfig describes how a yearly boundary is drawn.
type PeriodConfig struct {
	// FiscalYearStartMonth is the first month of the fiscal year (1-12).
	// January means calendar years.
	FiscalYearStartMonth time.Month
}

// ThaiFiscalYear is the October-September configuration used for leave quotas.
var ThaiFiscalYear = PeriodConfig{FiscalYearStartMonth: ThaiFiscalYearStart}

// FiscalYearOf labels the fiscal year containing date by the calendar year in
// which it ends: 2023-10-01..2024-09-30 is fiscal year 2024.
func (pc PeriodConfig) FiscalYearOf(date TimePoint) int {
	start := pc.startMonth()
	if start == time.January || date.Month() < start {
		return date.Year()
	}
	return date.Year() + 1
}

// FiscalYearPeriod returns the day range of a labelled fiscal year.
func (pc PeriodConfig) FiscalYearPeriod(fiscalYear int) Period {
	start := pc.startMonth()
	first := NewTimePoint(fiscalYear, start, 1)
	if start != time.January {
		first = NewTimePoint(fiscalYear-1, start, 1)
	}
	return Period{Start: first, End: first.AddYears(1).AddDays(-1)}
}

// PeriodFor returns the fiscal year period that contains the given date.
func (pc PeriodConfig) PeriodFor(date TimePoint) Period {
	return pc.FiscalYearPeriod(pc.FiscalYearOf(date))
}

func (pc PeriodConfig) startMonth() time.Month {
	if pc.FiscalYearStartMonth < time.January || pc.FiscalYearStartMonth > time.December {
		return time.January
	}
	return pc.FiscalYearStartMonth
}
