/*
dayset.go - Day sets and per-day weights

PURPOSE:
  Interval algebra over overlapping date ranges. Employment spans, license
  validity and rate segments all reduce to "which days hold", so the engine
  works with sets of days rather than summed interval lengths. Overlapping
  ranges are unioned, never added.

  DayWeights carries a fractional weight per day (leave deductions). Writing
  the same day twice keeps the larger weight: two overlapping leave requests
  never deduct a day twice.

SEE ALSO:
  - period.go: Period (closed date range)
  - allowance/leave.go: builds DayWeights from leave requests
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY SET
// =============================================================================

// DaySet is a set of calendar days.
type DaySet map[TimePoint]struct{}

// NewDaySet creates a set covering every given period.
func NewDaySet(periods ...Period) DaySet {
	s := make(DaySet)
	for _, p := range periods {
		s.AddPeriod(p)
	}
	return s
}

func (s DaySet) Add(day TimePoint) { s[day] = struct{}{} }

func (s DaySet) AddPeriod(p Period) {
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		s[d] = struct{}{}
	}
}

func (s DaySet) Remove(day TimePoint) { delete(s, day) }

func (s DaySet) Has(day TimePoint) bool {
	_, ok := s[day]
	return ok
}

func (s DaySet) Len() int { return len(s) }

// Union returns a new set with the days of both.
func (s DaySet) Union(other DaySet) DaySet {
	out := make(DaySet, len(s)+len(other))
	for d := range s {
		out[d] = struct{}{}
	}
	for d := range other {
		out[d] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the days present in both.
func (s DaySet) Intersect(other DaySet) DaySet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(DaySet)
	for d := range small {
		if large.Has(d) {
			out[d] = struct{}{}
		}
	}
	return out
}

// Subtract returns the days of s not present in other.
func (s DaySet) Subtract(other DaySet) DaySet {
	out := make(DaySet)
	for d := range s {
		if !other.Has(d) {
			out[d] = struct{}{}
		}
	}
	return out
}

// Within returns the days of s inside p.
func (s DaySet) Within(p Period) DaySet {
	out := make(DaySet)
	for d := range s {
		if p.Contains(d) {
			out[d] = struct{}{}
		}
	}
	return out
}

// Sorted returns the days in chronological order.
func (s DaySet) Sorted() []TimePoint {
	days := make([]TimePoint, 0, len(s))
	for d := range s {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Periods collapses the set into maximal contiguous ranges.
func (s DaySet) Periods() []Period {
	var out []Period
	for _, d := range s.Sorted() {
		if n := len(out); n > 0 && out[n-1].End.AddDays(1).Equal(d) {
			out[n-1].End = d
			continue
		}
		out = append(out, Period{Start: d, End: d})
	}
	return out
}

// =============================================================================
// DAY WEIGHTS
// =============================================================================

// DayWeights maps a day to a weight in [0, 1].
type DayWeights map[TimePoint]decimal.Decimal

// With returns a copy of w where day carries max(existing, weight).
// The receiver is never modified.
func (w DayWeights) With(day TimePoint, weight decimal.Decimal) DayWeights {
	out := w.Clone()
	out.maxAt(day, weight)
	return out
}

// WithAll is With for many days at once, copying only once.
func (w DayWeights) WithAll(days []TimePoint, weight decimal.Decimal) DayWeights {
	if len(days) == 0 {
		return w
	}
	out := w.Clone()
	for _, d := range days {
		out.maxAt(d, weight)
	}
	return out
}

func (w DayWeights) maxAt(day TimePoint, weight decimal.Decimal) {
	if existing, ok := w[day]; ok && existing.GreaterThanOrEqual(weight) {
		return
	}
	w[day] = weight
}

func (w DayWeights) Clone() DayWeights {
	out := make(DayWeights, len(w))
	for d, v := range w {
		out[d] = v
	}
	return out
}

// Total sums the weights of every day.
func (w DayWeights) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range w {
		total = total.Add(v)
	}
	return total
}

// TotalOver sums the weights of the days in set.
func (w DayWeights) TotalOver(set DaySet) decimal.Decimal {
	total := decimal.Zero
	for d, v := range w {
		if set.Has(d) {
			total = total.Add(v)
		}
	}
	return total
}

// Get returns the weight of day, zero when absent.
func (w DayWeights) Get(day TimePoint) decimal.Decimal {
	if v, ok := w[day]; ok {
		return v
	}
	return decimal.Zero
}
