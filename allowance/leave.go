/*
leave.go - Leave deduction as a fold over approved leave

PURPOSE:
  Turns the approved leave of a citizen into per-day deduction weights for
  one month. A leave only deducts the days that fall after its type's limit
  is used up.

ALGORITHM:
  Leaves are sorted by start date and folded into an immutable LeaveState.
  Each step returns a new state holding:
    - usage per (fiscal year, leave type), moved by every leave
    - DayWeights for the month, max-combined so overlapping leave never
      deducts the same day twice

  For each leave:
    1. NoPay: weight 1 on every day of the leave inside the month, no usage.
    2. Rule lookup (quota row > QuotaDefaults > rule table). No rule: skip.
    3. Half day: consumes its duration only on a working day. If usage then
       exceeds the limit, the day carries weight 0.5.
    4. Otherwise the leave consumes its recorded duration (its length in
       the rule's unit when none was recorded). Only when usage plus that
       duration passes the limit is ExceedDate searched; the part past it is
       chargeable: every day for calendar rules, working days for business
       rules.
    5. Weights are clipped to the month; outside days only move usage.

  Gaps between separate leaves are never bridged: only days inside a leave
  span are ever weighted.

SEE ALSO:
  - rules.go: rule table and quota defaults
  - calculator.go: sums the weights over eligible days
*/
package allowance

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/allowance-engine/generic"
)

var (
	weightFull = decimal.NewFromInt(1)
	weightHalf = decimal.NewFromFloat(0.5)
)

// =============================================================================
// LEAVE STATE - Immutable accumulator
// =============================================================================

type usageKey struct {
	FiscalYear int
	LeaveType  LeaveType
}

// LeaveState is the accumulator threaded through the fold. Methods never
// modify the receiver.
type LeaveState struct {
	usage   map[usageKey]decimal.Decimal
	weights generic.DayWeights
}

// NewLeaveState returns an empty state.
func NewLeaveState() LeaveState {
	return LeaveState{
		usage:   map[usageKey]decimal.Decimal{},
		weights: generic.DayWeights{},
	}
}

// Used returns the days consumed so far for a type in a fiscal year.
func (s LeaveState) Used(fiscalYear int, leaveType LeaveType) decimal.Decimal {
	return s.usage[usageKey{FiscalYear: fiscalYear, LeaveType: leaveType}]
}

// Weights returns the deduction weights accumulated so far.
func (s LeaveState) Weights() generic.DayWeights {
	return s.weights
}

// WithUsage returns a state with delta added to the (fiscal year, type) usage.
func (s LeaveState) WithUsage(fiscalYear int, leaveType LeaveType, delta decimal.Decimal) LeaveState {
	usage := make(map[usageKey]decimal.Decimal, len(s.usage)+1)
	for k, v := range s.usage {
		usage[k] = v
	}
	k := usageKey{FiscalYear: fiscalYear, LeaveType: leaveType}
	usage[k] = usage[k].Add(delta)
	return LeaveState{usage: usage, weights: s.weights}
}

// WithWeights returns a state with weight applied to days, max-combined.
func (s LeaveState) WithWeights(days []generic.TimePoint, weight decimal.Decimal) LeaveState {
	return LeaveState{usage: s.usage, weights: s.weights.WithAll(days, weight)}
}

// =============================================================================
// EXCEED DATE
// =============================================================================

// ExceedDate returns the first day of [start, end] that is no longer covered
// by the remaining allowance. remaining <= 0 yields start. For calendar-day
// rules it is start + floor(remaining). For business-day rules working days
// are consumed until remaining is reached and the following day is returned.
// A result after end means the leave never exceeds.
func ExceedDate(start, end generic.TimePoint, remaining decimal.Decimal, unit generic.Unit, calendar generic.HolidayCalendar) generic.TimePoint {
	if !remaining.IsPositive() {
		return start
	}
	if unit == generic.UnitCalendarDays {
		span := int64(generic.CountCalendarDays(start, end))
		n := remaining.Floor().IntPart()
		if n > span {
			n = span
		}
		return start.AddDays(int(n))
	}

	counted := decimal.Zero
	day := start
	for counted.LessThan(remaining) && day.BeforeOrEqual(end) {
		if generic.IsWorkingDay(day, calendar) {
			counted = counted.Add(weightFull)
		}
		day = day.AddDays(1)
	}
	return day
}

// chargeableDays lists the days of [from, to] a rule deducts.
func chargeableDays(from, to generic.TimePoint, unit generic.Unit, calendar generic.HolidayCalendar) []generic.TimePoint {
	var out []generic.TimePoint
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if unit == generic.UnitBusinessDays && generic.IsNonWorkingDay(d, calendar) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// leaveDuration is the quota a leave consumes: its recorded DurationDays,
// or its span measured in the rule's unit when no duration was recorded.
func leaveDuration(leave LeaveRequest, unit generic.Unit, calendar generic.HolidayCalendar) decimal.Decimal {
	if leave.DurationDays.IsPositive() {
		return leave.DurationDays
	}
	if unit == generic.UnitCalendarDays {
		return decimal.NewFromInt(int64(generic.CountCalendarDays(leave.StartDate, leave.EndDate)))
	}
	return decimal.NewFromInt(int64(generic.CountBusinessDays(leave.StartDate, leave.EndDate, calendar)))
}

// =============================================================================
// DEDUCTION ENGINE
// =============================================================================

// DeductionEngine computes deduction weights from leave history.
type DeductionEngine struct {
	Rules    RuleSet
	Defaults QuotaDefaults
	Fiscal   generic.PeriodConfig
	Logger   *zap.Logger
}

// NewDeductionEngine uses DefaultRules and DefaultQuotaDefaults for zero values.
func NewDeductionEngine(rules RuleSet, defaults *QuotaDefaults, logger *zap.Logger) *DeductionEngine {
	if rules == nil {
		rules = DefaultRules()
	}
	d := DefaultQuotaDefaults()
	if defaults != nil {
		d = *defaults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeductionEngine{
		Rules:    rules,
		Defaults: d,
		Fiscal:   generic.ThaiFiscalYear,
		Logger:   logger,
	}
}

// LeaveInput is everything the fold needs for one month.
type LeaveInput struct {
	Leaves   []LeaveRequest
	Quotas   map[int]*LeaveQuota // by fiscal year; missing = no row
	Calendar generic.HolidayCalendar
	Month    generic.Period
}

// FiscalYearOf returns the leave's fiscal year, deriving it from StartDate
// when unset.
func (e *DeductionEngine) FiscalYearOf(leave LeaveRequest) int {
	if leave.FiscalYear != 0 {
		return leave.FiscalYear
	}
	return e.Fiscal.FiscalYearOf(leave.StartDate)
}

// Weights folds in.Leaves and returns the weights inside in.Month.
func (e *DeductionEngine) Weights(in LeaveInput) generic.DayWeights {
	return e.Fold(in).Weights()
}

// Fold returns the final state, usage included.
func (e *DeductionEngine) Fold(in LeaveInput) LeaveState {
	state := NewLeaveState()
	for _, leave := range sortLeaves(in.Leaves) {
		state = e.Step(state, leave, in)
	}
	return state
}

// Step applies one leave to state.
func (e *DeductionEngine) Step(state LeaveState, leave LeaveRequest, in LeaveInput) LeaveState {
	if leave.EndDate.Before(leave.StartDate) {
		e.Logger.Warn("skipping leave with end before start",
			zap.Int64("leave_id", leave.ID),
			zap.String("citizen_id", string(leave.CitizenID)))
		return state
	}

	if leave.NoPay {
		return state.WithWeights(clipDays(leave.Span(), in.Month, generic.UnitCalendarDays, in.Calendar), weightFull)
	}

	fy := e.FiscalYearOf(leave)
	rule, ok := e.Rules.Resolve(leave.LeaveType, in.Quotas[fy], e.Defaults)
	if !ok {
		e.Logger.Info("no rule for leave type, not deducted",
			zap.String("leave_type", string(leave.LeaveType)),
			zap.Int64("leave_id", leave.ID),
			zap.String("citizen_id", string(leave.CitizenID)))
		return state
	}

	used := decimal.Zero
	if rule.Kind == RuleCumulative {
		used = state.Used(fy, leave.LeaveType)
	}

	if leave.IsHalfDay() {
		if !generic.IsWorkingDay(leave.StartDate, in.Calendar) {
			return state
		}
		next := state.WithUsage(fy, leave.LeaveType, leave.DurationDays)
		if !rule.Unlimited() && used.Add(leave.DurationDays).GreaterThan(*rule.Limit) && in.Month.Contains(leave.StartDate) {
			next = next.WithWeights([]generic.TimePoint{leave.StartDate}, weightHalf)
		}
		return next
	}

	duration := leaveDuration(leave, rule.Unit, in.Calendar)
	next := state.WithUsage(fy, leave.LeaveType, duration)
	if rule.Unlimited() {
		return next
	}

	// The duration decides whether the quota is exceeded. The day walk only
	// places the exceed date inside the span.
	remaining := rule.Limit.Sub(used)
	if used.Add(duration).LessThanOrEqual(*rule.Limit) {
		return next
	}
	exceed := ExceedDate(leave.StartDate, leave.EndDate, remaining, rule.Unit, in.Calendar)
	if exceed.After(leave.EndDate) {
		return next
	}
	span := generic.Period{Start: exceed, End: leave.EndDate}
	return next.WithWeights(clipDays(span, in.Month, rule.Unit, in.Calendar), weightFull)
}

// clipDays returns the chargeable days of span that fall inside month.
func clipDays(span, month generic.Period, unit generic.Unit, calendar generic.HolidayCalendar) []generic.TimePoint {
	p, ok := span.Intersect(month)
	if !ok {
		return nil
	}
	return chargeableDays(p.Start, p.End, unit, calendar)
}

func sortLeaves(leaves []LeaveRequest) []LeaveRequest {
	sorted := make([]LeaveRequest, len(leaves))
	copy(sorted, leaves)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartDate.Equal(sorted[j].StartDate) {
			return sorted[i].StartDate.Before(sorted[j].StartDate)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
