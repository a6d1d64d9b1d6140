/*
calculator.go - One month's allowance

PURPOSE:
  Combines the four timelines into a net payment:

    eligible(segment) = payable employment days
                      ∩ valid license days
                      ∩ days the segment's rate is in force
    deducted(segment) = Σ leave weights over eligible(segment)
    net               = Σ rate × (eligible − deducted) / daysInMonth

  A segment that covers the whole month with nothing deducted is paid its
  full rate. Rounding to satang happens once, on the sum.

LOADING:
  Load reads everything the month needs from the sources; Compute is pure.
  Leaves are loaded twice: first the leaves touching the month, then every
  leave from the start of the earliest fiscal year they belong to, so
  cumulative usage includes the months before.

SEE ALSO:
  - eligibility.go, movement.go, license.go, leave.go
  - retroactive.go: re-runs Compute for closed months
*/
package allowance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/allowance-engine/generic"
)

// Remarks attached to results.
const (
	RemarkNoEligibility = "no eligibility"
	RemarkStudyLeave    = "study leave"
	RemarkNotEmployed   = "not employed"
	RemarkNoLicense     = "no valid license"
	RemarkReview        = "flagged for review"
)

// MonthData is the input of Compute.
type MonthData struct {
	CitizenID   CitizenID
	Year        int
	Month       time.Month
	Eligibility []EligibilityRecord
	Movements   []MovementRecord
	Licenses    []LicenseRecord
	Leaves      []LeaveRequest
	Quotas      map[int]*LeaveQuota
	Holidays    generic.HolidaySet
}

// MonthlyCalculator computes CalculationResult for one citizen and month.
type MonthlyCalculator struct {
	sources    Sources
	deductions *DeductionEngine
	licenses   *LicenseTimeline
	logger     *zap.Logger
}

// NewMonthlyCalculator wires the calculator to its sources.
func NewMonthlyCalculator(sources Sources, deductions *DeductionEngine, licenses *LicenseTimeline, logger *zap.Logger) *MonthlyCalculator {
	if deductions == nil {
		deductions = NewDeductionEngine(nil, nil, logger)
	}
	if licenses == nil {
		licenses = NewLicenseTimeline(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonthlyCalculator{
		sources:    sources,
		deductions: deductions,
		licenses:   licenses,
		logger:     logger,
	}
}

// Calculate loads and computes. It does not check the period status.
func (c *MonthlyCalculator) Calculate(ctx context.Context, citizenID CitizenID, year int, month time.Month) (*CalculationResult, error) {
	data, err := c.Load(ctx, citizenID, year, month)
	if err != nil {
		return nil, err
	}
	return c.Compute(*data)
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads every collaborator. Any source error aborts the calculation.
func (c *MonthlyCalculator) Load(ctx context.Context, citizenID CitizenID, year int, month time.Month) (*MonthData, error) {
	monthPeriod := generic.MonthPeriod(year, month)
	data := &MonthData{CitizenID: citizenID, Year: year, Month: month}

	var err error
	if data.Eligibility, err = c.sources.Rates.ListEligibility(ctx, citizenID); err != nil {
		return nil, fmt.Errorf("load eligibility: %w", err)
	}
	if data.Movements, err = c.sources.Movements.ListMovements(ctx, citizenID); err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}
	if data.Licenses, err = c.sources.Licenses.ListLicenses(ctx, citizenID); err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}

	touching, err := c.sources.Leaves.ListLeaves(ctx, citizenID, monthPeriod.Start, monthPeriod.End)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	historyFrom := c.deductions.Fiscal.PeriodFor(monthPeriod.Start).Start
	for _, l := range touching {
		fyStart := c.deductions.Fiscal.FiscalYearPeriod(c.deductions.FiscalYearOf(l)).Start
		historyFrom = generic.MinTime(historyFrom, fyStart)
	}
	if data.Leaves, err = c.sources.Leaves.ListLeaves(ctx, citizenID, historyFrom, monthPeriod.End); err != nil {
		return nil, fmt.Errorf("load leave history: %w", err)
	}

	data.Quotas = make(map[int]*LeaveQuota)
	holidayFrom, holidayTo := historyFrom, monthPeriod.End
	for _, l := range data.Leaves {
		fy := c.deductions.FiscalYearOf(l)
		if _, seen := data.Quotas[fy]; !seen {
			q, err := c.sources.Leaves.GetQuota(ctx, citizenID, fy)
			if err != nil {
				return nil, fmt.Errorf("load quota %d: %w", fy, err)
			}
			data.Quotas[fy] = q
		}
		holidayFrom = generic.MinTime(holidayFrom, l.StartDate)
		holidayTo = generic.MaxTime(holidayTo, l.EndDate)
	}

	holidays, err := c.sources.Holidays.ListHolidays(ctx, holidayFrom, holidayTo)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	data.Holidays = generic.NewHolidaySet(holidays)
	return data, nil
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute is the pure part of the calculation.
func (c *MonthlyCalculator) Compute(data MonthData) (*CalculationResult, error) {
	monthPeriod := generic.MonthPeriod(data.Year, data.Month)
	daysInMonth := monthPeriod.Len()
	dim := decimal.NewFromInt(int64(daysInMonth))

	result := &CalculationResult{
		CitizenID:    data.CitizenID,
		Year:         data.Year,
		Month:        data.Month,
		DaysInMonth:  daysInMonth,
		EligibleDays: decimal.Zero,
		DeductedDays: decimal.Zero,
		NetPayment:   decimal.Zero,
		RateSnapshot: decimal.Zero,
	}

	segments, err := NewEligibilityResolver(data.Eligibility).Segments(monthPeriod)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		result.Remark = RemarkNoEligibility
		return result, nil
	}
	last := segments[len(segments)-1].Record
	result.MasterRateID = last.MasterRateID
	result.RateSnapshot = last.Rate.Amount

	timeline := BuildMovementTimeline(data.Movements, monthPeriod)
	if timeline.StudyCoversMonth() {
		result.Remark = RemarkStudyLeave
		return result, nil
	}
	payable := timeline.PayableDays()

	licenseDays := c.licenses.ValidDays(data.Licenses, monthPeriod)
	result.ValidLicenseDays = licenseDays.Len()

	weights := c.deductions.Weights(LeaveInput{
		Leaves:   data.Leaves,
		Quotas:   data.Quotas,
		Calendar: data.Holidays,
		Month:    monthPeriod,
	})

	covered := payable.Intersect(licenseDays)
	total := decimal.Zero
	for _, seg := range segments {
		eligible := covered.Intersect(generic.NewDaySet(seg.Period))
		eligibleDays := decimal.NewFromInt(int64(eligible.Len()))
		deducted := weights.TotalOver(eligible)

		rate := seg.Record.Rate.Amount
		var amount decimal.Decimal
		if eligible.Len() == daysInMonth && deducted.IsZero() {
			amount = rate
		} else {
			amount = rate.Mul(eligibleDays.Sub(deducted)).Div(dim)
		}

		result.EligibleDays = result.EligibleDays.Add(eligibleDays)
		result.DeductedDays = result.DeductedDays.Add(deducted)
		result.Segments = append(result.Segments, SegmentResult{
			MasterRateID: seg.Record.MasterRateID,
			Rate:         rate,
			Period:       seg.Period,
			EligibleDays: eligibleDays,
			DeductedDays: deducted,
			Amount:       amount,
		})
		total = total.Add(amount)
	}

	net, review := ClampNet(result.EligibleDays, result.DeductedDays, generic.RoundMoney(total))
	if review != nil {
		result.Review = review
		c.logger.Warn("allowance clamped for review",
			zap.String("citizen_id", string(data.CitizenID)),
			zap.Int("year", data.Year),
			zap.Int("month", int(data.Month)),
			zap.Error(review))
	}
	result.NetPayment = net
	result.Remark = remarkFor(result, payable, covered)
	return result, nil
}

// ClampNet checks the day and payment invariants. A violation is returned
// for review, never as an error, and the payment is clamped at zero.
func ClampNet(eligible, deducted, raw decimal.Decimal) (decimal.Decimal, *generic.InvariantViolation) {
	var code string
	switch {
	case eligible.IsNegative():
		code = "negative_eligible_days"
	case deducted.GreaterThan(eligible):
		code = "deducted_exceeds_eligible"
	case raw.IsNegative():
		code = "negative_payment"
	default:
		return raw, nil
	}
	net := raw
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net, &generic.InvariantViolation{
		Code:         code,
		EligibleDays: eligible,
		DeductedDays: deducted,
		Raw:          raw,
	}
}

func remarkFor(result *CalculationResult, payable, covered generic.DaySet) string {
	switch {
	case result.Review != nil:
		return RemarkReview
	case payable.Len() == 0:
		return RemarkNotEmployed
	case covered.Len() == 0:
		return RemarkNoLicense
	case result.DeductedDays.IsPositive():
		return fmt.Sprintf("leave deduction %s days", result.DeductedDays.String())
	}
	return ""
}
