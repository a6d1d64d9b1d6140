package allowance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/allowance/store"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const cid = allowance.CitizenID("1100700000001")

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	engine *allowance.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemory()
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  m,
		engine: allowance.NewEngineFromStore(m, allowance.Options{}),
	}
}

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func (f *fixture) rate(amount string) allowance.MasterRate {
	r, err := f.store.SaveRate(f.ctx, allowance.MasterRate{ProfessionCode: "NURSE", GroupNo: 1, Amount: dec(amount), Active: true})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) eligible(rate allowance.MasterRate, effective string) allowance.EligibilityRecord {
	rec, err := f.store.SaveEligibility(f.ctx, allowance.EligibilityRecord{
		CitizenID:     cid,
		MasterRateID:  rate.ID,
		EffectiveDate: date(effective),
		Active:        true,
	})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) lifetimeLicense() {
	_, err := f.store.SaveLicense(f.ctx, allowance.LicenseRecord{
		CitizenID:      cid,
		LicenseNo:      "MD-1",
		ValidFrom:      date("2000-01-01"),
		Status:         allowance.LicenseActive,
		OccupationName: "physician",
	})
	require.NoError(f.t, err)
}

func (f *fixture) license(from, until string) {
	u := date(until)
	_, err := f.store.SaveLicense(f.ctx, allowance.LicenseRecord{
		CitizenID:      cid,
		LicenseNo:      "RN-" + from,
		ValidFrom:      date(from),
		ValidUntil:     &u,
		Status:         allowance.LicenseActive,
		OccupationName: "registered nurse",
	})
	require.NoError(f.t, err)
}

func (f *fixture) movement(typ allowance.MovementType, effective string) {
	_, err := f.store.SaveMovement(f.ctx, allowance.MovementRecord{CitizenID: cid, Type: typ, EffectiveDate: date(effective)})
	require.NoError(f.t, err)
}

func (f *fixture) leave(typ allowance.LeaveType, start, end string, duration string) {
	_, err := f.store.SaveLeave(f.ctx, allowance.LeaveRequest{
		CitizenID:    cid,
		LeaveType:    typ,
		StartDate:    date(start),
		EndDate:      date(end),
		DurationDays: dec(duration),
	})
	require.NoError(f.t, err)
}

func (f *fixture) sickQuota(fiscalYear int, sick string) {
	s := dec(sick)
	require.NoError(f.t, f.store.SaveQuota(f.ctx, allowance.LeaveQuota{CitizenID: cid, FiscalYear: fiscalYear, Sick: &s}))
}

func (f *fixture) period(year int, month time.Month, status allowance.PeriodStatus) allowance.PayPeriod {
	p, err := f.store.SavePeriod(f.ctx, allowance.PayPeriod{Year: year, Month: month, Status: status})
	require.NoError(f.t, err)
	return p
}

// paid records a historical payout directly in the ledger.
func (f *fixture) paid(period allowance.PayPeriod, amount string, items ...allowance.PayoutItem) {
	require.NoError(f.t, f.store.WithTx(f.ctx, func(s allowance.PayoutStore) error {
		return s.InsertPayout(f.ctx, allowance.Payout{
			ID:               "payout-" + period.Month.String(),
			PeriodID:         period.ID,
			CitizenID:        cid,
			CalculatedAmount: dec(amount),
			TotalPayable:     dec(amount),
			Items:            items,
		})
	}))
}

func (f *fixture) calc(year int, month time.Month) *allowance.CalculationResult {
	f.t.Helper()
	res, err := f.engine.CalculateMonthly(f.ctx, cid, year, month)
	require.NoError(f.t, err)
	return res
}

// =============================================================================
// MONTHLY CALCULATION
// =============================================================================

func TestCalculateMonthly_FullMonth(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()

	res := f.calc(2024, time.January)

	assertDecimal(t, "31", res.EligibleDays)
	assertDecimal(t, "0", res.DeductedDays)
	assertDecimal(t, "31000", res.NetPayment)
	assert.Equal(t, 31, res.ValidLicenseDays)
	assert.Equal(t, 31, res.DaysInMonth)
	assertDecimal(t, "31000", res.RateSnapshot)
	assert.Nil(t, res.Review)
}

func TestCalculateMonthly_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	f.leave(allowance.LeaveSick, "2024-01-25", "2024-01-26", "2")

	first := f.calc(2024, time.January)
	second := f.calc(2024, time.January)

	assert.Equal(t, first, second)
}

func TestCalculateMonthly_NoEligibility(t *testing.T) {
	f := newFixture(t)
	f.lifetimeLicense()

	res := f.calc(2024, time.January)

	assertDecimal(t, "0", res.NetPayment)
	assert.Equal(t, allowance.RemarkNoEligibility, res.Remark)
}

func TestCalculateMonthly_LicenseUnion(t *testing.T) {
	// GIVEN: two overlapping licenses covering July
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.license("2024-07-01", "2024-07-20")
	f.license("2024-07-10", "2024-07-31")

	res := f.calc(2024, time.July)

	// THEN: days are unioned, not summed
	assert.Equal(t, 31, res.ValidLicenseDays)
	assertDecimal(t, "31000", res.NetPayment)
}

func TestCalculateMonthly_LicenseGapProRated(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.license("2024-07-01", "2024-07-10")

	res := f.calc(2024, time.July)

	assert.Equal(t, 10, res.ValidLicenseDays)
	assertDecimal(t, "10000", res.NetPayment)
}

func TestCalculateMonthly_Continuity(t *testing.T) {
	// GIVEN: resign and re-enter on the same day
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.movement(allowance.MovementEntry, "2024-01-01")
	f.movement(allowance.MovementResign, "2024-01-15")
	f.movement(allowance.MovementEntry, "2024-01-15")

	res := f.calc(2024, time.January)

	assertDecimal(t, "31", res.EligibleDays)
	assertDecimal(t, "31000", res.NetPayment)
}

func TestCalculateMonthly_ProRation(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.movement(allowance.MovementEntry, "2024-01-16")

	res := f.calc(2024, time.January)

	assertDecimal(t, "16", res.EligibleDays)
	assertDecimal(t, "16000", res.NetPayment)
}

func TestCalculateMonthly_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	f.leave(allowance.LeaveSick, "2024-01-25", "2024-01-26", "2")

	res := f.calc(2024, time.January)

	assertDecimal(t, "2", res.DeductedDays)
	assertDecimal(t, "29000", res.NetPayment)
}

func TestCalculateMonthly_WithinDefaultQuota_NoDeduction(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.leave(allowance.LeaveSick, "2024-01-25", "2024-01-26", "2")

	res := f.calc(2024, time.January)

	assertDecimal(t, "0", res.DeductedDays)
	assertDecimal(t, "31000", res.NetPayment)
}

func TestCalculateMonthly_StudyCoversMonth(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.movement(allowance.MovementStudy, "2023-12-01")

	res := f.calc(2024, time.January)

	assertDecimal(t, "0", res.NetPayment)
	assert.Equal(t, allowance.RemarkStudyLeave, res.Remark)
}

func TestCalculateMonthly_StudyPartOfMonth(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.movement(allowance.MovementStudy, "2024-01-01")
	f.movement(allowance.MovementReturn, "2024-01-11")

	res := f.calc(2024, time.January)

	assertDecimal(t, "21", res.EligibleDays)
	assertDecimal(t, "21000", res.NetPayment)
}

func TestCalculateMonthly_CrossMonthClipping(t *testing.T) {
	// GIVEN: 11-day sick leave spanning June and July, quota 0
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	f.leave(allowance.LeaveSick, "2024-06-25", "2024-07-05", "11")

	res := f.calc(2024, time.July)

	// THEN: only 07-01..07-05 are deducted in July
	assertDecimal(t, "5", res.DeductedDays)
	assertDecimal(t, "26000", res.NetPayment)
}

func TestCalculateMonthly_WeekendGapNotBridged(t *testing.T) {
	// GIVEN: leave on Friday 01-12 and Monday 01-15, weekend also holidays
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	require.NoError(t, f.store.SaveHoliday(f.ctx, generic.Holiday{Date: date("2024-01-13"), Name: "sat"}))
	require.NoError(t, f.store.SaveHoliday(f.ctx, generic.Holiday{Date: date("2024-01-14"), Name: "sun"}))
	f.leave(allowance.LeaveSick, "2024-01-12", "2024-01-12", "1")
	f.leave(allowance.LeaveSick, "2024-01-15", "2024-01-15", "1")

	res := f.calc(2024, time.January)

	assertDecimal(t, "2", res.DeductedDays)
	assertDecimal(t, "29000", res.NetPayment)
}

func TestCalculateMonthly_Monotonic(t *testing.T) {
	previous := dec("31000")
	ends := []struct{ end, days string }{
		{"2024-01-08", "1"}, {"2024-01-09", "2"}, {"2024-01-10", "3"}, {"2024-01-12", "5"}, {"2024-01-19", "10"},
	}
	for _, tc := range ends {
		end := tc.end
		f := newFixture(t)
		f.eligible(f.rate("31000"), "2023-01-01")
		f.lifetimeLicense()
		f.sickQuota(2024, "0")
		f.leave(allowance.LeaveSick, "2024-01-08", end, tc.days)

		res := f.calc(2024, time.January)

		assert.True(t, res.NetPayment.LessThanOrEqual(previous), "leave to %s paid %s after %s", end, res.NetPayment, previous)
		previous = res.NetPayment
	}
}

func TestCalculateMonthly_RateSplitMidMonth(t *testing.T) {
	// GIVEN: a promotion effective 2024-09-16
	f := newFixture(t)
	f.eligible(f.rate("30000"), "2023-01-01")
	promoted := f.rate("60000")
	f.eligible(promoted, "2024-09-16")
	f.lifetimeLicense()

	res := f.calc(2024, time.September)

	require.Len(t, res.Segments, 2)
	assert.Equal(t, date("2024-09-15"), res.Segments[0].Period.End)
	assert.Equal(t, date("2024-09-16"), res.Segments[1].Period.Start)
	assertDecimal(t, "45000", res.NetPayment)
	assert.Equal(t, promoted.ID, res.MasterRateID)
	assertDecimal(t, "60000", res.RateSnapshot)
}

func TestCalculateMonthly_HalfDay(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	f.leave(allowance.LeaveSick, "2024-01-10", "2024-01-10", "0.5")

	res := f.calc(2024, time.January)

	assertDecimal(t, "0.5", res.DeductedDays)
	assertDecimal(t, "30500", res.NetPayment)
}

func TestCalculateMonthly_NoPayLeave(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	_, err := f.store.SaveLeave(f.ctx, allowance.LeaveRequest{
		CitizenID:    cid,
		LeaveType:    allowance.LeavePersonal,
		StartDate:    date("2024-01-06"),
		EndDate:      date("2024-01-07"),
		DurationDays: dec("2"),
		NoPay:        true,
	})
	require.NoError(t, err)

	res := f.calc(2024, time.January)

	assertDecimal(t, "2", res.DeductedDays)
	assertDecimal(t, "29000", res.NetPayment)
}

func TestCalculateMonthly_CumulativeUsageAcrossMonths(t *testing.T) {
	// GIVEN: quota 3, three sick days already used in December (same fiscal year)
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "3")
	f.leave(allowance.LeaveSick, "2023-12-04", "2023-12-06", "3")
	f.leave(allowance.LeaveSick, "2024-01-08", "2024-01-08", "1")

	res := f.calc(2024, time.January)

	assertDecimal(t, "1", res.DeductedDays)
	assertDecimal(t, "30000", res.NetPayment)
}

func TestCalculateMonthly_DeductionOnIneligibleDayIgnored(t *testing.T) {
	f := newFixture(t)
	f.eligible(f.rate("31000"), "2023-01-01")
	f.lifetimeLicense()
	f.sickQuota(2024, "0")
	f.movement(allowance.MovementEntry, "2024-01-16")
	f.leave(allowance.LeaveSick, "2024-01-08", "2024-01-08", "1")

	res := f.calc(2024, time.January)

	assertDecimal(t, "0", res.DeductedDays)
	assertDecimal(t, "16000", res.NetPayment)
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestClampNet(t *testing.T) {
	cases := []struct {
		name                    string
		eligible, deducted, raw string
		wantNet, wantCode       string
	}{
		{"within bounds", "31", "2", "29000", "29000", ""},
		{"negative payment", "31", "2", "-150.25", "0", "negative_payment"},
		{"deducted exceeds eligible", "10", "12", "-2000", "0", "deducted_exceeds_eligible"},
		{"deducted exceeds eligible, positive raw kept", "10", "12", "500", "500", "deducted_exceeds_eligible"},
		{"negative eligible days", "-1", "0", "-1000", "0", "negative_eligible_days"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net, review := allowance.ClampNet(dec(tc.eligible), dec(tc.deducted), dec(tc.raw))

			assertDecimal(t, tc.wantNet, net)
			assert.False(t, net.IsNegative())
			if tc.wantCode == "" {
				assert.Nil(t, review)
				return
			}
			require.NotNil(t, review)
			assert.Equal(t, tc.wantCode, review.Code)
			assertDecimal(t, tc.raw, review.Raw, "raw payment is kept for the reviewer")
			assertDecimal(t, tc.eligible, review.EligibleDays)
			assertDecimal(t, tc.deducted, review.DeductedDays)
			assert.ErrorIs(t, review, generic.ErrInvariantViolation)
		})
	}
}

// =============================================================================
// ERRORS
// =============================================================================

func TestCalculateMonthly_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CalculateMonthly(f.ctx, "", 2024, time.January)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = f.engine.CalculateMonthly(f.ctx, cid, 2024, time.Month(13))
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "month", verr.Field)

	_, err = f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, -1)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestCalculateMonthly_ClosedPeriodRejected(t *testing.T) {
	f := newFixture(t)
	f.period(2024, time.January, allowance.PeriodClosed)

	_, err := f.engine.CalculateMonthly(f.ctx, cid, 2024, time.January)

	var conflict *generic.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, generic.ErrPeriodClosed)
	assert.True(t, generic.IsConflict(err))
}

func TestCalculateMonthly_SourceOutagePropagates(t *testing.T) {
	f := newFixture(t)
	outage := errors.New("connection refused")
	f.store.FailWith = outage

	_, err := f.engine.CalculateMonthly(f.ctx, cid, 2024, time.January)

	assert.ErrorIs(t, err, outage)
}

// =============================================================================
// RETROACTIVE
// =============================================================================

func TestRetroactive_Add(t *testing.T) {
	// GIVEN: January paid 5000, then the rate is corrected to 10000 from 01-01
	f := newFixture(t)
	f.lifetimeLicense()
	low := f.rate("5000")
	high := f.rate("10000")
	rec := f.eligible(low, "2024-01-01")
	jan := f.period(2024, time.January, allowance.PeriodClosed)
	feb := f.period(2024, time.February, allowance.PeriodClosed)
	f.period(2024, time.March, allowance.PeriodOpen)
	f.paid(jan, "5000")
	rec.MasterRateID = high.ID
	_, err := f.store.SaveEligibility(f.ctx, rec)
	require.NoError(t, err)
	f.paid(feb, "10000")

	// WHEN: reconciling in March
	res, err := f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, 0)
	require.NoError(t, err)

	// THEN
	assertDecimal(t, "5000", res.TotalRetro)
	require.Len(t, res.Details, 1)
	assert.Equal(t, time.January, res.Details[0].Month)
	assertDecimal(t, "5000", res.Details[0].PaidAmount)
	assertDecimal(t, "10000", res.Details[0].ShouldBe)
}

func TestRetroactive_Clawback(t *testing.T) {
	f := newFixture(t)
	f.lifetimeLicense()
	low := f.rate("5000")
	high := f.rate("10000")
	rec := f.eligible(high, "2024-01-01")
	jan := f.period(2024, time.January, allowance.PeriodClosed)
	feb := f.period(2024, time.February, allowance.PeriodClosed)
	f.period(2024, time.March, allowance.PeriodOpen)
	f.paid(jan, "10000")
	rec.MasterRateID = low.ID
	_, err := f.store.SaveEligibility(f.ctx, rec)
	require.NoError(t, err)
	f.paid(feb, "5000")

	retro, err := f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, 0)
	require.NoError(t, err)
	assertDecimal(t, "-5000", retro.TotalRetro)

	payout, err := f.engine.Recompute(f.ctx, cid, 2024, time.March)
	require.NoError(t, err)
	assertDecimal(t, "5000", payout.CalculatedAmount)
	assertDecimal(t, "-5000", payout.RetroactiveAmount)
	assertDecimal(t, "0", payout.TotalPayable)
	require.Len(t, payout.Items, 1)
	assert.Equal(t, allowance.ItemRetroactiveDeduct, payout.Items[0].ItemType)
	assertDecimal(t, "5000", payout.Items[0].Amount)
}

func TestRetroactive_LedgeredCorrectionNotRepeated(t *testing.T) {
	// GIVEN: the January correction of 5000 was paid through February's payout
	f := newFixture(t)
	f.lifetimeLicense()
	f.eligible(f.rate("10000"), "2024-01-01")
	jan := f.period(2024, time.January, allowance.PeriodClosed)
	feb := f.period(2024, time.February, allowance.PeriodClosed)
	f.period(2024, time.March, allowance.PeriodOpen)
	f.paid(jan, "5000")
	f.paid(feb, "10000", allowance.PayoutItem{
		ID:             "item-jan",
		PayoutID:       "payout-February",
		ReferenceYear:  2024,
		ReferenceMonth: time.January,
		ItemType:       allowance.ItemRetroactiveAdd,
		Amount:         dec("5000"),
	})

	// WHEN: March is recomputed
	res, err := f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, 0)
	require.NoError(t, err)

	// THEN: nothing is proposed again
	assertDecimal(t, "0", res.TotalRetro)
	assert.Empty(t, res.Details)
}

func TestRetroactive_SkipsNonClosedAndMissingMonths(t *testing.T) {
	f := newFixture(t)
	f.lifetimeLicense()
	f.eligible(f.rate("10000"), "2024-01-01")
	f.period(2024, time.February, allowance.PeriodWaitingHR)

	res, err := f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, 6)
	require.NoError(t, err)

	assert.Empty(t, res.Details)
}

func TestRetroactive_UnpaidClosedMonthOwedInFull(t *testing.T) {
	f := newFixture(t)
	f.lifetimeLicense()
	f.eligible(f.rate("10000"), "2024-01-01")
	f.period(2024, time.January, allowance.PeriodClosed)

	res, err := f.engine.CalculateRetroactive(f.ctx, cid, 2024, time.March, 6)
	require.NoError(t, err)

	assertDecimal(t, "10000", res.TotalRetro)
	require.Len(t, res.Details, 1)
	assertDecimal(t, "0", res.Details[0].PaidAmount)
}

// =============================================================================
// RECOMPUTE / SAVE
// =============================================================================

func TestRecompute_OverwritesOwnPayout(t *testing.T) {
	f := newFixture(t)
	f.lifetimeLicense()
	low := f.rate("5000")
	high := f.rate("10000")
	rec := f.eligible(low, "2024-01-01")
	jan := f.period(2024, time.January, allowance.PeriodClosed)
	march := f.period(2024, time.March, allowance.PeriodOpen)
	f.paid(jan, "5000")
	rec.MasterRateID = high.ID
	_, err := f.store.SaveEligibility(f.ctx, rec)
	require.NoError(t, err)

	first, err := f.engine.Recompute(f.ctx, cid, 2024, time.March)
	require.NoError(t, err)
	second, err := f.engine.Recompute(f.ctx, cid, 2024, time.March)
	require.NoError(t, err)

	// The March payout's own items do not count as already paid.
	assertDecimal(t, "5000", first.RetroactiveAmount)
	assertDecimal(t, "5000", second.RetroactiveAmount)
	assertDecimal(t, "15000", second.TotalPayable)

	payouts, err := f.store.ListPayouts(f.ctx, march.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, second.ID, payouts[0].ID)
	require.Len(t, payouts[0].Items, 1)
	assert.Equal(t, allowance.ItemRetroactiveAdd, payouts[0].Items[0].ItemType)
}

func TestRecompute_ClosedPeriodRejected(t *testing.T) {
	f := newFixture(t)
	f.period(2024, time.January, allowance.PeriodClosed)

	_, err := f.engine.Recompute(f.ctx, cid, 2024, time.January)

	assert.ErrorIs(t, err, generic.ErrPeriodClosed)
}

func TestRecompute_MissingPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Recompute(f.ctx, cid, 2024, time.January)

	assert.True(t, generic.IsNotFound(err))
}

func TestSavePayout_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	p := f.period(2024, time.January, allowance.PeriodOpen)
	f.paid(p, "100")

	boom := errors.New("boom")
	err := f.store.WithTx(f.ctx, func(s allowance.PayoutStore) error {
		if err := s.DeletePayout(f.ctx, p.ID, cid); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	existing, err := f.store.GetPayout(f.ctx, p.ID, cid)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assertDecimal(t, "100", existing.CalculatedAmount)
}

func TestSavePayout_ReadOnlyEngine(t *testing.T) {
	m := store.NewMemory()
	engine := allowance.NewEngine(allowance.SourcesFrom(m), nil, allowance.Options{})

	_, err := engine.SavePayout(context.Background(), 1, &allowance.CalculationResult{CitizenID: cid}, nil)

	assert.ErrorIs(t, err, generic.ErrStoreRequired)
}
