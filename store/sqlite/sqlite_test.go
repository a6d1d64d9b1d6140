package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
	"github.com/warp/allowance-engine/store/sqlite"
)

const citizen = allowance.CitizenID("1100100200301")

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func seedRate(t *testing.T, s *sqlite.Store, amount int64) allowance.MasterRate {
	t.Helper()
	r, err := s.SaveRate(context.Background(), allowance.MasterRate{
		ProfessionCode: "NURSE", GroupNo: 1, Amount: decimal.NewFromInt(amount), Active: true,
	})
	require.NoError(t, err)
	return r
}

func TestSQLite_EligibilityJoinsRate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rate := seedRate(t, s, 31000)

	// GIVEN two eligibility rows
	_, err := s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2020-01-01"), Active: true,
	})
	require.NoError(t, err)
	expiry := d("2024-06-30")
	_, err = s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2024-01-01"), ExpiryDate: &expiry, Active: true,
	})
	require.NoError(t, err)

	// WHEN listing
	records, err := s.ListEligibility(ctx, citizen)

	// THEN the rate is joined and the newest comes first
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, d("2024-01-01"), records[0].EffectiveDate)
	require.NotNil(t, records[0].ExpiryDate)
	assert.Equal(t, expiry, *records[0].ExpiryDate)
	assert.True(t, records[0].Rate.Amount.Equal(decimal.NewFromInt(31000)))
	assert.Nil(t, records[1].ExpiryDate)
}

func TestSQLite_DuplicateEffectiveDateRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rate := seedRate(t, s, 1000)
	rec := allowance.EligibilityRecord{CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2024-01-01"), Active: true}

	_, err := s.SaveEligibility(ctx, rec)
	require.NoError(t, err)
	_, err = s.SaveEligibility(ctx, rec)

	assert.ErrorIs(t, err, generic.ErrAmbiguousEligibility)
}

func TestSQLite_EligibilityUnknownRate(t *testing.T) {
	s := newStore(t)

	_, err := s.SaveEligibility(context.Background(), allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: 42, EffectiveDate: d("2024-01-01"), Active: true,
	})

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSQLite_LeavesOverlapFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, span := range [][2]string{
		{"2023-12-20", "2024-01-03"},
		{"2024-01-10", "2024-01-10"},
		{"2024-02-01", "2024-02-02"},
	} {
		_, err := s.SaveLeave(ctx, allowance.LeaveRequest{
			CitizenID: citizen, LeaveType: allowance.LeaveSick,
			StartDate: d(span[0]), EndDate: d(span[1]), DurationDays: decimal.NewFromInt(1),
		})
		require.NoError(t, err)
	}

	leaves, err := s.ListLeaves(ctx, citizen, d("2024-01-01"), d("2024-01-31"))

	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, d("2023-12-20"), leaves[0].StartDate)
	assert.Equal(t, d("2024-01-10"), leaves[1].StartDate)
}

func TestSQLite_QuotaNullsAreUnlimited(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	ten := decimal.NewFromInt(10)

	q, err := s.GetQuota(ctx, citizen, 2024)
	require.NoError(t, err)
	assert.Nil(t, q, "no row")

	require.NoError(t, s.SaveQuota(ctx, allowance.LeaveQuota{CitizenID: citizen, FiscalYear: 2024, Sick: &ten}))
	q, err = s.GetQuota(ctx, citizen, 2024)
	require.NoError(t, err)
	require.NotNil(t, q)
	require.NotNil(t, q.Sick)
	assert.True(t, q.Sick.Equal(ten))
	assert.Nil(t, q.Vacation)
	assert.Nil(t, q.Personal)
}

func TestSQLite_Holidays(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{Date: d("2024-04-15"), Name: "Songkran"}))
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{Date: d("2024-04-13"), Name: "Songkran"}))
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{Date: d("2024-05-01"), Name: "Labour Day"}))

	hs, err := s.ListHolidays(ctx, d("2024-04-01"), d("2024-04-30"))
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, d("2024-04-13"), hs[0].Date)

	require.NoError(t, s.DeleteHoliday(ctx, d("2024-04-13")))
	hs, err = s.ListHolidays(ctx, d("2024-04-01"), d("2024-04-30"))
	require.NoError(t, err)
	assert.Len(t, hs, 1)
}

func TestSQLite_PeriodLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, allowance.PeriodOpen, p.Status)

	again, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January, Status: allowance.PeriodWaitingHR})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID, "same month keeps its id")

	require.NoError(t, s.SetPeriodStatus(ctx, 2024, time.January, allowance.PeriodClosed))
	got, err := s.GetPeriod(ctx, 2024, time.January)
	require.NoError(t, err)
	assert.Equal(t, allowance.PeriodClosed, got.Status)

	open, err := s.ListOpenPeriods(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	err = s.SetPeriodStatus(ctx, 2030, time.May, allowance.PeriodClosed)
	assert.ErrorIs(t, err, generic.ErrPeriodNotFound)

	missing, err := s.GetPeriod(ctx, 2030, time.May)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_PayoutReplaceAndLedger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	jan, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January, Status: allowance.PeriodClosed})
	require.NoError(t, err)
	feb, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.February})
	require.NoError(t, err)

	payout := func(id string, periodID int64, total int64, items ...allowance.PayoutItem) allowance.Payout {
		return allowance.Payout{
			ID: id, PeriodID: periodID, CitizenID: citizen,
			RateSnapshot: decimal.NewFromInt(1000), CalculatedAmount: decimal.NewFromInt(total),
			RetroactiveAmount: decimal.Zero, TotalPayable: decimal.NewFromInt(total),
			EligibleDays: decimal.NewFromInt(31), DeductedDays: decimal.Zero,
			Items: items, CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	item := allowance.PayoutItem{
		ID: "item-1", ReferenceYear: 2023, ReferenceMonth: time.December,
		ItemType: allowance.ItemRetroactiveDeduct, Amount: decimal.NewFromInt(200),
	}

	// GIVEN a January payout carrying a December correction
	require.NoError(t, s.WithTx(ctx, func(tx allowance.PayoutStore) error {
		return tx.InsertPayout(ctx, payout("p-jan", jan.ID, 1000, item))
	}))

	// WHEN February is written twice
	for _, total := range []int64{500, 700} {
		require.NoError(t, s.WithTx(ctx, func(tx allowance.PayoutStore) error {
			if err := tx.DeletePayout(ctx, feb.ID, citizen); err != nil {
				return err
			}
			return tx.InsertPayout(ctx, payout("p-feb", feb.ID, total))
		}))
	}

	// THEN only the last February payout remains
	got, err := s.GetPayout(ctx, feb.ID, citizen)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalPayable.Equal(decimal.NewFromInt(700)))

	// AND the December correction is visible from other periods only
	items, err := s.ListAdjustments(ctx, citizen, 2023, time.December, feb.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Signed().Equal(decimal.NewFromInt(-200)))

	items, err = s.ListAdjustments(ctx, citizen, 2023, time.December, jan.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	all, err := s.ListPayouts(ctx, jan.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Items, 1)
}

func TestSQLite_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.March})
	require.NoError(t, err)
	boom := errors.New("boom")

	err = s.WithTx(ctx, func(tx allowance.PayoutStore) error {
		if err := tx.InsertPayout(ctx, allowance.Payout{
			ID: "p-1", PeriodID: p.ID, CitizenID: citizen, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, err := s.GetPayout(ctx, p.ID, citizen)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_EngineRecompute(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rate := seedRate(t, s, 31000)
	_, err := s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2020-01-01"), Active: true,
	})
	require.NoError(t, err)
	_, err = s.SaveLicense(ctx, allowance.LicenseRecord{
		CitizenID: citizen, LicenseNo: "N-1", ValidFrom: d("2020-01-01"), Status: allowance.LicenseActive, OccupationName: "nurse",
	})
	require.NoError(t, err)
	_, err = s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January})
	require.NoError(t, err)

	engine := allowance.NewEngineFromStore(s, allowance.Options{})
	payout, err := engine.Recompute(ctx, citizen, 2024, time.January)

	require.NoError(t, err)
	assert.True(t, payout.TotalPayable.Equal(decimal.NewFromInt(31000)), payout.TotalPayable.String())

	ids, err := s.ListEligibleCitizens(ctx, d("2024-01-01"), d("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, []allowance.CitizenID{citizen}, ids)
}

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedRate(t, s, 1000)

	require.NoError(t, s.Reset(ctx))

	rates, err := s.ListRates(ctx)
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestSQLite_CorruptAmountsFailReads(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	jan, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January, Status: allowance.PeriodClosed})
	require.NoError(t, err)
	feb, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.February})
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx allowance.PayoutStore) error {
		return tx.InsertPayout(ctx, allowance.Payout{
			ID: "p-feb", PeriodID: feb.ID, CitizenID: citizen,
			CalculatedAmount: decimal.NewFromInt(5000), TotalPayable: decimal.NewFromInt(5000),
			Items: []allowance.PayoutItem{{
				ID: "item-1", ReferenceYear: 2024, ReferenceMonth: time.January,
				ItemType: allowance.ItemRetroactiveAdd, Amount: decimal.NewFromInt(300),
			}},
			CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	}))

	t.Run("payout amount", func(t *testing.T) {
		require.NoError(t, s.ExecRaw(`UPDATE payouts SET calculated_amount = '5,000.00' WHERE id = 'p-feb'`))
		t.Cleanup(func() { require.NoError(t, s.ExecRaw(`UPDATE payouts SET calculated_amount = '5000' WHERE id = 'p-feb'`)) })

		got, err := s.GetPayout(ctx, feb.ID, citizen)

		require.Error(t, err)
		assert.Nil(t, got)
		assert.Contains(t, err.Error(), "calculated_amount")
	})

	t.Run("created at", func(t *testing.T) {
		require.NoError(t, s.ExecRaw(`UPDATE payouts SET created_at = 'yesterday' WHERE id = 'p-feb'`))
		t.Cleanup(func() {
			require.NoError(t, s.ExecRaw(`UPDATE payouts SET created_at = '2024-03-01T00:00:00Z' WHERE id = 'p-feb'`))
		})

		_, err := s.GetPayout(ctx, feb.ID, citizen)

		assert.ErrorContains(t, err, "created_at")
	})

	t.Run("ledger item amount", func(t *testing.T) {
		require.NoError(t, s.ExecRaw(`UPDATE payout_items SET amount = 'n/a' WHERE id = 'item-1'`))

		items, err := s.ListAdjustments(ctx, citizen, 2024, time.January, jan.ID)

		require.Error(t, err)
		assert.Empty(t, items)
	})
}

func TestSQLite_CorruptPaidAmountStopsRetroactive(t *testing.T) {
	// GIVEN a closed January paid in full whose stored amount is unreadable
	ctx := context.Background()
	s := newStore(t)
	rate := seedRate(t, s, 31000)
	_, err := s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2020-01-01"), Active: true,
	})
	require.NoError(t, err)
	_, err = s.SaveLicense(ctx, allowance.LicenseRecord{
		CitizenID: citizen, LicenseNo: "N-1", ValidFrom: d("2020-01-01"), Status: allowance.LicenseActive,
	})
	require.NoError(t, err)
	jan, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.January, Status: allowance.PeriodClosed})
	require.NoError(t, err)
	_, err = s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.February})
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx allowance.PayoutStore) error {
		return tx.InsertPayout(ctx, allowance.Payout{
			ID: "p-jan", PeriodID: jan.ID, CitizenID: citizen, MasterRateID: rate.ID,
			RateSnapshot: decimal.NewFromInt(31000), CalculatedAmount: decimal.NewFromInt(31000),
			TotalPayable: decimal.NewFromInt(31000), EligibleDays: decimal.NewFromInt(31),
			CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		})
	}))
	require.NoError(t, s.ExecRaw(`UPDATE payouts SET calculated_amount = '31,000.00' WHERE id = 'p-jan'`))

	// WHEN February reconciles January
	engine := allowance.NewEngineFromStore(s, allowance.Options{LookBackMonths: 1})
	retro, err := engine.CalculateRetroactive(ctx, citizen, 2024, time.February, 0)

	// THEN the read fails rather than proposing January again
	require.Error(t, err)
	assert.Nil(t, retro)
}

func TestSQLite_CorruptQuotaFailsRead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sick := decimal.NewFromInt(30)
	require.NoError(t, s.SaveQuota(ctx, allowance.LeaveQuota{CitizenID: citizen, FiscalYear: 2024, Sick: &sick}))
	require.NoError(t, s.ExecRaw(`UPDATE leave_quotas SET sick = 'thirty'`))

	_, err := s.GetQuota(ctx, citizen, 2024)

	assert.ErrorContains(t, err, "leave_quotas.sick")
}
