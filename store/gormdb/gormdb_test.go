package gormdb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
	"github.com/warp/allowance-engine/store/gormdb"
)

const citizen = allowance.CitizenID("3100500011223")

func newStore(t *testing.T) *gormdb.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "allowance.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	s := gormdb.New(db)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := gormdb.Open(gormdb.Config{Driver: "oracle", DSN: "x"})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestGorm_EligibilityPreloadsRate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rate, err := s.SaveRate(ctx, allowance.MasterRate{ProfessionCode: "PHARM", GroupNo: 2, Amount: decimal.NewFromInt(3000), Active: true})
	require.NoError(t, err)
	require.NotZero(t, rate.ID)

	_, err = s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2023-10-01"), Active: true,
	})
	require.NoError(t, err)

	records, err := s.ListEligibility(ctx, citizen)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PHARM", records[0].Rate.ProfessionCode)
	assert.True(t, records[0].Rate.Amount.Equal(decimal.NewFromInt(3000)))
	assert.Nil(t, records[0].ExpiryDate)
}

func TestGorm_EligibilityConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rate, err := s.SaveRate(ctx, allowance.MasterRate{ProfessionCode: "RN", Amount: decimal.NewFromInt(1000), Active: true})
	require.NoError(t, err)
	rec := allowance.EligibilityRecord{CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2024-01-01"), Active: true}

	_, err = s.SaveEligibility(ctx, rec)
	require.NoError(t, err)

	_, err = s.SaveEligibility(ctx, rec)
	assert.ErrorIs(t, err, generic.ErrAmbiguousEligibility)

	rec.MasterRateID = 999
	rec.EffectiveDate = d("2024-02-01")
	_, err = s.SaveEligibility(ctx, rec)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestGorm_QuotaUpsertKeepsNulls(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	five, seven := decimal.NewFromInt(5), decimal.NewFromInt(7)

	require.NoError(t, s.SaveQuota(ctx, allowance.LeaveQuota{CitizenID: citizen, FiscalYear: 2024, Sick: &five}))
	require.NoError(t, s.SaveQuota(ctx, allowance.LeaveQuota{CitizenID: citizen, FiscalYear: 2024, Personal: &seven}))

	q, err := s.GetQuota(ctx, citizen, 2024)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Nil(t, q.Sick, "second save replaces the whole row")
	require.NotNil(t, q.Personal)
	assert.True(t, q.Personal.Equal(seven))

	missing, err := s.GetQuota(ctx, citizen, 2025)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGorm_LeavesAndHolidays(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.SaveLeave(ctx, allowance.LeaveRequest{
		CitizenID: citizen, LeaveType: allowance.LeavePersonal,
		StartDate: d("2024-03-04"), EndDate: d("2024-03-04"), DurationDays: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{ID: "chakri", Date: d("2024-04-06"), Name: "Chakri Day"}))
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{ID: "chakri", Date: d("2024-04-06"), Name: "Chakri Memorial Day"}))

	leaves, err := s.ListLeaves(ctx, citizen, d("2024-03-01"), d("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.True(t, leaves[0].IsHalfDay())

	hs, err := s.ListHolidays(ctx, d("2024-04-01"), d("2024-04-30"))
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "Chakri Memorial Day", hs[0].Name)

	require.NoError(t, s.DeleteHoliday(ctx, d("2024-04-06")))
	hs, err = s.ListHolidays(ctx, d("2024-04-01"), d("2024-04-30"))
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestGorm_PayoutLedger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mar, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.March, Status: allowance.PeriodClosed})
	require.NoError(t, err)
	apr, err := s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.April})
	require.NoError(t, err)

	write := func(periodID int64, id string, items ...allowance.PayoutItem) {
		require.NoError(t, s.WithTx(ctx, func(tx allowance.PayoutStore) error {
			if err := tx.DeletePayout(ctx, periodID, citizen); err != nil {
				return err
			}
			return tx.InsertPayout(ctx, allowance.Payout{
				ID: id, PeriodID: periodID, CitizenID: citizen,
				TotalPayable: decimal.NewFromInt(100), Items: items, CreatedAt: time.Now().UTC(),
			})
		}))
	}

	// GIVEN April carries a February correction, written twice
	add := allowance.PayoutItem{ID: "i-1", ReferenceYear: 2024, ReferenceMonth: time.February,
		ItemType: allowance.ItemRetroactiveAdd, Amount: decimal.NewFromInt(50)}
	write(mar.ID, "p-mar")
	write(apr.ID, "p-apr-1", add)
	add.ID = "i-2"
	write(apr.ID, "p-apr-2", add)

	// THEN only one payout and one item survive for April
	payouts, err := s.ListPayouts(ctx, apr.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "p-apr-2", payouts[0].ID)
	require.Len(t, payouts[0].Items, 1)

	items, err := s.ListAdjustments(ctx, citizen, 2024, time.February, mar.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i-2", items[0].ID)

	items, err = s.ListAdjustments(ctx, citizen, 2024, time.February, apr.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGorm_PeriodsAndRunner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rate, err := s.SaveRate(ctx, allowance.MasterRate{ProfessionCode: "MD", Amount: decimal.NewFromInt(10000), Active: true})
	require.NoError(t, err)
	_, err = s.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID: citizen, MasterRateID: rate.ID, EffectiveDate: d("2020-01-01"), Active: true,
	})
	require.NoError(t, err)
	_, err = s.SaveLicense(ctx, allowance.LicenseRecord{
		CitizenID: citizen, LicenseNo: "MD-9", ValidFrom: d("2000-01-01"), Status: allowance.LicenseActive, OccupationName: "physician",
	})
	require.NoError(t, err)
	_, err = s.SavePeriod(ctx, allowance.PayPeriod{Year: 2024, Month: time.June})
	require.NoError(t, err)

	open, err := s.ListOpenPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// WHEN the period is run under the store's lock
	engine := allowance.NewEngineFromStore(s, allowance.Options{})
	runner := allowance.NewPeriodRunner(engine, s, s, s, nil)
	report, err := runner.RunPeriod(ctx, 2024, time.June)

	// THEN the citizen is paid the full rate
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	payout, err := s.GetPayout(ctx, open[0].ID, citizen)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.True(t, payout.TotalPayable.Equal(decimal.NewFromInt(10000)), payout.TotalPayable.String())

	require.NoError(t, s.SetPeriodStatus(ctx, 2024, time.June, allowance.PeriodClosed))
	assert.ErrorIs(t, s.SetPeriodStatus(ctx, 2024, time.July, allowance.PeriodClosed), generic.ErrPeriodNotFound)

	require.NoError(t, s.Reset(ctx))
	rates, err := s.ListRates(ctx)
	require.NoError(t, err)
	assert.Empty(t, rates)
}
