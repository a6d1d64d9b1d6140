/*
Package gormdb provides a gorm-backed implementation of the allowance
collaborators for PostgreSQL and MySQL deployments.

PURPOSE:
  Same contract as store/sqlite, for installations that keep HR master data
  in a server database. Tables are created with AutoMigrate from models.go.

PERIOD LOCK:
  WithPeriodLock takes SELECT ... FOR UPDATE on the period's row in
  period_locks. The row lives outside periods: payouts reference periods by
  foreign key, and both PostgreSQL and InnoDB make such inserts wait on a
  FOR UPDATE lock of the parent row. On SQLite (tests) the lock falls back
  to a process-local mutex because the database has a single writer.

USAGE:
  db, err := gormdb.Open(gormdb.Config{Driver: "postgres", DSN: dsn})
  if err != nil {
      log.Fatal(err)
  }
  store := gormdb.New(db)
  if err := store.Migrate(); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - allowance/store.go: interface definitions
  - store/sqlite: SQLite implementation
*/
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// Config selects the dialect and the pool size.
type Config struct {
	Driver       string // postgres | mysql
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	LogSQL       bool
}

// Open connects to a PostgreSQL or MySQL database.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q: %w", cfg.Driver, generic.ErrInvalidInput)
	}

	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Store implements all allowance collaborators on top of gorm.
type Store struct {
	db *gorm.DB

	lockMu      sync.Mutex
	periodLocks map[int64]*sync.Mutex
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, periodLocks: make(map[int64]*sync.Mutex)}
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(AllModels()...)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// MASTER DATA (admin writes)
// =============================================================================

func (s *Store) SaveRate(ctx context.Context, r allowance.MasterRate) (allowance.MasterRate, error) {
	m := RateModel{ID: r.ID, ProfessionCode: r.ProfessionCode, GroupNo: r.GroupNo, Amount: r.Amount, Active: r.Active}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return r, fmt.Errorf("failed to save rate: %w", err)
	}
	return rateFromModel(m), nil
}

func (s *Store) ListRates(ctx context.Context) ([]allowance.MasterRate, error) {
	var rows []RateModel
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	rates := make([]allowance.MasterRate, 0, len(rows))
	for _, m := range rows {
		rates = append(rates, rateFromModel(m))
	}
	return rates, nil
}

// SaveEligibility inserts a record (ID 0) or corrects an existing one.
func (s *Store) SaveEligibility(ctx context.Context, e allowance.EligibilityRecord) (allowance.EligibilityRecord, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&RateModel{}).Where("id = ?", e.MasterRateID).Count(&count).Error; err != nil {
		return e, fmt.Errorf("failed to check rate: %w", err)
	}
	if count == 0 {
		return e, fmt.Errorf("master rate %d: %w", e.MasterRateID, generic.ErrInvalidInput)
	}

	m := EligibilityModel{
		ID:            e.ID,
		CitizenID:     string(e.CitizenID),
		MasterRateID:  e.MasterRateID,
		EffectiveDate: e.EffectiveDate.String(),
		ExpiryDate:    dateString(e.ExpiryDate),
		Active:        e.Active,
	}
	if err := db.Omit(clause.Associations).Save(&m).Error; err != nil {
		if isDuplicate(err) {
			return e, &generic.AmbiguousEligibilityError{CitizenID: string(e.CitizenID), EffectiveDate: e.EffectiveDate}
		}
		return e, fmt.Errorf("failed to save eligibility: %w", err)
	}
	e.ID = m.ID
	return e, nil
}

func (s *Store) SaveMovement(ctx context.Context, mv allowance.MovementRecord) (allowance.MovementRecord, error) {
	m := MovementModel{
		CitizenID:     string(mv.CitizenID),
		MovementType:  string(mv.Type),
		EffectiveDate: mv.EffectiveDate.String(),
		Remark:        mv.Remark,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mv, fmt.Errorf("failed to insert movement: %w", err)
	}
	mv.ID = m.ID
	return mv, nil
}

func (s *Store) SaveLicense(ctx context.Context, l allowance.LicenseRecord) (allowance.LicenseRecord, error) {
	m := LicenseModel{
		CitizenID:      string(l.CitizenID),
		LicenseNo:      l.LicenseNo,
		ValidFrom:      l.ValidFrom.String(),
		ValidUntil:     dateString(l.ValidUntil),
		Status:         string(l.Status),
		OccupationName: l.OccupationName,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return l, fmt.Errorf("failed to insert license: %w", err)
	}
	l.ID = m.ID
	return l, nil
}

func (s *Store) SaveLeave(ctx context.Context, l allowance.LeaveRequest) (allowance.LeaveRequest, error) {
	m := LeaveModel{
		CitizenID:    string(l.CitizenID),
		LeaveType:    string(l.LeaveType),
		StartDate:    l.StartDate.String(),
		EndDate:      l.EndDate.String(),
		DurationDays: l.DurationDays,
		FiscalYear:   l.FiscalYear,
		NoPay:        l.NoPay,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return l, fmt.Errorf("failed to insert leave: %w", err)
	}
	l.ID = m.ID
	return l, nil
}

func (s *Store) SaveQuota(ctx context.Context, q allowance.LeaveQuota) error {
	m := QuotaModel{
		CitizenID:  string(q.CitizenID),
		FiscalYear: q.FiscalYear,
		Vacation:   nullDecimal(q.Vacation),
		Personal:   nullDecimal(q.Personal),
		Sick:       nullDecimal(q.Sick),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "citizen_id"}, {Name: "fiscal_year"}},
		DoUpdates: clause.AssignmentColumns([]string{"vacation", "personal", "sick"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	return nil
}

// =============================================================================
// SOURCES (allowance.Store)
// =============================================================================

func (s *Store) ListEligibility(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.EligibilityRecord, error) {
	var rows []EligibilityModel
	err := s.db.WithContext(ctx).Preload("Rate").
		Where("citizen_id = ?", string(citizenID)).
		Order("effective_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query eligibility: %w", err)
	}

	records := make([]allowance.EligibilityRecord, 0, len(rows))
	for _, m := range rows {
		rec, err := eligibilityFromModel(m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) ListMovements(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.MovementRecord, error) {
	var rows []MovementModel
	err := s.db.WithContext(ctx).
		Where("citizen_id = ?", string(citizenID)).
		Order("effective_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}

	movements := make([]allowance.MovementRecord, 0, len(rows))
	for _, m := range rows {
		effective, err := generic.ParseDate(m.EffectiveDate)
		if err != nil {
			return nil, err
		}
		movements = append(movements, allowance.MovementRecord{
			ID:            m.ID,
			CitizenID:     allowance.CitizenID(m.CitizenID),
			Type:          allowance.MovementType(m.MovementType),
			EffectiveDate: effective,
			Remark:        m.Remark,
		})
	}
	return movements, nil
}

func (s *Store) ListLicenses(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.LicenseRecord, error) {
	var rows []LicenseModel
	err := s.db.WithContext(ctx).
		Where("citizen_id = ?", string(citizenID)).
		Order("valid_from ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}

	licenses := make([]allowance.LicenseRecord, 0, len(rows))
	for _, m := range rows {
		from, err := generic.ParseDate(m.ValidFrom)
		if err != nil {
			return nil, err
		}
		until, err := parseDatePtr(m.ValidUntil)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, allowance.LicenseRecord{
			ID:             m.ID,
			CitizenID:      allowance.CitizenID(m.CitizenID),
			LicenseNo:      m.LicenseNo,
			ValidFrom:      from,
			ValidUntil:     until,
			Status:         allowance.LicenseStatus(m.Status),
			OccupationName: m.OccupationName,
		})
	}
	return licenses, nil
}

func (s *Store) ListLeaves(ctx context.Context, citizenID allowance.CitizenID, from, to generic.TimePoint) ([]allowance.LeaveRequest, error) {
	var rows []LeaveModel
	err := s.db.WithContext(ctx).
		Where("citizen_id = ? AND start_date <= ? AND end_date >= ?", string(citizenID), to.String(), from.String()).
		Order("start_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}

	leaves := make([]allowance.LeaveRequest, 0, len(rows))
	for _, m := range rows {
		start, err := generic.ParseDate(m.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := generic.ParseDate(m.EndDate)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, allowance.LeaveRequest{
			ID:           m.ID,
			CitizenID:    allowance.CitizenID(m.CitizenID),
			LeaveType:    allowance.LeaveType(m.LeaveType),
			StartDate:    start,
			EndDate:      end,
			DurationDays: m.DurationDays,
			FiscalYear:   m.FiscalYear,
			NoPay:        m.NoPay,
		})
	}
	return leaves, nil
}

func (s *Store) GetQuota(ctx context.Context, citizenID allowance.CitizenID, fiscalYear int) (*allowance.LeaveQuota, error) {
	var m QuotaModel
	err := s.db.WithContext(ctx).
		Where("citizen_id = ? AND fiscal_year = ?", string(citizenID), fiscalYear).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quota: %w", err)
	}
	return &allowance.LeaveQuota{
		CitizenID:  citizenID,
		FiscalYear: fiscalYear,
		Vacation:   decimalPtr(m.Vacation),
		Personal:   decimalPtr(m.Personal),
		Sick:       decimalPtr(m.Sick),
	}, nil
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	m := HolidayModel{Date: h.Date.String(), Ref: h.ID, Name: h.Name}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"ref", "name"}),
	}).Create(&m).Error
}

func (s *Store) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	return s.db.WithContext(ctx).Where("date = ?", date.String()).Delete(&HolidayModel{}).Error
}

func (s *Store) ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	var rows []HolidayModel
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from.String(), to.String()).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}

	holidays := make([]generic.Holiday, 0, len(rows))
	for _, m := range rows {
		date, err := generic.ParseDate(m.Date)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, generic.Holiday{ID: m.Ref, Date: date, Name: m.Name})
	}
	return holidays, nil
}

// =============================================================================
// PERIODS
// =============================================================================

// SavePeriod creates the period of (year, month), or updates its status.
func (s *Store) SavePeriod(ctx context.Context, p allowance.PayPeriod) (allowance.PayPeriod, error) {
	if p.Status == "" {
		p.Status = allowance.PeriodOpen
	}
	db := s.db.WithContext(ctx)
	m := PeriodModel{Year: p.Year, Month: int(p.Month), Status: string(p.Status)}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(&m).Error
	if err != nil {
		return p, fmt.Errorf("failed to save period: %w", err)
	}
	// The upsert does not report the existing id on every dialect.
	if err := db.Where("year = ? AND month = ?", p.Year, int(p.Month)).Take(&m).Error; err != nil {
		return p, fmt.Errorf("failed to reload period: %w", err)
	}
	return periodFromModel(m), nil
}

func (s *Store) SetPeriodStatus(ctx context.Context, year int, month time.Month, status allowance.PeriodStatus) error {
	res := s.db.WithContext(ctx).Model(&PeriodModel{}).
		Where("year = ? AND month = ?", year, int(month)).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("failed to update period: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound)
	}
	return nil
}

func (s *Store) GetPeriod(ctx context.Context, year int, month time.Month) (*allowance.PayPeriod, error) {
	var m PeriodModel
	err := s.db.WithContext(ctx).Where("year = ? AND month = ?", year, int(month)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query period: %w", err)
	}
	p := periodFromModel(m)
	return &p, nil
}

func (s *Store) ListOpenPeriods(ctx context.Context) ([]allowance.PayPeriod, error) {
	var rows []PeriodModel
	err := s.db.WithContext(ctx).
		Where("status <> ?", string(allowance.PeriodClosed)).
		Order("year ASC, month ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	periods := make([]allowance.PayPeriod, 0, len(rows))
	for _, m := range rows {
		periods = append(periods, periodFromModel(m))
	}
	return periods, nil
}

// WithPeriodLock holds a row lock on the period for the duration of fn.
func (s *Store) WithPeriodLock(ctx context.Context, periodID int64, fn func(ctx context.Context) error) error {
	if s.db.Dialector.Name() == "sqlite" {
		return s.withLocalLock(ctx, periodID, fn)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := PeriodLockModel{PeriodID: periodID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
			return fmt.Errorf("failed to create period lock: %w", err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("period_id = ?", periodID).Take(&lock).Error; err != nil {
			return fmt.Errorf("failed to lock period %d: %w", periodID, err)
		}
		return fn(ctx)
	})
}

func (s *Store) withLocalLock(ctx context.Context, periodID int64, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	l, ok := s.periodLocks[periodID]
	if !ok {
		l = &sync.Mutex{}
		s.periodLocks[periodID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (s *Store) ListEligibleCitizens(ctx context.Context, from, to generic.TimePoint) ([]allowance.CitizenID, error) {
	var raw []string
	err := s.db.WithContext(ctx).Model(&EligibilityModel{}).
		Distinct("citizen_id").
		Where("active = ? AND effective_date <= ?", true, to.String()).
		Where("expiry_date IS NULL OR expiry_date >= ?", from.String()).
		Order("citizen_id").
		Pluck("citizen_id", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query citizens: %w", err)
	}
	ids := make([]allowance.CitizenID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, allowance.CitizenID(id))
	}
	return ids, nil
}

// =============================================================================
// PAYOUT LEDGER
// =============================================================================

func (s *Store) GetPayout(ctx context.Context, periodID int64, citizenID allowance.CitizenID) (*allowance.Payout, error) {
	var m PayoutModel
	err := s.db.WithContext(ctx).Preload("Items").
		Where("period_id = ? AND citizen_id = ?", periodID, string(citizenID)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payout: %w", err)
	}
	p := payoutFromModel(m)
	return &p, nil
}

func (s *Store) ListPayouts(ctx context.Context, periodID int64) ([]allowance.Payout, error) {
	var rows []PayoutModel
	err := s.db.WithContext(ctx).Preload("Items").
		Where("period_id = ?", periodID).
		Order("citizen_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	payouts := make([]allowance.Payout, 0, len(rows))
	for _, m := range rows {
		payouts = append(payouts, payoutFromModel(m))
	}
	return payouts, nil
}

func (s *Store) ListAdjustments(ctx context.Context, citizenID allowance.CitizenID, year int, month time.Month, excludePeriodID int64) ([]allowance.PayoutItem, error) {
	var rows []PayoutItemModel
	err := s.db.WithContext(ctx).
		Joins("JOIN payouts ON payouts.id = payout_items.payout_id").
		Where("payouts.citizen_id = ? AND payouts.period_id <> ?", string(citizenID), excludePeriodID).
		Where("payout_items.reference_year = ? AND payout_items.reference_month = ?", year, int(month)).
		Order("payout_items.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query payout items: %w", err)
	}
	items := make([]allowance.PayoutItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, itemFromModel(m))
	}
	return items, nil
}

// =============================================================================
// TRANSACTIONAL STORE (allowance.TxStore interface)
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(allowance.PayoutStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct {
	tx *gorm.DB
}

func (ts *txStore) DeletePayout(ctx context.Context, periodID int64, citizenID allowance.CitizenID) error {
	ids := ts.tx.WithContext(ctx).Model(&PayoutModel{}).Select("id").
		Where("period_id = ? AND citizen_id = ?", periodID, string(citizenID))
	if err := ts.tx.WithContext(ctx).Where("payout_id IN (?)", ids).Delete(&PayoutItemModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete payout items: %w", err)
	}
	err := ts.tx.WithContext(ctx).
		Where("period_id = ? AND citizen_id = ?", periodID, string(citizenID)).
		Delete(&PayoutModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete payout: %w", err)
	}
	return nil
}

// InsertPayout creates the payout; gorm inserts Items through the association.
func (ts *txStore) InsertPayout(ctx context.Context, p allowance.Payout) error {
	m := payoutToModel(p)
	if err := ts.tx.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}
	return nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears every table (for the demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		models := AllModels()
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

var (
	_ allowance.Store            = (*Store)(nil)
	_ allowance.PeriodLocker     = (*Store)(nil)
	_ allowance.CitizenLister    = (*Store)(nil)
	_ allowance.OpenPeriodLister = (*Store)(nil)
)

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
