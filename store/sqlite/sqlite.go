/*
Package sqlite provides a SQLite-backed implementation of the allowance
collaborators.

PURPOSE:
  Implements every source the engine reads (rates, eligibility, movements,
  licenses, leave, quotas, holidays, periods, payout ledger) and the payout
  writer, plus the admin writes used by the API and the demo scenarios.

INTERFACES IMPLEMENTED:
  allowance.Store:            all sources + TxStore
  allowance.PeriodLocker:     per-period run lock
  allowance.CitizenLister:    citizens eligible in a month
  allowance.OpenPeriodLister: periods the scheduler re-runs

KEY TABLES:
  master_rates:  rate table, never deleted once referenced
  eligibility:   citizen -> rate from an effective date
  movements:     employment events
  licenses:      license validity intervals
  leaves:        approved leave
  leave_quotas:  one row per citizen per fiscal year (NULL = no cap)
  holidays:      flat holiday calendar
  periods:       payroll months and their approval status
  payouts:       one row per (period, citizen), overwritten on every run
  payout_items:  retroactive corrections (the ledger)

INDEXES:
  - idx_eligibility_citizen_effective (UNIQUE): a citizen cannot have two
    eligibility rows with the same effective date
  - idx_payouts_period_citizen (UNIQUE): one payout per (period, citizen)
  - idx_payout_items_reference: ledger lookup by historical month

DATES AND AMOUNTS:
  Dates are TEXT "YYYY-MM-DD", so string comparison is date comparison.
  Decimals are TEXT to keep them exact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite has no SELECT ... FOR UPDATE,
  so the period lock is a process-local mutex per period; the gorm store
  uses a row lock instead.

USAGE:
  store, err := sqlite.New("./data/allowance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := allowance.NewEngineFromStore(store, allowance.Options{})

SEE ALSO:
  - allowance/store.go: interface definitions
  - allowance/store/memory.go: in-memory implementation for testing
  - store/gormdb: PostgreSQL / MySQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// Store implements all allowance collaborators using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	lockMu      sync.Mutex
	periodLocks map[int64]*sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, periodLocks: make(map[int64]*sync.Mutex)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS master_rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profession_code TEXT NOT NULL,
		group_no INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS eligibility (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen_id TEXT NOT NULL,
		master_rate_id INTEGER NOT NULL REFERENCES master_rates(id),
		effective_date TEXT NOT NULL,
		expiry_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Ties on effective date have no defined winner, so they are rejected.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_eligibility_citizen_effective
		ON eligibility(citizen_id, effective_date);

	CREATE TABLE IF NOT EXISTS movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen_id TEXT NOT NULL,
		movement_type TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		remark TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_citizen
		ON movements(citizen_id, effective_date);

	CREATE TABLE IF NOT EXISTS licenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen_id TEXT NOT NULL,
		license_no TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_until TEXT,
		status TEXT NOT NULL,
		occupation_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_licenses_citizen ON licenses(citizen_id);

	CREATE TABLE IF NOT EXISTS leaves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration_days TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL DEFAULT 0,
		no_pay BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_citizen_dates
		ON leaves(citizen_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS leave_quotas (
		citizen_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		vacation TEXT,
		personal TEXT,
		sick TEXT,
		PRIMARY KEY (citizen_id, fiscal_year)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		id TEXT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS periods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		UNIQUE (year, month)
	);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		period_id INTEGER NOT NULL REFERENCES periods(id),
		citizen_id TEXT NOT NULL,
		master_rate_id INTEGER NOT NULL DEFAULT 0,
		rate_snapshot TEXT NOT NULL,
		calculated_amount TEXT NOT NULL,
		retroactive_amount TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		eligible_days TEXT NOT NULL,
		deducted_days TEXT NOT NULL,
		remark TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payouts_period_citizen
		ON payouts(period_id, citizen_id);

	CREATE TABLE IF NOT EXISTS payout_items (
		id TEXT PRIMARY KEY,
		payout_id TEXT NOT NULL REFERENCES payouts(id) ON DELETE CASCADE,
		reference_year INTEGER NOT NULL,
		reference_month INTEGER NOT NULL,
		item_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		remark TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payout_items_reference
		ON payout_items(reference_year, reference_month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MASTER DATA (admin writes)
// =============================================================================

// SaveRate inserts a rate (ID 0) or updates it.
func (s *Store) SaveRate(ctx context.Context, r allowance.MasterRate) (allowance.MasterRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO master_rates (profession_code, group_no, amount, active) VALUES (?, ?, ?, ?)`,
			r.ProfessionCode, r.GroupNo, r.Amount.String(), r.Active)
		if err != nil {
			return r, fmt.Errorf("failed to insert rate: %w", err)
		}
		r.ID, err = res.LastInsertId()
		return r, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO master_rates (id, profession_code, group_no, amount, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profession_code = excluded.profession_code,
			group_no = excluded.group_no,
			amount = excluded.amount,
			active = excluded.active`,
		r.ID, r.ProfessionCode, r.GroupNo, r.Amount.String(), r.Active)
	if err != nil {
		return r, fmt.Errorf("failed to save rate: %w", err)
	}
	return r, nil
}

// ListRates returns the rate table.
func (s *Store) ListRates(ctx context.Context) ([]allowance.MasterRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profession_code, group_no, amount, active FROM master_rates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []allowance.MasterRate
	for rows.Next() {
		var (
			r      allowance.MasterRate
			amount string
		)
		if err := rows.Scan(&r.ID, &r.ProfessionCode, &r.GroupNo, &amount, &r.Active); err != nil {
			return nil, err
		}
		if r.Amount, err = parseDecimal("master_rates.amount", amount); err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// SaveEligibility inserts a record (ID 0) or corrects an existing one.
func (s *Store) SaveEligibility(ctx context.Context, e allowance.EligibilityRecord) (allowance.EligibilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if e.ID == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO eligibility (citizen_id, master_rate_id, effective_date, expiry_date, active)
			VALUES (?, ?, ?, ?, ?)`,
			e.CitizenID, e.MasterRateID, e.EffectiveDate.String(), nullDate(e.ExpiryDate), e.Active)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE eligibility
			SET citizen_id = ?, master_rate_id = ?, effective_date = ?, expiry_date = ?, active = ?
			WHERE id = ?`,
			e.CitizenID, e.MasterRateID, e.EffectiveDate.String(), nullDate(e.ExpiryDate), e.Active, e.ID)
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return e, &generic.AmbiguousEligibilityError{CitizenID: string(e.CitizenID), EffectiveDate: e.EffectiveDate}
		}
		if isForeignKeyError(err) {
			return e, fmt.Errorf("master rate %d: %w", e.MasterRateID, generic.ErrInvalidInput)
		}
		return e, fmt.Errorf("failed to save eligibility: %w", err)
	}
	if res != nil {
		e.ID, err = res.LastInsertId()
	}
	return e, err
}

// SaveMovement appends an employment event.
func (s *Store) SaveMovement(ctx context.Context, m allowance.MovementRecord) (allowance.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO movements (citizen_id, movement_type, effective_date, remark) VALUES (?, ?, ?, ?)`,
		m.CitizenID, m.Type, m.EffectiveDate.String(), nullString(m.Remark))
	if err != nil {
		return m, fmt.Errorf("failed to insert movement: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return m, err
}

// SaveLicense appends a license record.
func (s *Store) SaveLicense(ctx context.Context, l allowance.LicenseRecord) (allowance.LicenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO licenses (citizen_id, license_no, valid_from, valid_until, status, occupation_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.CitizenID, l.LicenseNo, l.ValidFrom.String(), nullDate(l.ValidUntil), l.Status, nullString(l.OccupationName))
	if err != nil {
		return l, fmt.Errorf("failed to insert license: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

// SaveLeave appends an approved leave.
func (s *Store) SaveLeave(ctx context.Context, l allowance.LeaveRequest) (allowance.LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leaves (citizen_id, leave_type, start_date, end_date, duration_days, fiscal_year, no_pay)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.CitizenID, l.LeaveType, l.StartDate.String(), l.EndDate.String(), l.DurationDays.String(), l.FiscalYear, l.NoPay)
	if err != nil {
		return l, fmt.Errorf("failed to insert leave: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

// SaveQuota upserts the quota row of a fiscal year.
func (s *Store) SaveQuota(ctx context.Context, q allowance.LeaveQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_quotas (citizen_id, fiscal_year, vacation, personal, sick)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(citizen_id, fiscal_year) DO UPDATE SET
			vacation = excluded.vacation,
			personal = excluded.personal,
			sick = excluded.sick`,
		q.CitizenID, q.FiscalYear, nullDecimal(q.Vacation), nullDecimal(q.Personal), nullDecimal(q.Sick))
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	return nil
}

// =============================================================================
// SOURCES (allowance.Store)
// =============================================================================

func (s *Store) ListEligibility(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.EligibilityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.citizen_id, e.master_rate_id, e.effective_date, e.expiry_date, e.active,
		       r.profession_code, r.group_no, r.amount, r.active
		FROM eligibility e
		JOIN master_rates r ON r.id = e.master_rate_id
		WHERE e.citizen_id = ?
		ORDER BY e.effective_date DESC`, citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligibility: %w", err)
	}
	defer rows.Close()

	var records []allowance.EligibilityRecord
	for rows.Next() {
		var (
			e         allowance.EligibilityRecord
			effective string
			expiry    sql.NullString
			amount    string
		)
		if err := rows.Scan(&e.ID, &e.CitizenID, &e.MasterRateID, &effective, &expiry, &e.Active,
			&e.Rate.ProfessionCode, &e.Rate.GroupNo, &amount, &e.Rate.Active); err != nil {
			return nil, fmt.Errorf("failed to scan eligibility: %w", err)
		}
		if e.EffectiveDate, err = generic.ParseDate(effective); err != nil {
			return nil, err
		}
		if e.ExpiryDate, err = parseNullDate(expiry); err != nil {
			return nil, err
		}
		e.Rate.ID = e.MasterRateID
		if e.Rate.Amount, err = parseDecimal("master_rates.amount", amount); err != nil {
			return nil, err
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

func (s *Store) ListMovements(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.MovementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, citizen_id, movement_type, effective_date, remark
		FROM movements WHERE citizen_id = ?
		ORDER BY effective_date ASC, id ASC`, citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []allowance.MovementRecord
	for rows.Next() {
		var (
			m         allowance.MovementRecord
			effective string
			remark    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.CitizenID, &m.Type, &effective, &remark); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if m.EffectiveDate, err = generic.ParseDate(effective); err != nil {
			return nil, err
		}
		m.Remark = remark.String
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) ListLicenses(ctx context.Context, citizenID allowance.CitizenID) ([]allowance.LicenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, citizen_id, license_no, valid_from, valid_until, status, occupation_name
		FROM licenses WHERE citizen_id = ?
		ORDER BY valid_from ASC`, citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []allowance.LicenseRecord
	for rows.Next() {
		var (
			l          allowance.LicenseRecord
			from       string
			until      sql.NullString
			occupation sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.CitizenID, &l.LicenseNo, &from, &until, &l.Status, &occupation); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		if l.ValidFrom, err = generic.ParseDate(from); err != nil {
			return nil, err
		}
		if l.ValidUntil, err = parseNullDate(until); err != nil {
			return nil, err
		}
		l.OccupationName = occupation.String
		licenses = append(licenses, l)
	}
	return licenses, rows.Err()
}

func (s *Store) ListLeaves(ctx context.Context, citizenID allowance.CitizenID, from, to generic.TimePoint) ([]allowance.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, citizen_id, leave_type, start_date, end_date, duration_days, fiscal_year, no_pay
		FROM leaves
		WHERE citizen_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC`, citizenID, to.String(), from.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var leaves []allowance.LeaveRequest
	for rows.Next() {
		var (
			l          allowance.LeaveRequest
			start, end string
			duration   string
		)
		if err := rows.Scan(&l.ID, &l.CitizenID, &l.LeaveType, &start, &end, &duration, &l.FiscalYear, &l.NoPay); err != nil {
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		if l.StartDate, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if l.EndDate, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		if l.DurationDays, err = parseDecimal("leaves.duration_days", duration); err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

func (s *Store) GetQuota(ctx context.Context, citizenID allowance.CitizenID, fiscalYear int) (*allowance.LeaveQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vacation, personal, sick sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT vacation, personal, sick FROM leave_quotas
		WHERE citizen_id = ? AND fiscal_year = ?`, citizenID, fiscalYear).
		Scan(&vacation, &personal, &sick)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quota: %w", err)
	}
	q := &allowance.LeaveQuota{CitizenID: citizenID, FiscalYear: fiscalYear}
	if q.Vacation, err = parseNullDecimal("leave_quotas.vacation", vacation); err != nil {
		return nil, err
	}
	if q.Personal, err = parseNullDecimal("leave_quotas.personal", personal); err != nil {
		return nil, err
	}
	if q.Sick, err = parseNullDecimal("leave_quotas.sick", sick); err != nil {
		return nil, err
	}
	return q, nil
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// SaveHoliday upserts a holiday by date.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (date, id, name) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET id = excluded.id, name = excluded.name`,
		h.Date.String(), nullString(h.ID), h.Name)
	return err
}

// DeleteHoliday removes the holiday on date.
func (s *Store) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE date = ?", date.String())
	return err
}

func (s *Store) ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, id, name FROM holidays
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var (
			h       generic.Holiday
			dateStr string
			id      sql.NullString
		)
		if err := rows.Scan(&dateStr, &id, &h.Name); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDate(dateStr); err != nil {
			return nil, err
		}
		h.ID = id.String
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// PERIODS
// =============================================================================

// SavePeriod creates the period of (year, month), or updates its status.
func (s *Store) SavePeriod(ctx context.Context, p allowance.PayPeriod) (allowance.PayPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == "" {
		p.Status = allowance.PeriodOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO periods (year, month, status) VALUES (?, ?, ?)
		ON CONFLICT(year, month) DO UPDATE SET status = excluded.status`,
		p.Year, int(p.Month), p.Status)
	if err != nil {
		return p, fmt.Errorf("failed to save period: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT id FROM periods WHERE year = ? AND month = ?`, p.Year, int(p.Month)).Scan(&p.ID)
	return p, err
}

// SetPeriodStatus moves a period through the approval workflow.
func (s *Store) SetPeriodStatus(ctx context.Context, year int, month time.Month, status allowance.PeriodStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE periods SET status = ? WHERE year = ? AND month = ?`, status, year, int(month))
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound)
	}
	return nil
}

func (s *Store) GetPeriod(ctx context.Context, year int, month time.Month) (*allowance.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := allowance.PayPeriod{Year: year, Month: month}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM periods WHERE year = ? AND month = ?`, year, int(month)).
		Scan(&p.ID, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query period: %w", err)
	}
	return &p, nil
}

// ListOpenPeriods returns periods that are not CLOSED, oldest first.
func (s *Store) ListOpenPeriods(ctx context.Context) ([]allowance.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, month, status FROM periods
		WHERE status <> ?
		ORDER BY year ASC, month ASC`, allowance.PeriodClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []allowance.PayPeriod
	for rows.Next() {
		var (
			p     allowance.PayPeriod
			month int
		)
		if err := rows.Scan(&p.ID, &p.Year, &month, &p.Status); err != nil {
			return nil, err
		}
		p.Month = time.Month(month)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// WithPeriodLock serialises runs of one period within this process.
func (s *Store) WithPeriodLock(ctx context.Context, periodID int64, fn func(ctx context.Context) error) error {
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

// ListEligibleCitizens returns citizens with an active eligibility row in
// force on some day of [from, to].
func (s *Store) ListEligibleCitizens(ctx context.Context, from, to generic.TimePoint) ([]allowance.CitizenID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT citizen_id FROM eligibility
		WHERE active = TRUE AND effective_date <= ?
		  AND (expiry_date IS NULL OR expiry_date >= ?)
		ORDER BY citizen_id`, to.String(), from.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query citizens: %w", err)
	}
	defer rows.Close()

	var ids []allowance.CitizenID
	for rows.Next() {
		var id allowance.CitizenID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// PAYOUT LEDGER
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const payoutColumns = `id, period_id, citizen_id, master_rate_id, rate_snapshot, calculated_amount,
	retroactive_amount, total_payable, eligible_days, deducted_days, remark, created_at`

func (s *Store) GetPayout(ctx context.Context, periodID int64, citizenID allowance.CitizenID) (*allowance.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payouts, err := queryPayouts(ctx, s.db,
		`SELECT `+payoutColumns+` FROM payouts WHERE period_id = ? AND citizen_id = ?`, periodID, citizenID)
	if err != nil || len(payouts) == 0 {
		return nil, err
	}
	return &payouts[0], nil
}

// ListPayouts returns every payout of a period, items included.
func (s *Store) ListPayouts(ctx context.Context, periodID int64) ([]allowance.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryPayouts(ctx, s.db,
		`SELECT `+payoutColumns+` FROM payouts WHERE period_id = ? ORDER BY citizen_id`, periodID)
}

func (s *Store) ListAdjustments(ctx context.Context, citizenID allowance.CitizenID, year int, month time.Month, excludePeriodID int64) ([]allowance.PayoutItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryItems(ctx, s.db, `
		SELECT i.id, i.payout_id, i.reference_year, i.reference_month, i.item_type, i.amount, i.remark
		FROM payout_items i
		JOIN payouts p ON p.id = i.payout_id
		WHERE p.citizen_id = ? AND i.reference_year = ? AND i.reference_month = ? AND p.period_id <> ?
		ORDER BY i.id`, citizenID, year, int(month), excludePeriodID)
}

func queryPayouts(ctx context.Context, q querier, query string, args ...any) ([]allowance.Payout, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}

	var payouts []allowance.Payout
	for rows.Next() {
		var (
			p                                          allowance.Payout
			rate, calculated, retro, total, elig, dedu string
			remark                                     sql.NullString
			createdAt                                  string
		)
		if err := rows.Scan(&p.ID, &p.PeriodID, &p.CitizenID, &p.MasterRateID, &rate, &calculated,
			&retro, &total, &elig, &dedu, &remark, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		if err := scanPayoutColumns(&p, rate, calculated, retro, total, elig, dedu, createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("payout %s: %w", p.ID, err)
		}
		p.Remark = remark.String
		payouts = append(payouts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Items are loaded after the payout rows are closed: a single-connection
	// pool cannot hold two result sets.
	for i := range payouts {
		items, err := queryItems(ctx, q, `
			SELECT id, payout_id, reference_year, reference_month, item_type, amount, remark
			FROM payout_items WHERE payout_id = ? ORDER BY reference_year, reference_month`, payouts[i].ID)
		if err != nil {
			return nil, err
		}
		payouts[i].Items = items
	}
	return payouts, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]allowance.PayoutItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payout items: %w", err)
	}
	defer rows.Close()

	var items []allowance.PayoutItem
	for rows.Next() {
		var (
			item   allowance.PayoutItem
			month  int
			amount string
			remark sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.PayoutID, &item.ReferenceYear, &month, &item.ItemType, &amount, &remark); err != nil {
			return nil, fmt.Errorf("failed to scan payout item: %w", err)
		}
		item.ReferenceMonth = time.Month(month)
		if item.Amount, err = parseDecimal("payout_items.amount", amount); err != nil {
			return nil, fmt.Errorf("payout item %s: %w", item.ID, err)
		}
		item.Remark = remark.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (allowance.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(allowance.PayoutStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) DeletePayout(ctx context.Context, periodID int64, citizenID allowance.CitizenID) error {
	_, err := ts.tx.ExecContext(ctx, `
		DELETE FROM payout_items WHERE payout_id IN
			(SELECT id FROM payouts WHERE period_id = ? AND citizen_id = ?)`, periodID, citizenID)
	if err != nil {
		return fmt.Errorf("failed to delete payout items: %w", err)
	}
	if _, err := ts.tx.ExecContext(ctx,
		`DELETE FROM payouts WHERE period_id = ? AND citizen_id = ?`, periodID, citizenID); err != nil {
		return fmt.Errorf("failed to delete payout: %w", err)
	}
	return nil
}

func (ts *txStore) InsertPayout(ctx context.Context, p allowance.Payout) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PeriodID, p.CitizenID, p.MasterRateID, p.RateSnapshot.String(), p.CalculatedAmount.String(),
		p.RetroactiveAmount.String(), p.TotalPayable.String(), p.EligibleDays.String(), p.DeductedDays.String(),
		nullString(p.Remark), p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	for _, item := range p.Items {
		_, err := ts.tx.ExecContext(ctx, `
			INSERT INTO payout_items (id, payout_id, reference_year, reference_month, item_type, amount, remark)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, p.ID, item.ReferenceYear, int(item.ReferenceMonth), item.ItemType, item.Amount.String(), nullString(item.Remark))
		if err != nil {
			return fmt.Errorf("failed to insert payout item: %w", err)
		}
	}
	return nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears every table (for the demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payout_items", "payouts", "periods", "holidays", "leave_quotas",
		"leaves", "licenses", "movements", "eligibility", "master_rates",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

var (
	_ allowance.Store            = (*Store)(nil)
	_ allowance.PeriodLocker     = (*Store)(nil)
	_ allowance.CitizenLister    = (*Store)(nil)
	_ allowance.OpenPeriodLister = (*Store)(nil)
)

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(tp *generic.TimePoint) sql.NullString {
	if tp == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*generic.TimePoint, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// parseDecimal reads a TEXT decimal column. A malformed value is an error,
// never zero: a lost amount would be re-paid by the retroactive run.
func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return d, nil
}

func parseNullDecimal(column string, ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := parseDecimal(column, ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanPayoutColumns(p *allowance.Payout, rate, calculated, retro, total, elig, dedu, createdAt string) error {
	fields := []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"rate_snapshot", rate, &p.RateSnapshot},
		{"calculated_amount", calculated, &p.CalculatedAmount},
		{"retroactive_amount", retro, &p.RetroactiveAmount},
		{"total_payable", total, &p.TotalPayable},
		{"eligible_days", elig, &p.EligibleDays},
		{"deducted_days", dedu, &p.DeductedDays},
	}
	for _, f := range fields {
		d, err := parseDecimal("payouts."+f.column, f.raw)
		if err != nil {
			return err
		}
		*f.dst = d
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("corrupt payouts.created_at %q: %w", createdAt, err)
	}
	p.CreatedAt = created
	return nil
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
