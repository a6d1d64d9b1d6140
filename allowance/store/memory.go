// Package store provides an in-memory implementation of every allowance
// collaborator, for tests and the demo server.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type payoutKey struct {
	PeriodID  int64
	CitizenID allowance.CitizenID
}

type quotaKey struct {
	CitizenID  allowance.CitizenID
	FiscalYear int
}

type periodKey struct {
	Year  int
	Month time.Month
}

type Memory struct {
	mu          sync.RWMutex
	rates       map[int64]allowance.MasterRate
	eligibility map[allowance.CitizenID][]allowance.EligibilityRecord
	movements   map[allowance.CitizenID][]allowance.MovementRecord
	licenses    map[allowance.CitizenID][]allowance.LicenseRecord
	leaves      map[allowance.CitizenID][]allowance.LeaveRequest
	quotas      map[quotaKey]allowance.LeaveQuota
	holidays    map[generic.TimePoint]generic.Holiday
	periods     map[periodKey]allowance.PayPeriod
	payouts     map[payoutKey]allowance.Payout
	nextID      int64

	lockMu      sync.Mutex
	periodLocks map[int64]*sync.Mutex

	// FailWith, when set, is returned by every read. Used to check that
	// outages are never read as "no data".
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{
		rates:       make(map[int64]allowance.MasterRate),
		eligibility: make(map[allowance.CitizenID][]allowance.EligibilityRecord),
		movements:   make(map[allowance.CitizenID][]allowance.MovementRecord),
		licenses:    make(map[allowance.CitizenID][]allowance.LicenseRecord),
		leaves:      make(map[allowance.CitizenID][]allowance.LeaveRequest),
		quotas:      make(map[quotaKey]allowance.LeaveQuota),
		holidays:    make(map[generic.TimePoint]generic.Holiday),
		periods:     make(map[periodKey]allowance.PayPeriod),
		payouts:     make(map[payoutKey]allowance.Payout),
		periodLocks: make(map[int64]*sync.Mutex),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

// SaveRate inserts or replaces a master rate. ID 0 assigns one.
func (m *Memory) SaveRate(_ context.Context, rate allowance.MasterRate) (allowance.MasterRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate.ID == 0 {
		rate.ID = m.id()
	}
	m.rates[rate.ID] = rate
	return rate, nil
}

// ListRates returns the rate table ordered by ID.
func (m *Memory) ListRates(_ context.Context) ([]allowance.MasterRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rates := make([]allowance.MasterRate, 0, len(m.rates))
	for _, r := range m.rates {
		rates = append(rates, r)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].ID < rates[j].ID })
	return rates, nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates, m.eligibility, m.movements = fresh.rates, fresh.eligibility, fresh.movements
	m.licenses, m.leaves, m.quotas = fresh.licenses, fresh.leaves, fresh.quotas
	m.holidays, m.periods, m.payouts = fresh.holidays, fresh.periods, fresh.payouts
	m.nextID = 0
	return nil
}

// SaveEligibility inserts a record, or replaces it when ID matches. The rate
// must exist, and a citizen may not have two records with the same
// effective date.
func (m *Memory) SaveEligibility(_ context.Context, rec allowance.EligibilityRecord) (allowance.EligibilityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rates[rec.MasterRateID]; !ok {
		return rec, fmt.Errorf("master rate %d: %w", rec.MasterRateID, generic.ErrInvalidInput)
	}
	for _, existing := range m.eligibility[rec.CitizenID] {
		if existing.ID != rec.ID && existing.EffectiveDate.Equal(rec.EffectiveDate) {
			return rec, &generic.AmbiguousEligibilityError{CitizenID: string(rec.CitizenID), EffectiveDate: rec.EffectiveDate}
		}
	}
	if rec.ID != 0 {
		for i, existing := range m.eligibility[rec.CitizenID] {
			if existing.ID == rec.ID {
				m.eligibility[rec.CitizenID][i] = rec
				return rec, nil
			}
		}
	} else {
		rec.ID = m.id()
	}
	m.eligibility[rec.CitizenID] = append(m.eligibility[rec.CitizenID], rec)
	return rec, nil
}

func (m *Memory) SaveMovement(_ context.Context, mv allowance.MovementRecord) (allowance.MovementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mv.ID == 0 {
		mv.ID = m.id()
	}
	m.movements[mv.CitizenID] = append(m.movements[mv.CitizenID], mv)
	return mv, nil
}

func (m *Memory) SaveLicense(_ context.Context, lic allowance.LicenseRecord) (allowance.LicenseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lic.ID == 0 {
		lic.ID = m.id()
	}
	m.licenses[lic.CitizenID] = append(m.licenses[lic.CitizenID], lic)
	return lic, nil
}

func (m *Memory) SaveLeave(_ context.Context, leave allowance.LeaveRequest) (allowance.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if leave.ID == 0 {
		leave.ID = m.id()
	}
	m.leaves[leave.CitizenID] = append(m.leaves[leave.CitizenID], leave)
	return leave, nil
}

func (m *Memory) SaveQuota(_ context.Context, q allowance.LeaveQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[quotaKey{CitizenID: q.CitizenID, FiscalYear: q.FiscalYear}] = q
	return nil
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.Date] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, date generic.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holidays, date)
	return nil
}

// SavePeriod inserts or replaces the period for (year, month).
func (m *Memory) SavePeriod(_ context.Context, p allowance.PayPeriod) (allowance.PayPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := periodKey{Year: p.Year, Month: p.Month}
	if existing, ok := m.periods[k]; ok && p.ID == 0 {
		p.ID = existing.ID
	}
	if p.ID == 0 {
		p.ID = m.id()
	}
	if p.Status == "" {
		p.Status = allowance.PeriodOpen
	}
	m.periods[k] = p
	return p, nil
}

func (m *Memory) SetPeriodStatus(_ context.Context, year int, month time.Month, status allowance.PeriodStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := periodKey{Year: year, Month: month}
	p, ok := m.periods[k]
	if !ok {
		return fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound)
	}
	p.Status = status
	m.periods[k] = p
	return nil
}

// =============================================================================
// SOURCES
// =============================================================================

func (m *Memory) ListEligibility(_ context.Context, citizenID allowance.CitizenID) ([]allowance.EligibilityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	out := make([]allowance.EligibilityRecord, 0, len(m.eligibility[citizenID]))
	for _, rec := range m.eligibility[citizenID] {
		rec.Rate = m.rates[rec.MasterRateID]
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) ListMovements(_ context.Context, citizenID allowance.CitizenID) ([]allowance.MovementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	return append([]allowance.MovementRecord(nil), m.movements[citizenID]...), nil
}

func (m *Memory) ListLicenses(_ context.Context, citizenID allowance.CitizenID) ([]allowance.LicenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	return append([]allowance.LicenseRecord(nil), m.licenses[citizenID]...), nil
}

func (m *Memory) ListLeaves(_ context.Context, citizenID allowance.CitizenID, from, to generic.TimePoint) ([]allowance.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []allowance.LeaveRequest
	for _, l := range m.leaves[citizenID] {
		if l.StartDate.BeforeOrEqual(to) && l.EndDate.AfterOrEqual(from) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) GetQuota(_ context.Context, citizenID allowance.CitizenID, fiscalYear int) (*allowance.LeaveQuota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	q, ok := m.quotas[quotaKey{CitizenID: citizenID, FiscalYear: fiscalYear}]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *Memory) ListHolidays(_ context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []generic.Holiday
	for d, h := range m.holidays {
		if d.AfterOrEqual(from) && d.BeforeOrEqual(to) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) GetPeriod(_ context.Context, year int, month time.Month) (*allowance.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	p, ok := m.periods[periodKey{Year: year, Month: month}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListOpenPeriods returns every period that is not CLOSED, oldest first.
func (m *Memory) ListOpenPeriods(_ context.Context) ([]allowance.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allowance.PayPeriod
	for _, p := range m.periods {
		if p.Status != allowance.PeriodClosed {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (m *Memory) GetPayout(_ context.Context, periodID int64, citizenID allowance.CitizenID) (*allowance.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	p, ok := m.payouts[payoutKey{PeriodID: periodID, CitizenID: citizenID}]
	if !ok {
		return nil, nil
	}
	p.Items = append([]allowance.PayoutItem(nil), p.Items...)
	return &p, nil
}

// ListPayouts returns the payouts of one period ordered by citizen.
func (m *Memory) ListPayouts(_ context.Context, periodID int64) ([]allowance.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allowance.Payout
	for k, p := range m.payouts {
		if k.PeriodID == periodID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitizenID < out[j].CitizenID })
	return out, nil
}

func (m *Memory) ListAdjustments(_ context.Context, citizenID allowance.CitizenID, year int, month time.Month, excludePeriodID int64) ([]allowance.PayoutItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []allowance.PayoutItem
	for k, p := range m.payouts {
		if k.CitizenID != citizenID || k.PeriodID == excludePeriodID {
			continue
		}
		for _, item := range p.Items {
			if item.ReferenceYear == year && item.ReferenceMonth == month {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

// ListEligibleCitizens returns citizens with an active eligibility record
// in force on some day of [from, to].
func (m *Memory) ListEligibleCitizens(_ context.Context, from, to generic.TimePoint) ([]allowance.CitizenID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []allowance.CitizenID
	for cid, recs := range m.eligibility {
		for _, rec := range recs {
			if !rec.Active || rec.EffectiveDate.After(to) {
				continue
			}
			if rec.ExpiryDate != nil && rec.ExpiryDate.Before(from) {
				continue
			}
			out = append(out, cid)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// PERIOD LOCK
// =============================================================================

// WithPeriodLock serialises runs of the same period.
func (m *Memory) WithPeriodLock(ctx context.Context, periodID int64, fn func(ctx context.Context) error) error {
	m.lockMu.Lock()
	l, ok := m.periodLocks[periodID]
	if !ok {
		l = &sync.Mutex{}
		m.periodLocks[periodID] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot of the
// payouts and a rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(allowance.PayoutStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.payouts = snapshot
		return err
	}
	return nil
}

func (m *Memory) snapshot() map[payoutKey]allowance.Payout {
	out := make(map[payoutKey]allowance.Payout, len(m.payouts))
	for k, v := range m.payouts {
		v.Items = append([]allowance.PayoutItem(nil), v.Items...)
		out[k] = v
	}
	return out
}

// txView writes directly to the parent, whose lock is held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) DeletePayout(_ context.Context, periodID int64, citizenID allowance.CitizenID) error {
	delete(tv.parent.payouts, payoutKey{PeriodID: periodID, CitizenID: citizenID})
	return nil
}

func (tv *txView) InsertPayout(_ context.Context, payout allowance.Payout) error {
	k := payoutKey{PeriodID: payout.PeriodID, CitizenID: payout.CitizenID}
	if _, exists := tv.parent.payouts[k]; exists {
		return fmt.Errorf("payout for period %d citizen %s already exists", payout.PeriodID, payout.CitizenID)
	}
	payout.Items = append([]allowance.PayoutItem(nil), payout.Items...)
	tv.parent.payouts[k] = payout
	return nil
}

var (
	_ allowance.Store            = (*Memory)(nil)
	_ allowance.PeriodLocker     = (*Memory)(nil)
	_ allowance.CitizenLister    = (*Memory)(nil)
	_ allowance.OpenPeriodLister = (*Memory)(nil)
)
