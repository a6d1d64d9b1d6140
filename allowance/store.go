/*
store.go - Collaborator interfaces consumed by the engine

PURPOSE:
  The engine reads master data through narrow source interfaces and writes
  exactly one thing: the payout row for (period, citizen) together with its
  ledger items. Implementations live in allowance/store (memory),
  store/sqlite and store/gormdb.

CONTRACT:
  - Every method returns an error for outages. A nil slice with a nil error
    means "no data"; an error never does. The engine fails closed.
  - Reads are side-effect free and safe to call concurrently for distinct
    citizens.
  - Writes happen only through PayoutStore inside TxStore.WithTx, so the
    delete + insert + ledger items are one atomic unit.

LEDGER:
  PayoutItems attached to a CLOSED period's payout are never rewritten; they
  are the record of corrections already paid for a historical month. Only
  the current (non-closed) period's payout and its items are replaced on each
  run.
*/
package allowance

import (
	"context"
	"time"

	"github.com/warp/allowance-engine/generic"
)

// RateSource returns the eligibility history of a citizen with the master
// rate joined in.
type RateSource interface {
	ListEligibility(ctx context.Context, citizenID CitizenID) ([]EligibilityRecord, error)
}

// MovementSource returns employment events, any order.
type MovementSource interface {
	ListMovements(ctx context.Context, citizenID CitizenID) ([]MovementRecord, error)
}

// LicenseSource returns license validity records.
type LicenseSource interface {
	ListLicenses(ctx context.Context, citizenID CitizenID) ([]LicenseRecord, error)
}

// LeaveSource returns approved leave and quota rows.
type LeaveSource interface {
	// ListLeaves returns leaves with StartDate <= to and EndDate >= from.
	ListLeaves(ctx context.Context, citizenID CitizenID, from, to generic.TimePoint) ([]LeaveRequest, error)

	// GetQuota returns nil, nil when no row exists for the fiscal year.
	GetQuota(ctx context.Context, citizenID CitizenID, fiscalYear int) (*LeaveQuota, error)
}

// HolidaySource returns holidays in [from, to].
type HolidaySource interface {
	ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error)
}

// PeriodSource returns nil, nil when the month has no period row.
type PeriodSource interface {
	GetPeriod(ctx context.Context, year int, month time.Month) (*PayPeriod, error)
}

// PayoutLedger answers "what has already been paid for this month".
type PayoutLedger interface {
	// GetPayout returns nil, nil when no payout exists.
	GetPayout(ctx context.Context, periodID int64, citizenID CitizenID) (*Payout, error)

	// ListAdjustments returns RETROACTIVE_* items that reference (year, month),
	// from the payouts of every period except excludePeriodID.
	ListAdjustments(ctx context.Context, citizenID CitizenID, year int, month time.Month, excludePeriodID int64) ([]PayoutItem, error)
}

// PayoutStore replaces one payout and its items.
type PayoutStore interface {
	DeletePayout(ctx context.Context, periodID int64, citizenID CitizenID) error
	InsertPayout(ctx context.Context, payout Payout) error
}

// TxStore runs fn atomically: fn returning an error rolls everything back.
type TxStore interface {
	WithTx(ctx context.Context, fn func(PayoutStore) error) error
}

// PeriodLocker holds a lock on one period row for the duration of fn.
// Implemented by SQL stores with SELECT ... FOR UPDATE.
type PeriodLocker interface {
	WithPeriodLock(ctx context.Context, periodID int64, fn func(ctx context.Context) error) error
}

// CitizenLister enumerates citizens to include in a period-wide run.
type CitizenLister interface {
	ListEligibleCitizens(ctx context.Context, from, to generic.TimePoint) ([]CitizenID, error)
}

// Sources bundles every read collaborator.
type Sources struct {
	Rates     RateSource
	Movements MovementSource
	Licenses  LicenseSource
	Leaves    LeaveSource
	Holidays  HolidaySource
	Periods   PeriodSource
	Ledger    PayoutLedger
}

// Store is implemented by a backend that provides every collaborator.
type Store interface {
	RateSource
	MovementSource
	LicenseSource
	LeaveSource
	HolidaySource
	PeriodSource
	PayoutLedger
	TxStore
}

// SourcesFrom adapts a full Store into Sources.
func SourcesFrom(s Store) Sources {
	return Sources{
		Rates:     s,
		Movements: s,
		Licenses:  s,
		Leaves:    s,
		Holidays:  s,
		Periods:   s,
		Ledger:    s,
	}
}
