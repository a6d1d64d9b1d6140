// Package allowance implements the position allowance entitlement engine.
// It uses the generic calendar and interval primitives to compute one month's
// payment and to reconcile closed months against the payout ledger.
package allowance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CitizenID string

// =============================================================================
// MASTER DATA
// =============================================================================

// MasterRate is one row of the allowance rate table.
type MasterRate struct {
	ID             int64
	ProfessionCode string
	GroupNo        int
	Amount         decimal.Decimal
	Active         bool
}

// EligibilityRecord assigns a master rate to a citizen from EffectiveDate.
type EligibilityRecord struct {
	ID            int64
	CitizenID     CitizenID
	MasterRateID  int64
	Rate          MasterRate // joined by the source
	EffectiveDate generic.TimePoint
	ExpiryDate    *generic.TimePoint
	Active        bool
}

// AppliesOn reports whether the record is in force on day.
func (r EligibilityRecord) AppliesOn(day generic.TimePoint) bool {
	if !r.Active || r.EffectiveDate.After(day) {
		return false
	}
	return r.ExpiryDate == nil || r.ExpiryDate.AfterOrEqual(day)
}

type MovementType string

const (
	MovementEntry       MovementType = "ENTRY"
	MovementReturn      MovementType = "RETURN" // back from study
	MovementResign      MovementType = "RESIGN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementRetire      MovementType = "RETIRE"
	MovementDeath       MovementType = "DEATH"
	MovementStudy       MovementType = "STUDY"
)

// IsExit is true for movements that end employment.
func (t MovementType) IsExit() bool {
	switch t {
	case MovementResign, MovementTransferOut, MovementRetire, MovementDeath:
		return true
	}
	return false
}

// IsEntry is true for movements that (re)start paid employment.
func (t MovementType) IsEntry() bool {
	return t == MovementEntry || t == MovementReturn
}

// MovementRecord is one employment event.
type MovementRecord struct {
	ID            int64
	CitizenID     CitizenID
	Type          MovementType
	EffectiveDate generic.TimePoint
	Remark        string
}

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseExpired   LicenseStatus = "EXPIRED"
	LicenseSuspended LicenseStatus = "SUSPENDED"
	LicenseRevoked   LicenseStatus = "REVOKED"
)

// LicenseRecord is one professional license validity interval.
type LicenseRecord struct {
	ID             int64
	CitizenID      CitizenID
	LicenseNo      string
	ValidFrom      generic.TimePoint
	ValidUntil     *generic.TimePoint // nil = open-ended
	Status         LicenseStatus
	OccupationName string
}

type LeaveType string

const (
	LeaveSick       LeaveType = "sick"
	LeavePersonal   LeaveType = "personal"
	LeaveVacation   LeaveType = "vacation"
	LeaveWifeHelp   LeaveType = "wife_help"
	LeaveMaternity  LeaveType = "maternity"
	LeaveOrdination LeaveType = "ordination"
	LeaveMilitary   LeaveType = "military"
)

// LeaveRequest is an approved leave. DurationDays may be fractional (0.5).
type LeaveRequest struct {
	ID           int64
	CitizenID    CitizenID
	LeaveType    LeaveType
	StartDate    generic.TimePoint
	EndDate      generic.TimePoint
	DurationDays decimal.Decimal
	FiscalYear   int  // 0 = derive from StartDate
	NoPay        bool // leave without pay: always deducted
}

// IsHalfDay is true for 0 < duration < 1.
func (l LeaveRequest) IsHalfDay() bool {
	return l.DurationDays.IsPositive() && l.DurationDays.LessThan(decimal.NewFromInt(1))
}

// Span returns [StartDate, EndDate].
func (l LeaveRequest) Span() generic.Period {
	return generic.Period{Start: l.StartDate, End: l.EndDate}
}

// LeaveQuota is the per-fiscal-year quota row. A nil field means no cap.
type LeaveQuota struct {
	CitizenID  CitizenID
	FiscalYear int
	Vacation   *decimal.Decimal
	Personal   *decimal.Decimal
	Sick       *decimal.Decimal
}

// =============================================================================
// PERIODS AND PAYOUTS
// =============================================================================

type PeriodStatus string

const (
	PeriodOpen               PeriodStatus = "OPEN"
	PeriodWaitingHR          PeriodStatus = "WAITING_HR"
	PeriodWaitingHeadFinance PeriodStatus = "WAITING_HEAD_FINANCE"
	PeriodWaitingDirector    PeriodStatus = "WAITING_DIRECTOR"
	PeriodClosed             PeriodStatus = "CLOSED"
)

// PayPeriod is one payroll month and its approval status.
type PayPeriod struct {
	ID     int64
	Year   int
	Month  time.Month
	Status PeriodStatus
}

type PayoutItemType string

const (
	ItemRetroactiveAdd    PayoutItemType = "RETROACTIVE_ADD"
	ItemRetroactiveDeduct PayoutItemType = "RETROACTIVE_DEDUCT"
)

// PayoutItem is a correction paid in one payout for a historical month.
// Amount is always non-negative; ItemType carries the sign.
type PayoutItem struct {
	ID             string
	PayoutID       string
	ReferenceYear  int
	ReferenceMonth time.Month
	ItemType       PayoutItemType
	Amount         decimal.Decimal
	Remark         string
}

// Signed returns the item amount with its ledger sign.
func (i PayoutItem) Signed() decimal.Decimal {
	if i.ItemType == ItemRetroactiveDeduct {
		return i.Amount.Neg()
	}
	return i.Amount
}

// Payout is the persisted result for one (period, citizen).
type Payout struct {
	ID                string
	PeriodID          int64
	CitizenID         CitizenID
	MasterRateID      int64
	RateSnapshot      decimal.Decimal
	CalculatedAmount  decimal.Decimal
	RetroactiveAmount decimal.Decimal
	TotalPayable      decimal.Decimal
	EligibleDays      decimal.Decimal
	DeductedDays      decimal.Decimal
	Remark            string
	Items             []PayoutItem
	CreatedAt         time.Time
}

// =============================================================================
// RESULTS
// =============================================================================

// RateSegment is a contiguous part of the month under one eligibility record.
type RateSegment struct {
	Record EligibilityRecord
	Period generic.Period
}

// SegmentResult is the per-rate breakdown of a month.
type SegmentResult struct {
	MasterRateID int64
	Rate         decimal.Decimal
	Period       generic.Period
	EligibleDays decimal.Decimal
	DeductedDays decimal.Decimal
	Amount       decimal.Decimal // unrounded
}

// CalculationResult is the output of the monthly calculation.
type CalculationResult struct {
	CitizenID        CitizenID
	Year             int
	Month            time.Month
	DaysInMonth      int
	EligibleDays     decimal.Decimal
	DeductedDays     decimal.Decimal
	ValidLicenseDays int
	NetPayment       decimal.Decimal
	MasterRateID     int64
	RateSnapshot     decimal.Decimal
	Remark           string
	Segments         []SegmentResult
	Review           *generic.InvariantViolation // non-nil = flagged for manual review
}

// RetroDetail is one historical month whose payment differs.
type RetroDetail struct {
	Year       int
	Month      time.Month
	PaidAmount decimal.Decimal
	ShouldBe   decimal.Decimal
	Diff       decimal.Decimal
	Remark     string
}

// RetroResult is the output of the retroactive reconciliation.
type RetroResult struct {
	CitizenID  CitizenID
	Year       int
	Month      time.Month
	TotalRetro decimal.Decimal
	Details    []RetroDetail
}
