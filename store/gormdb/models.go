package gormdb

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// Dates are kept as "YYYY-MM-DD" strings so range filters compare the same
// way on every dialect.

// RateModel maps table master_rates.
type RateModel struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	ProfessionCode string          `gorm:"type:varchar(32);not null"`
	GroupNo        int             `gorm:"not null;default:0"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Active         bool            `gorm:"not null"`
}

func (RateModel) TableName() string { return "master_rates" }

// EligibilityModel maps table eligibility.
type EligibilityModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	CitizenID     string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_eligibility_citizen_effective"`
	MasterRateID  int64     `gorm:"not null;index"`
	Rate          RateModel `gorm:"foreignKey:MasterRateID"`
	EffectiveDate string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_eligibility_citizen_effective"`
	ExpiryDate    *string   `gorm:"type:varchar(10)"`
	Active        bool      `gorm:"not null"`
}

func (EligibilityModel) TableName() string { return "eligibility" }

// MovementModel maps table movements.
type MovementModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	CitizenID     string `gorm:"type:varchar(20);not null;index:idx_movements_citizen"`
	MovementType  string `gorm:"type:varchar(20);not null"`
	EffectiveDate string `gorm:"type:varchar(10);not null;index:idx_movements_citizen"`
	Remark        string `gorm:"type:text"`
}

func (MovementModel) TableName() string { return "movements" }

// LicenseModel maps table licenses.
type LicenseModel struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	CitizenID      string  `gorm:"type:varchar(20);not null;index"`
	LicenseNo      string  `gorm:"type:varchar(64);not null"`
	ValidFrom      string  `gorm:"type:varchar(10);not null"`
	ValidUntil     *string `gorm:"type:varchar(10)"`
	Status         string  `gorm:"type:varchar(16);not null"`
	OccupationName string  `gorm:"type:varchar(255)"`
}

func (LicenseModel) TableName() string { return "licenses" }

// LeaveModel maps table leaves.
type LeaveModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	CitizenID    string          `gorm:"type:varchar(20);not null;index:idx_leaves_citizen_dates"`
	LeaveType    string          `gorm:"type:varchar(32);not null"`
	StartDate    string          `gorm:"type:varchar(10);not null;index:idx_leaves_citizen_dates"`
	EndDate      string          `gorm:"type:varchar(10);not null;index:idx_leaves_citizen_dates"`
	DurationDays decimal.Decimal `gorm:"type:decimal(6,1);not null"`
	FiscalYear   int             `gorm:"not null;default:0"`
	NoPay        bool            `gorm:"not null;default:false"`
}

func (LeaveModel) TableName() string { return "leaves" }

// QuotaModel maps table leave_quotas. NULL columns mean no cap.
type QuotaModel struct {
	CitizenID  string              `gorm:"primaryKey;type:varchar(20)"`
	FiscalYear int                 `gorm:"primaryKey;autoIncrement:false"`
	Vacation   decimal.NullDecimal `gorm:"type:decimal(6,1)"`
	Personal   decimal.NullDecimal `gorm:"type:decimal(6,1)"`
	Sick       decimal.NullDecimal `gorm:"type:decimal(6,1)"`
}

func (QuotaModel) TableName() string { return "leave_quotas" }

// HolidayModel maps table holidays.
type HolidayModel struct {
	Date string `gorm:"primaryKey;type:varchar(10)"`
	Ref  string `gorm:"type:varchar(64)"`
	Name string `gorm:"type:varchar(255);not null"`
}

func (HolidayModel) TableName() string { return "holidays" }

// PeriodModel maps table periods.
type PeriodModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Year   int    `gorm:"not null;uniqueIndex:idx_periods_year_month"`
	Month  int    `gorm:"not null;uniqueIndex:idx_periods_year_month"`
	Status string `gorm:"type:varchar(32);not null;default:'OPEN'"`
}

func (PeriodModel) TableName() string { return "periods" }

// PeriodLockModel is the row a period run locks. It is kept apart from
// periods so payout inserts (which reference periods) never wait on it.
type PeriodLockModel struct {
	PeriodID int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (PeriodLockModel) TableName() string { return "period_locks" }

// PayoutModel maps table payouts.
type PayoutModel struct {
	ID                string            `gorm:"primaryKey;type:varchar(36)"`
	PeriodID          int64             `gorm:"not null;uniqueIndex:idx_payouts_period_citizen"`
	CitizenID         string            `gorm:"type:varchar(20);not null;uniqueIndex:idx_payouts_period_citizen"`
	MasterRateID      int64             `gorm:"not null;default:0"`
	RateSnapshot      decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	CalculatedAmount  decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	RetroactiveAmount decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	TotalPayable      decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	EligibleDays      decimal.Decimal   `gorm:"type:decimal(6,1);not null"`
	DeductedDays      decimal.Decimal   `gorm:"type:decimal(6,1);not null"`
	Remark            string            `gorm:"type:text"`
	CreatedAt         time.Time         `gorm:"not null"`
	Items             []PayoutItemModel `gorm:"foreignKey:PayoutID;constraint:OnDelete:CASCADE"`
}

func (PayoutModel) TableName() string { return "payouts" }

// PayoutItemModel maps table payout_items.
type PayoutItemModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)"`
	PayoutID       string          `gorm:"type:varchar(36);not null;index"`
	ReferenceYear  int             `gorm:"not null;index:idx_payout_items_reference"`
	ReferenceMonth int             `gorm:"not null;index:idx_payout_items_reference"`
	ItemType       string          `gorm:"type:varchar(32);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Remark         string          `gorm:"type:text"`
}

func (PayoutItemModel) TableName() string { return "payout_items" }

// AllModels lists every table in migration order.
func AllModels() []any {
	return []any{
		&RateModel{}, &EligibilityModel{}, &MovementModel{}, &LicenseModel{},
		&LeaveModel{}, &QuotaModel{}, &HolidayModel{}, &PeriodModel{},
		&PeriodLockModel{}, &PayoutModel{}, &PayoutItemModel{},
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func dateString(tp *generic.TimePoint) *string {
	if tp == nil {
		return nil
	}
	s := tp.String()
	return &s
}

func parseDatePtr(s *string) (*generic.TimePoint, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func rateFromModel(m RateModel) allowance.MasterRate {
	return allowance.MasterRate{
		ID:             m.ID,
		ProfessionCode: m.ProfessionCode,
		GroupNo:        m.GroupNo,
		Amount:         m.Amount,
		Active:         m.Active,
	}
}

func eligibilityFromModel(m EligibilityModel) (allowance.EligibilityRecord, error) {
	effective, err := generic.ParseDate(m.EffectiveDate)
	if err != nil {
		return allowance.EligibilityRecord{}, err
	}
	expiry, err := parseDatePtr(m.ExpiryDate)
	if err != nil {
		return allowance.EligibilityRecord{}, err
	}
	return allowance.EligibilityRecord{
		ID:            m.ID,
		CitizenID:     allowance.CitizenID(m.CitizenID),
		MasterRateID:  m.MasterRateID,
		Rate:          rateFromModel(m.Rate),
		EffectiveDate: effective,
		ExpiryDate:    expiry,
		Active:        m.Active,
	}, nil
}

func payoutToModel(p allowance.Payout) PayoutModel {
	m := PayoutModel{
		ID:                p.ID,
		PeriodID:          p.PeriodID,
		CitizenID:         string(p.CitizenID),
		MasterRateID:      p.MasterRateID,
		RateSnapshot:      p.RateSnapshot,
		CalculatedAmount:  p.CalculatedAmount,
		RetroactiveAmount: p.RetroactiveAmount,
		TotalPayable:      p.TotalPayable,
		EligibleDays:      p.EligibleDays,
		DeductedDays:      p.DeductedDays,
		Remark:            p.Remark,
		CreatedAt:         p.CreatedAt,
	}
	for _, item := range p.Items {
		m.Items = append(m.Items, PayoutItemModel{
			ID:             item.ID,
			PayoutID:       p.ID,
			ReferenceYear:  item.ReferenceYear,
			ReferenceMonth: int(item.ReferenceMonth),
			ItemType:       string(item.ItemType),
			Amount:         item.Amount,
			Remark:         item.Remark,
		})
	}
	return m
}

func itemFromModel(m PayoutItemModel) allowance.PayoutItem {
	return allowance.PayoutItem{
		ID:             m.ID,
		PayoutID:       m.PayoutID,
		ReferenceYear:  m.ReferenceYear,
		ReferenceMonth: time.Month(m.ReferenceMonth),
		ItemType:       allowance.PayoutItemType(m.ItemType),
		Amount:         m.Amount,
		Remark:         m.Remark,
	}
}

func payoutFromModel(m PayoutModel) allowance.Payout {
	p := allowance.Payout{
		ID:                m.ID,
		PeriodID:          m.PeriodID,
		CitizenID:         allowance.CitizenID(m.CitizenID),
		MasterRateID:      m.MasterRateID,
		RateSnapshot:      m.RateSnapshot,
		CalculatedAmount:  m.CalculatedAmount,
		RetroactiveAmount: m.RetroactiveAmount,
		TotalPayable:      m.TotalPayable,
		EligibleDays:      m.EligibleDays,
		DeductedDays:      m.DeductedDays,
		Remark:            m.Remark,
		CreatedAt:         m.CreatedAt,
	}
	for _, item := range m.Items {
		p.Items = append(p.Items, itemFromModel(item))
	}
	return p
}

func periodFromModel(m PeriodModel) allowance.PayPeriod {
	return allowance.PayPeriod{
		ID:     m.ID,
		Year:   m.Year,
		Month:  time.Month(m.Month),
		Status: allowance.PeriodStatus(m.Status),
	}
}
