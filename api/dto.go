/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  allowance domain types. Money is rendered as a fixed two-place string and
  day counts as decimal strings, so clients never see float rounding.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// CALCULATION
// =============================================================================

type SegmentDTO struct {
	MasterRateID int64  `json:"master_rate_id"`
	Rate         string `json:"rate"`
	Start        string `json:"start"`
	End          string `json:"end"`
	EligibleDays string `json:"eligible_days"`
	DeductedDays string `json:"deducted_days"`
	Amount       string `json:"amount"`
}

type ReviewDTO struct {
	Code       string `json:"code"`
	RawPayment string `json:"raw_payment"`
}

// CalculationDTO is the monthly calculation result.
type CalculationDTO struct {
	CitizenID        string       `json:"citizen_id"`
	Year             int          `json:"year"`
	Month            int          `json:"month"`
	DaysInMonth      int          `json:"days_in_month"`
	EligibleDays     string       `json:"eligible_days"`
	DeductedDays     string       `json:"deducted_days"`
	ValidLicenseDays int          `json:"valid_license_days"`
	NetPayment       string       `json:"net_payment"`
	MasterRateID     int64        `json:"master_rate_id"`
	RateSnapshot     string       `json:"rate_snapshot"`
	Remark           string       `json:"remark,omitempty"`
	Segments         []SegmentDTO `json:"segments"`
	Review           *ReviewDTO   `json:"review,omitempty"`
}

type RetroDetailDTO struct {
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	PaidAmount string `json:"paid_amount"`
	ShouldBe   string `json:"should_be"`
	Diff       string `json:"diff"`
	Remark     string `json:"remark"`
}

// RetroDTO is the retroactive reconciliation result.
type RetroDTO struct {
	CitizenID  string           `json:"citizen_id"`
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	TotalRetro string           `json:"total_retro"`
	Details    []RetroDetailDTO `json:"details"`
}

// =============================================================================
// PAYOUTS AND RUNS
// =============================================================================

type PayoutItemDTO struct {
	ID             string `json:"id"`
	ReferenceYear  int    `json:"reference_year"`
	ReferenceMonth int    `json:"reference_month"`
	ItemType       string `json:"item_type"`
	Amount         string `json:"amount"`
	Remark         string `json:"remark,omitempty"`
}

// PayoutDTO is a persisted payout.
type PayoutDTO struct {
	ID                string          `json:"id"`
	PeriodID          int64           `json:"period_id"`
	CitizenID         string          `json:"citizen_id"`
	MasterRateID      int64           `json:"master_rate_id"`
	RateSnapshot      string          `json:"rate_snapshot"`
	CalculatedAmount  string          `json:"calculated_amount"`
	RetroactiveAmount string          `json:"retroactive_amount"`
	TotalPayable      string          `json:"total_payable"`
	EligibleDays      string          `json:"eligible_days"`
	DeductedDays      string          `json:"deducted_days"`
	Remark            string          `json:"remark,omitempty"`
	Items             []PayoutItemDTO `json:"items"`
	CreatedAt         string          `json:"created_at"`
}

type OutcomeDTO struct {
	CitizenID    string `json:"citizen_id"`
	TotalPayable string `json:"total_payable,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RunReportDTO summarises a period run.
type RunReportDTO struct {
	Year       int          `json:"year"`
	Month      int          `json:"month"`
	PeriodID   int64        `json:"period_id"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	DurationMS int64        `json:"duration_ms"`
	Outcomes   []OutcomeDTO `json:"outcomes"`
	NotReached []string     `json:"not_reached,omitempty"`
	Error      string       `json:"error,omitempty"` // set when the run stopped early
}

// RunPeriodRequest limits a run to some citizens. Empty means everyone
// eligible, under the period lock.
type RunPeriodRequest struct {
	CitizenIDs []string `json:"citizen_ids,omitempty"`
}

// =============================================================================
// MASTER DATA
// =============================================================================

type PeriodDTO struct {
	ID     int64  `json:"id"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Status string `json:"status"`
}

type CreatePeriodRequest struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Status string `json:"status,omitempty"`
}

type UpdatePeriodStatusRequest struct {
	Status string `json:"status"`
}

type HolidayDTO struct {
	ID   string `json:"id,omitempty"`
	Date string `json:"date"`
	Name string `json:"name"`
}

type CreateHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type RateDTO struct {
	ID             int64  `json:"id"`
	ProfessionCode string `json:"profession_code"`
	GroupNo        int    `json:"group_no"`
	Amount         string `json:"amount"`
	Active         bool   `json:"active"`
}

type CreateRateRequest struct {
	ProfessionCode string          `json:"profession_code"`
	GroupNo        int             `json:"group_no"`
	Amount         decimal.Decimal `json:"amount"`
}

type CreateEligibilityRequest struct {
	MasterRateID  int64  `json:"master_rate_id"`
	EffectiveDate string `json:"effective_date"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	Active        *bool  `json:"active,omitempty"` // default true
}

type CreateMovementRequest struct {
	Type          string `json:"type"`
	EffectiveDate string `json:"effective_date"`
	Remark        string `json:"remark,omitempty"`
}

type CreateLicenseRequest struct {
	LicenseNo      string `json:"license_no"`
	ValidFrom      string `json:"valid_from"`
	ValidUntil     string `json:"valid_until,omitempty"`
	Status         string `json:"status"`
	OccupationName string `json:"occupation_name"`
}

type CreateLeaveRequest struct {
	LeaveType    string          `json:"leave_type"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	DurationDays decimal.Decimal `json:"duration_days"`
	FiscalYear   int             `json:"fiscal_year,omitempty"`
	NoPay        bool            `json:"no_pay,omitempty"`
}

type QuotaRequest struct {
	FiscalYear int              `json:"fiscal_year"`
	Vacation   *decimal.Decimal `json:"vacation"`
	Personal   *decimal.Decimal `json:"personal"`
	Sick       *decimal.Decimal `json:"sick"`
}

// CreatedDTO is returned by the admin writes.
type CreatedDTO struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(generic.MoneyPlaces) }

func toCalculationDTO(c *allowance.CalculationResult) CalculationDTO {
	dto := CalculationDTO{
		CitizenID:        string(c.CitizenID),
		Year:             c.Year,
		Month:            int(c.Month),
		DaysInMonth:      c.DaysInMonth,
		EligibleDays:     c.EligibleDays.String(),
		DeductedDays:     c.DeductedDays.String(),
		ValidLicenseDays: c.ValidLicenseDays,
		NetPayment:       money(c.NetPayment),
		MasterRateID:     c.MasterRateID,
		RateSnapshot:     money(c.RateSnapshot),
		Remark:           c.Remark,
		Segments:         make([]SegmentDTO, 0, len(c.Segments)),
	}
	for _, s := range c.Segments {
		dto.Segments = append(dto.Segments, SegmentDTO{
			MasterRateID: s.MasterRateID,
			Rate:         money(s.Rate),
			Start:        s.Period.Start.String(),
			End:          s.Period.End.String(),
			EligibleDays: s.EligibleDays.String(),
			DeductedDays: s.DeductedDays.String(),
			Amount:       s.Amount.String(),
		})
	}
	if c.Review != nil {
		dto.Review = &ReviewDTO{Code: c.Review.Code, RawPayment: c.Review.Raw.String()}
	}
	return dto
}

func toRetroDTO(r *allowance.RetroResult) RetroDTO {
	dto := RetroDTO{
		CitizenID:  string(r.CitizenID),
		Year:       r.Year,
		Month:      int(r.Month),
		TotalRetro: money(r.TotalRetro),
		Details:    make([]RetroDetailDTO, 0, len(r.Details)),
	}
	for _, d := range r.Details {
		dto.Details = append(dto.Details, RetroDetailDTO{
			Year:       d.Year,
			Month:      int(d.Month),
			PaidAmount: money(d.PaidAmount),
			ShouldBe:   money(d.ShouldBe),
			Diff:       money(d.Diff),
			Remark:     d.Remark,
		})
	}
	return dto
}

func toPayoutDTO(p allowance.Payout) PayoutDTO {
	dto := PayoutDTO{
		ID:                p.ID,
		PeriodID:          p.PeriodID,
		CitizenID:         string(p.CitizenID),
		MasterRateID:      p.MasterRateID,
		RateSnapshot:      money(p.RateSnapshot),
		CalculatedAmount:  money(p.CalculatedAmount),
		RetroactiveAmount: money(p.RetroactiveAmount),
		TotalPayable:      money(p.TotalPayable),
		EligibleDays:      p.EligibleDays.String(),
		DeductedDays:      p.DeductedDays.String(),
		Remark:            p.Remark,
		Items:             make([]PayoutItemDTO, 0, len(p.Items)),
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
	}
	for _, item := range p.Items {
		dto.Items = append(dto.Items, PayoutItemDTO{
			ID:             item.ID,
			ReferenceYear:  item.ReferenceYear,
			ReferenceMonth: int(item.ReferenceMonth),
			ItemType:       string(item.ItemType),
			Amount:         money(item.Amount),
			Remark:         item.Remark,
		})
	}
	return dto
}

func toRunReportDTO(r *allowance.RunReport) RunReportDTO {
	dto := RunReportDTO{
		Year:       r.Year,
		Month:      int(r.Month),
		PeriodID:   r.PeriodID,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		DurationMS: r.Duration.Milliseconds(),
		Outcomes:   make([]OutcomeDTO, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		out := OutcomeDTO{CitizenID: string(o.CitizenID)}
		if o.Err != nil {
			out.Error = o.Err.Error()
		} else if o.Payout != nil {
			out.TotalPayable = money(o.Payout.TotalPayable)
		}
		dto.Outcomes = append(dto.Outcomes, out)
	}
	for _, id := range r.NotReached {
		dto.NotReached = append(dto.NotReached, string(id))
	}
	return dto
}

func toPeriodDTO(p allowance.PayPeriod) PeriodDTO {
	return PeriodDTO{ID: p.ID, Year: p.Year, Month: int(p.Month), Status: string(p.Status)}
}
