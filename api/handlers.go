/*
handlers.go - HTTP API handlers for the allowance engine

PURPOSE:
  Exposes the allowance engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine and the period runner.

ENDPOINTS:
  Citizens:
    GET    /api/citizens/{id}/calculation?year=&month=          Monthly preview
    GET    /api/citizens/{id}/retroactive?year=&month=&look_back= Retro diff
    POST   /api/citizens/{id}/eligibility                       Assign a rate
    POST   /api/citizens/{id}/movements                         Employment event
    POST   /api/citizens/{id}/licenses                          License interval
    POST   /api/citizens/{id}/leaves                            Approved leave
    PUT    /api/citizens/{id}/quotas                            Fiscal-year quota

  Periods:
    GET    /api/periods/open                                    Open periods
    POST   /api/periods                                         Create period
    GET    /api/periods/{year}/{month}                          Get period
    PUT    /api/periods/{year}/{month}/status                   Move status
    POST   /api/periods/{year}/{month}/run                      Period run
    GET    /api/periods/{year}/{month}/payouts                  Payouts
    POST   /api/periods/{year}/{month}/citizens/{id}/recompute  Recompute one

  Reference data:
    GET/POST /api/rates, GET/POST/DELETE /api/holidays, GET /api/rules

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Period not found
  - 409: Closed period, duplicate eligibility
  - 500: Internal errors (store outages)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/factory"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is every store capability the API needs. The memory, sqlite and
// gorm stores all implement it.
type Backend interface {
	allowance.Store
	allowance.CitizenLister
	allowance.OpenPeriodLister
	allowance.PeriodLocker

	SaveRate(ctx context.Context, r allowance.MasterRate) (allowance.MasterRate, error)
	ListRates(ctx context.Context) ([]allowance.MasterRate, error)
	SaveEligibility(ctx context.Context, e allowance.EligibilityRecord) (allowance.EligibilityRecord, error)
	SaveMovement(ctx context.Context, m allowance.MovementRecord) (allowance.MovementRecord, error)
	SaveLicense(ctx context.Context, l allowance.LicenseRecord) (allowance.LicenseRecord, error)
	SaveLeave(ctx context.Context, l allowance.LeaveRequest) (allowance.LeaveRequest, error)
	SaveQuota(ctx context.Context, q allowance.LeaveQuota) error
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, date generic.TimePoint) error
	SavePeriod(ctx context.Context, p allowance.PayPeriod) (allowance.PayPeriod, error)
	SetPeriodStatus(ctx context.Context, year int, month time.Month, status allowance.PeriodStatus) error
	ListPayouts(ctx context.Context, periodID int64) ([]allowance.Payout, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Backend
	Engine *allowance.Engine
	Runner *allowance.PeriodRunner

	// Rules is the effective rule document, served by GET /api/rules.
	Rules factory.RulesJSON

	logger *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. A nil logger discards logs.
func NewHandler(store Backend, engine *allowance.Engine, runner *allowance.PeriodRunner, rules factory.RulesJSON, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Engine: engine,
		Runner: runner,
		Rules:  rules,
		logger: logger,
	}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// GetCalculation previews one month without persisting anything.
// GET /api/citizens/{id}/calculation?year=2024&month=7
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	citizenID := allowance.CitizenID(chi.URLParam(r, "id"))
	year, month, err := queryYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return
	}

	res, err := h.Engine.CalculateMonthly(r.Context(), citizenID, year, month)
	if err != nil {
		h.writeDomainError(w, "Calculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(res))
}

// GetRetroactive reconciles closed months before (year, month).
// GET /api/citizens/{id}/retroactive?year=2024&month=7&look_back=6
func (h *Handler) GetRetroactive(w http.ResponseWriter, r *http.Request) {
	citizenID := allowance.CitizenID(chi.URLParam(r, "id"))
	year, month, err := queryYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return
	}
	lookBack := 0
	if s := r.URL.Query().Get("look_back"); s != "" {
		lookBack, err = strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid look_back", err)
			return
		}
	}

	res, err := h.Engine.CalculateRetroactive(r.Context(), citizenID, year, month, lookBack)
	if err != nil {
		h.writeDomainError(w, "Retroactive calculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRetroDTO(res))
}

// RecomputeCitizen recalculates and persists one citizen's payout.
// POST /api/periods/{year}/{month}/citizens/{id}/recompute
func (h *Handler) RecomputeCitizen(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return
	}
	citizenID := allowance.CitizenID(chi.URLParam(r, "id"))

	payout, err := h.Engine.Recompute(r.Context(), citizenID, year, month)
	if err != nil {
		h.writeDomainError(w, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*payout))
}

// RunPeriod recomputes a whole period. With citizen_ids in the body each
// citizen runs in its own transaction and failures do not stop the batch.
// POST /api/periods/{year}/{month}/run
func (h *Handler) RunPeriod(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return
	}

	var req RunPeriodRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var report *allowance.RunReport
	if len(req.CitizenIDs) > 0 {
		ids := make([]allowance.CitizenID, len(req.CitizenIDs))
		for i, id := range req.CitizenIDs {
			ids[i] = allowance.CitizenID(id)
		}
		report, err = h.Runner.RecomputeEach(r.Context(), year, month, ids)
	} else {
		report, err = h.Runner.RunPeriod(r.Context(), year, month)
	}

	if report == nil {
		h.writeDomainError(w, "Period run failed", err)
		return
	}
	dto := toRunReportDTO(report)
	if err != nil {
		// The run stopped part way: committed payouts stay, report them.
		dto.Error = err.Error()
		writeJSON(w, statusFor(err), dto)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListPayouts returns the payouts persisted for a period.
// GET /api/periods/{year}/{month}/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	period, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	payouts, err := h.Store.ListPayouts(r.Context(), period.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payouts", err)
		return
	}

	dtos := make([]PayoutDTO, 0, len(payouts))
	for _, p := range payouts {
		dtos = append(dtos, toPayoutDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListOpenPeriods returns every period that is not CLOSED.
// GET /api/periods/open
func (h *Handler) ListOpenPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListOpenPeriods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}
	dtos := make([]PeriodDTO, 0, len(periods))
	for _, p := range periods {
		dtos = append(dtos, toPeriodDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPeriod returns one period.
// GET /api/periods/{year}/{month}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	period, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*period))
}

// CreatePeriod creates or updates a period.
// POST /api/periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 1 {
		writeError(w, http.StatusBadRequest, "year and month are required", nil)
		return
	}
	status := allowance.PeriodOpen
	if req.Status != "" {
		var err error
		if status, err = parsePeriodStatus(req.Status); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
	}

	period, err := h.Store.SavePeriod(r.Context(), allowance.PayPeriod{Year: req.Year, Month: time.Month(req.Month), Status: status})
	if err != nil {
		h.writeDomainError(w, "Failed to save period", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(period))
}

// UpdatePeriodStatus moves a period through the approval workflow.
// PUT /api/periods/{year}/{month}/status
func (h *Handler) UpdatePeriodStatus(w http.ResponseWriter, r *http.Request) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return
	}
	var req UpdatePeriodStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := parsePeriodStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status", err)
		return
	}

	if err := h.Store.SetPeriodStatus(r.Context(), year, month, status); err != nil {
		h.writeDomainError(w, "Failed to update period", err)
		return
	}
	h.logger.Info("period status changed",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.String("status", string(status)))
	writeJSON(w, http.StatusOK, PeriodDTO{Year: year, Month: int(month), Status: string(status)})
}

func (h *Handler) loadPeriod(w http.ResponseWriter, r *http.Request) (*allowance.PayPeriod, bool) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year or month", err)
		return nil, false
	}
	period, err := h.Store.GetPeriod(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load period", err)
		return nil, false
	}
	if period == nil {
		writeError(w, http.StatusNotFound, "Period not found", fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound))
		return nil, false
	}
	return period, true
}

// =============================================================================
// MASTER DATA HANDLERS
// =============================================================================

// ListRates returns the master rate table.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.ListRates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}
	dtos := make([]RateDTO, 0, len(rates))
	for _, rate := range rates {
		dtos = append(dtos, RateDTO{
			ID:             rate.ID,
			ProfessionCode: rate.ProfessionCode,
			GroupNo:        rate.GroupNo,
			Amount:         money(rate.Amount),
			Active:         rate.Active,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRate adds a master rate.
// POST /api/rates
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req CreateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProfessionCode == "" {
		writeError(w, http.StatusBadRequest, "profession_code is required", nil)
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must not be negative", nil)
		return
	}

	rate, err := h.Store.SaveRate(r.Context(), allowance.MasterRate{
		ProfessionCode: req.ProfessionCode,
		GroupNo:        req.GroupNo,
		Amount:         req.Amount,
		Active:         true,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{Status: "created", ID: rate.ID})
}

// CreateEligibility assigns a master rate to a citizen.
// POST /api/citizens/{id}/eligibility
func (h *Handler) CreateEligibility(w http.ResponseWriter, r *http.Request) {
	citizenID := chi.URLParam(r, "id")
	var req CreateEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	effective, err := parseDateField("effective_date", req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}
	expiry, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expiry_date", err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rec, err := h.Store.SaveEligibility(r.Context(), allowance.EligibilityRecord{
		CitizenID:     allowance.CitizenID(citizenID),
		MasterRateID:  req.MasterRateID,
		EffectiveDate: effective,
		ExpiryDate:    expiry,
		Active:        active,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save eligibility", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{Status: "created", ID: rec.ID})
}

// CreateMovement records an employment event.
// POST /api/citizens/{id}/movements
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	citizenID := chi.URLParam(r, "id")
	var req CreateMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	typ := allowance.MovementType(req.Type)
	if !typ.IsEntry() && !typ.IsExit() && typ != allowance.MovementStudy {
		writeError(w, http.StatusBadRequest, "Invalid movement type", fmt.Errorf("unknown type %q", req.Type))
		return
	}
	effective, err := parseDateField("effective_date", req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	mv, err := h.Store.SaveMovement(r.Context(), allowance.MovementRecord{
		CitizenID:     allowance.CitizenID(citizenID),
		Type:          typ,
		EffectiveDate: effective,
		Remark:        req.Remark,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save movement", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{Status: "created", ID: mv.ID})
}

// CreateLicense records a license validity interval.
// POST /api/citizens/{id}/licenses
func (h *Handler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	citizenID := chi.URLParam(r, "id")
	var req CreateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := parseDateField("valid_from", req.ValidFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid valid_from", err)
		return
	}
	until, err := parseOptionalDate("valid_until", req.ValidUntil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid valid_until", err)
		return
	}
	if until != nil && until.Before(from) {
		writeError(w, http.StatusBadRequest, "valid_until is before valid_from", generic.ErrInvalidPeriod)
		return
	}
	status := allowance.LicenseStatus(req.Status)
	if status == "" {
		status = allowance.LicenseActive
	}

	lic, err := h.Store.SaveLicense(r.Context(), allowance.LicenseRecord{
		CitizenID:      allowance.CitizenID(citizenID),
		LicenseNo:      req.LicenseNo,
		ValidFrom:      from,
		ValidUntil:     until,
		Status:         status,
		OccupationName: req.OccupationName,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save license", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{Status: "created", ID: lic.ID})
}

// CreateLeave records an approved leave.
// POST /api/citizens/{id}/leaves
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	citizenID := chi.URLParam(r, "id")
	var req CreateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LeaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type is required", nil)
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date", generic.ErrInvalidPeriod)
		return
	}
	if !req.DurationDays.IsPositive() {
		writeError(w, http.StatusBadRequest, "duration_days must be positive", nil)
		return
	}

	leave, err := h.Store.SaveLeave(r.Context(), allowance.LeaveRequest{
		CitizenID:    allowance.CitizenID(citizenID),
		LeaveType:    allowance.LeaveType(req.LeaveType),
		StartDate:    start,
		EndDate:      end,
		DurationDays: req.DurationDays,
		FiscalYear:   req.FiscalYear,
		NoPay:        req.NoPay,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{Status: "created", ID: leave.ID})
}

// PutQuota replaces a citizen's quota for one fiscal year.
// PUT /api/citizens/{id}/quotas
func (h *Handler) PutQuota(w http.ResponseWriter, r *http.Request) {
	citizenID := chi.URLParam(r, "id")
	var req QuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FiscalYear <= 0 {
		writeError(w, http.StatusBadRequest, "fiscal_year is required", nil)
		return
	}
	for _, v := range []*decimal.Decimal{req.Vacation, req.Personal, req.Sick} {
		if v != nil && v.IsNegative() {
			writeError(w, http.StatusBadRequest, "quota must not be negative", nil)
			return
		}
	}

	err := h.Store.SaveQuota(r.Context(), allowance.LeaveQuota{
		CitizenID:  allowance.CitizenID(citizenID),
		FiscalYear: req.FiscalYear,
		Vacation:   req.Vacation,
		Personal:   req.Personal,
		Sick:       req.Sick,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save quota", err)
		return
	}
	writeJSON(w, http.StatusOK, CreatedDTO{Status: "saved"})
}

// GetRules returns the effective leave rules.
// GET /api/rules
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Rules)
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns holidays in [from, to], default the current year.
// GET /api/holidays?from=2024-01-01&to=2024-12-31
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	from := generic.NewTimePoint(year, time.January, 1)
	to := generic.NewTimePoint(year, time.December, 31)

	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = parseDateField("from", s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = parseDateField("to", s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to", err)
			return
		}
	}

	holidays, err := h.Store.ListHolidays(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{ID: "hol-" + date.String(), Date: date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{ID: holiday.ID, Date: date.String(), Name: holiday.Name})
}

// DeleteHoliday removes the holiday on a date.
// DELETE /api/holidays/{date}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateField("date", chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if err := h.Store.DeleteHoliday(r.Context(), date); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Healthz reports liveness.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error chain. Anything not
// recognised is a 500 and is logged.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryYearMonth(r *http.Request) (int, time.Month, error) {
	q := r.URL.Query()
	return parseYearMonth(q.Get("year"), q.Get("month"))
}

func pathYearMonth(r *http.Request) (int, time.Month, error) {
	return parseYearMonth(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
}

func parseYearMonth(ys, ms string) (int, time.Month, error) {
	year, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, &generic.ValidationError{Field: "year", Value: ys, Reason: "must be a number"}
	}
	month, err := strconv.Atoi(ms)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, &generic.ValidationError{Field: "month", Value: ms, Reason: "must be between 1 and 12"}
	}
	return year, time.Month(month), nil
}

func parseDateField(field, s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.TimePoint{}, &generic.ValidationError{Field: field, Value: s, Reason: "required"}
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, &generic.ValidationError{Field: field, Value: s, Reason: "use YYYY-MM-DD"}
	}
	return tp, nil
}

func parseOptionalDate(field, s string) (*generic.TimePoint, error) {
	if s == "" {
		return nil, nil
	}
	tp, err := parseDateField(field, s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func parsePeriodStatus(s string) (allowance.PeriodStatus, error) {
	switch st := allowance.PeriodStatus(s); st {
	case allowance.PeriodOpen, allowance.PeriodWaitingHR, allowance.PeriodWaitingHeadFinance,
		allowance.PeriodWaitingDirector, allowance.PeriodClosed:
		return st, nil
	}
	return "", &generic.ValidationError{Field: "status", Value: s, Reason: "unknown period status"}
}
