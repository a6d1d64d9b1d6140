/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario creates rates, eligibility, licenses,
	leaves and pay periods that demonstrate one engine feature in July 2024.

AVAILABLE SCENARIOS:

	full-month:      One nurse, licensed and eligible all month
	quota-exceeded:  Personal leave beyond the fiscal-year quota is deducted
	rate-change:     Rate raised mid-month, pro-rated by segment
	retroactive:     June paid and closed, then the rate is corrected
	resignation:     Resigns mid-month, paid to the day before exit
	department-run:  Three citizens for a period-wide run

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Load the July 2024 public holidays
 3. Create rates and citizens' master data
 4. Create the pay periods the scenario needs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "retroactive"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and the Backend interface
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	demoYear  = 2024
	demoMonth = time.July
)

var scenarios = []ScenarioDTO{
	{
		ID:          "full-month",
		Name:        "Full Month",
		Description: "Registered nurse, rate 1,500, licensed and eligible for all of July",
	},
	{
		ID:          "quota-exceeded",
		Name:        "Quota Exceeded",
		Description: "Five days of personal leave against a quota of three: two days deducted",
	},
	{
		ID:          "rate-change",
		Name:        "Mid-Month Rate Change",
		Description: "Rate 1,000 until 15 July, then 1,500: paid per segment",
	},
	{
		ID:          "retroactive",
		Name:        "Retroactive Correction",
		Description: "June paid at 1,000 and closed, then corrected to 1,500: July carries the difference",
	},
	{
		ID:          "resignation",
		Name:        "Resignation",
		Description: "Resigns effective 16 July: paid for 1 to 15 July only",
	},
	{
		ID:          "department-run",
		Name:        "Department Run",
		Description: "Three citizens, one without a valid license, for a period-wide run",
	},
}

func init() {
	for i := range scenarios {
		scenarios[i].Year = demoYear
		scenarios[i].Month = int(demoMonth)
	}
}

// Demo citizen ids (13-digit national id format).
const (
	demoNurse      = allowance.CitizenID("1100700000001")
	demoPharmacist = allowance.CitizenID("1100700000002")
	demoDentist    = allowance.CitizenID("1100700000003")
)

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		if generic.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Seed resets the store and loads a scenario. Also used at start-up when
// demo seeding is configured.
func (h *Handler) Seed(ctx context.Context, scenarioID string) error {
	loaders := map[string]func(context.Context, *seeder) error{
		"full-month":     h.loadFullMonthScenario,
		"quota-exceeded": h.loadQuotaExceededScenario,
		"rate-change":    h.loadRateChangeScenario,
		"retroactive":    h.loadRetroactiveScenario,
		"resignation":    h.loadResignationScenario,
		"department-run": h.loadDepartmentRunScenario,
	}
	load, ok := loaders[scenarioID]
	if !ok {
		return &generic.ValidationError{Field: "scenario_id", Value: scenarioID, Reason: "unknown scenario"}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	s := &seeder{store: h.Store}
	s.holidays(ctx)
	if err := load(ctx, s); err != nil {
		return err
	}
	if s.err != nil {
		return s.err
	}

	h.currentScenario = scenarioID
	h.logger.Info("scenario loaded", zap.String("scenario", scenarioID))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFullMonthScenario(ctx context.Context, s *seeder) error {
	rate := s.rate(ctx, "NURSE", 1, "1500")
	s.eligible(ctx, demoNurse, rate, "2023-01-01")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	return nil
}

func (h *Handler) loadQuotaExceededScenario(ctx context.Context, s *seeder) error {
	rate := s.rate(ctx, "NURSE", 2, "3100")
	s.eligible(ctx, demoNurse, rate, "2023-01-01")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.quota(ctx, demoNurse, 2024, "", "3", "")
	s.leave(ctx, demoNurse, allowance.LeavePersonal, "2024-07-08", "2024-07-12", "5")
	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	return nil
}

func (h *Handler) loadRateChangeScenario(ctx context.Context, s *seeder) error {
	low := s.rate(ctx, "NURSE", 1, "1000")
	high := s.rate(ctx, "NURSE", 2, "1500")
	s.eligible(ctx, demoNurse, low, "2023-01-01")
	s.eligible(ctx, demoNurse, high, "2024-07-16")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	return nil
}

// loadRetroactiveScenario pays June through the engine, closes it, then
// corrects the eligibility so July's recompute carries a retro item.
func (h *Handler) loadRetroactiveScenario(ctx context.Context, s *seeder) error {
	low := s.rate(ctx, "NURSE", 1, "1000")
	high := s.rate(ctx, "NURSE", 2, "1500")
	rec := s.eligible(ctx, demoNurse, low, "2024-01-01")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.period(ctx, demoYear, time.June, allowance.PeriodOpen)
	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	if s.err != nil {
		return s.err
	}

	if _, err := h.Engine.Recompute(ctx, demoNurse, demoYear, time.June); err != nil {
		return fmt.Errorf("pay june: %w", err)
	}
	if err := h.Store.SetPeriodStatus(ctx, demoYear, time.June, allowance.PeriodClosed); err != nil {
		return fmt.Errorf("close june: %w", err)
	}

	rec.MasterRateID = high.ID
	if _, err := h.Store.SaveEligibility(ctx, rec); err != nil {
		return fmt.Errorf("correct eligibility: %w", err)
	}
	return nil
}

func (h *Handler) loadResignationScenario(ctx context.Context, s *seeder) error {
	rate := s.rate(ctx, "NURSE", 1, "1500")
	s.eligible(ctx, demoNurse, rate, "2023-01-01")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.movement(ctx, demoNurse, allowance.MovementEntry, "2023-01-01")
	s.movement(ctx, demoNurse, allowance.MovementResign, "2024-07-16")
	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	return nil
}

func (h *Handler) loadDepartmentRunScenario(ctx context.Context, s *seeder) error {
	nurse := s.rate(ctx, "NURSE", 1, "1500")
	pharm := s.rate(ctx, "PHARMACIST", 2, "3000")
	dent := s.rate(ctx, "DENTIST", 3, "10000")

	s.eligible(ctx, demoNurse, nurse, "2023-01-01")
	s.license(ctx, demoNurse, "RN-0001", "registered nurse", "2020-01-01", "")
	s.leave(ctx, demoNurse, allowance.LeaveSick, "2024-07-25", "2024-07-26", "2")

	s.eligible(ctx, demoPharmacist, pharm, "2024-07-01")
	s.license(ctx, demoPharmacist, "PH-0002", "pharmacist", "2024-07-01", "2024-07-20")

	// No license: eligible but paid nothing.
	s.eligible(ctx, demoDentist, dent, "2023-01-01")

	s.period(ctx, demoYear, demoMonth, allowance.PeriodOpen)
	return nil
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seeder records the first store error and turns later calls into no-ops,
// so loaders read as a list of facts.
type seeder struct {
	store Backend
	err   error
}

func (s *seeder) fail(what string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("%s: %w", what, err)
	}
}

func (s *seeder) holidays(ctx context.Context) {
	for date, name := range map[string]string{
		"2024-07-22": "Asarnha Bucha Day (substitute)",
		"2024-07-29": "H.M. King's Birthday (substitute)",
	} {
		if s.err != nil {
			return
		}
		d := generic.MustParseDate(date)
		s.fail("holiday "+date, s.store.SaveHoliday(ctx, generic.Holiday{ID: "hol-" + date, Date: d, Name: name}))
	}
}

func (s *seeder) rate(ctx context.Context, profession string, group int, amount string) allowance.MasterRate {
	if s.err != nil {
		return allowance.MasterRate{}
	}
	r, err := s.store.SaveRate(ctx, allowance.MasterRate{
		ProfessionCode: profession,
		GroupNo:        group,
		Amount:         decimal.RequireFromString(amount),
		Active:         true,
	})
	s.fail("rate "+profession, err)
	return r
}

func (s *seeder) eligible(ctx context.Context, cid allowance.CitizenID, rate allowance.MasterRate, effective string) allowance.EligibilityRecord {
	if s.err != nil {
		return allowance.EligibilityRecord{}
	}
	rec, err := s.store.SaveEligibility(ctx, allowance.EligibilityRecord{
		CitizenID:     cid,
		MasterRateID:  rate.ID,
		EffectiveDate: generic.MustParseDate(effective),
		Active:        true,
	})
	s.fail("eligibility "+string(cid), err)
	return rec
}

func (s *seeder) license(ctx context.Context, cid allowance.CitizenID, no, occupation, from, until string) {
	if s.err != nil {
		return
	}
	lic := allowance.LicenseRecord{
		CitizenID:      cid,
		LicenseNo:      no,
		ValidFrom:      generic.MustParseDate(from),
		Status:         allowance.LicenseActive,
		OccupationName: occupation,
	}
	if until != "" {
		u := generic.MustParseDate(until)
		lic.ValidUntil = &u
	}
	_, err := s.store.SaveLicense(ctx, lic)
	s.fail("license "+no, err)
}

func (s *seeder) movement(ctx context.Context, cid allowance.CitizenID, typ allowance.MovementType, effective string) {
	if s.err != nil {
		return
	}
	_, err := s.store.SaveMovement(ctx, allowance.MovementRecord{
		CitizenID:     cid,
		Type:          typ,
		EffectiveDate: generic.MustParseDate(effective),
	})
	s.fail("movement "+string(typ), err)
}

func (s *seeder) leave(ctx context.Context, cid allowance.CitizenID, typ allowance.LeaveType, start, end, days string) {
	if s.err != nil {
		return
	}
	_, err := s.store.SaveLeave(ctx, allowance.LeaveRequest{
		CitizenID:    cid,
		LeaveType:    typ,
		StartDate:    generic.MustParseDate(start),
		EndDate:      generic.MustParseDate(end),
		DurationDays: decimal.RequireFromString(days),
	})
	s.fail("leave "+string(typ), err)
}

// quota saves a quota row. Empty strings leave a type uncapped.
func (s *seeder) quota(ctx context.Context, cid allowance.CitizenID, fiscalYear int, vacation, personal, sick string) {
	if s.err != nil {
		return
	}
	opt := func(v string) *decimal.Decimal {
		if v == "" {
			return nil
		}
		d := decimal.RequireFromString(v)
		return &d
	}
	s.fail("quota", s.store.SaveQuota(ctx, allowance.LeaveQuota{
		CitizenID:  cid,
		FiscalYear: fiscalYear,
		Vacation:   opt(vacation),
		Personal:   opt(personal),
		Sick:       opt(sick),
	}))
}

func (s *seeder) period(ctx context.Context, year int, month time.Month, status allowance.PeriodStatus) {
	if s.err != nil {
		return
	}
	_, err := s.store.SavePeriod(ctx, allowance.PayPeriod{Year: year, Month: month, Status: status})
	s.fail(fmt.Sprintf("period %04d-%02d", year, int(month)), err)
}
