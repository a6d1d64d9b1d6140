/*
engine.go - Entry points of the allowance engine

PURPOSE:
  Engine is the facade the HTTP layer, the period runner and the tests call:

    CalculateMonthly     - read only, rejects CLOSED periods
    CalculateRetroactive - read only, reconciles prior CLOSED months
    SavePayout           - the one effectful call
    Recompute            - all three for one citizen

  Inputs are validated before any source is touched. Collaborator errors
  are returned wrapped; nothing is ever read as "no data" on failure.
*/
package allowance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/allowance-engine/generic"
)

const (
	minYear     = 1900
	maxYear     = 9999
	maxLookBack = 120
	opCalculate = "calculate"
	opRecompute = "recompute"
)

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	LookBackMonths   int
	Rules            RuleSet
	QuotaDefaults    *QuotaDefaults
	LifetimeKeywords []string
	Logger           *zap.Logger
}

// Engine computes and persists allowances.
type Engine struct {
	sources  Sources
	calc     *MonthlyCalculator
	retro    *RetroactiveReconciler
	writer   *PayoutWriter
	lookBack int
	logger   *zap.Logger
}

// NewEngine wires the calculation pipeline. tx may be nil for a read-only
// engine; SavePayout then returns ErrStoreRequired.
func NewEngine(sources Sources, tx TxStore, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lookBack := opts.LookBackMonths
	if lookBack <= 0 {
		lookBack = DefaultLookBackMonths
	}

	deductions := NewDeductionEngine(opts.Rules, opts.QuotaDefaults, logger.Named("leave"))
	calc := NewMonthlyCalculator(sources, deductions, NewLicenseTimeline(opts.LifetimeKeywords), logger)

	e := &Engine{
		sources:  sources,
		calc:     calc,
		retro:    NewRetroactiveReconciler(calc, sources.Periods, sources.Ledger, logger.Named("retro")),
		lookBack: lookBack,
		logger:   logger,
	}
	if tx != nil {
		e.writer = NewPayoutWriter(tx)
	}
	return e
}

// NewEngineFromStore is NewEngine for a backend that implements everything.
func NewEngineFromStore(store Store, opts Options) *Engine {
	return NewEngine(SourcesFrom(store), store, opts)
}

// LookBackMonths returns the configured default window.
func (e *Engine) LookBackMonths() int { return e.lookBack }

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateRequest checks citizen, year and month.
func ValidateRequest(citizenID CitizenID, year int, month time.Month) error {
	if citizenID == "" {
		return &generic.ValidationError{Field: "citizen_id", Value: citizenID, Reason: "required"}
	}
	if year < minYear || year > maxYear {
		return &generic.ValidationError{Field: "year", Value: year, Reason: fmt.Sprintf("must be between %d and %d", minYear, maxYear)}
	}
	if month < time.January || month > time.December {
		return &generic.ValidationError{Field: "month", Value: int(month), Reason: "must be between 1 and 12"}
	}
	return nil
}

// openPeriod loads the period and rejects CLOSED. A missing row is allowed
// (preview of a month not yet opened).
func (e *Engine) openPeriod(ctx context.Context, year int, month time.Month, op string) (*PayPeriod, error) {
	period, err := e.sources.Periods.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("load period %04d-%02d: %w", year, int(month), err)
	}
	if period != nil && period.Status == PeriodClosed {
		return nil, &generic.StateConflictError{Year: year, Month: int(month), Status: string(period.Status), Op: op}
	}
	return period, nil
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// CalculateMonthly computes the allowance of one citizen for one month.
func (e *Engine) CalculateMonthly(ctx context.Context, citizenID CitizenID, year int, month time.Month) (*CalculationResult, error) {
	if err := ValidateRequest(citizenID, year, month); err != nil {
		return nil, err
	}
	if _, err := e.openPeriod(ctx, year, month, opCalculate); err != nil {
		return nil, err
	}
	return e.calc.Calculate(ctx, citizenID, year, month)
}

// CalculateRetroactive reconciles the lookBack months before (year, month).
// lookBack 0 uses the engine default.
func (e *Engine) CalculateRetroactive(ctx context.Context, citizenID CitizenID, year int, month time.Month, lookBack int) (*RetroResult, error) {
	if err := ValidateRequest(citizenID, year, month); err != nil {
		return nil, err
	}
	if lookBack < 0 || lookBack > maxLookBack {
		return nil, &generic.ValidationError{Field: "look_back_months", Value: lookBack, Reason: fmt.Sprintf("must be between 0 and %d", maxLookBack)}
	}
	if lookBack == 0 {
		lookBack = e.lookBack
	}
	return e.retro.Reconcile(ctx, citizenID, year, month, lookBack)
}

// SavePayout replaces the payout of (periodID, citizen). retro may be nil.
func (e *Engine) SavePayout(ctx context.Context, periodID int64, calc *CalculationResult, retro *RetroResult) (*Payout, error) {
	if e.writer == nil {
		return nil, generic.ErrStoreRequired
	}
	if calc == nil {
		return nil, &generic.ValidationError{Field: "calculation", Value: nil, Reason: "required"}
	}
	if periodID <= 0 {
		return nil, &generic.ValidationError{Field: "period_id", Value: periodID, Reason: "must be positive"}
	}
	payout := e.writer.BuildPayout(periodID, calc, retro)
	if err := e.writer.Save(ctx, payout); err != nil {
		return nil, err
	}
	e.logger.Info("payout saved",
		zap.Int64("period_id", periodID),
		zap.String("citizen_id", string(payout.CitizenID)),
		zap.String("calculated", payout.CalculatedAmount.StringFixed(2)),
		zap.String("retroactive", payout.RetroactiveAmount.StringFixed(2)),
		zap.Int("items", len(payout.Items)))
	return &payout, nil
}

// Recompute runs the whole pipeline for one citizen in a non-closed period
// that exists.
func (e *Engine) Recompute(ctx context.Context, citizenID CitizenID, year int, month time.Month) (*Payout, error) {
	if err := ValidateRequest(citizenID, year, month); err != nil {
		return nil, err
	}
	period, err := e.openPeriod(ctx, year, month, opRecompute)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound)
	}

	calc, err := e.calc.Calculate(ctx, citizenID, year, month)
	if err != nil {
		return nil, err
	}
	retro, err := e.retro.Reconcile(ctx, citizenID, year, month, e.lookBack)
	if err != nil {
		return nil, err
	}
	return e.SavePayout(ctx, period.ID, calc, retro)
}
