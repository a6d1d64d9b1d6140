/*
runner.go - Period-wide runs and the background scheduler

PURPOSE:
  Two ways to recompute many citizens:

    RunPeriod      - one lock on the period row for the whole loop. The
                     first failure stops the run; committed payouts stay.
    RecomputeEach  - no period lock, one transaction per citizen. Failures
                     are reported per citizen and never retried.

  Scheduler ticks on an interval and calls RunPeriod for every OPEN period
  it is told about, the way a payroll office re-runs the current month as
  master data changes.

SEE ALSO:
  - engine.go: Recompute
  - api/handlers.go: manual trigger
*/
package allowance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/allowance-engine/generic"
)

// Outcome is the result of recomputing one citizen.
type Outcome struct {
	CitizenID CitizenID
	Payout    *Payout
	Err       error
}

// OK reports whether the citizen was recomputed.
func (o Outcome) OK() bool { return o.Err == nil }

// RunReport summarises a period run.
type RunReport struct {
	Year      int
	Month     time.Month
	PeriodID  int64
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	// NotReached lists the citizens a stopped run never recomputed. Their
	// payouts still hold the previous run's figures.
	NotReached []CitizenID
	StartedAt  time.Time
	Duration   time.Duration
}

func (r *RunReport) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.OK() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// PeriodRunner drives Engine.Recompute over a set of citizens.
type PeriodRunner struct {
	engine   *Engine
	periods  PeriodSource
	citizens CitizenLister
	locker   PeriodLocker
	logger   *zap.Logger
}

// NewPeriodRunner builds a runner. locker may be nil, in which case
// RunPeriod runs without a period lock.
func NewPeriodRunner(engine *Engine, periods PeriodSource, citizens CitizenLister, locker PeriodLocker, logger *zap.Logger) *PeriodRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodRunner{
		engine:   engine,
		periods:  periods,
		citizens: citizens,
		locker:   locker,
		logger:   logger,
	}
}

func (pr *PeriodRunner) runnablePeriod(ctx context.Context, year int, month time.Month) (*PayPeriod, error) {
	if month < time.January || month > time.December {
		return nil, &generic.ValidationError{Field: "month", Value: int(month), Reason: "must be between 1 and 12"}
	}
	period, err := pr.periods.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("load period %04d-%02d: %w", year, int(month), err)
	}
	if period == nil {
		return nil, fmt.Errorf("%04d-%02d: %w", year, int(month), generic.ErrPeriodNotFound)
	}
	if period.Status == PeriodClosed {
		return nil, &generic.StateConflictError{Year: year, Month: int(month), Status: string(period.Status), Op: "run"}
	}
	return period, nil
}

// RunPeriod recomputes every citizen eligible in the month under one
// period lock.
//
// Each citizen's payout is committed on its own. The run stops at the first
// failure, so a failed run leaves the period partly recomputed: the report
// lists who succeeded, who failed and who was not reached. Rerunning the
// period is safe since every payout is replaced.
func (pr *PeriodRunner) RunPeriod(ctx context.Context, year int, month time.Month) (*RunReport, error) {
	period, err := pr.runnablePeriod(ctx, year, month)
	if err != nil {
		return nil, err
	}
	report := &RunReport{Year: year, Month: month, PeriodID: period.ID, StartedAt: time.Now()}

	run := func(ctx context.Context) error {
		monthPeriod := generic.MonthPeriod(year, month)
		ids, err := pr.citizens.ListEligibleCitizens(ctx, monthPeriod.Start, monthPeriod.End)
		if err != nil {
			return fmt.Errorf("list citizens: %w", err)
		}
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				report.NotReached = append(report.NotReached, ids[i:]...)
				return err
			}
			payout, err := pr.engine.Recompute(ctx, id, year, month)
			report.record(Outcome{CitizenID: id, Payout: payout, Err: err})
			if err != nil {
				report.NotReached = append(report.NotReached, ids[i+1:]...)
				return fmt.Errorf("citizen %s: %w", id, err)
			}
		}
		return nil
	}

	if pr.locker != nil {
		err = pr.locker.WithPeriodLock(ctx, period.ID, run)
	} else {
		err = run(ctx)
	}
	report.Duration = time.Since(report.StartedAt)

	pr.logger.Info("period run finished",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("not_reached", len(report.NotReached)),
		zap.Duration("duration", report.Duration),
		zap.Error(err))
	return report, err
}

// RecomputeEach recomputes the given citizens independently. It only
// returns an error when the period itself cannot be run.
func (pr *PeriodRunner) RecomputeEach(ctx context.Context, year int, month time.Month, ids []CitizenID) (*RunReport, error) {
	period, err := pr.runnablePeriod(ctx, year, month)
	if err != nil {
		return nil, err
	}
	report := &RunReport{Year: year, Month: month, PeriodID: period.ID, StartedAt: time.Now()}
	for _, id := range ids {
		payout, err := pr.engine.Recompute(ctx, id, year, month)
		if err != nil {
			pr.logger.Warn("recompute failed",
				zap.String("citizen_id", string(id)),
				zap.Int("year", year),
				zap.Int("month", int(month)),
				zap.Error(err))
		}
		report.record(Outcome{CitizenID: id, Payout: payout, Err: err})
	}
	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// OpenPeriodLister lists periods the scheduler should run.
type OpenPeriodLister interface {
	ListOpenPeriods(ctx context.Context) ([]PayPeriod, error)
}

// Scheduler re-runs open periods on an interval.
type Scheduler struct {
	Runner        *PeriodRunner
	Periods       OpenPeriodLister
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with a one hour interval.
func NewScheduler(runner *PeriodRunner, periods OpenPeriodLister, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Runner:        runner,
		Periods:       periods,
		CheckInterval: time.Hour,
		Enabled:       true,
		Logger:        logger,
	}
}

// Start begins the background loop. It runs once immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the loop and waits for an in-flight run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow runs every open period once and returns the reports.
func (s *Scheduler) RunNow(ctx context.Context) []*RunReport {
	periods, err := s.Periods.ListOpenPeriods(ctx)
	if err != nil {
		s.Logger.Error("list open periods", zap.Error(err))
		return nil
	}

	var reports []*RunReport
	for _, p := range periods {
		report, err := s.Runner.RunPeriod(ctx, p.Year, p.Month)
		if err != nil && !errors.Is(err, generic.ErrPeriodClosed) {
			s.Logger.Error("scheduled run failed",
				zap.Int("year", p.Year),
				zap.Int("month", int(p.Month)),
				zap.Error(err))
		}
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports
}
