package allowance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// RETROACTIVE RECONCILER
// =============================================================================

// DefaultLookBackMonths is how many prior months are reconciled.
const DefaultLookBackMonths = 6

// RetroactiveReconciler compares what was paid for each recent CLOSED month
// with what the current master data says should have been paid.
//
// paid = payout.CalculatedAmount + Σ ledger items for that month recorded on
// any other period's payout. Counting the ledger is what stops a correction
// paid in February from being proposed again in March.
type RetroactiveReconciler struct {
	calc    *MonthlyCalculator
	periods PeriodSource
	ledger  PayoutLedger
	logger  *zap.Logger
}

func NewRetroactiveReconciler(calc *MonthlyCalculator, periods PeriodSource, ledger PayoutLedger, logger *zap.Logger) *RetroactiveReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetroactiveReconciler{calc: calc, periods: periods, ledger: ledger, logger: logger}
}

// Reconcile walks the lookBack months before (year, month), oldest first.
func (r *RetroactiveReconciler) Reconcile(ctx context.Context, citizenID CitizenID, year int, month time.Month, lookBack int) (*RetroResult, error) {
	if lookBack <= 0 {
		lookBack = DefaultLookBackMonths
	}

	var currentPeriodID int64
	current, err := r.periods.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("load period %04d-%02d: %w", year, int(month), err)
	}
	if current != nil {
		currentPeriodID = current.ID
	}

	result := &RetroResult{CitizenID: citizenID, Year: year, Month: month, TotalRetro: decimal.Zero}
	for back := lookBack; back >= 1; back-- {
		y, m := generic.ShiftMonth(year, month, -back)
		detail, err := r.reconcileMonth(ctx, citizenID, y, m, currentPeriodID)
		if err != nil {
			return nil, err
		}
		if detail == nil {
			continue
		}
		result.Details = append(result.Details, *detail)
		result.TotalRetro = result.TotalRetro.Add(detail.Diff)
	}
	result.TotalRetro = generic.RoundMoney(result.TotalRetro)
	return result, nil
}

// reconcileMonth returns nil when the month is skipped or already correct.
func (r *RetroactiveReconciler) reconcileMonth(ctx context.Context, citizenID CitizenID, year int, month time.Month, currentPeriodID int64) (*RetroDetail, error) {
	period, err := r.periods.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("load period %04d-%02d: %w", year, int(month), err)
	}
	if period == nil || period.Status != PeriodClosed {
		return nil, nil
	}

	paid := decimal.Zero
	payout, err := r.ledger.GetPayout(ctx, period.ID, citizenID)
	if err != nil {
		return nil, fmt.Errorf("load payout %04d-%02d: %w", year, int(month), err)
	}
	if payout != nil {
		paid = payout.CalculatedAmount
	}
	items, err := r.ledger.ListAdjustments(ctx, citizenID, year, month, currentPeriodID)
	if err != nil {
		return nil, fmt.Errorf("load adjustments %04d-%02d: %w", year, int(month), err)
	}
	for _, item := range items {
		paid = paid.Add(item.Signed())
	}

	should, err := r.calc.Calculate(ctx, citizenID, year, month)
	if err != nil {
		return nil, fmt.Errorf("recalculate %04d-%02d: %w", year, int(month), err)
	}

	diff := generic.RoundMoney(should.NetPayment.Sub(paid))
	if diff.Abs().LessThanOrEqual(generic.MoneyTolerance) {
		return nil, nil
	}

	r.logger.Debug("retroactive difference",
		zap.String("citizen_id", string(citizenID)),
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.String("paid", paid.StringFixed(2)),
		zap.String("should_be", should.NetPayment.StringFixed(2)))

	return &RetroDetail{
		Year:       year,
		Month:      month,
		PaidAmount: paid,
		ShouldBe:   should.NetPayment,
		Diff:       diff,
		Remark:     retroRemark(year, month, diff),
	}, nil
}

func retroRemark(year int, month time.Month, diff decimal.Decimal) string {
	if diff.IsNegative() {
		return fmt.Sprintf("clawback %04d-%02d", year, int(month))
	}
	return fmt.Sprintf("arrears %04d-%02d", year, int(month))
}
