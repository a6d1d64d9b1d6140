package allowance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// PAYOUT WRITER
// =============================================================================

// PayoutWriter replaces the payout of one (period, citizen) and its ledger
// items as a single transaction.
type PayoutWriter struct {
	tx    TxStore
	now   func() time.Time
	newID func() string
}

func NewPayoutWriter(tx TxStore) *PayoutWriter {
	return &PayoutWriter{
		tx:    tx,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// BuildPayout assembles the row to persist. retro may be nil.
func (w *PayoutWriter) BuildPayout(periodID int64, calc *CalculationResult, retro *RetroResult) Payout {
	payoutID := w.newID()
	retroAmount := decimal.Zero
	var items []PayoutItem
	if retro != nil {
		retroAmount = retro.TotalRetro
		for _, d := range retro.Details {
			item := PayoutItem{
				ID:             w.newID(),
				PayoutID:       payoutID,
				ReferenceYear:  d.Year,
				ReferenceMonth: d.Month,
				ItemType:       ItemRetroactiveAdd,
				Amount:         d.Diff,
				Remark:         d.Remark,
			}
			if d.Diff.IsNegative() {
				item.ItemType = ItemRetroactiveDeduct
				item.Amount = d.Diff.Abs()
			}
			items = append(items, item)
		}
	}

	return Payout{
		ID:                payoutID,
		PeriodID:          periodID,
		CitizenID:         calc.CitizenID,
		MasterRateID:      calc.MasterRateID,
		RateSnapshot:      calc.RateSnapshot,
		CalculatedAmount:  calc.NetPayment,
		RetroactiveAmount: retroAmount,
		TotalPayable:      generic.RoundMoney(calc.NetPayment.Add(retroAmount)),
		EligibleDays:      calc.EligibleDays,
		DeductedDays:      calc.DeductedDays,
		Remark:            calc.Remark,
		Items:             items,
		CreatedAt:         w.now().UTC(),
	}
}

// Save deletes the existing payout and inserts the new one atomically.
func (w *PayoutWriter) Save(ctx context.Context, payout Payout) error {
	return w.tx.WithTx(ctx, func(s PayoutStore) error {
		if err := s.DeletePayout(ctx, payout.PeriodID, payout.CitizenID); err != nil {
			return fmt.Errorf("delete payout: %w", err)
		}
		if err := s.InsertPayout(ctx, payout); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
		return nil
	})
}
