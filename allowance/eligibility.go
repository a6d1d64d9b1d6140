package allowance

import (
	"sort"

	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// ELIGIBILITY RESOLVER - Which master rate applies on a day
// =============================================================================

// EligibilityResolver picks, for each day, the active record with the latest
// effective date that has not expired. Records are never deleted, so the
// same history answers for any past month.
type EligibilityResolver struct {
	records []EligibilityRecord
}

// NewEligibilityResolver sorts records by effective date, latest first.
func NewEligibilityResolver(records []EligibilityRecord) *EligibilityResolver {
	sorted := make([]EligibilityRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveDate.After(sorted[j].EffectiveDate)
	})
	return &EligibilityResolver{records: sorted}
}

// RateOn returns the record in force on day, nil when there is none.
// Two applicable records with the same effective date are reported as
// AmbiguousEligibilityError rather than guessed.
func (r *EligibilityResolver) RateOn(day generic.TimePoint) (*EligibilityRecord, error) {
	for i, rec := range r.records {
		if !rec.AppliesOn(day) {
			continue
		}
		for _, other := range r.records[i+1:] {
			if !other.EffectiveDate.Equal(rec.EffectiveDate) {
				break
			}
			if other.AppliesOn(day) && other.MasterRateID != rec.MasterRateID {
				return nil, &generic.AmbiguousEligibilityError{
					CitizenID:     string(rec.CitizenID),
					EffectiveDate: rec.EffectiveDate,
				}
			}
		}
		found := rec
		return &found, nil
	}
	return nil, nil
}

// Segments splits period into contiguous runs of days under the same record.
// Days without an applicable record belong to no segment.
func (r *EligibilityResolver) Segments(period generic.Period) ([]RateSegment, error) {
	var segments []RateSegment
	for day := period.Start; day.BeforeOrEqual(period.End); day = day.AddDays(1) {
		rec, err := r.RateOn(day)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if n := len(segments); n > 0 {
			last := &segments[n-1]
			if last.Record.ID == rec.ID && last.Period.End.AddDays(1).Equal(day) {
				last.Period.End = day
				continue
			}
		}
		segments = append(segments, RateSegment{Record: *rec, Period: generic.Period{Start: day, End: day}})
	}
	return segments, nil
}
