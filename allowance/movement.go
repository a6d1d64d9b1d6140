/*
movement.go - Employment timeline from movement events

PURPOSE:
  Turns ENTRY / RESIGN / TRANSFER_OUT / STUDY ... events into the days of a
  month on which the citizen was employed and the days on which they were on
  study leave (a zero-pay state, not a deduction).

RULES:
  - No events: employed all month.
  - Before the first event the citizen is employed, unless that first event
    is an ENTRY (then they were not yet employed).
  - An exit's effective date is the first day NOT employed.
  - Same day: exits apply before entries, so RESIGN 01-15 + ENTRY 01-15
    leaves no gap.
  - STUDY runs from its date to the day before the next non-STUDY event.
  - Several ENTRY/RESIGN pairs in one month give several disjoint spans; the
    days are summed, never collapsed into one span.
*/
package allowance

import (
	"sort"

	"github.com/warp/allowance-engine/generic"
)

// MovementTimeline is the employment state of a citizen for one month.
type MovementTimeline struct {
	Month  generic.Period
	Active []generic.Period // employed spans, clipped to Month
	Study  []generic.Period // study spans, clipped to Month
}

// ActiveDays returns employed days in the month.
func (t MovementTimeline) ActiveDays() generic.DaySet {
	return generic.NewDaySet(t.Active...)
}

// StudyDays returns study-leave days in the month.
func (t MovementTimeline) StudyDays() generic.DaySet {
	return generic.NewDaySet(t.Study...)
}

// PayableDays are employed days that are not study days.
func (t MovementTimeline) PayableDays() generic.DaySet {
	return t.ActiveDays().Subtract(t.StudyDays())
}

// StudyCoversMonth is true when every day of the month is a study day.
func (t MovementTimeline) StudyCoversMonth() bool {
	return t.StudyDays().Len() == t.Month.Len()
}

// BuildMovementTimeline evaluates events for month.
func BuildMovementTimeline(events []MovementRecord, month generic.Period) MovementTimeline {
	sorted := sortMovements(events)
	timeline := MovementTimeline{Month: month}

	// Open-ended spans are represented with an End far past the month and
	// clipped at the end.
	farFuture := month.End.AddDays(1)
	farPast := month.Start.AddDays(-1)

	employed := len(sorted) == 0 || !sorted[0].Type.IsEntry()
	activeFrom := farPast
	studying := false
	var studyFrom generic.TimePoint

	closeActive := func(until generic.TimePoint) {
		if p, ok := (generic.Period{Start: activeFrom, End: until}).Intersect(month); ok {
			timeline.Active = appendMerged(timeline.Active, p)
		}
	}
	closeStudy := func(until generic.TimePoint) {
		if p, ok := (generic.Period{Start: studyFrom, End: until}).Intersect(month); ok {
			timeline.Study = appendMerged(timeline.Study, p)
		}
	}

	for _, ev := range sorted {
		if ev.EffectiveDate.After(month.End) {
			break
		}
		if studying && ev.Type != MovementStudy {
			closeStudy(ev.EffectiveDate.AddDays(-1))
			studying = false
		}
		switch {
		case ev.Type.IsExit():
			if employed {
				closeActive(ev.EffectiveDate.AddDays(-1))
				employed = false
			}
		case ev.Type.IsEntry():
			if !employed {
				activeFrom = ev.EffectiveDate
				employed = true
			}
		case ev.Type == MovementStudy:
			if !studying {
				studyFrom = ev.EffectiveDate
				studying = true
			}
		}
	}

	if employed {
		closeActive(farFuture)
	}
	if studying {
		closeStudy(farFuture)
	}
	return timeline
}

// sortMovements orders by date; on the same date exits come first, then
// entries, then study.
func sortMovements(events []MovementRecord) []MovementRecord {
	sorted := make([]MovementRecord, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return movementRank(a.Type) < movementRank(b.Type)
	})
	return sorted
}

func movementRank(t MovementType) int {
	switch {
	case t.IsExit():
		return 0
	case t.IsEntry():
		return 1
	default:
		return 2
	}
}

// appendMerged appends p, joining it to the previous span when adjacent.
func appendMerged(spans []generic.Period, p generic.Period) []generic.Period {
	if n := len(spans); n > 0 && !spans[n-1].End.AddDays(1).Before(p.Start) {
		if p.End.After(spans[n-1].End) {
			spans[n-1].End = p.End
		}
		return spans
	}
	return append(spans, p)
}
