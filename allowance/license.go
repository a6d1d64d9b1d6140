package allowance

import (
	"strings"

	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// LICENSE TIMELINE
// =============================================================================

// DefaultLifetimeOccupations are occupation keywords whose license never
// lapses for allowance purposes.
var DefaultLifetimeOccupations = []string{
	"แพทย์",
	"ทันตแพทย์",
	"เภสัชกร",
	"physician",
	"dentist",
	"pharmacist",
}

// LicenseTimeline computes the days on which a required license was valid.
// Overlapping records are unioned, never summed.
type LicenseTimeline struct {
	// LifetimeKeywords are matched case-insensitively as substrings of the
	// occupation name.
	LifetimeKeywords []string
}

// NewLicenseTimeline uses DefaultLifetimeOccupations when keywords is empty.
func NewLicenseTimeline(keywords []string) *LicenseTimeline {
	if len(keywords) == 0 {
		keywords = DefaultLifetimeOccupations
	}
	return &LicenseTimeline{LifetimeKeywords: keywords}
}

// IsLifetime reports whether the occupation is exempt from expiry.
func (lt *LicenseTimeline) IsLifetime(occupation string) bool {
	name := strings.ToLower(strings.TrimSpace(occupation))
	if name == "" {
		return false
	}
	for _, kw := range lt.LifetimeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// ValidDays returns the valid-license days within month.
func (lt *LicenseTimeline) ValidDays(records []LicenseRecord, month generic.Period) generic.DaySet {
	days := make(generic.DaySet)
	for _, rec := range records {
		span, ok := lt.validSpan(rec, month)
		if !ok {
			continue
		}
		if p, ok := span.Intersect(month); ok {
			days.AddPeriod(p)
		}
	}
	return days
}

func (lt *LicenseTimeline) validSpan(rec LicenseRecord, month generic.Period) (generic.Period, bool) {
	openEnd := month.End
	if rec.ValidFrom.After(openEnd) {
		return generic.Period{}, false
	}
	if lt.IsLifetime(rec.OccupationName) {
		return generic.Period{Start: rec.ValidFrom, End: openEnd}, true
	}
	if rec.Status == LicenseRevoked || rec.Status == LicenseSuspended {
		return generic.Period{}, false
	}
	end := openEnd
	if rec.ValidUntil != nil {
		end = *rec.ValidUntil
	}
	if end.Before(rec.ValidFrom) {
		return generic.Period{}, false
	}
	return generic.Period{Start: rec.ValidFrom, End: end}, true
}
