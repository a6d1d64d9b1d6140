/*
rules.go - Leave rules and quota defaults

PURPOSE:
  Each leave type carries a rule: how many days it may use before the
  allowance is deducted, in which unit those days are counted, and whether
  the limit is shared across the fiscal year or applies to each request.

DEFAULT RULES:
  sick        60  business days  cumulative   (quota row overrides)
  personal    45  business days  cumulative   (quota row overrides)
  vacation    --  business days  cumulative   (unlimited unless quota row)
  wife_help   15  business days  per event
  maternity   90  calendar days  per event
  ordination  60  calendar days  per event
  military    --  calendar days  per event    (unlimited)

QUOTA DEFAULTS:
  QuotaDefaults is applied only when the citizen has NO quota row for the
  fiscal year. When a row exists its values win, and a NULL column means
  "no cap" for that type.

SEE ALSO:
  - leave.go: applies the rules
  - factory/rules.go: JSON overrides
*/
package allowance

import (
	"github.com/shopspring/decimal"
	"github.com/warp/allowance-engine/generic"
)

// RuleKind says how the limit is consumed.
type RuleKind string

const (
	// RuleCumulative: usage accumulates across the fiscal year.
	RuleCumulative RuleKind = "cumulative"
	// RulePerEvent: each request is measured against the limit on its own.
	RulePerEvent RuleKind = "per_event"
)

// LeaveRule is the deduction rule for one leave type.
type LeaveRule struct {
	Limit *decimal.Decimal // nil = unlimited
	Unit  generic.Unit     // UnitBusinessDays or UnitCalendarDays
	Kind  RuleKind
}

// Unlimited reports whether the rule never deducts.
func (r LeaveRule) Unlimited() bool { return r.Limit == nil }

// WithLimit returns a copy of r with a different limit.
func (r LeaveRule) WithLimit(limit *decimal.Decimal) LeaveRule {
	r.Limit = limit
	return r
}

// RuleSet maps leave types to rules.
type RuleSet map[LeaveType]LeaveRule

// QuotaDefaults are the documented limits used when no quota row exists.
type QuotaDefaults struct {
	Sick     *decimal.Decimal
	Personal *decimal.Decimal
	Vacation *decimal.Decimal // nil = unlimited
	WifeHelp *decimal.Decimal
}

func days(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

// DefaultQuotaDefaults returns sick 60, personal 45, vacation unlimited,
// wife_help 15.
func DefaultQuotaDefaults() QuotaDefaults {
	return QuotaDefaults{
		Sick:     days(60),
		Personal: days(45),
		Vacation: nil,
		WifeHelp: days(15),
	}
}

// DefaultRules returns the static rule table.
func DefaultRules() RuleSet {
	d := DefaultQuotaDefaults()
	return RuleSet{
		LeaveSick:       {Limit: d.Sick, Unit: generic.UnitBusinessDays, Kind: RuleCumulative},
		LeavePersonal:   {Limit: d.Personal, Unit: generic.UnitBusinessDays, Kind: RuleCumulative},
		LeaveVacation:   {Limit: d.Vacation, Unit: generic.UnitBusinessDays, Kind: RuleCumulative},
		LeaveWifeHelp:   {Limit: d.WifeHelp, Unit: generic.UnitBusinessDays, Kind: RulePerEvent},
		LeaveMaternity:  {Limit: days(90), Unit: generic.UnitCalendarDays, Kind: RulePerEvent},
		LeaveOrdination: {Limit: days(60), Unit: generic.UnitCalendarDays, Kind: RulePerEvent},
		LeaveMilitary:   {Limit: nil, Unit: generic.UnitCalendarDays, Kind: RulePerEvent},
	}
}

// Clone returns an independent copy.
func (rs RuleSet) Clone() RuleSet {
	out := make(RuleSet, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

// Merge returns rs overlaid with overrides.
func (rs RuleSet) Merge(overrides RuleSet) RuleSet {
	out := rs.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Resolve returns the effective rule for a leave type in a fiscal year.
// quota is the citizen's row for that year, nil when none exists.
func (rs RuleSet) Resolve(leaveType LeaveType, quota *LeaveQuota, defaults QuotaDefaults) (LeaveRule, bool) {
	rule, ok := rs[leaveType]
	if !ok {
		return LeaveRule{}, false
	}
	if quota != nil {
		switch leaveType {
		case LeaveSick:
			return rule.WithLimit(quota.Sick), true
		case LeavePersonal:
			return rule.WithLimit(quota.Personal), true
		case LeaveVacation:
			return rule.WithLimit(quota.Vacation), true
		}
		return rule, true
	}
	switch leaveType {
	case LeaveSick:
		return rule.WithLimit(defaults.Sick), true
	case LeavePersonal:
		return rule.WithLimit(defaults.Personal), true
	case LeaveVacation:
		return rule.WithLimit(defaults.Vacation), true
	case LeaveWifeHelp:
		return rule.WithLimit(defaults.WifeHelp), true
	}
	return rule, true
}
