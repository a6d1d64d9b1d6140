/*
Package factory provides JSON to Go leave-rule conversion.

PURPOSE:
  Converts JSON leave-rule definitions into an allowance.RuleSet and
  QuotaDefaults. HR can change a limit or a counting unit by editing the
  rules file the server loads at start-up, without a release.

JSON SCHEMA:
  {
    "rules": {
      "sick":       {"limit": 60, "unit": "business_days", "kind": "cumulative"},
      "ordination": {"limit": 120, "unit": "calendar_days", "kind": "per_event"},
      "military":   {"unit": "calendar_days", "kind": "per_event"}
    },
    "quota_defaults": {
      "sick": 60,
      "personal": 45,
      "wife_help": 15
    }
  }

  A rule without "limit" is unlimited. Types not listed keep the built-in
  rule (allowance.DefaultRules). Quota defaults not listed are unlimited
  when a "quota_defaults" object is present at all.

USAGE:
  f := factory.NewRulesFactory()
  rules, defaults, err := f.ParseRules(jsonString)

  engine := allowance.NewEngineFromStore(store, allowance.Options{
      Rules:         rules,
      QuotaDefaults: defaults,
  })

SEE ALSO:
  - allowance/rules.go: RuleSet and the built-in defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the JSON document of a rules file.
type RulesJSON struct {
	Rules         map[string]RuleJSON `json:"rules"`
	QuotaDefaults *QuotaDefaultsJSON  `json:"quota_defaults,omitempty"`
}

// RuleJSON is one leave type's rule.
type RuleJSON struct {
	Limit *decimal.Decimal `json:"limit,omitempty"`
	Unit  string           `json:"unit"`
	Kind  string           `json:"kind"`
}

// QuotaDefaultsJSON holds the limits used when a citizen has no quota row.
type QuotaDefaultsJSON struct {
	Sick     *decimal.Decimal `json:"sick,omitempty"`
	Personal *decimal.Decimal `json:"personal,omitempty"`
	Vacation *decimal.Decimal `json:"vacation,omitempty"`
	WifeHelp *decimal.Decimal `json:"wife_help,omitempty"`
}

// =============================================================================
// RULES FACTORY
// =============================================================================

// RulesFactory converts JSON rule documents to Go structs.
type RulesFactory struct{}

func NewRulesFactory() *RulesFactory {
	return &RulesFactory{}
}

// ParseRules parses a JSON string. The returned RuleSet is the built-in
// rules merged with the overrides; defaults is nil when the document has no
// quota_defaults object.
func (f *RulesFactory) ParseRules(jsonStr string) (allowance.RuleSet, *allowance.QuotaDefaults, error) {
	var doc RulesJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSON(doc)
}

// LoadFile reads and parses a rules file.
func (f *RulesFactory) LoadFile(path string) (allowance.RuleSet, *allowance.QuotaDefaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules file: %w", err)
	}
	return f.ParseRules(string(raw))
}

// FromJSON converts a RulesJSON document.
func (f *RulesFactory) FromJSON(doc RulesJSON) (allowance.RuleSet, *allowance.QuotaDefaults, error) {
	overrides := allowance.RuleSet{}
	for name, rj := range doc.Rules {
		rule, err := parseRule(name, rj)
		if err != nil {
			return nil, nil, err
		}
		overrides[allowance.LeaveType(name)] = rule
	}

	var defaults *allowance.QuotaDefaults
	if qd := doc.QuotaDefaults; qd != nil {
		for field, v := range map[string]*decimal.Decimal{
			"sick": qd.Sick, "personal": qd.Personal, "vacation": qd.Vacation, "wife_help": qd.WifeHelp,
		} {
			if v != nil && v.IsNegative() {
				return nil, nil, &generic.ValidationError{Field: "quota_defaults." + field, Value: v.String(), Reason: "must not be negative"}
			}
		}
		defaults = &allowance.QuotaDefaults{
			Sick:     qd.Sick,
			Personal: qd.Personal,
			Vacation: qd.Vacation,
			WifeHelp: qd.WifeHelp,
		}
	}

	return allowance.DefaultRules().Merge(overrides), defaults, nil
}

// ToJSON converts a RuleSet back to its JSON form, for the API.
func (f *RulesFactory) ToJSON(rules allowance.RuleSet, defaults allowance.QuotaDefaults) RulesJSON {
	doc := RulesJSON{
		Rules: make(map[string]RuleJSON, len(rules)),
		QuotaDefaults: &QuotaDefaultsJSON{
			Sick:     defaults.Sick,
			Personal: defaults.Personal,
			Vacation: defaults.Vacation,
			WifeHelp: defaults.WifeHelp,
		},
	}
	for t, r := range rules {
		doc.Rules[string(t)] = RuleJSON{Limit: r.Limit, Unit: string(r.Unit), Kind: string(r.Kind)}
	}
	return doc
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRule(name string, rj RuleJSON) (allowance.LeaveRule, error) {
	unit, err := parseUnit(rj.Unit)
	if err != nil {
		return allowance.LeaveRule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	kind, err := parseKind(rj.Kind)
	if err != nil {
		return allowance.LeaveRule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	if rj.Limit != nil && rj.Limit.IsNegative() {
		return allowance.LeaveRule{}, &generic.ValidationError{Field: "rules." + name + ".limit", Value: rj.Limit.String(), Reason: "must not be negative"}
	}
	return allowance.LeaveRule{Limit: rj.Limit, Unit: unit, Kind: kind}, nil
}

func parseUnit(s string) (generic.Unit, error) {
	if s == "" {
		return generic.UnitBusinessDays, nil
	}
	if u := generic.Unit(s); u.Valid() {
		return u, nil
	}
	return "", &generic.ValidationError{Field: "unit", Value: s, Reason: "must be business_days or calendar_days"}
}

func parseKind(s string) (allowance.RuleKind, error) {
	switch s {
	case "", "cumulative":
		return allowance.RuleCumulative, nil
	case "per_event":
		return allowance.RulePerEvent, nil
	default:
		return "", &generic.ValidationError{Field: "kind", Value: s, Reason: "must be cumulative or per_event"}
	}
}
