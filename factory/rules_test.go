package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/factory"
	"github.com/warp/allowance-engine/generic"
)

func TestParseRules_OverridesMergeWithDefaults(t *testing.T) {
	f := factory.NewRulesFactory()

	rules, defaults, err := f.ParseRules(`{
		"rules": {
			"ordination": {"limit": 120, "unit": "calendar_days", "kind": "per_event"},
			"military":   {"limit": 30}
		}
	}`)

	require.NoError(t, err)
	assert.Nil(t, defaults, "no quota_defaults object")

	ord := rules[allowance.LeaveOrdination]
	require.NotNil(t, ord.Limit)
	assert.Equal(t, "120", ord.Limit.String())
	assert.Equal(t, generic.UnitCalendarDays, ord.Unit)
	assert.Equal(t, allowance.RulePerEvent, ord.Kind)

	mil := rules[allowance.LeaveMilitary]
	require.NotNil(t, mil.Limit)
	assert.Equal(t, generic.UnitBusinessDays, mil.Unit, "unit defaults to business days")
	assert.Equal(t, allowance.RuleCumulative, mil.Kind)

	// untouched types keep the built-in rule
	assert.Equal(t, allowance.DefaultRules()[allowance.LeaveMaternity], rules[allowance.LeaveMaternity])
}

func TestParseRules_NoLimitIsUnlimited(t *testing.T) {
	rules, _, err := factory.NewRulesFactory().ParseRules(`{"rules": {"sick": {"unit": "business_days"}}}`)

	require.NoError(t, err)
	assert.True(t, rules[allowance.LeaveSick].Unlimited())
}

func TestParseRules_QuotaDefaults(t *testing.T) {
	_, defaults, err := factory.NewRulesFactory().ParseRules(`{
		"rules": {},
		"quota_defaults": {"sick": 30, "wife_help": "10"}
	}`)

	require.NoError(t, err)
	require.NotNil(t, defaults)
	require.NotNil(t, defaults.Sick)
	assert.Equal(t, "30", defaults.Sick.String())
	require.NotNil(t, defaults.WifeHelp)
	assert.Equal(t, "10", defaults.WifeHelp.String())
	assert.Nil(t, defaults.Personal)
	assert.Nil(t, defaults.Vacation)
}

func TestParseRules_Rejects(t *testing.T) {
	f := factory.NewRulesFactory()

	cases := map[string]string{
		"bad json":         `{"rules": `,
		"unknown unit":     `{"rules": {"sick": {"unit": "hours"}}}`,
		"money unit":       `{"rules": {"sick": {"unit": "baht"}}}`,
		"unknown kind":     `{"rules": {"sick": {"kind": "monthly"}}}`,
		"negative limit":   `{"rules": {"sick": {"limit": -1}}}`,
		"negative default": `{"rules": {}, "quota_defaults": {"personal": -5}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.ParseRules(doc)
			assert.Error(t, err)
		})
	}

	_, _, err := f.ParseRules(`{"rules": {"sick": {"unit": "hours"}}}`)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rules": {"vacation": {"limit": 10}}}`), 0o600))

	rules, _, err := factory.NewRulesFactory().LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, rules[allowance.LeaveVacation].Limit)
	assert.Equal(t, "10", rules[allowance.LeaveVacation].Limit.String())

	_, _, err = factory.NewRulesFactory().LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestToJSON_RoundTripsThroughParse(t *testing.T) {
	f := factory.NewRulesFactory()
	doc := f.ToJSON(allowance.DefaultRules(), allowance.DefaultQuotaDefaults())

	rules, defaults, err := f.FromJSON(doc)

	require.NoError(t, err)
	assert.Equal(t, allowance.DefaultRules(), rules)
	require.NotNil(t, defaults)
	assert.Equal(t, "60", defaults.Sick.String())
}
