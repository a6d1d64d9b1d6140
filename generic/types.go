/*
Package generic provides the domain-agnostic building blocks of the allowance
engine.

PURPOSE:
  Calendar math, interval algebra and precise quantities that know nothing
  about pay rates, licenses or leave. The allowance package composes them
  into the monthly calculation and the retroactive reconciliation.

KEY CONCEPTS:
  - TimePoint: A calendar day (timezone-naive)
  - Period: An inclusive day range; fiscal-year configuration
  - DaySet / DayWeights: Union/intersection of days, per-day weights
  - Unit: What a leave limit counts (business or calendar days)
  - Errors: Sentinels + structured errors shared by every layer

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every quantity, rounding happens once
  2. Purity: nothing in this package performs I/O
  3. Type Safety: named units keep calendar and business day rules apart

SEE ALSO:
  - time.go: CalendarMath
  - dayset.go: set algebra
  - errors.go: error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// UNITS
// =============================================================================

// Unit names what a leave limit counts.
type Unit string

const (
	UnitBusinessDays Unit = "business_days"
	UnitCalendarDays Unit = "calendar_days"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitBusinessDays, UnitCalendarDays:
		return true
	}
	return false
}

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places payments are rounded to.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to satang.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MoneyTolerance is the smallest difference treated as a real correction.
var MoneyTolerance = decimal.New(1, -MoneyPlaces)
