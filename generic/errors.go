/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - Bad year/month/citizen before any computation
  2. State conflicts - Direct recompute of a CLOSED period
  3. Invariant violations - Arithmetic that would produce a negative payment
  4. Store errors - Collaborator failures, always propagated (fail closed)

USAGE:
    if errors.Is(err, generic.ErrPeriodClosed) {
        // only the retroactive path may read this month
    }

SEE ALSO:
  - allowance/engine.go: Raises these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for a missing or malformed year, month or citizen id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPeriodClosed is returned when a direct recompute targets a CLOSED period.
	ErrPeriodClosed = errors.New("period is closed")

	// ErrInvariantViolation marks arithmetic that broke an engine invariant.
	ErrInvariantViolation = errors.New("arithmetic invariant violated")

	// ErrPeriodNotFound is returned when an operation requires a period row.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrAmbiguousEligibility is returned when two eligibility records for a
	// citizen share an effective date and both could apply.
	ErrAmbiguousEligibility = errors.New("ambiguous eligibility: duplicate effective date")

	// ErrStoreRequired is returned when an operation requires a specific store capability.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StateConflictError is returned when a period's status forbids the operation.
type StateConflictError struct {
	Year   int
	Month  int
	Status string
	Op     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %04d-%02d: period status is %s", e.Op, e.Year, e.Month, e.Status)
}

func (e *StateConflictError) Unwrap() error {
	return ErrPeriodClosed
}

// InvariantViolation records why a result was clamped and needs manual review.
// It is attached to results, not returned as an error.
type InvariantViolation struct {
	Code         string // "negative_eligible_days", "deducted_exceeds_eligible", "negative_payment"
	EligibleDays decimal.Decimal
	DeductedDays decimal.Decimal
	Raw          decimal.Decimal // payment before clamping
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: eligible %s, deducted %s, raw payment %s",
		e.Code, e.EligibleDays, e.DeductedDays, e.Raw)
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// AmbiguousEligibilityError names the conflicting effective date.
type AmbiguousEligibilityError struct {
	CitizenID     string
	EffectiveDate TimePoint
}

func (e *AmbiguousEligibilityError) Error() string {
	return fmt.Sprintf("citizen %s has more than one eligibility effective %s", e.CitizenID, e.EffectiveDate)
}

func (e *AmbiguousEligibilityError) Unwrap() error {
	return ErrAmbiguousEligibility
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the request conflicts with stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrAmbiguousEligibility)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPeriodNotFound)
}
