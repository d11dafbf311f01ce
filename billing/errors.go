/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The domain layer (estimate) and the API layer classify errors with the
  helpers at the bottom rather than matching concrete types.

ERROR CATEGORIES:
  1. Validation errors - user-correctable, no partial write
  2. Referential errors - an identifying key no longer resolves
  3. Conflict signals - expected outcomes of idempotent writes

USAGE:
  if errors.Is(err, billing.ErrBonusOutsideWindow) {
      // surface the gap bounds to the user
  }
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAmountRequired is returned when a purchase carries neither a base
	// amount nor a foreign-currency amount.
	ErrAmountRequired = errors.New("amount required")

	// ErrSplitAndBonus is returned when a purchase requests the split and
	// bonus plans at once. They are mutually exclusive.
	ErrSplitAndBonus = errors.New("split and bonus payment are mutually exclusive")

	// ErrSplitNotSupported is returned for a split request on a card whose
	// policy does not allow split payments.
	ErrSplitNotSupported = errors.New("card does not support split payment")

	// ErrBonusNotSupported is returned for a bonus request on a card whose
	// policy does not allow bonus payments.
	ErrBonusNotSupported = errors.New("card does not support bonus payment")

	// ErrBonusOutsideWindow is returned when a bonus purchase date falls in
	// one of the two ineligible gaps between the bonus windows.
	ErrBonusOutsideWindow = errors.New("purchase date outside bonus payment windows")

	// ErrPurchaseDateRequired is returned for a bonus purchase without a
	// purchase date.
	ErrPurchaseDateRequired = errors.New("purchase date required for bonus payment")

	// ErrSplitCardChange is returned when an edit tries to move one
	// installment of a split pair to a different card.
	ErrSplitCardChange = errors.New("cannot change card of a split payment")

	// ErrInvalidClosingRule is returned for a malformed closing rule.
	ErrInvalidClosingRule = errors.New("invalid closing rule")

	// ErrInvalidPolicy is returned for a malformed card policy.
	ErrInvalidPolicy = errors.New("invalid card policy")

	// ErrPolicyNotFound is returned when a card key resolves to no active
	// policy.
	ErrPolicyNotFound = errors.New("card policy not found")

	// ErrPurchaseNotFound is returned when a purchase id no longer resolves.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrTemplateNotFound is returned when a recurring-charge template key
	// no longer resolves to a live template.
	ErrTemplateNotFound = errors.New("recurring charge template not found")

	// ErrSnapshotNotFound is returned when no snapshot exists for a
	// (template, usage month) pair.
	ErrSnapshotNotFound = errors.New("recurring charge snapshot not found")

	// ErrSnapshotExists is returned by stores when creating a snapshot that
	// already exists for its (template, usage month) pair. Callers treat it
	// as "already materialized, proceed with the existing row".
	ErrSnapshotExists = errors.New("snapshot already materialized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IneligibleBonusDateError reports a bonus purchase date inside one of the
// two gaps, with the gap's bounds for user-facing messages.
type IneligibleBonusDateError struct {
	Date     time.Time
	GapStart time.Time
	GapEnd   time.Time
}

func (e *IneligibleBonusDateError) Error() string {
	return fmt.Sprintf("purchase date %s falls in the ineligible gap %s to %s",
		e.Date.Format("2006-01-02"), e.GapStart.Format("01-02"), e.GapEnd.Format("01-02"))
}

func (e *IneligibleBonusDateError) Unwrap() error { return ErrBonusOutsideWindow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAmountRequired) ||
		errors.Is(err, ErrSplitAndBonus) ||
		errors.Is(err, ErrSplitNotSupported) ||
		errors.Is(err, ErrBonusNotSupported) ||
		errors.Is(err, ErrBonusOutsideWindow) ||
		errors.Is(err, ErrPurchaseDateRequired) ||
		errors.Is(err, ErrSplitCardChange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}
