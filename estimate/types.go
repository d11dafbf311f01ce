/*
types.go - Domain records of the estimate layer

PURPOSE:
  The billing package computes WHERE money lands; this package tracks
  WHAT money: one-off card purchases, recurring charge templates, and the
  per-month snapshots that freeze a template's values once a month has
  been looked at.

KEY CONCEPTS:
  - Purchase: a single card entry. A split purchase is stored as TWO
    purchase rows sharing a SplitGroup id, one per installment.
  - RecurringTemplate: the current intent of a recurring charge ("gym,
    4800 on card X, day 27").
  - RecurringSnapshot: the frozen value of one template for one usage
    month. Snapshots exist only for months that have been materialized;
    until then the template's current values apply implicitly.

SEE ALSO:
  - snapshot.go: the materialization and propagation rules
  - aggregate.go: how both record kinds roll up into monthly estimates
*/
package estimate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// IDS
// =============================================================================

type (
	PurchaseID string
	TemplateID string

	// SplitGroupID ties the two installment rows of one split purchase
	// together. Empty for non-split purchases.
	SplitGroupID string
)

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase is one card entry. Amounts are integer base-currency units.
type Purchase struct {
	ID      PurchaseID
	CardKey billing.CardKey

	// Amount is this row's billed amount. For a split purchase it is the
	// installment amount, not the purchase total.
	Amount int64

	// AmountUSD is set when the entry was captured in USD and converted;
	// Amount then holds the converted value.
	AmountUSD *decimal.Decimal

	// PurchaseDate is the day the purchase occurred. Required for bonus
	// purchases, optional otherwise (the usage month alone suffices).
	PurchaseDate *time.Time

	// UsageMonth is the calendar month the purchase belongs to.
	UsageMonth billing.YearMonth

	// BillingMonth and PaymentDate are derived from the card policy at
	// write time and recomputed on every edit.
	BillingMonth billing.YearMonth
	PaymentDate  *time.Time

	IsSplit   bool
	IsBonus   bool
	SplitPart billing.SplitPart

	// SplitGroup is set on both rows of a split pair.
	SplitGroup SplitGroupID

	Memo string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sibling part of a split purchase row.
func (p Purchase) SiblingPart() billing.SplitPart {
	if p.SplitPart == billing.SplitFirst {
		return billing.SplitSecond
	}
	return billing.SplitFirst
}

// =============================================================================
// RECURRING TEMPLATE
// =============================================================================

// RecurringTemplate is the current definition of a recurring charge.
type RecurringTemplate struct {
	ID    TemplateID
	Label string

	CardKey billing.CardKey
	Amount  int64

	// PaymentDay is the day of the usage month the charge is incurred on,
	// clamped to the month's length. It drives the billing month through
	// the card's closing rule.
	PaymentDay int

	// OddMonthsOnly restricts the charge to odd calendar months
	// (January, March, ...). Bi-monthly subscriptions use this.
	OddMonthsOnly bool

	// IsSplit recurring charges materialize as split snapshots: each
	// month's charge fans out into two installments.
	IsSplit bool

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppliesTo reports whether the template produces a charge in the given
// usage month.
func (t RecurringTemplate) AppliesTo(ym billing.YearMonth) bool {
	if t.OddMonthsOnly {
		return ym.IsOdd()
	}
	return true
}

// ChargeDate is the concrete day the template's charge is incurred in a
// usage month.
func (t RecurringTemplate) ChargeDate(ym billing.YearMonth) time.Time {
	return ym.DateOn(t.PaymentDay)
}

// =============================================================================
// RECURRING SNAPSHOT
// =============================================================================

// RecurringSnapshot freezes one template's values for one usage month.
// The (TemplateID, UsageMonth) pair is unique.
type RecurringSnapshot struct {
	TemplateID TemplateID
	UsageMonth billing.YearMonth

	// Frozen values. They start as copies of the template and diverge only
	// through explicit per-month edits.
	Amount  int64
	CardKey billing.CardKey
	IsSplit bool

	// PurchaseDate overrides the template's charge day for this month,
	// when set.
	PurchaseDate *time.Time

	// Modified marks a snapshot the user edited for this month. Modified
	// snapshots are exempt from template-edit propagation, and a modified
	// snapshot with Amount == 0 means "skipped this month".
	Modified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Skipped reports whether this snapshot suppresses the charge for its
// month entirely.
func (s RecurringSnapshot) Skipped() bool {
	return s.Modified && s.Amount == 0
}

// matchesTemplateValues reports whether the snapshot still carries the
// given template values unchanged. Template-edit propagation only touches
// snapshots for which this holds against the PRE-edit template.
func (s RecurringSnapshot) matchesTemplateValues(amount int64, card billing.CardKey, split bool) bool {
	return s.Amount == amount && s.CardKey == card && s.IsSplit == split
}
