/*
cycle.go - Usage month to billing month arithmetic

PURPOSE:
  The core mapping of the engine: given the calendar month a purchase
  physically occurred in (the usage month) and a card policy, derive the
  month the card issuer will withdraw the money (the billing month), the
  period's closing date, and the concrete payment date.

THE OFFSET RULE:
  EndOfMonth closing   -> billing month = usage month + 1
  DayOfMonth(n) closing -> billing month = usage month + 2
  Second split installment -> one additional month on top of either.

  The offset is DERIVED from the closing rule on every call. The usage
  month is always the month the purchase occurred in; closing date and
  billing month are derived outward from it, never the reverse.
*/
package billing

import "time"

// =============================================================================
// SPLIT PART
// =============================================================================

// SplitPart identifies an installment of a two-part split payment.
type SplitPart int

const (
	SplitNone   SplitPart = 0
	SplitFirst  SplitPart = 1
	SplitSecond SplitPart = 2
)

// Valid reports whether the value is one of the three defined parts.
func (p SplitPart) Valid() bool { return p >= SplitNone && p <= SplitSecond }

// =============================================================================
// BILLING MONTH DERIVATION
// =============================================================================

// closingOffset is the number of months between the usage month and the
// billing month implied by the closing rule.
func closingOffset(rule ClosingRule) int {
	if rule.Type == ClosingDayOfMonth {
		return 2
	}
	return 1
}

// BillingMonth maps a usage month to the month the withdrawal occurs.
// For the second installment of a split payment, the result is one month
// after the first installment's billing month.
func BillingMonth(usage YearMonth, policy CardPolicy, part SplitPart) YearMonth {
	offset := closingOffset(policy.Closing)
	if part == SplitSecond {
		offset++
	}
	return usage.Add(offset)
}

// UsageMonthFor inverts BillingMonth for a first installment: the usage
// month whose normal (non-split) bill lands in the given billing month.
func UsageMonthFor(billing YearMonth, policy CardPolicy) YearMonth {
	return billing.Add(-closingOffset(policy.Closing))
}

// BillingMonthForCharge answers: if a recurring charge is incurred on
// chargeDay of the usage month, which billing month results?
//
// For DayOfMonth(n) policies the incurred day matters: a charge on or
// before day n is caught by the closing date that falls inside the usage
// month itself and bills one month out; a charge after day n rolls into
// the period closing on day n of the following month and bills two months
// out. For EndOfMonth policies the day never matters.
func BillingMonthForCharge(chargeDay int, usage YearMonth, policy CardPolicy) YearMonth {
	if policy.Closing.Type == ClosingDayOfMonth && chargeDay > policy.Closing.Day {
		return usage.Add(2)
	}
	return usage.Add(1)
}

// ClosingDate is the display closing date of a usage month's period:
// the usage month's last day for EndOfMonth, day n of the following month
// for DayOfMonth(n).
func ClosingDate(usage YearMonth, policy CardPolicy) time.Time {
	if policy.Closing.Type == ClosingDayOfMonth {
		return usage.Add(1).DateOn(policy.Closing.Day)
	}
	return usage.Last()
}

// PaymentDate is the concrete withdrawal date within a billing month:
// the policy's payment day clamped to the month, shifted forward to the
// next business day. The shift affects the displayed day only; the
// billing month itself never moves.
func PaymentDate(billing YearMonth, policy CardPolicy, cal HolidayCalendar) time.Time {
	return NextBusinessDay(billing.DateOn(policy.PaymentDay), cal)
}
