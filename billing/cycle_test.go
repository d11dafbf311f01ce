package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// TEST POLICIES
// =============================================================================

func dayFiveCard() billing.CardPolicy {
	return billing.CardPolicy{
		Key:         "transit",
		Title:       "Transit Card",
		Closing:     billing.DayOfMonth(5),
		PaymentDay:  4,
		AllowsSplit: true,
		AllowsBonus: true,
		Active:      true,
	}
}

func monthEndCard() billing.CardPolicy {
	return billing.CardPolicy{
		Key:         "everyday",
		Title:       "Everyday Card",
		Closing:     billing.EndOfMonth(),
		PaymentDay:  27,
		AllowsSplit: true,
		Active:      true,
	}
}

func ym(s string) billing.YearMonth { return billing.MustYearMonth(s) }

// =============================================================================
// BILLING MONTH
// =============================================================================

func TestBillingMonth_EndOfMonthClosing_BillsNextMonth(t *testing.T) {
	card := monthEndCard()

	tests := []struct {
		usage, want string
	}{
		{"2025-01", "2025-02"},
		{"2025-06", "2025-07"},
		{"2025-11", "2025-12"},
		{"2025-12", "2026-01"}, // year rollover
	}
	for _, tc := range tests {
		got := billing.BillingMonth(ym(tc.usage), card, billing.SplitNone)
		assert.Equal(t, ym(tc.want), got, "usage %s", tc.usage)
	}
}

func TestBillingMonth_DayOfMonthClosing_BillsMonthAfterNext(t *testing.T) {
	card := dayFiveCard()

	tests := []struct {
		usage, want string
	}{
		{"2025-01", "2025-03"},
		{"2025-10", "2025-12"},
		{"2025-11", "2026-01"}, // year rollover
		{"2025-12", "2026-02"},
	}
	for _, tc := range tests {
		got := billing.BillingMonth(ym(tc.usage), card, billing.SplitNone)
		assert.Equal(t, ym(tc.want), got, "usage %s", tc.usage)
	}
}

func TestBillingMonth_SecondInstallment_AlwaysOneMonthAfterFirst(t *testing.T) {
	for _, card := range []billing.CardPolicy{dayFiveCard(), monthEndCard()} {
		usage := ym("2025-01")
		for i := 0; i < 24; i++ {
			first := billing.BillingMonth(usage, card, billing.SplitFirst)
			second := billing.BillingMonth(usage, card, billing.SplitSecond)
			assert.Equal(t, first.Add(1), second,
				"card %s usage %s", card.Key, usage)
			usage = usage.Add(1)
		}
	}
}

func TestBillingMonth_SplitAcrossYearBoundary(t *testing.T) {
	card := dayFiveCard()

	assert.Equal(t, ym("2026-01"), billing.BillingMonth(ym("2025-11"), card, billing.SplitFirst))
	assert.Equal(t, ym("2026-02"), billing.BillingMonth(ym("2025-11"), card, billing.SplitSecond))
}

func TestUsageMonthFor_InvertsBillingMonth(t *testing.T) {
	for _, card := range []billing.CardPolicy{dayFiveCard(), monthEndCard()} {
		usage := ym("2024-11")
		for i := 0; i < 18; i++ {
			bm := billing.BillingMonth(usage, card, billing.SplitNone)
			assert.Equal(t, usage, billing.UsageMonthFor(bm, card))
			usage = usage.Add(1)
		}
	}
}

// =============================================================================
// CLOSING DATE
// =============================================================================

func TestClosingDate(t *testing.T) {
	// Day-of-month closing: day 5 of the month AFTER the usage month.
	got := billing.ClosingDate(ym("2025-01"), dayFiveCard())
	assert.Equal(t, billing.NewDate(2025, time.February, 5), got)

	// Year rollover.
	got = billing.ClosingDate(ym("2025-12"), dayFiveCard())
	assert.Equal(t, billing.NewDate(2026, time.January, 5), got)

	// Month-end closing: last day of the usage month itself.
	got = billing.ClosingDate(ym("2025-02"), monthEndCard())
	assert.Equal(t, billing.NewDate(2025, time.February, 28), got)

	got = billing.ClosingDate(ym("2024-02"), monthEndCard())
	assert.Equal(t, billing.NewDate(2024, time.February, 29), got)
}

// =============================================================================
// CHARGE-DAY REFINEMENT
// =============================================================================

func TestBillingMonthForCharge_DayOfMonthClosing(t *testing.T) {
	card := dayFiveCard()

	// On or before the closing day: caught by the closing inside the usage
	// month, bills the next month.
	assert.Equal(t, ym("2025-02"), billing.BillingMonthForCharge(1, ym("2025-01"), card))
	assert.Equal(t, ym("2025-02"), billing.BillingMonthForCharge(5, ym("2025-01"), card))

	// After the closing day: rolls into the next period.
	assert.Equal(t, ym("2025-03"), billing.BillingMonthForCharge(6, ym("2025-01"), card))
	assert.Equal(t, ym("2025-03"), billing.BillingMonthForCharge(31, ym("2025-01"), card))
}

func TestBillingMonthForCharge_EndOfMonthClosing_DayNeverMatters(t *testing.T) {
	card := monthEndCard()

	for day := 1; day <= 31; day++ {
		assert.Equal(t, ym("2025-02"), billing.BillingMonthForCharge(day, ym("2025-01"), card))
	}
}

// =============================================================================
// PAYMENT DATE
// =============================================================================

func TestPaymentDate_ClampsAndShiftsToBusinessDay(t *testing.T) {
	cal := billing.WeekendOnlyCalendar{}

	// 2025-04-27 is a Sunday; withdrawal shifts forward to Monday the 28th.
	got := billing.PaymentDate(ym("2025-04"), monthEndCard(), cal)
	assert.Equal(t, billing.NewDate(2025, time.April, 28), got)

	// Payment day beyond the month's length clamps to the last day first.
	short := monthEndCard()
	short.PaymentDay = 31
	got = billing.PaymentDate(ym("2025-02"), short, cal)
	// 2025-02-28 is a Friday, no shift needed.
	assert.Equal(t, billing.NewDate(2025, time.February, 28), got)
}

type holidayList []time.Time

func (h holidayList) IsHoliday(d time.Time) bool {
	for _, x := range h {
		if billing.SameDay(x, d) {
			return true
		}
	}
	return false
}

func TestPaymentDate_SkipsConfiguredHolidays(t *testing.T) {
	// 2025-05-05 is a Monday holiday; a day-4 payment on Sunday the 4th
	// must skip both the weekend and the holiday.
	cal := holidayList{billing.NewDate(2025, time.May, 5), billing.NewDate(2025, time.May, 6)}

	got := billing.PaymentDate(ym("2025-05"), dayFiveCard(), cal)
	assert.Equal(t, billing.NewDate(2025, time.May, 7), got)
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

func TestYearMonth_AddRollsOverBothDirections(t *testing.T) {
	assert.Equal(t, ym("2026-02"), ym("2025-11").Add(3))
	assert.Equal(t, ym("2024-10"), ym("2025-01").Add(-3))
	assert.Equal(t, ym("2025-06"), ym("2025-06").Add(0))
	assert.Equal(t, ym("2028-01"), ym("2025-01").Add(36))
}

func TestYearMonth_ParseAndString(t *testing.T) {
	got, err := billing.ParseYearMonth("2025-07")
	require.NoError(t, err)
	assert.Equal(t, billing.YearMonth{Year: 2025, Month: time.July}, got)
	assert.Equal(t, "2025-07", got.String())

	_, err = billing.ParseYearMonth("2025/07")
	assert.Error(t, err)
	_, err = billing.ParseYearMonth("2025-13")
	assert.Error(t, err)
}

func TestClampDay(t *testing.T) {
	assert.Equal(t, 31, billing.ClampDay(2025, time.January, 31))
	assert.Equal(t, 28, billing.ClampDay(2025, time.February, 31))
	assert.Equal(t, 29, billing.ClampDay(2024, time.February, 31))
	assert.Equal(t, 30, billing.ClampDay(2025, time.April, 31))
	assert.Equal(t, 15, billing.ClampDay(2025, time.April, 15))
	assert.Equal(t, 1, billing.ClampDay(2025, time.April, 0))
}

func TestBusinessDayAdjustment(t *testing.T) {
	cal := billing.WeekendOnlyCalendar{}

	sat := billing.NewDate(2025, time.March, 15) // Saturday

	// Obligations shift forward, income shifts backward.
	assert.Equal(t, billing.NewDate(2025, time.March, 17), billing.NextBusinessDay(sat, cal))
	assert.Equal(t, billing.NewDate(2025, time.March, 14), billing.PreviousBusinessDay(sat, cal))

	// A business day is returned unchanged.
	wed := billing.NewDate(2025, time.March, 12)
	assert.Equal(t, wed, billing.NextBusinessDay(wed, cal))
	assert.Equal(t, wed, billing.PreviousBusinessDay(wed, cal))
}

func TestYearMonth_IsOdd(t *testing.T) {
	assert.True(t, ym("2025-01").IsOdd())
	assert.False(t, ym("2025-02").IsOdd())
	assert.True(t, ym("2025-11").IsOdd())
	assert.False(t, ym("2025-12").IsOdd())
}
