/*
calendar.go - Month keys and day arithmetic for the billing engine

PURPOSE:
  Every billing rule in this system is phrased in terms of calendar months
  ("usage month", "billing month") and policy days (1-31) applied to a
  concrete month. This file provides the YearMonth key type, day clamping,
  month-end lookup, and business-day adjustment against a holiday calendar.

KEY CONCEPTS:
  - YearMonth: a calendar month key (the "YYYY-MM" strings of the wire
    format), with rollover-safe month arithmetic in both directions.
  - ClampDay: a policy day like 31 applied to February must land on the
    month's last day, never overflow into March.
  - Business-day adjustment: income-style dates shift BACKWARD to the
    previous business day, obligation/withdrawal dates shift FORWARD.
    The adjustment changes the displayed calendar day only - it never
    moves an entry between billing months.

SEE ALSO:
  - cycle.go: closing date and billing month derivation
  - policy.go: the card policies whose days get clamped here
*/
package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR-MONTH - Calendar month key
// =============================================================================

// YearMonth identifies a calendar month. The zero value is invalid.
type YearMonth struct {
	Year  int
	Month time.Month
}

// NewYearMonth builds a YearMonth, normalizing out-of-range months
// (month 13 of 2025 becomes January 2026).
func NewYearMonth(year int, month time.Month) YearMonth {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// YearMonthOf returns the calendar month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses a "YYYY-MM" key.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year-month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// MustYearMonth parses a "YYYY-MM" key and panics on malformed input.
// For tests and static configuration only.
func MustYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

// String formats the key as "YYYY-MM".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Add returns the month n calendar months later (earlier for negative n),
// with year rollover in both directions.
func (ym YearMonth) Add(n int) YearMonth {
	t := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Comparison
func (ym YearMonth) Equal(other YearMonth) bool { return ym == other }
func (ym YearMonth) Before(other YearMonth) bool {
	return ym.Year < other.Year || (ym.Year == other.Year && ym.Month < other.Month)
}
func (ym YearMonth) After(other YearMonth) bool         { return other.Before(ym) }
func (ym YearMonth) BeforeOrEqual(other YearMonth) bool { return !ym.After(other) }
func (ym YearMonth) AfterOrEqual(other YearMonth) bool  { return !ym.Before(other) }

// IsZero reports whether ym is the (invalid) zero value.
func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

// IsOdd reports whether the calendar month number is odd (January, March, ...).
// Used by recurring charges that apply to odd months only.
func (ym YearMonth) IsOdd() bool { return int(ym.Month)%2 == 1 }

// Days returns the number of days in the month.
func (ym YearMonth) Days() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// First returns the first day of the month as a date.
func (ym YearMonth) First() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Last returns the last day of the month as a date.
func (ym YearMonth) Last() time.Time {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC)
}

// DateOn returns the given policy day within the month, clamped to the
// month's last day.
func (ym YearMonth) DateOn(day int) time.Time {
	return time.Date(ym.Year, ym.Month, ClampDay(ym.Year, ym.Month, day), 0, 0, 0, 0, time.UTC)
}

// ClampDay returns day unless it exceeds the number of days in the month,
// in which case it returns the month's last day. Days below 1 clamp to 1.
func ClampDay(year int, month time.Month, day int) int {
	if day < 1 {
		return 1
	}
	if last := (YearMonth{Year: year, Month: month}).Days(); day > last {
		return last
	}
	return day
}

// NewDate builds a UTC date at day granularity.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a configured non-business day.
type Holiday struct {
	Date time.Time
	Name string
}

// HolidayCalendar answers whether a date is a configured holiday.
// Weekends are always non-business days regardless of the calendar.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// WeekendOnlyCalendar is the default calendar: no configured holidays,
// so only Saturdays and Sundays are non-business days.
type WeekendOnlyCalendar struct{}

func (WeekendOnlyCalendar) IsHoliday(time.Time) bool { return false }

func isBusinessDay(d time.Time, cal HolidayCalendar) bool {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return cal == nil || !cal.IsHoliday(d)
}

// PreviousBusinessDay steps the date backward one day at a time until it
// lands on a business day. Used for income-style dates (salary lands the
// Friday before a weekend payday).
func PreviousBusinessDay(d time.Time, cal HolidayCalendar) time.Time {
	for !isBusinessDay(d, cal) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextBusinessDay steps the date forward one day at a time until it lands
// on a business day. Used for withdrawal dates (a card bill due on a
// Sunday is collected the following Monday).
func NextBusinessDay(d time.Time, cal HolidayCalendar) time.Time {
	for !isBusinessDay(d, cal) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
