/*
bonus.go - Twice-yearly bonus payment windows

PURPOSE:
  Some cards offer a "bonus payment" plan: instead of the normal monthly
  cycle, the purchase is withdrawn on one of two fixed dates per year,
  aligned with the summer and winter bonus seasons.

WINDOWS:
  Dec 6 - Jun 5  -> paid Aug 4 (next year for December purchases)
  Jul 6 - Nov 5  -> paid Jan 4 of the following year

  Two gaps exist between the windows: Jun 6 - Jul 5 and Nov 6 - Dec 5.
  A purchase dated inside a gap is rejected, never silently assigned to
  the nearest window. Every calendar date falls in exactly one of the
  four regions.
*/
package billing

import "time"

// Fixed payment days of the two bonus seasons.
const (
	bonusSummerMonth = time.August
	bonusWinterMonth = time.January
	bonusPaymentDay  = 4
)

// BonusPlacement is the billing outcome of an eligible bonus purchase.
type BonusPlacement struct {
	// BillingMonth is the payment date's month.
	BillingMonth YearMonth

	// PaymentDate is the fixed bonus payment date (Aug 4 or Jan 4).
	// Business-day adjustment, if wanted, is a display concern.
	PaymentDate time.Time
}

// ClassifyBonusPurchase maps a purchase date to its bonus payment window,
// or rejects it when the date falls in one of the two ineligible gaps.
// The usage month of a bonus purchase is simply the purchase month.
func ClassifyBonusPurchase(purchaseDate time.Time) (BonusPlacement, error) {
	year := purchaseDate.Year()
	month := purchaseDate.Month()
	day := purchaseDate.Day()

	switch {
	case month == time.December && day >= 6:
		// Winter-season purchase, paid next summer.
		return bonusPlacement(year+1, bonusSummerMonth), nil

	case month <= time.May, month == time.June && day <= 5:
		return bonusPlacement(year, bonusSummerMonth), nil

	case month == time.June, month == time.July && day <= 5:
		// Jun 6 - Jul 5 gap.
		return BonusPlacement{}, &IneligibleBonusDateError{
			Date:     purchaseDate,
			GapStart: NewDate(year, time.June, 6),
			GapEnd:   NewDate(year, time.July, 5),
		}

	case month <= time.October, month == time.November && day <= 5:
		return bonusPlacement(year+1, bonusWinterMonth), nil

	default:
		// Nov 6 - Dec 5 gap.
		return BonusPlacement{}, &IneligibleBonusDateError{
			Date:     purchaseDate,
			GapStart: NewDate(year, time.November, 6),
			GapEnd:   NewDate(year, time.December, 5),
		}
	}
}

func bonusPlacement(year int, month time.Month) BonusPlacement {
	return BonusPlacement{
		BillingMonth: YearMonth{Year: year, Month: month},
		PaymentDate:  NewDate(year, month, bonusPaymentDay),
	}
}
