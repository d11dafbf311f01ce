package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// ELIGIBLE WINDOWS
// =============================================================================

func TestClassifyBonusPurchase_SummerWindow(t *testing.T) {
	// Purchases from Dec 6 through Jun 5 settle with the August bonus.
	tests := []struct {
		purchase    string
		wantBilling string
		wantPayment string
	}{
		{"2025-01-15", "2025-08", "2025-08-04"},
		{"2025-04-01", "2025-08", "2025-08-04"},
		{"2025-06-05", "2025-08", "2025-08-04"}, // last eligible day
		{"2024-12-06", "2025-08", "2025-08-04"}, // first eligible day, prior December
		{"2024-12-31", "2025-08", "2025-08-04"},
	}
	for _, tc := range tests {
		d, err := time.Parse("2006-01-02", tc.purchase)
		require.NoError(t, err)

		p, err := billing.ClassifyBonusPurchase(d)
		require.NoError(t, err, "purchase %s", tc.purchase)
		assert.Equal(t, billing.MustYearMonth(tc.wantBilling), p.BillingMonth, "purchase %s", tc.purchase)
		assert.Equal(t, tc.wantPayment, p.PaymentDate.Format("2006-01-02"), "purchase %s", tc.purchase)
	}
}

func TestClassifyBonusPurchase_WinterWindow(t *testing.T) {
	// Purchases from Jul 6 through Nov 5 settle with the following January bonus.
	tests := []struct {
		purchase    string
		wantBilling string
		wantPayment string
	}{
		{"2025-07-06", "2026-01", "2026-01-04"}, // first eligible day
		{"2025-09-20", "2026-01", "2026-01-04"},
		{"2025-11-05", "2026-01", "2026-01-04"}, // last eligible day
	}
	for _, tc := range tests {
		d, err := time.Parse("2006-01-02", tc.purchase)
		require.NoError(t, err)

		p, err := billing.ClassifyBonusPurchase(d)
		require.NoError(t, err, "purchase %s", tc.purchase)
		assert.Equal(t, billing.MustYearMonth(tc.wantBilling), p.BillingMonth, "purchase %s", tc.purchase)
		assert.Equal(t, tc.wantPayment, p.PaymentDate.Format("2006-01-02"), "purchase %s", tc.purchase)
	}
}

// =============================================================================
// INELIGIBLE GAPS
// =============================================================================

func TestClassifyBonusPurchase_GapDatesRejected(t *testing.T) {
	gaps := []string{
		"2025-06-06", // day after the summer window closes
		"2025-06-20",
		"2025-07-05", // day before the winter window opens
		"2025-11-06", // day after the winter window closes
		"2025-11-20",
		"2025-12-05", // day before the summer window opens
	}
	for _, s := range gaps {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)

		_, err = billing.ClassifyBonusPurchase(d)
		require.Error(t, err, "purchase %s", s)
		assert.ErrorIs(t, err, billing.ErrBonusOutsideWindow, "purchase %s", s)
	}
}

func TestClassifyBonusPurchase_GapErrorCarriesBounds(t *testing.T) {
	d := billing.NewDate(2025, time.June, 10)

	_, err := billing.ClassifyBonusPurchase(d)
	require.Error(t, err)

	var gapErr *billing.IneligibleBonusDateError
	require.True(t, errors.As(err, &gapErr))
	assert.True(t, billing.SameDay(gapErr.Date, d))
	assert.True(t, billing.SameDay(gapErr.GapStart, billing.NewDate(2025, time.June, 6)))
	assert.True(t, billing.SameDay(gapErr.GapEnd, billing.NewDate(2025, time.July, 5)))
	assert.True(t, billing.IsClientError(err))
}
