package estimate_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/estimate"
	"github.com/warp/billing-engine/estimate/store"
)

// =============================================================================
// FIXTURE
// =============================================================================

func testRegistry() *billing.StaticRegistry {
	return billing.NewStaticRegistry(
		billing.CardPolicy{
			Key: "transit", Title: "Transit Card",
			Closing: billing.DayOfMonth(5), PaymentDay: 4,
			AllowsSplit: true, AllowsBonus: true, Active: true,
		},
		billing.CardPolicy{
			Key: "everyday", Title: "Everyday Card",
			Closing: billing.EndOfMonth(), PaymentDay: 27,
			AllowsSplit: true, Active: true,
		},
		billing.CardPolicy{
			Key: "online", Title: "Online Card",
			Closing: billing.EndOfMonth(), PaymentDay: 10, Active: true,
		},
	)
}

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.UTC) }
}

type fixedConverter struct{ rate int64 }

func (c fixedConverter) ToBase(_ context.Context, usd decimal.Decimal) (int64, error) {
	return usd.Mul(decimal.NewFromInt(c.rate)).IntPart(), nil
}

func newPurchaseFixture(t *testing.T) (*estimate.PurchaseService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := estimate.NewPurchaseService(mem, testRegistry(), fixedConverter{rate: 150}).
		WithClock(fixedClock(2025, time.January, 15))
	return svc, mem
}

func amt(v int64) *int64 { return &v }

func date(y int, m time.Month, d int) *time.Time {
	dt := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &dt
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_DerivesBillingMonth(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	ctx := context.Background()

	rows, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey:    "everyday",
		Amount:     amt(3000),
		UsageMonth: billing.MustYearMonth("2025-01"),
		Memo:       "groceries",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	p := rows[0]
	assert.Equal(t, billing.MustYearMonth("2025-02"), p.BillingMonth)
	// Only bonus purchases carry their own payment date; everything else
	// pays on the card's withdrawal date, resolved at read time.
	assert.Nil(t, p.PaymentDate)
	assert.Equal(t, int64(3000), p.Amount)
	assert.False(t, p.IsSplit)
	assert.Empty(t, p.SplitGroup)
}

func TestCreate_UsageMonthFromPurchaseDate(t *testing.T) {
	svc, _ := newPurchaseFixture(t)

	rows, err := svc.Create(context.Background(), estimate.PurchaseInput{
		CardKey:      "everyday",
		Amount:       amt(1200),
		PurchaseDate: date(2025, time.March, 8),
	})
	require.NoError(t, err)
	assert.Equal(t, billing.MustYearMonth("2025-03"), rows[0].UsageMonth)
	assert.Equal(t, billing.MustYearMonth("2025-04"), rows[0].BillingMonth)
}

func TestCreate_SplitProducesPair(t *testing.T) {
	svc, mem := newPurchaseFixture(t)
	ctx := context.Background()

	rows, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey:    "transit",
		Amount:     amt(20001),
		UsageMonth: billing.MustYearMonth("2025-01"),
		IsSplit:    true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, second := rows[0], rows[1]
	assert.Equal(t, billing.SplitFirst, first.SplitPart)
	assert.Equal(t, billing.SplitSecond, second.SplitPart)
	assert.Equal(t, int64(10001), first.Amount)
	assert.Equal(t, int64(10000), second.Amount)
	assert.Equal(t, billing.MustYearMonth("2025-03"), first.BillingMonth)
	assert.Equal(t, billing.MustYearMonth("2025-04"), second.BillingMonth)
	require.NotEmpty(t, first.SplitGroup)
	assert.Equal(t, first.SplitGroup, second.SplitGroup)

	stored, err := mem.PurchasesBySplitGroup(ctx, first.SplitGroup)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreate_BonusPlacement(t *testing.T) {
	svc, _ := newPurchaseFixture(t)

	rows, err := svc.Create(context.Background(), estimate.PurchaseInput{
		CardKey:      "transit",
		Amount:       amt(50000),
		PurchaseDate: date(2025, time.June, 5),
		IsBonus:      true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	p := rows[0]
	assert.Equal(t, billing.MustYearMonth("2025-08"), p.BillingMonth)
	require.NotNil(t, p.PaymentDate)
	assert.Equal(t, "2025-08-04", p.PaymentDate.Format("2006-01-02"))
	assert.Equal(t, billing.MustYearMonth("2025-06"), p.UsageMonth)
}

func TestCreate_USDAmountConverted(t *testing.T) {
	svc, _ := newPurchaseFixture(t)

	usd := decimal.RequireFromString("10.50")
	rows, err := svc.Create(context.Background(), estimate.PurchaseInput{
		CardKey:    "everyday",
		AmountUSD:  &usd,
		UsageMonth: billing.MustYearMonth("2025-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1575), rows[0].Amount)
	require.NotNil(t, rows[0].AmountUSD)
	assert.True(t, rows[0].AmountUSD.Equal(usd))
}

func TestCreate_ValidationTaxonomy(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	ctx := context.Background()
	jan := billing.MustYearMonth("2025-01")

	tests := []struct {
		name string
		in   estimate.PurchaseInput
		want error
	}{
		{
			name: "unknown card",
			in:   estimate.PurchaseInput{CardKey: "no-such", Amount: amt(100), UsageMonth: jan},
			want: billing.ErrPolicyNotFound,
		},
		{
			name: "missing amount",
			in:   estimate.PurchaseInput{CardKey: "everyday", UsageMonth: jan},
			want: billing.ErrAmountRequired,
		},
		{
			name: "split and bonus combined",
			in: estimate.PurchaseInput{CardKey: "transit", Amount: amt(100), UsageMonth: jan,
				IsSplit: true, IsBonus: true},
			want: billing.ErrSplitAndBonus,
		},
		{
			name: "split unsupported",
			in:   estimate.PurchaseInput{CardKey: "online", Amount: amt(100), UsageMonth: jan, IsSplit: true},
			want: billing.ErrSplitNotSupported,
		},
		{
			name: "bonus unsupported",
			in:   estimate.PurchaseInput{CardKey: "everyday", Amount: amt(100), UsageMonth: jan, IsBonus: true},
			want: billing.ErrBonusNotSupported,
		},
		{
			name: "bonus without date",
			in:   estimate.PurchaseInput{CardKey: "transit", Amount: amt(100), UsageMonth: jan, IsBonus: true},
			want: billing.ErrPurchaseDateRequired,
		},
		{
			name: "bonus in gap",
			in: estimate.PurchaseInput{CardKey: "transit", Amount: amt(100),
				PurchaseDate: date(2025, time.June, 10), IsBonus: true},
			want: billing.ErrBonusOutsideWindow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_ResplitsBothRows(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)

	// Editing the SECOND row still rewrites the whole pair from the new total.
	edited, err := svc.Edit(ctx, created[1].ID, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(30001),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)
	require.Len(t, edited, 2)
	assert.Equal(t, int64(15001), edited[0].Amount)
	assert.Equal(t, int64(15000), edited[1].Amount)
	assert.Equal(t, created[0].SplitGroup, edited[0].SplitGroup)
}

func TestEdit_MergeRemovesSibling(t *testing.T) {
	svc, mem := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "everyday", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)

	merged, err := svc.Edit(ctx, created[0].ID, estimate.PurchaseInput{
		CardKey: "everyday", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"),
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, int64(20000), merged[0].Amount)
	assert.False(t, merged[0].IsSplit)
	assert.Empty(t, merged[0].SplitGroup)

	_, err = mem.GetPurchase(ctx, created[1].ID)
	assert.ErrorIs(t, err, billing.ErrPurchaseNotFound)
}

func TestEdit_SingleToSplitCreatesSibling(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20001),
		UsageMonth: billing.MustYearMonth("2025-01"),
	})
	require.NoError(t, err)

	split, err := svc.Edit(ctx, created[0].ID, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20001),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, int64(10001), split[0].Amount)
	assert.Equal(t, int64(10000), split[1].Amount)
	assert.NotEmpty(t, split[0].SplitGroup)
}

func TestEdit_SplitCardChangeRejected(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, created[0].ID, estimate.PurchaseInput{
		CardKey: "everyday", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	assert.ErrorIs(t, err, billing.ErrSplitCardChange)
}

func TestEdit_OrphanedSplitRowResplits(t *testing.T) {
	svc, mem := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)

	// Remove the sibling behind the service's back. The survivor must
	// behave as a single record on the next write, not wedge the edit.
	require.NoError(t, mem.DeletePurchase(ctx, created[1].ID))

	edited, err := svc.Edit(ctx, created[0].ID, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20001),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)
	require.Len(t, edited, 2)
	assert.Equal(t, int64(10001), edited[0].Amount)
	assert.Equal(t, int64(10000), edited[1].Amount)
	assert.NotEmpty(t, edited[0].SplitGroup)
	assert.NotEqual(t, created[0].SplitGroup, edited[0].SplitGroup)
}

func TestEdit_OrphanedSplitRowBecomesSingle(t *testing.T) {
	svc, mem := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)
	require.NoError(t, mem.DeletePurchase(ctx, created[1].ID))

	// An orphan is no longer a pair, so a card change is allowed too.
	edited, err := svc.Edit(ctx, created[0].ID, estimate.PurchaseInput{
		CardKey: "everyday", Amount: amt(10000),
		UsageMonth: billing.MustYearMonth("2025-01"),
	})
	require.NoError(t, err)
	require.Len(t, edited, 1)
	assert.False(t, edited[0].IsSplit)
	assert.Empty(t, edited[0].SplitGroup)
	assert.Equal(t, billing.SplitNone, edited[0].SplitPart)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_RemovesWholeSplitPair(t *testing.T) {
	svc, mem := newPurchaseFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, estimate.PurchaseInput{
		CardKey: "transit", Amount: amt(20000),
		UsageMonth: billing.MustYearMonth("2025-01"), IsSplit: true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created[1].ID))

	for _, p := range created {
		_, err := mem.GetPurchase(ctx, p.ID)
		assert.ErrorIs(t, err, billing.ErrPurchaseNotFound)
	}
}

func TestDelete_UnknownPurchase(t *testing.T) {
	svc, _ := newPurchaseFixture(t)
	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, billing.ErrPurchaseNotFound)
}
