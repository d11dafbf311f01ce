package fx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/fx"
)

func TestConverter_ToBaseTruncates(t *testing.T) {
	c := fx.NewConverter(fx.FixedSource{Fixed: decimal.NewFromInt(150)})
	ctx := context.Background()

	tests := []struct {
		usd  string
		want int64
	}{
		{"10", 1500},
		{"10.50", 1575},
		{"0.01", 1},     // 1.5 truncates down
		{"0.006", 0},    // below one base unit
		{"19.99", 2998}, // 2998.5 truncates down
	}
	for _, tc := range tests {
		got, err := c.ToBase(ctx, decimal.RequireFromString(tc.usd))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "usd %s", tc.usd)
	}

	_, err := c.ToBase(ctx, decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestHTTPSource_ParsesRatePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base": "USD", "rates": {"JPY": 149.53, "EUR": 0.92}}`))
	}))
	defer srv.Close()

	src := fx.NewHTTPSource(srv.URL, "JPY")
	rate, err := src.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("149.53")))

	_, err = fx.NewHTTPSource(srv.URL, "GBP").Rate(context.Background())
	assert.Error(t, err)
}

type countingSource struct {
	calls int
	rate  decimal.Decimal
	err   error
}

func (s *countingSource) Rate(context.Context) (decimal.Decimal, error) {
	s.calls++
	return s.rate, s.err
}

func TestConverter_CachesRateForTheDay(t *testing.T) {
	src := &countingSource{rate: decimal.NewFromInt(140)}
	c := fx.NewConverter(src)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := c.ToBase(ctx, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.Equal(t, int64(140), got)
	}
	assert.Equal(t, 1, src.calls)
}

func TestConverter_FallbackNotCached(t *testing.T) {
	src := &countingSource{err: assert.AnError}
	c := fx.NewConverter(src)
	ctx := context.Background()

	// Source failure falls back to the default rate.
	got, err := c.ToBase(ctx, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(300), got)

	// The source recovers; the next conversion retries it.
	src.err = nil
	src.rate = decimal.NewFromInt(100)
	got, err = c.ToBase(ctx, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(200), got)
	assert.Equal(t, 2, src.calls)
}
