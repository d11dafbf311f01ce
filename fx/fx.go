/*
fx.go - USD to base-currency conversion with a daily rate cache

PURPOSE:
  Purchases captured in USD are stored alongside their converted
  base-currency amount. The converter fetches the day's rate once, caches
  it for the rest of the calendar day, and falls back to a configured
  rate when the rate service is unreachable. A stale-but-plausible rate
  beats a failed entry.

KEY CONCEPTS:
  - RateSource: where rates come from. HTTPSource talks to an
    exchange-rate API; FixedSource pins a rate for tests and offline use.
  - Converter: caching and rounding. Conversion math runs on decimals;
    only the final amount is truncated to integer base units.
*/
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFallbackRate is used when no rate source answers.
var DefaultFallbackRate = decimal.NewFromInt(150)

// RateSource provides the USD -> base currency rate.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// =============================================================================
// HTTP RATE SOURCE
// =============================================================================

// HTTPSource fetches rates from a JSON endpoint shaped like
// {"rates": {"JPY": 149.53, ...}}.
type HTTPSource struct {
	URL      string
	Currency string
	Client   *http.Client
}

func NewHTTPSource(url, currency string) *HTTPSource {
	return &HTTPSource{
		URL:      url,
		Currency: currency,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building rate request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decoding rate payload: %w", err)
	}
	rate, ok := payload.Rates[s.Currency]
	if !ok || rate.IsZero() {
		return decimal.Zero, fmt.Errorf("no usable rate for %q in payload", s.Currency)
	}
	return rate, nil
}

// =============================================================================
// FIXED RATE SOURCE
// =============================================================================

// FixedSource always returns the same rate. For tests and offline use.
type FixedSource struct {
	Fixed decimal.Decimal
}

func (s FixedSource) Rate(context.Context) (decimal.Decimal, error) {
	return s.Fixed, nil
}

// =============================================================================
// CONVERTER
// =============================================================================

// Converter caches one rate per calendar day and converts USD amounts to
// integer base-currency units.
type Converter struct {
	source   RateSource
	fallback decimal.Decimal
	now      func() time.Time

	mu        sync.Mutex
	cached    decimal.Decimal
	cachedDay string
}

func NewConverter(source RateSource) *Converter {
	return &Converter{
		source:   source,
		fallback: DefaultFallbackRate,
		now:      time.Now,
	}
}

// rate returns the day's cached rate, fetching it on the first call of
// the day and falling back to the fixed rate on fetch failure. The
// fallback is NOT cached; the next call retries the source.
func (c *Converter) rate(ctx context.Context) decimal.Decimal {
	day := c.now().Format("2006-01-02")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedDay == day {
		return c.cached
	}
	rate, err := c.source.Rate(ctx)
	if err != nil || rate.IsZero() {
		return c.fallback
	}
	c.cached = rate
	c.cachedDay = day
	return rate
}

// ToBase converts a USD amount to integer base-currency units, truncating
// fractional units.
func (c *Converter) ToBase(ctx context.Context, usd decimal.Decimal) (int64, error) {
	if usd.IsNegative() {
		return 0, fmt.Errorf("negative USD amount %s", usd)
	}
	return usd.Mul(c.rate(ctx)).IntPart(), nil
}
