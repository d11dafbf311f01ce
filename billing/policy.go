/*
policy.go - Card policies: the closing and payment rules per instrument

PURPOSE:
  A CardPolicy describes how one payment instrument turns purchases into
  bills: when its usage period closes, on which day of the billing month
  the withdrawal happens, and which payment plans (split, bonus) it
  supports. Policies are configured by an external surface and are
  read-only to the engine.

CLOSING RULES:
  EndOfMonth:
    - The usage period closes on the last day of the usage month.
    - The bill is withdrawn the FOLLOWING month.

  DayOfMonth(n):
    - The usage period for month M closes on day n of month M+1.
    - The bill is withdrawn TWO months after the usage month.

  The billing offset is always derived from the closing rule, never stored
  per card. Storing it per card is how the offsets historically drifted
  out of sync with the closing-day configuration.
*/
package billing

import (
	"context"
	"fmt"
)

// =============================================================================
// CLOSING RULE - Exactly one variant is set
// =============================================================================

type ClosingRuleType string

const (
	// ClosingEndOfMonth closes the usage period on the usage month's last day.
	ClosingEndOfMonth ClosingRuleType = "end_of_month"

	// ClosingDayOfMonth closes the usage period on a fixed day of the month
	// after the usage month.
	ClosingDayOfMonth ClosingRuleType = "day_of_month"
)

// ClosingRule is a card's cutoff rule. Use EndOfMonth() or DayOfMonth(n);
// a hand-built rule must satisfy Validate.
type ClosingRule struct {
	Type ClosingRuleType

	// Day is the cutoff day, 1-31. Set only for ClosingDayOfMonth.
	Day int
}

// EndOfMonth returns the month-end closing rule.
func EndOfMonth() ClosingRule {
	return ClosingRule{Type: ClosingEndOfMonth}
}

// DayOfMonth returns a fixed-day closing rule.
func DayOfMonth(day int) ClosingRule {
	return ClosingRule{Type: ClosingDayOfMonth, Day: day}
}

// Validate checks the single-variant invariant.
func (r ClosingRule) Validate() error {
	switch r.Type {
	case ClosingEndOfMonth:
		if r.Day != 0 {
			return fmt.Errorf("%w: end-of-month rule must not carry a day", ErrInvalidClosingRule)
		}
	case ClosingDayOfMonth:
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("%w: day %d out of range 1-31", ErrInvalidClosingRule, r.Day)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidClosingRule, r.Type)
	}
	return nil
}

func (r ClosingRule) String() string {
	if r.Type == ClosingEndOfMonth {
		return "end-of-month"
	}
	return fmt.Sprintf("day-%d", r.Day)
}

// =============================================================================
// CARD POLICY
// =============================================================================

// CardKey is the stable identifier of a payment instrument.
type CardKey string

// CardPolicy is the full billing configuration of one card.
type CardPolicy struct {
	Key   CardKey
	Title string

	Closing ClosingRule

	// PaymentDay is the day within the billing month the withdrawal occurs,
	// 1-31, clamped to the month's length when applied.
	PaymentDay int

	// Supported payment plans.
	AllowsSplit bool
	AllowsBonus bool

	Active bool
}

// Validate checks the policy's invariants.
func (p CardPolicy) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("%w: empty card key", ErrInvalidPolicy)
	}
	if err := p.Closing.Validate(); err != nil {
		return err
	}
	if p.PaymentDay < 1 || p.PaymentDay > 31 {
		return fmt.Errorf("%w: payment day %d out of range 1-31", ErrInvalidPolicy, p.PaymentDay)
	}
	return nil
}

// =============================================================================
// POLICY REGISTRY
// =============================================================================

// Registry is the engine's read-only view of configured card policies.
type Registry interface {
	// Policy returns the active policy for a card key.
	// Returns ErrPolicyNotFound for unknown or inactive cards.
	Policy(ctx context.Context, key CardKey) (CardPolicy, error)

	// Policies returns all active card policies.
	Policies(ctx context.Context) ([]CardPolicy, error)
}

// StaticRegistry is a fixed, in-memory Registry for tests and canned
// configuration.
type StaticRegistry struct {
	byKey map[CardKey]CardPolicy
	order []CardKey
}

// NewStaticRegistry builds a registry from a fixed policy set, preserving
// the given order.
func NewStaticRegistry(policies ...CardPolicy) *StaticRegistry {
	r := &StaticRegistry{byKey: make(map[CardKey]CardPolicy, len(policies))}
	for _, p := range policies {
		if _, dup := r.byKey[p.Key]; !dup {
			r.order = append(r.order, p.Key)
		}
		r.byKey[p.Key] = p
	}
	return r
}

func (r *StaticRegistry) Policy(_ context.Context, key CardKey) (CardPolicy, error) {
	p, ok := r.byKey[key]
	if !ok || !p.Active {
		return CardPolicy{}, fmt.Errorf("card %q: %w", key, ErrPolicyNotFound)
	}
	return p, nil
}

func (r *StaticRegistry) Policies(_ context.Context) ([]CardPolicy, error) {
	out := make([]CardPolicy, 0, len(r.order))
	for _, key := range r.order {
		if p := r.byKey[key]; p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}
