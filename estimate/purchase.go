/*
purchase.go - One-off purchase entry: create, edit, delete

PURPOSE:
  Validates purchase input against the card's policy, derives the billing
  month and payment date through the billing package, and maintains the
  two-row invariant of split purchases: a split purchase is stored as two
  rows sharing a SplitGroup id, and every write path keeps the pair
  consistent (amounts re-derived, sibling created on split, sibling
  removed on merge or delete).

VALIDATION ORDER:
  1. Card policy resolves (active card)
  2. An amount is present (base currency or USD)
  3. Split and bonus are not combined
  4. The card supports the requested plan
  5. Bonus purchases carry a purchase date inside an eligible window

  Validation happens before any write; a rejected request leaves no
  partial rows behind.
*/
package estimate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// CurrencyConverter turns a USD amount into integer base-currency units.
type CurrencyConverter interface {
	ToBase(ctx context.Context, usd decimal.Decimal) (int64, error)
}

// PurchaseInput is the write payload for creating or editing a purchase.
// Amount is the purchase TOTAL; for split purchases the service derives
// the installment amounts itself.
type PurchaseInput struct {
	CardKey billing.CardKey

	Amount    *int64
	AmountUSD *decimal.Decimal

	UsageMonth   billing.YearMonth
	PurchaseDate *time.Time

	IsSplit bool
	IsBonus bool

	Memo string
}

// PurchaseService is the write surface for one-off purchases.
type PurchaseService struct {
	purchases PurchaseStore
	registry  billing.Registry
	converter CurrencyConverter
	now       func() time.Time
}

func NewPurchaseService(purchases PurchaseStore, registry billing.Registry, converter CurrencyConverter) *PurchaseService {
	return &PurchaseService{
		purchases: purchases,
		registry:  registry,
		converter: converter,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. For tests.
func (s *PurchaseService) WithClock(now func() time.Time) *PurchaseService {
	s.now = now
	return s
}

// =============================================================================
// DERIVATION
// =============================================================================

// derivedEntry is one storable row derived from validated input.
type derivedEntry struct {
	amount       int64
	usageMonth   billing.YearMonth
	billingMonth billing.YearMonth
	paymentDate  time.Time
	part         billing.SplitPart
}

// derive validates the input against the card policy and produces the row
// (or, for a split, the two rows) the input maps to.
func (s *PurchaseService) derive(ctx context.Context, in PurchaseInput) ([]derivedEntry, *decimal.Decimal, error) {
	policy, err := s.registry.Policy(ctx, in.CardKey)
	if err != nil {
		return nil, nil, err
	}

	total, usd, err := s.resolveAmount(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	if in.IsSplit && in.IsBonus {
		return nil, nil, billing.ErrSplitAndBonus
	}
	if in.IsSplit && !policy.AllowsSplit {
		return nil, nil, fmt.Errorf("card %q: %w", in.CardKey, billing.ErrSplitNotSupported)
	}
	if in.IsBonus && !policy.AllowsBonus {
		return nil, nil, fmt.Errorf("card %q: %w", in.CardKey, billing.ErrBonusNotSupported)
	}

	usage := in.UsageMonth
	if usage.IsZero() {
		if in.PurchaseDate == nil {
			return nil, nil, fmt.Errorf("usage month or purchase date required: %w", billing.ErrPurchaseDateRequired)
		}
		usage = billing.YearMonthOf(*in.PurchaseDate)
	}

	switch {
	case in.IsBonus:
		if in.PurchaseDate == nil {
			return nil, nil, billing.ErrPurchaseDateRequired
		}
		placement, err := billing.ClassifyBonusPurchase(*in.PurchaseDate)
		if err != nil {
			return nil, nil, err
		}
		return []derivedEntry{{
			amount:       total,
			usageMonth:   billing.YearMonthOf(*in.PurchaseDate),
			billingMonth: placement.BillingMonth,
			paymentDate:  placement.PaymentDate,
			part:         billing.SplitNone,
		}}, usd, nil

	case in.IsSplit:
		first, second := billing.SplitAmount(total)
		entries := make([]derivedEntry, 0, 2)
		for part, amount := range map[billing.SplitPart]int64{
			billing.SplitFirst:  first,
			billing.SplitSecond: second,
		} {
			entries = append(entries, derivedEntry{
				amount:       amount,
				usageMonth:   usage,
				billingMonth: billing.BillingMonth(usage, policy, part),
				part:         part,
			})
		}
		if entries[0].part == billing.SplitSecond {
			entries[0], entries[1] = entries[1], entries[0]
		}
		return entries, usd, nil

	default:
		return []derivedEntry{{
			amount:       total,
			usageMonth:   usage,
			billingMonth: billing.BillingMonth(usage, policy, billing.SplitNone),
			part:         billing.SplitNone,
		}}, usd, nil
	}
}

// resolveAmount picks the base-currency total, converting from USD when
// only a USD amount was captured.
func (s *PurchaseService) resolveAmount(ctx context.Context, in PurchaseInput) (int64, *decimal.Decimal, error) {
	switch {
	case in.Amount != nil:
		return *in.Amount, in.AmountUSD, nil
	case in.AmountUSD != nil:
		if s.converter == nil {
			return 0, nil, fmt.Errorf("no currency converter configured: %w", billing.ErrAmountRequired)
		}
		total, err := s.converter.ToBase(ctx, *in.AmountUSD)
		if err != nil {
			return 0, nil, fmt.Errorf("converting USD amount: %w", err)
		}
		return total, in.AmountUSD, nil
	default:
		return 0, nil, billing.ErrAmountRequired
	}
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates and stores a purchase. A split purchase produces two
// rows sharing a fresh SplitGroup id; the returned slice is in part order.
func (s *PurchaseService) Create(ctx context.Context, in PurchaseInput) ([]Purchase, error) {
	entries, usd, err := s.derive(ctx, in)
	if err != nil {
		return nil, err
	}

	var group SplitGroupID
	if in.IsSplit {
		group = SplitGroupID(uuid.NewString())
	}

	now := s.now()
	out := make([]Purchase, 0, len(entries))
	for _, e := range entries {
		p := Purchase{
			ID:           PurchaseID(uuid.NewString()),
			CardKey:      in.CardKey,
			Amount:       e.amount,
			AmountUSD:    usd,
			PurchaseDate: in.PurchaseDate,
			UsageMonth:   e.usageMonth,
			BillingMonth: e.billingMonth,
			PaymentDate:  timePtr(e.paymentDate),
			IsSplit:      in.IsSplit,
			IsBonus:      in.IsBonus,
			SplitPart:    e.part,
			SplitGroup:   group,
			Memo:         in.Memo,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.purchases.CreatePurchase(ctx, p); err != nil {
			return nil, fmt.Errorf("storing purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns one stored purchase row.
func (s *PurchaseService) Get(ctx context.Context, id PurchaseID) (Purchase, error) {
	return s.purchases.GetPurchase(ctx, id)
}

// =============================================================================
// EDIT
// =============================================================================

// Edit re-validates and re-derives a purchase from fresh input. Editing
// either row of a split pair rewrites BOTH rows from the new total.
// Turning the split flag off merges the pair back into one row; turning
// it on splits a single row into a pair. The card of a split pair cannot
// change; delete and re-create instead.
func (s *PurchaseService) Edit(ctx context.Context, id PurchaseID, in PurchaseInput) ([]Purchase, error) {
	existing, err := s.purchases.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}

	pair, err := s.splitPair(ctx, existing)
	if err != nil {
		return nil, err
	}

	// A split row whose sibling is gone behaves as a single non-split
	// record from here on; the write below repairs the stored linkage.
	if existing.IsSplit && len(pair) == 1 {
		existing.IsSplit = false
		existing.SplitGroup = ""
		existing.SplitPart = billing.SplitNone
		pair = []Purchase{existing}
	}

	if existing.IsSplit && in.CardKey != existing.CardKey {
		return nil, billing.ErrSplitCardChange
	}

	entries, usd, err := s.derive(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()

	// Merge: the pair collapses onto the edited row, the sibling goes away.
	if existing.IsSplit && !in.IsSplit {
		for _, p := range pair {
			if p.ID != existing.ID {
				if err := s.purchases.DeletePurchase(ctx, p.ID); err != nil {
					return nil, fmt.Errorf("removing split sibling: %w", err)
				}
			}
		}
		pair = []Purchase{existing}
	}

	// Split: a fresh sibling row joins the edited one.
	if !existing.IsSplit && in.IsSplit {
		existing.SplitGroup = SplitGroupID(uuid.NewString())
		sibling := existing
		sibling.ID = PurchaseID(uuid.NewString())
		sibling.CreatedAt = now
		if err := s.purchases.CreatePurchase(ctx, sibling); err != nil {
			return nil, fmt.Errorf("creating split sibling: %w", err)
		}
		pair = []Purchase{existing, sibling}
	}

	if len(pair) != len(entries) {
		return nil, fmt.Errorf("split pair has %d rows, expected %d: %w",
			len(pair), len(entries), billing.ErrPurchaseNotFound)
	}

	out := make([]Purchase, 0, len(entries))
	for i, e := range entries {
		p := pair[i]
		p.CardKey = in.CardKey
		p.Amount = e.amount
		p.AmountUSD = usd
		p.PurchaseDate = in.PurchaseDate
		p.UsageMonth = e.usageMonth
		p.BillingMonth = e.billingMonth
		p.PaymentDate = timePtr(e.paymentDate)
		p.IsSplit = in.IsSplit
		p.IsBonus = in.IsBonus
		p.SplitPart = e.part
		if !in.IsSplit {
			p.SplitGroup = ""
		}
		p.Memo = in.Memo
		p.UpdatedAt = now
		if err := s.purchases.UpdatePurchase(ctx, p); err != nil {
			return nil, fmt.Errorf("updating purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a purchase. Deleting either row of a split pair removes
// both; a lone installment must never survive.
func (s *PurchaseService) Delete(ctx context.Context, id PurchaseID) error {
	existing, err := s.purchases.GetPurchase(ctx, id)
	if err != nil {
		return err
	}

	pair, err := s.splitPair(ctx, existing)
	if err != nil {
		return err
	}
	for _, p := range pair {
		if err := s.purchases.DeletePurchase(ctx, p.ID); err != nil {
			return fmt.Errorf("deleting purchase %s: %w", p.ID, err)
		}
	}
	return nil
}

// splitPair returns the full row set of a purchase in part order: both
// rows for a split purchase, just the row itself otherwise.
func (s *PurchaseService) splitPair(ctx context.Context, p Purchase) ([]Purchase, error) {
	if !p.IsSplit || p.SplitGroup == "" {
		return []Purchase{p}, nil
	}
	rows, err := s.purchases.PurchasesBySplitGroup(ctx, p.SplitGroup)
	if err != nil {
		return nil, fmt.Errorf("loading split group %s: %w", p.SplitGroup, err)
	}
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			if rows[j].SplitPart < rows[i].SplitPart {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	return rows, nil
}

// timePtr maps the zero time to nil. Only bonus entries carry a payment
// date of their own; everything else pays on the card's withdrawal date.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
