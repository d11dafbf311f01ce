/*
aggregate.go - Monthly estimate rollup

PURPOSE:
  Answers "how much will each card withdraw, per month?" by projecting
  one-off purchases and recurring charges onto their billing months and
  grouping by card. This is the read path the estimate screens and the
  plan reflection are built on.

VISIBILITY:
  An entry belongs to the forward-looking estimate only while its usage
  period is still open: up to and including the closing date for normal
  and split entries, up to the day before the payment date for bonus
  entries. Once closed, the amount is on a real card statement and shows
  up in the past view instead. The cutoff moves entries between the two
  views; it never changes which billing month they belong to.

RECURRING CHARGES:
  Months at or after the current month are materialized on first read, so
  looking at an estimate freezes it. Months in the past are read-only:
  an unmaterialized past month falls back to the template's current
  values without creating rows.
*/
package estimate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/warp/billing-engine/billing"
)

// snapshotBackfill is how many usage months before the window start must
// be scanned: a day-of-month card's split second installment bills three
// months after its usage month.
const snapshotBackfill = 3

// =============================================================================
// RESULT TYPES
// =============================================================================

type EntryKind string

const (
	EntryPurchase  EntryKind = "purchase"
	EntryRecurring EntryKind = "recurring"
)

// Entry is one projected line of a card's monthly bill.
type Entry struct {
	Kind     EntryKind
	SourceID string
	Label    string

	Amount     int64
	UsageMonth billing.YearMonth

	IsSplit   bool
	SplitPart billing.SplitPart
	IsBonus   bool

	// PaymentDate is set for entries with their own payment schedule
	// (bonus purchases); other entries follow the card's payment date.
	PaymentDate *time.Time
}

// CardSummary is one card's share of a billing month.
type CardSummary struct {
	CardKey billing.CardKey
	Title   string

	// PaymentDate is the card's withdrawal date in the billing month.
	PaymentDate time.Time

	Total             int64
	PurchaseSubtotal  int64
	RecurringSubtotal int64

	Entries []Entry
}

// MonthSummary is the full estimate of one billing month.
type MonthSummary struct {
	BillingMonth billing.YearMonth
	Total        int64
	Cards        []CardSummary
}

// =============================================================================
// SERVICE
// =============================================================================

// EstimateService is the read surface of the engine.
type EstimateService struct {
	purchases PurchaseStore
	templates TemplateStore
	snapshots SnapshotStore
	seeder    *SnapshotService
	registry  billing.Registry
	calendar  billing.HolidayCalendar
	plan      PlanStore
	now       func() time.Time
}

func NewEstimateService(
	purchases PurchaseStore,
	templates TemplateStore,
	snapshots SnapshotStore,
	seeder *SnapshotService,
	registry billing.Registry,
	calendar billing.HolidayCalendar,
	plan PlanStore,
) *EstimateService {
	return &EstimateService{
		purchases: purchases,
		templates: templates,
		snapshots: snapshots,
		seeder:    seeder,
		registry:  registry,
		calendar:  calendar,
		plan:      plan,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. For tests.
func (s *EstimateService) WithClock(now func() time.Time) *EstimateService {
	s.now = now
	return s
}

// entryRow is an Entry plus the placement data used for grouping and
// visibility filtering.
type entryRow struct {
	Entry
	cardKey      billing.CardKey
	billingMonth billing.YearMonth

	// openThrough is the last day the entry counts as upcoming.
	openThrough time.Time
}

// =============================================================================
// READS
// =============================================================================

// Window returns the forward-looking estimate for billing months from
// through to inclusive: only entries whose usage period is still open.
func (s *EstimateService) Window(ctx context.Context, from, to billing.YearMonth) ([]MonthSummary, error) {
	rows, err := s.collect(ctx, from, to)
	if err != nil {
		return nil, err
	}
	today := s.today()
	return s.summarize(ctx, from, to, filterRows(rows, func(r entryRow) bool {
		return !today.After(r.openThrough)
	}))
}

// ClosedWindow returns the already-billed complement of Window: entries
// in the range whose usage period has closed.
func (s *EstimateService) ClosedWindow(ctx context.Context, from, to billing.YearMonth) ([]MonthSummary, error) {
	rows, err := s.collect(ctx, from, to)
	if err != nil {
		return nil, err
	}
	today := s.today()
	return s.summarize(ctx, from, to, filterRows(rows, func(r entryRow) bool {
		return today.After(r.openThrough)
	}))
}

// Reflect recomputes one card's full total for a billing month, open and
// closed entries alike, and writes it into the monthly plan as the
// card's withdrawal line item. Returns the written total.
func (s *EstimateService) Reflect(ctx context.Context, ym billing.YearMonth, card billing.CardKey) (int64, error) {
	if _, err := s.registry.Policy(ctx, card); err != nil {
		return 0, err
	}
	rows, err := s.collect(ctx, ym, ym)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		if r.cardKey == card && r.billingMonth == ym {
			total += r.Amount
		}
	}
	if err := s.plan.SetLineItem(ctx, ym, string(card), total); err != nil {
		return 0, fmt.Errorf("writing plan line item: %w", err)
	}
	return total, nil
}

// =============================================================================
// COLLECTION
// =============================================================================

// collect gathers every entry whose billing month falls in [from, to],
// before visibility filtering.
func (s *EstimateService) collect(ctx context.Context, from, to billing.YearMonth) ([]entryRow, error) {
	rows, err := s.collectPurchases(ctx, from, to)
	if err != nil {
		return nil, err
	}
	recurring, err := s.collectRecurring(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return append(rows, recurring...), nil
}

func (s *EstimateService) collectPurchases(ctx context.Context, from, to billing.YearMonth) ([]entryRow, error) {
	var rows []entryRow
	for ym := from; ym.BeforeOrEqual(to); ym = ym.Add(1) {
		purchases, err := s.purchases.PurchasesByBillingMonth(ctx, ym)
		if err != nil {
			return nil, fmt.Errorf("loading purchases for %s: %w", ym, err)
		}
		for _, p := range purchases {
			policy, err := s.registry.Policy(ctx, p.CardKey)
			if err != nil {
				if billing.IsNotFound(err) {
					continue // retired card, history only
				}
				return nil, err
			}
			rows = append(rows, entryRow{
				Entry: Entry{
					Kind:        EntryPurchase,
					SourceID:    string(p.ID),
					Label:       p.Memo,
					Amount:      p.Amount,
					UsageMonth:  p.UsageMonth,
					IsSplit:     p.IsSplit,
					SplitPart:   p.SplitPart,
					IsBonus:     p.IsBonus,
					PaymentDate: p.PaymentDate,
				},
				cardKey:      p.CardKey,
				billingMonth: p.BillingMonth,
				openThrough:  s.purchaseOpenThrough(p, policy),
			})
		}
	}
	return rows, nil
}

// purchaseOpenThrough computes the last day a purchase still counts as
// upcoming.
func (s *EstimateService) purchaseOpenThrough(p Purchase, policy billing.CardPolicy) time.Time {
	if p.IsBonus && p.PaymentDate != nil {
		// Bonus entries stay visible until the bonus payment itself.
		return p.PaymentDate.AddDate(0, 0, -1)
	}
	usage := p.UsageMonth
	if p.SplitPart == billing.SplitSecond {
		// The second installment's own period closes a month later.
		usage = usage.Add(1)
	}
	return billing.ClosingDate(usage, policy)
}

func (s *EstimateService) collectRecurring(ctx context.Context, from, to billing.YearMonth) ([]entryRow, error) {
	templates, err := s.templates.ActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	currentMonth := billing.YearMonthOf(s.now())
	var rows []entryRow
	for usage := from.Add(-snapshotBackfill); usage.BeforeOrEqual(to); usage = usage.Add(1) {
		for _, t := range templates {
			if !t.AppliesTo(usage) {
				continue
			}
			snap, err := s.resolveSnapshot(ctx, t, usage, currentMonth)
			if err != nil {
				return nil, err
			}
			if snap.Skipped() {
				continue
			}
			tRows, err := s.recurringRows(ctx, t, snap)
			if err != nil {
				return nil, err
			}
			for _, r := range tRows {
				if r.billingMonth.AfterOrEqual(from) && r.billingMonth.BeforeOrEqual(to) {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows, nil
}

// resolveSnapshot returns the effective snapshot of a (template, month)
// pair. Current and future months materialize on first read; past months
// are never written, an unmaterialized past month reads as the template's
// current values.
func (s *EstimateService) resolveSnapshot(ctx context.Context, t RecurringTemplate, usage, currentMonth billing.YearMonth) (RecurringSnapshot, error) {
	if usage.AfterOrEqual(currentMonth) {
		return s.seeder.Materialize(ctx, t, usage)
	}
	snap, err := s.snapshots.GetSnapshot(ctx, t.ID, usage)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, billing.ErrSnapshotNotFound) {
		return RecurringSnapshot{
			TemplateID: t.ID,
			UsageMonth: usage,
			Amount:     t.Amount,
			CardKey:    t.CardKey,
			IsSplit:    t.IsSplit,
		}, nil
	}
	return RecurringSnapshot{}, fmt.Errorf("loading snapshot %s %s: %w", t.ID, usage, err)
}

// recurringRows projects one snapshot into its billed entries: one row
// normally, two rows (consecutive billing months) for a split snapshot.
func (s *EstimateService) recurringRows(ctx context.Context, t RecurringTemplate, snap RecurringSnapshot) ([]entryRow, error) {
	policy, err := s.registry.Policy(ctx, snap.CardKey)
	if err != nil {
		if billing.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	chargeDate := t.ChargeDate(snap.UsageMonth)
	if snap.PurchaseDate != nil {
		chargeDate = *snap.PurchaseDate
	}
	firstBilling := billing.BillingMonthForCharge(chargeDate.Day(), snap.UsageMonth, policy)

	base := Entry{
		Kind:       EntryRecurring,
		SourceID:   string(t.ID),
		Label:      t.Label,
		UsageMonth: snap.UsageMonth,
	}

	if !snap.IsSplit {
		e := base
		e.Amount = snap.Amount
		return []entryRow{{
			Entry:        e,
			cardKey:      snap.CardKey,
			billingMonth: firstBilling,
			openThrough:  billing.ClosingDate(snap.UsageMonth, policy),
		}}, nil
	}

	firstAmount, secondAmount := billing.SplitAmount(snap.Amount)
	first := base
	first.Amount = firstAmount
	first.IsSplit = true
	first.SplitPart = billing.SplitFirst
	second := base
	second.Amount = secondAmount
	second.IsSplit = true
	second.SplitPart = billing.SplitSecond
	return []entryRow{
		{
			Entry:        first,
			cardKey:      snap.CardKey,
			billingMonth: firstBilling,
			openThrough:  billing.ClosingDate(snap.UsageMonth, policy),
		},
		{
			Entry:        second,
			cardKey:      snap.CardKey,
			billingMonth: firstBilling.Add(1),
			openThrough:  billing.ClosingDate(snap.UsageMonth.Add(1), policy),
		},
	}, nil
}

// =============================================================================
// GROUPING
// =============================================================================

// summarize groups rows by billing month and card, in registry order,
// and fills the per-card and per-month totals.
func (s *EstimateService) summarize(ctx context.Context, from, to billing.YearMonth, rows []entryRow) ([]MonthSummary, error) {
	policies, err := s.registry.Policies(ctx)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[billing.YearMonth]map[billing.CardKey][]entryRow)
	for _, r := range rows {
		if byMonth[r.billingMonth] == nil {
			byMonth[r.billingMonth] = make(map[billing.CardKey][]entryRow)
		}
		byMonth[r.billingMonth][r.cardKey] = append(byMonth[r.billingMonth][r.cardKey], r)
	}

	var out []MonthSummary
	for ym := from; ym.BeforeOrEqual(to); ym = ym.Add(1) {
		month := MonthSummary{BillingMonth: ym}
		for _, policy := range policies {
			cardRows := byMonth[ym][policy.Key]
			if len(cardRows) == 0 {
				continue
			}
			sort.SliceStable(cardRows, func(i, j int) bool {
				if cardRows[i].Kind != cardRows[j].Kind {
					return cardRows[i].Kind == EntryPurchase
				}
				return cardRows[i].UsageMonth.Before(cardRows[j].UsageMonth)
			})

			card := CardSummary{
				CardKey:     policy.Key,
				Title:       policy.Title,
				PaymentDate: billing.PaymentDate(ym, policy, s.calendar),
			}
			for _, r := range cardRows {
				card.Entries = append(card.Entries, r.Entry)
				card.Total += r.Amount
				if r.Kind == EntryPurchase {
					card.PurchaseSubtotal += r.Amount
				} else {
					card.RecurringSubtotal += r.Amount
				}
			}
			month.Cards = append(month.Cards, card)
			month.Total += card.Total
		}
		out = append(out, month)
	}
	return out, nil
}

func (s *EstimateService) today() time.Time {
	n := s.now()
	return billing.NewDate(n.Year(), n.Month(), n.Day())
}

func filterRows(rows []entryRow, keep func(entryRow) bool) []entryRow {
	out := rows[:0:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
