/*
snapshot.go - Recurring-charge templates and per-month snapshots

PURPOSE:
  Recurring charges live in two layers. The template is the CURRENT
  intent; the snapshot is the frozen value of one (template, month) pair.
  Months are materialized lazily, the first time something looks at them,
  and frozen months only follow later template edits under strict
  conditions. This keeps history stable: editing the gym fee today never
  rewrites what last March's estimate said.

LIFECYCLE OF A (TEMPLATE, MONTH) PAIR:
  unmaterialized -> materialized (unmodified) -> materialized (modified)

  - Materialization copies the template's values verbatim. It is
    idempotent: concurrent materializations of the same pair converge on
    the single stored row.
  - A per-month edit marks the snapshot modified. Modified snapshots
    never follow template edits again.
  - A per-month delete is a modified snapshot with amount zero, so the
    deletion itself survives template edits.
  - Reverting a month removes the snapshot row; the month re-seeds from
    the current template on its next materialization.

PROPAGATION RULE:
  A template edit rewrites only snapshots that are (a) unmodified,
  (b) still carrying the pre-edit template values, and (c) not yet past:
  the month's charge date is today or later.
*/
package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/billing-engine/billing"
)

// SnapshotEdit is a partial per-month override. Nil fields keep the
// snapshot's current value.
type SnapshotEdit struct {
	Amount       *int64
	CardKey      *billing.CardKey
	IsSplit      *bool
	PurchaseDate *time.Time
}

// TemplateInput is the write payload for creating or editing a template.
type TemplateInput struct {
	Label         string
	CardKey       billing.CardKey
	Amount        int64
	PaymentDay    int
	OddMonthsOnly bool
	IsSplit       bool
}

// SnapshotService owns the template and snapshot write paths.
type SnapshotService struct {
	templates TemplateStore
	snapshots SnapshotStore
	registry  billing.Registry
	now       func() time.Time
}

func NewSnapshotService(templates TemplateStore, snapshots SnapshotStore, registry billing.Registry) *SnapshotService {
	return &SnapshotService{
		templates: templates,
		snapshots: snapshots,
		registry:  registry,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. For tests.
func (s *SnapshotService) WithClock(now func() time.Time) *SnapshotService {
	s.now = now
	return s
}

// =============================================================================
// TEMPLATES
// =============================================================================

// CreateTemplate validates the input against the card registry and stores
// a new active template.
func (s *SnapshotService) CreateTemplate(ctx context.Context, in TemplateInput) (RecurringTemplate, error) {
	policy, err := s.registry.Policy(ctx, in.CardKey)
	if err != nil {
		return RecurringTemplate{}, err
	}
	if in.IsSplit && !policy.AllowsSplit {
		return RecurringTemplate{}, fmt.Errorf("card %q: %w", in.CardKey, billing.ErrSplitNotSupported)
	}
	if in.PaymentDay < 1 || in.PaymentDay > 31 {
		return RecurringTemplate{}, fmt.Errorf("payment day %d out of range 1-31: %w", in.PaymentDay, billing.ErrInvalidPolicy)
	}

	now := s.now()
	t := RecurringTemplate{
		ID:            TemplateID(uuid.NewString()),
		Label:         in.Label,
		CardKey:       in.CardKey,
		Amount:        in.Amount,
		PaymentDay:    in.PaymentDay,
		OddMonthsOnly: in.OddMonthsOnly,
		IsSplit:       in.IsSplit,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		return RecurringTemplate{}, fmt.Errorf("storing template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all active templates.
func (s *SnapshotService) ListTemplates(ctx context.Context) ([]RecurringTemplate, error) {
	return s.templates.ActiveTemplates(ctx)
}

// UpdateTemplate rewrites a template's intent and propagates the new
// values to the snapshots still eligible to follow: unmodified, carrying
// the pre-edit values, and with a charge date not yet past.
func (s *SnapshotService) UpdateTemplate(ctx context.Context, id TemplateID, in TemplateInput) (RecurringTemplate, error) {
	old, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return RecurringTemplate{}, err
	}
	policy, err := s.registry.Policy(ctx, in.CardKey)
	if err != nil {
		return RecurringTemplate{}, err
	}
	if in.IsSplit && !policy.AllowsSplit {
		return RecurringTemplate{}, fmt.Errorf("card %q: %w", in.CardKey, billing.ErrSplitNotSupported)
	}

	now := s.now()
	updated := old
	updated.Label = in.Label
	updated.CardKey = in.CardKey
	updated.Amount = in.Amount
	updated.PaymentDay = in.PaymentDay
	updated.OddMonthsOnly = in.OddMonthsOnly
	updated.IsSplit = in.IsSplit
	updated.UpdatedAt = now
	if err := s.templates.UpdateTemplate(ctx, updated); err != nil {
		return RecurringTemplate{}, fmt.Errorf("updating template: %w", err)
	}

	snaps, err := s.snapshots.SnapshotsByTemplate(ctx, id)
	if err != nil {
		return RecurringTemplate{}, fmt.Errorf("loading snapshots for propagation: %w", err)
	}
	today := billing.NewDate(now.Year(), now.Month(), now.Day())
	for _, snap := range snaps {
		if snap.Modified {
			continue
		}
		if !snap.matchesTemplateValues(old.Amount, old.CardKey, old.IsSplit) {
			continue
		}
		if updated.ChargeDate(snap.UsageMonth).Before(today) {
			continue
		}
		snap.Amount = updated.Amount
		snap.CardKey = updated.CardKey
		snap.IsSplit = updated.IsSplit
		snap.UpdatedAt = now
		if err := s.snapshots.UpdateSnapshot(ctx, snap); err != nil {
			return RecurringTemplate{}, fmt.Errorf("propagating to %s: %w", snap.UsageMonth, err)
		}
	}
	return updated, nil
}

// DeleteTemplate retires a template for all months: the template is
// deactivated and every materialized snapshot is purged.
func (s *SnapshotService) DeleteTemplate(ctx context.Context, id TemplateID) error {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	t.Active = false
	t.UpdatedAt = s.now()
	if err := s.templates.UpdateTemplate(ctx, t); err != nil {
		return fmt.Errorf("deactivating template: %w", err)
	}
	if err := s.snapshots.DeleteSnapshotsByTemplate(ctx, id); err != nil {
		return fmt.Errorf("purging snapshots: %w", err)
	}
	return nil
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

// Materialize ensures a snapshot row exists for the (template, month)
// pair and returns it. The first call seeds the row from the template's
// current values; later calls, and concurrent racers, get the stored row.
func (s *SnapshotService) Materialize(ctx context.Context, t RecurringTemplate, ym billing.YearMonth) (RecurringSnapshot, error) {
	now := s.now()
	snap := RecurringSnapshot{
		TemplateID: t.ID,
		UsageMonth: ym,
		Amount:     t.Amount,
		CardKey:    t.CardKey,
		IsSplit:    t.IsSplit,
		Modified:   false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.snapshots.CreateSnapshot(ctx, snap)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, billing.ErrSnapshotExists) {
		return RecurringSnapshot{}, fmt.Errorf("materializing %s %s: %w", t.ID, ym, err)
	}
	// Lost the race (or the month was already materialized); the stored
	// row wins.
	return s.snapshots.GetSnapshot(ctx, t.ID, ym)
}

// =============================================================================
// PER-MONTH OVERRIDES
// =============================================================================

// EditSnapshot applies a per-month override. The month is materialized
// first if needed, then the edit lands and the snapshot stops following
// template changes.
func (s *SnapshotService) EditSnapshot(ctx context.Context, id TemplateID, ym billing.YearMonth, edit SnapshotEdit) (RecurringSnapshot, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return RecurringSnapshot{}, err
	}
	snap, err := s.Materialize(ctx, t, ym)
	if err != nil {
		return RecurringSnapshot{}, err
	}

	if edit.Amount != nil {
		snap.Amount = *edit.Amount
	}
	if edit.CardKey != nil {
		if _, err := s.registry.Policy(ctx, *edit.CardKey); err != nil {
			return RecurringSnapshot{}, err
		}
		snap.CardKey = *edit.CardKey
	}
	if edit.IsSplit != nil {
		snap.IsSplit = *edit.IsSplit
	}
	if edit.PurchaseDate != nil {
		snap.PurchaseDate = edit.PurchaseDate
	}
	snap.Modified = true
	snap.UpdatedAt = s.now()

	if err := s.snapshots.UpdateSnapshot(ctx, snap); err != nil {
		return RecurringSnapshot{}, fmt.Errorf("storing snapshot edit: %w", err)
	}
	return snap, nil
}

// DeleteForMonth suppresses a template's charge for one month only. The
// suppression is stored as a modified zero-amount snapshot, so it holds
// even when the template is edited afterwards.
func (s *SnapshotService) DeleteForMonth(ctx context.Context, id TemplateID, ym billing.YearMonth) error {
	zero := int64(0)
	_, err := s.EditSnapshot(ctx, id, ym, SnapshotEdit{Amount: &zero})
	return err
}

// Revert discards a month's override entirely. The snapshot row is
// removed; the month re-seeds from the current template values the next
// time it is materialized.
func (s *SnapshotService) Revert(ctx context.Context, id TemplateID, ym billing.YearMonth) error {
	if err := s.snapshots.DeleteSnapshot(ctx, id, ym); err != nil {
		return fmt.Errorf("reverting %s %s: %w", id, ym, err)
	}
	return nil
}
