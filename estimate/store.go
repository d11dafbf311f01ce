/*
store.go - Persistence interfaces of the estimate layer

PURPOSE:
  The services in this package talk to storage through the interfaces
  below. Two implementations exist: an in-memory store for tests
  (store/memory) and the sqlite store for production (store/sqlite).

CONVENTIONS:
  - Every method takes a context and returns a wrapped sentinel from the
    billing package on referential failures.
  - SnapshotStore.Create returns billing.ErrSnapshotExists when the
    (template, usage month) row already exists; callers use this to make
    materialization idempotent under concurrency.
*/
package estimate

import (
	"context"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// PURCHASES
// =============================================================================

type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, id PurchaseID) (Purchase, error)
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeletePurchase(ctx context.Context, id PurchaseID) error

	// PurchasesByBillingMonth returns all purchases billed in the given
	// month, across all cards.
	PurchasesByBillingMonth(ctx context.Context, ym billing.YearMonth) ([]Purchase, error)

	// PurchasesBySplitGroup returns both rows of a split pair.
	PurchasesBySplitGroup(ctx context.Context, group SplitGroupID) ([]Purchase, error)
}

// =============================================================================
// RECURRING TEMPLATES AND SNAPSHOTS
// =============================================================================

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t RecurringTemplate) error
	GetTemplate(ctx context.Context, id TemplateID) (RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, t RecurringTemplate) error

	// ActiveTemplates returns all active templates.
	ActiveTemplates(ctx context.Context) ([]RecurringTemplate, error)
}

type SnapshotStore interface {
	// CreateSnapshot inserts a new snapshot row. Returns
	// billing.ErrSnapshotExists if the (template, usage month) pair is
	// already materialized.
	CreateSnapshot(ctx context.Context, s RecurringSnapshot) error

	GetSnapshot(ctx context.Context, id TemplateID, ym billing.YearMonth) (RecurringSnapshot, error)
	UpdateSnapshot(ctx context.Context, s RecurringSnapshot) error
	DeleteSnapshot(ctx context.Context, id TemplateID, ym billing.YearMonth) error

	// SnapshotsByTemplate returns all materialized months of a template.
	SnapshotsByTemplate(ctx context.Context, id TemplateID) ([]RecurringSnapshot, error)

	// DeleteSnapshotsByTemplate removes every snapshot of a template.
	// Used when a template is retired outright.
	DeleteSnapshotsByTemplate(ctx context.Context, id TemplateID) error
}

// =============================================================================
// MONTHLY PLAN LINE ITEMS
// =============================================================================

// PlanStore holds the per-month plan line items that estimate totals are
// reflected into. Line items are keyed by (billing month, item key) where
// the item key is the card key for card withdrawal lines.
type PlanStore interface {
	SetLineItem(ctx context.Context, ym billing.YearMonth, key string, amount int64) error
	GetLineItems(ctx context.Context, ym billing.YearMonth) (map[string]int64, error)
}
