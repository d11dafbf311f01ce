// Package store provides estimate store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/estimate"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every estimate store interface on maps guarded by a
// single mutex.
type Memory struct {
	mu        sync.RWMutex
	purchases map[estimate.PurchaseID]estimate.Purchase
	templates map[estimate.TemplateID]estimate.RecurringTemplate
	snapshots map[snapshotKey]estimate.RecurringSnapshot
	plan      map[planKey]int64

	templateOrder []estimate.TemplateID
}

type snapshotKey struct {
	TemplateID estimate.TemplateID
	UsageMonth billing.YearMonth
}

type planKey struct {
	Month billing.YearMonth
	Item  string
}

func NewMemory() *Memory {
	return &Memory{
		purchases: make(map[estimate.PurchaseID]estimate.Purchase),
		templates: make(map[estimate.TemplateID]estimate.RecurringTemplate),
		snapshots: make(map[snapshotKey]estimate.RecurringSnapshot),
		plan:      make(map[planKey]int64),
	}
}

// =============================================================================
// PURCHASES
// =============================================================================

func (m *Memory) CreatePurchase(_ context.Context, p estimate.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.purchases[p.ID]; dup {
		return fmt.Errorf("purchase %s already exists", p.ID)
	}
	m.purchases[p.ID] = p
	return nil
}

func (m *Memory) GetPurchase(_ context.Context, id estimate.PurchaseID) (estimate.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	if !ok {
		return estimate.Purchase{}, fmt.Errorf("purchase %s: %w", id, billing.ErrPurchaseNotFound)
	}
	return p, nil
}

func (m *Memory) UpdatePurchase(_ context.Context, p estimate.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.purchases[p.ID]; !ok {
		return fmt.Errorf("purchase %s: %w", p.ID, billing.ErrPurchaseNotFound)
	}
	m.purchases[p.ID] = p
	return nil
}

func (m *Memory) DeletePurchase(_ context.Context, id estimate.PurchaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.purchases[id]; !ok {
		return fmt.Errorf("purchase %s: %w", id, billing.ErrPurchaseNotFound)
	}
	delete(m.purchases, id)
	return nil
}

func (m *Memory) PurchasesByBillingMonth(_ context.Context, ym billing.YearMonth) ([]estimate.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []estimate.Purchase
	for _, p := range m.purchases {
		if p.BillingMonth == ym {
			out = append(out, p)
		}
	}
	sortPurchases(out)
	return out, nil
}

func (m *Memory) PurchasesBySplitGroup(_ context.Context, group estimate.SplitGroupID) ([]estimate.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []estimate.Purchase
	for _, p := range m.purchases {
		if p.SplitGroup == group && group != "" {
			out = append(out, p)
		}
	}
	sortPurchases(out)
	return out, nil
}

// sortPurchases orders by creation time then id for stable reads off the
// unordered map.
func sortPurchases(ps []estimate.Purchase) {
	for i := range ps {
		for j := i + 1; j < len(ps); j++ {
			a, b := ps[i], ps[j]
			if b.CreatedAt.Before(a.CreatedAt) ||
				(b.CreatedAt.Equal(a.CreatedAt) && b.ID < a.ID) {
				ps[i], ps[j] = b, a
			}
		}
	}
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (m *Memory) CreateTemplate(_ context.Context, t estimate.RecurringTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.templates[t.ID]; dup {
		return fmt.Errorf("template %s already exists", t.ID)
	}
	m.templates[t.ID] = t
	m.templateOrder = append(m.templateOrder, t.ID)
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id estimate.TemplateID) (estimate.RecurringTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return estimate.RecurringTemplate{}, fmt.Errorf("template %s: %w", id, billing.ErrTemplateNotFound)
	}
	return t, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, t estimate.RecurringTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; !ok {
		return fmt.Errorf("template %s: %w", t.ID, billing.ErrTemplateNotFound)
	}
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) ActiveTemplates(_ context.Context) ([]estimate.RecurringTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []estimate.RecurringTemplate
	for _, id := range m.templateOrder {
		if t := m.templates[id]; t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) CreateSnapshot(_ context.Context, s estimate.RecurringSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{TemplateID: s.TemplateID, UsageMonth: s.UsageMonth}
	if _, dup := m.snapshots[k]; dup {
		return fmt.Errorf("snapshot %s %s: %w", s.TemplateID, s.UsageMonth, billing.ErrSnapshotExists)
	}
	m.snapshots[k] = s
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, id estimate.TemplateID, ym billing.YearMonth) (estimate.RecurringSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[snapshotKey{TemplateID: id, UsageMonth: ym}]
	if !ok {
		return estimate.RecurringSnapshot{}, fmt.Errorf("snapshot %s %s: %w", id, ym, billing.ErrSnapshotNotFound)
	}
	return s, nil
}

func (m *Memory) UpdateSnapshot(_ context.Context, s estimate.RecurringSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{TemplateID: s.TemplateID, UsageMonth: s.UsageMonth}
	if _, ok := m.snapshots[k]; !ok {
		return fmt.Errorf("snapshot %s %s: %w", s.TemplateID, s.UsageMonth, billing.ErrSnapshotNotFound)
	}
	m.snapshots[k] = s
	return nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, id estimate.TemplateID, ym billing.YearMonth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{TemplateID: id, UsageMonth: ym}
	if _, ok := m.snapshots[k]; !ok {
		return fmt.Errorf("snapshot %s %s: %w", id, ym, billing.ErrSnapshotNotFound)
	}
	delete(m.snapshots, k)
	return nil
}

func (m *Memory) SnapshotsByTemplate(_ context.Context, id estimate.TemplateID) ([]estimate.RecurringSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []estimate.RecurringSnapshot
	for k, s := range m.snapshots {
		if k.TemplateID == id {
			out = append(out, s)
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].UsageMonth.Before(out[i].UsageMonth) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *Memory) DeleteSnapshotsByTemplate(_ context.Context, id estimate.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.snapshots {
		if k.TemplateID == id {
			delete(m.snapshots, k)
		}
	}
	return nil
}

// =============================================================================
// PLAN LINE ITEMS
// =============================================================================

func (m *Memory) SetLineItem(_ context.Context, ym billing.YearMonth, key string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan[planKey{Month: ym, Item: key}] = amount
	return nil
}

func (m *Memory) GetLineItems(_ context.Context, ym billing.YearMonth) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for k, v := range m.plan {
		if k.Month == ym {
			out[k.Item] = v
		}
	}
	return out, nil
}
