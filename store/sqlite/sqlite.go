/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces of the estimate layer plus the
  card-policy registry and the holiday calendar using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  billing.Registry:        Card policy lookup
  billing.HolidayCalendar: Configured non-business days
  estimate.PurchaseStore:  One-off purchase rows
  estimate.TemplateStore:  Recurring-charge templates
  estimate.SnapshotStore:  Per-month frozen template values
  estimate.PlanStore:      Monthly plan line items

KEY TABLES:
  card_policies:       Closing rule and payment day per card
  purchases:           One row per entry, two rows per split purchase
  recurring_templates: Current intent of each recurring charge
  recurring_snapshots: Frozen (template, month) values
  plan_items:          Reflected monthly plan lines
  holidays:            Configured non-business days

SNAPSHOT UNIQUENESS:
  recurring_snapshots carries UNIQUE(template_id, usage_month). A
  conflicting insert maps to billing.ErrSnapshotExists, which is what
  makes lazy materialization idempotent under concurrent readers.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - estimate/store.go: Interface definitions
  - estimate/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/estimate"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Card policies
	CREATE TABLE IF NOT EXISTS card_policies (
		key TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		closing_type TEXT NOT NULL,
		closing_day INTEGER NOT NULL DEFAULT 0,
		payment_day INTEGER NOT NULL,
		allows_split INTEGER NOT NULL DEFAULT 0,
		allows_bonus INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		position INTEGER NOT NULL
	);

	-- One-off purchases. A split purchase is two rows sharing split_group.
	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		card_key TEXT NOT NULL REFERENCES card_policies(key),
		amount INTEGER NOT NULL,
		amount_usd TEXT,
		purchase_date TEXT,
		usage_month TEXT NOT NULL,
		billing_month TEXT NOT NULL,
		payment_date TEXT,
		is_split INTEGER NOT NULL DEFAULT 0,
		is_bonus INTEGER NOT NULL DEFAULT 0,
		split_part INTEGER NOT NULL DEFAULT 0,
		split_group TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_billing_month
		ON purchases(billing_month);
	CREATE INDEX IF NOT EXISTS idx_purchases_split_group
		ON purchases(split_group) WHERE split_group != '';

	-- Recurring charge templates
	CREATE TABLE IF NOT EXISTS recurring_templates (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		card_key TEXT NOT NULL REFERENCES card_policies(key),
		amount INTEGER NOT NULL,
		payment_day INTEGER NOT NULL,
		odd_months_only INTEGER NOT NULL DEFAULT 0,
		is_split INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Frozen per-month template values. The UNIQUE constraint is what
	-- makes concurrent materialization converge on one row.
	CREATE TABLE IF NOT EXISTS recurring_snapshots (
		template_id TEXT NOT NULL REFERENCES recurring_templates(id),
		usage_month TEXT NOT NULL,
		amount INTEGER NOT NULL,
		card_key TEXT NOT NULL,
		is_split INTEGER NOT NULL DEFAULT 0,
		purchase_date TEXT,
		modified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(template_id, usage_month)
	);

	-- Reflected monthly plan line items
	CREATE TABLE IF NOT EXISTS plan_items (
		year_month TEXT NOT NULL,
		item_key TEXT NOT NULL,
		amount INTEGER NOT NULL,
		PRIMARY KEY (year_month, item_key)
	);

	-- Configured non-business days
	CREATE TABLE IF NOT EXISTS holidays (
		day TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// =============================================================================
// CARD POLICIES (billing.Registry)
// =============================================================================

// SeedPolicies inserts or replaces the full card policy set, preserving
// the given order for listing.
func (s *Store) SeedPolicies(ctx context.Context, policies []billing.CardPolicy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning policy seed: %w", err)
	}
	defer tx.Rollback()

	for i, p := range policies {
		if err := p.Validate(); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO card_policies
				(key, title, closing_type, closing_day, payment_day, allows_split, allows_bonus, active, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(p.Key), p.Title, string(p.Closing.Type), p.Closing.Day,
			p.PaymentDay, p.AllowsSplit, p.AllowsBonus, p.Active, i)
		if err != nil {
			return fmt.Errorf("seeding policy %s: %w", p.Key, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Policy(ctx context.Context, key billing.CardKey) (billing.CardPolicy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, title, closing_type, closing_day, payment_day, allows_split, allows_bonus, active
		FROM card_policies WHERE key = ? AND active = 1`, string(key))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.CardPolicy{}, fmt.Errorf("card %q: %w", key, billing.ErrPolicyNotFound)
	}
	return p, err
}

func (s *Store) Policies(ctx context.Context) ([]billing.CardPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, title, closing_type, closing_day, payment_day, allows_split, allows_bonus, active
		FROM card_policies WHERE active = 1 ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer rows.Close()

	var out []billing.CardPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (billing.CardPolicy, error) {
	var p billing.CardPolicy
	var key, closingType string
	err := row.Scan(&key, &p.Title, &closingType, &p.Closing.Day,
		&p.PaymentDay, &p.AllowsSplit, &p.AllowsBonus, &p.Active)
	if err != nil {
		return billing.CardPolicy{}, err
	}
	p.Key = billing.CardKey(key)
	p.Closing.Type = billing.ClosingRuleType(closingType)
	return p, nil
}

// =============================================================================
// HOLIDAYS (billing.HolidayCalendar)
// =============================================================================

// AddHoliday registers a configured non-business day.
func (s *Store) AddHoliday(ctx context.Context, h billing.Holiday) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO holidays (day, name) VALUES (?, ?)`,
		h.Date.Format("2006-01-02"), h.Name)
	if err != nil {
		return fmt.Errorf("storing holiday: %w", err)
	}
	return nil
}

// IsHoliday satisfies billing.HolidayCalendar. Lookup failures read as
// "not a holiday"; a broken calendar must not block date arithmetic.
func (s *Store) IsHoliday(date time.Time) bool {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM holidays WHERE day = ?`,
		date.Format("2006-01-02")).Scan(&n)
	return err == nil && n > 0
}

// =============================================================================
// PURCHASES (estimate.PurchaseStore)
// =============================================================================

const purchaseColumns = `id, card_key, amount, amount_usd, purchase_date, usage_month,
	billing_month, payment_date, is_split, is_bonus, split_part, split_group, memo,
	created_at, updated_at`

func (s *Store) CreatePurchase(ctx context.Context, p estimate.Purchase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.CardKey), p.Amount, decimalString(p.AmountUSD),
		timeString(p.PurchaseDate), p.UsageMonth.String(), p.BillingMonth.String(),
		timeString(p.PaymentDate), p.IsSplit, p.IsBonus, int(p.SplitPart),
		string(p.SplitGroup), p.Memo,
		p.CreatedAt.UTC().Format(time.RFC3339), p.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting purchase %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPurchase(ctx context.Context, id estimate.PurchaseID) (estimate.Purchase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, string(id))
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return estimate.Purchase{}, fmt.Errorf("purchase %s: %w", id, billing.ErrPurchaseNotFound)
	}
	return p, err
}

func (s *Store) UpdatePurchase(ctx context.Context, p estimate.Purchase) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases SET
			card_key = ?, amount = ?, amount_usd = ?, purchase_date = ?,
			usage_month = ?, billing_month = ?, payment_date = ?,
			is_split = ?, is_bonus = ?, split_part = ?, split_group = ?,
			memo = ?, updated_at = ?
		WHERE id = ?`,
		string(p.CardKey), p.Amount, decimalString(p.AmountUSD), timeString(p.PurchaseDate),
		p.UsageMonth.String(), p.BillingMonth.String(), timeString(p.PaymentDate),
		p.IsSplit, p.IsBonus, int(p.SplitPart), string(p.SplitGroup),
		p.Memo, p.UpdatedAt.UTC().Format(time.RFC3339), string(p.ID))
	if err != nil {
		return fmt.Errorf("updating purchase %s: %w", p.ID, err)
	}
	return requireRow(res, fmt.Errorf("purchase %s: %w", p.ID, billing.ErrPurchaseNotFound))
}

func (s *Store) DeletePurchase(ctx context.Context, id estimate.PurchaseID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting purchase %s: %w", id, err)
	}
	return requireRow(res, fmt.Errorf("purchase %s: %w", id, billing.ErrPurchaseNotFound))
}

func (s *Store) PurchasesByBillingMonth(ctx context.Context, ym billing.YearMonth) ([]estimate.Purchase, error) {
	return s.purchaseQuery(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE billing_month = ? ORDER BY created_at, id`,
		ym.String())
}

func (s *Store) PurchasesBySplitGroup(ctx context.Context, group estimate.SplitGroupID) ([]estimate.Purchase, error) {
	if group == "" {
		return nil, nil
	}
	return s.purchaseQuery(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE split_group = ? ORDER BY split_part`,
		string(group))
}

func (s *Store) purchaseQuery(ctx context.Context, query string, args ...any) ([]estimate.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying purchases: %w", err)
	}
	defer rows.Close()

	var out []estimate.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchase(row scanner) (estimate.Purchase, error) {
	var p estimate.Purchase
	var id, cardKey, usageMonth, billingMonth, splitGroup string
	var amountUSD, purchaseDate, paymentDate sql.NullString
	var splitPart int
	var createdAt, updatedAt string

	err := row.Scan(&id, &cardKey, &p.Amount, &amountUSD, &purchaseDate,
		&usageMonth, &billingMonth, &paymentDate, &p.IsSplit, &p.IsBonus,
		&splitPart, &splitGroup, &p.Memo, &createdAt, &updatedAt)
	if err != nil {
		return estimate.Purchase{}, err
	}

	p.ID = estimate.PurchaseID(id)
	p.CardKey = billing.CardKey(cardKey)
	p.SplitPart = billing.SplitPart(splitPart)
	p.SplitGroup = estimate.SplitGroupID(splitGroup)
	if p.UsageMonth, err = billing.ParseYearMonth(usageMonth); err != nil {
		return estimate.Purchase{}, err
	}
	if p.BillingMonth, err = billing.ParseYearMonth(billingMonth); err != nil {
		return estimate.Purchase{}, err
	}
	if p.AmountUSD, err = parseDecimal(amountUSD); err != nil {
		return estimate.Purchase{}, err
	}
	if p.PurchaseDate, err = parseTime(purchaseDate, "2006-01-02"); err != nil {
		return estimate.Purchase{}, err
	}
	if p.PaymentDate, err = parseTime(paymentDate, "2006-01-02"); err != nil {
		return estimate.Purchase{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return estimate.Purchase{}, err
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return estimate.Purchase{}, err
	}
	return p, nil
}

// =============================================================================
// TEMPLATES (estimate.TemplateStore)
// =============================================================================

const templateColumns = `id, label, card_key, amount, payment_day, odd_months_only,
	is_split, active, created_at, updated_at`

func (s *Store) CreateTemplate(ctx context.Context, t estimate.RecurringTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), t.Label, string(t.CardKey), t.Amount, t.PaymentDay,
		t.OddMonthsOnly, t.IsSplit, t.Active,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting template %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id estimate.TemplateID) (estimate.RecurringTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, string(id))
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return estimate.RecurringTemplate{}, fmt.Errorf("template %s: %w", id, billing.ErrTemplateNotFound)
	}
	return t, err
}

func (s *Store) UpdateTemplate(ctx context.Context, t estimate.RecurringTemplate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_templates SET
			label = ?, card_key = ?, amount = ?, payment_day = ?,
			odd_months_only = ?, is_split = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		t.Label, string(t.CardKey), t.Amount, t.PaymentDay,
		t.OddMonthsOnly, t.IsSplit, t.Active,
		t.UpdatedAt.UTC().Format(time.RFC3339), string(t.ID))
	if err != nil {
		return fmt.Errorf("updating template %s: %w", t.ID, err)
	}
	return requireRow(res, fmt.Errorf("template %s: %w", t.ID, billing.ErrTemplateNotFound))
}

func (s *Store) ActiveTemplates(ctx context.Context) ([]estimate.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var out []estimate.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(row scanner) (estimate.RecurringTemplate, error) {
	var t estimate.RecurringTemplate
	var id, cardKey, createdAt, updatedAt string
	err := row.Scan(&id, &t.Label, &cardKey, &t.Amount, &t.PaymentDay,
		&t.OddMonthsOnly, &t.IsSplit, &t.Active, &createdAt, &updatedAt)
	if err != nil {
		return estimate.RecurringTemplate{}, err
	}
	t.ID = estimate.TemplateID(id)
	t.CardKey = billing.CardKey(cardKey)
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return estimate.RecurringTemplate{}, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return estimate.RecurringTemplate{}, err
	}
	return t, nil
}

// =============================================================================
// SNAPSHOTS (estimate.SnapshotStore)
// =============================================================================

const snapshotColumns = `template_id, usage_month, amount, card_key, is_split,
	purchase_date, modified, created_at, updated_at`

func (s *Store) CreateSnapshot(ctx context.Context, snap estimate.RecurringSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(snap.TemplateID), snap.UsageMonth.String(), snap.Amount,
		string(snap.CardKey), snap.IsSplit, timeString(snap.PurchaseDate), snap.Modified,
		snap.CreatedAt.UTC().Format(time.RFC3339), snap.UpdatedAt.UTC().Format(time.RFC3339))
	if isUniqueViolation(err) {
		return fmt.Errorf("snapshot %s %s: %w", snap.TemplateID, snap.UsageMonth, billing.ErrSnapshotExists)
	}
	if err != nil {
		return fmt.Errorf("inserting snapshot %s %s: %w", snap.TemplateID, snap.UsageMonth, err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, id estimate.TemplateID, ym billing.YearMonth) (estimate.RecurringSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM recurring_snapshots
		WHERE template_id = ? AND usage_month = ?`, string(id), ym.String())
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return estimate.RecurringSnapshot{}, fmt.Errorf("snapshot %s %s: %w", id, ym, billing.ErrSnapshotNotFound)
	}
	return snap, err
}

func (s *Store) UpdateSnapshot(ctx context.Context, snap estimate.RecurringSnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_snapshots SET
			amount = ?, card_key = ?, is_split = ?, purchase_date = ?,
			modified = ?, updated_at = ?
		WHERE template_id = ? AND usage_month = ?`,
		snap.Amount, string(snap.CardKey), snap.IsSplit, timeString(snap.PurchaseDate),
		snap.Modified, snap.UpdatedAt.UTC().Format(time.RFC3339),
		string(snap.TemplateID), snap.UsageMonth.String())
	if err != nil {
		return fmt.Errorf("updating snapshot %s %s: %w", snap.TemplateID, snap.UsageMonth, err)
	}
	return requireRow(res, fmt.Errorf("snapshot %s %s: %w", snap.TemplateID, snap.UsageMonth, billing.ErrSnapshotNotFound))
}

func (s *Store) DeleteSnapshot(ctx context.Context, id estimate.TemplateID, ym billing.YearMonth) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM recurring_snapshots WHERE template_id = ? AND usage_month = ?`,
		string(id), ym.String())
	if err != nil {
		return fmt.Errorf("deleting snapshot %s %s: %w", id, ym, err)
	}
	return requireRow(res, fmt.Errorf("snapshot %s %s: %w", id, ym, billing.ErrSnapshotNotFound))
}

func (s *Store) SnapshotsByTemplate(ctx context.Context, id estimate.TemplateID) ([]estimate.RecurringSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM recurring_snapshots
		WHERE template_id = ? ORDER BY usage_month`, string(id))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for %s: %w", id, err)
	}
	defer rows.Close()

	var out []estimate.RecurringSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSnapshotsByTemplate(ctx context.Context, id estimate.TemplateID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM recurring_snapshots WHERE template_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("purging snapshots for %s: %w", id, err)
	}
	return nil
}

func scanSnapshot(row scanner) (estimate.RecurringSnapshot, error) {
	var snap estimate.RecurringSnapshot
	var templateID, usageMonth, cardKey, createdAt, updatedAt string
	var purchaseDate sql.NullString

	err := row.Scan(&templateID, &usageMonth, &snap.Amount, &cardKey,
		&snap.IsSplit, &purchaseDate, &snap.Modified, &createdAt, &updatedAt)
	if err != nil {
		return estimate.RecurringSnapshot{}, err
	}
	snap.TemplateID = estimate.TemplateID(templateID)
	snap.CardKey = billing.CardKey(cardKey)
	if snap.UsageMonth, err = billing.ParseYearMonth(usageMonth); err != nil {
		return estimate.RecurringSnapshot{}, err
	}
	if snap.PurchaseDate, err = parseTime(purchaseDate, "2006-01-02"); err != nil {
		return estimate.RecurringSnapshot{}, err
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return estimate.RecurringSnapshot{}, err
	}
	if snap.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return estimate.RecurringSnapshot{}, err
	}
	return snap, nil
}

// =============================================================================
// PLAN LINE ITEMS (estimate.PlanStore)
// =============================================================================

func (s *Store) SetLineItem(ctx context.Context, ym billing.YearMonth, key string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_items (year_month, item_key, amount) VALUES (?, ?, ?)
		ON CONFLICT(year_month, item_key) DO UPDATE SET amount = excluded.amount`,
		ym.String(), key, amount)
	if err != nil {
		return fmt.Errorf("writing plan item %s/%s: %w", ym, key, err)
	}
	return nil
}

func (s *Store) GetLineItems(ctx context.Context, ym billing.YearMonth) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_key, amount FROM plan_items WHERE year_month = ?`, ym.String())
	if err != nil {
		return nil, fmt.Errorf("reading plan items for %s: %w", ym, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var amount int64
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, err
		}
		out[key] = amount
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// Wrapped driver errors lose the typed code.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func timeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func decimalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseTime(s sql.NullString, layout string) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(layout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", s.String, err)
	}
	return &t, nil
}

func parseDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing decimal %q: %w", s.String, err)
	}
	return &d, nil
}
