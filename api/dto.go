/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Cards:
    CardDTO

  Purchases:
    PurchaseDTO, PurchaseRequest

  Recurring charges:
    TemplateDTO, TemplateRequest, SnapshotDTO, SnapshotEditRequest

  Estimates:
    MonthSummaryDTO, CardSummaryDTO, EntryDTO, ReflectRequest

AMOUNTS AND DATES:
  Amounts are integer base-currency units; usd_amount is a decimal
  string. Months are "YYYY-MM" keys, dates are "YYYY-MM-DD".

VALIDATION:
  Validation is done in handlers and services, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - estimate/aggregate.go: the summaries these DTOs mirror
*/
package api

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON shape of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CARDS
// =============================================================================

// CardDTO represents a card policy in API responses.
type CardDTO struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	ClosingType string `json:"closing_type"`
	ClosingDay  int    `json:"closing_day,omitempty"`
	PaymentDay  int    `json:"payment_day"`
	AllowsSplit bool   `json:"allows_split"`
	AllowsBonus bool   `json:"allows_bonus"`
}

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseRequest is the write payload for creating or editing a purchase.
type PurchaseRequest struct {
	Card         string  `json:"card"`
	Amount       *int64  `json:"amount,omitempty"`
	AmountUSD    *string `json:"amount_usd,omitempty"`
	UsageMonth   string  `json:"usage_month,omitempty"`
	PurchaseDate string  `json:"purchase_date,omitempty"`
	IsSplit      bool    `json:"is_split,omitempty"`
	IsBonus      bool    `json:"is_bonus,omitempty"`
	Memo         string  `json:"memo,omitempty"`
}

// PurchaseDTO represents one stored purchase row.
type PurchaseDTO struct {
	ID           string `json:"id"`
	Card         string `json:"card"`
	Amount       int64  `json:"amount"`
	AmountUSD    string `json:"amount_usd,omitempty"`
	PurchaseDate string `json:"purchase_date,omitempty"`
	UsageMonth   string `json:"usage_month"`
	BillingMonth string `json:"billing_month"`
	PaymentDate  string `json:"payment_date,omitempty"`
	IsSplit      bool   `json:"is_split"`
	IsBonus      bool   `json:"is_bonus"`
	SplitPart    int    `json:"split_part,omitempty"`
	SplitGroup   string `json:"split_group,omitempty"`
	Memo         string `json:"memo,omitempty"`
}

// =============================================================================
// RECURRING CHARGES
// =============================================================================

// TemplateRequest is the write payload for a recurring-charge template.
type TemplateRequest struct {
	Label         string `json:"label"`
	Card          string `json:"card"`
	Amount        int64  `json:"amount"`
	PaymentDay    int    `json:"payment_day"`
	OddMonthsOnly bool   `json:"odd_months_only,omitempty"`
	IsSplit       bool   `json:"is_split,omitempty"`
}

// TemplateDTO represents a template in API responses.
type TemplateDTO struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Card          string `json:"card"`
	Amount        int64  `json:"amount"`
	PaymentDay    int    `json:"payment_day"`
	OddMonthsOnly bool   `json:"odd_months_only"`
	IsSplit       bool   `json:"is_split"`
	Active        bool   `json:"active"`
}

// SnapshotEditRequest is a partial per-month override. Absent fields keep
// the snapshot's current value.
type SnapshotEditRequest struct {
	Amount       *int64  `json:"amount,omitempty"`
	Card         *string `json:"card,omitempty"`
	IsSplit      *bool   `json:"is_split,omitempty"`
	PurchaseDate *string `json:"purchase_date,omitempty"`
}

// SnapshotDTO represents one frozen (template, month) pair.
type SnapshotDTO struct {
	TemplateID   string `json:"template_id"`
	UsageMonth   string `json:"usage_month"`
	Amount       int64  `json:"amount"`
	Card         string `json:"card"`
	IsSplit      bool   `json:"is_split"`
	PurchaseDate string `json:"purchase_date,omitempty"`
	Modified     bool   `json:"modified"`
	Skipped      bool   `json:"skipped"`
}

// =============================================================================
// ESTIMATES
// =============================================================================

// EntryDTO is one projected line of a card's monthly bill.
type EntryDTO struct {
	Kind        string `json:"kind"`
	SourceID    string `json:"source_id"`
	Label       string `json:"label,omitempty"`
	Amount      int64  `json:"amount"`
	UsageMonth  string `json:"usage_month"`
	IsSplit     bool   `json:"is_split,omitempty"`
	SplitPart   int    `json:"split_part,omitempty"`
	IsBonus     bool   `json:"is_bonus,omitempty"`
	PaymentDate string `json:"payment_date,omitempty"`
}

// CardSummaryDTO is one card's share of a billing month.
type CardSummaryDTO struct {
	Card              string     `json:"card"`
	Title             string     `json:"title"`
	PaymentDate       string     `json:"payment_date"`
	Total             int64      `json:"total"`
	PurchaseSubtotal  int64      `json:"purchase_subtotal"`
	RecurringSubtotal int64      `json:"recurring_subtotal"`
	Entries           []EntryDTO `json:"entries"`
}

// MonthSummaryDTO is the full estimate of one billing month.
type MonthSummaryDTO struct {
	BillingMonth string           `json:"billing_month"`
	Total        int64            `json:"total"`
	Cards        []CardSummaryDTO `json:"cards"`
}

// ReflectRequest asks for one card's monthly total to be recomputed and
// written into the plan.
type ReflectRequest struct {
	BillingMonth string `json:"billing_month"`
	Card         string `json:"card"`
}

// ReflectResponse reports the written total.
type ReflectResponse struct {
	BillingMonth string `json:"billing_month"`
	Card         string `json:"card"`
	Total        int64  `json:"total"`
}
