/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the estimate services.

ENDPOINTS:
  Cards:
    GET    /api/cards                      List active card policies

  Purchases:
    POST   /api/purchases                  Create purchase (1 or 2 rows)
    GET    /api/purchases/{id}             Get purchase
    PUT    /api/purchases/{id}             Edit purchase
    DELETE /api/purchases/{id}             Delete purchase (whole split pair)

  Recurring charges:
    GET    /api/templates                  List active templates
    POST   /api/templates                  Create template
    PUT    /api/templates/{id}             Edit template (with propagation)
    DELETE /api/templates/{id}             Retire template for all months
    PUT    /api/templates/{id}/months/{ym}    Per-month override
    DELETE /api/templates/{id}/months/{ym}    Skip one month
    POST   /api/templates/{id}/months/{ym}/revert  Drop the override

  Estimates:
    GET    /api/estimates?from=&to=        Forward-looking estimate
    GET    /api/estimates/closed?from=&to= Already-billed complement
    POST   /api/estimates/reflect          Write a card total into the plan
    GET    /api/plan/{ym}                  Read reflected plan lines

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

  The mapping runs on the billing package's error classifiers, never on
  string matching.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/estimate"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry  billing.Registry
	Purchases *estimate.PurchaseService
	Snapshots *estimate.SnapshotService
	Estimates *estimate.EstimateService
	Plan      estimate.PlanStore
}

// NewHandler creates a new handler over the estimate services.
func NewHandler(
	registry billing.Registry,
	purchases *estimate.PurchaseService,
	snapshots *estimate.SnapshotService,
	estimates *estimate.EstimateService,
	plan estimate.PlanStore,
) *Handler {
	return &Handler{
		Registry:  registry,
		Purchases: purchases,
		Snapshots: snapshots,
		Estimates: estimates,
		Plan:      plan,
	}
}

// =============================================================================
// CARD ENDPOINTS
// =============================================================================

// ListCards returns all active card policies.
// GET /api/cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Registry.Policies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cards", err)
		return
	}

	dtos := make([]CardDTO, 0, len(policies))
	for _, p := range policies {
		dtos = append(dtos, CardDTO{
			Key:         string(p.Key),
			Title:       p.Title,
			ClosingType: string(p.Closing.Type),
			ClosingDay:  p.Closing.Day,
			PaymentDay:  p.PaymentDay,
			AllowsSplit: p.AllowsSplit,
			AllowsBonus: p.AllowsBonus,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": dtos})
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

// CreatePurchase stores a new purchase.
// POST /api/purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := purchaseInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase", err)
		return
	}

	rows, err := h.Purchases.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchases": purchaseDTOs(rows)})
}

// GetPurchase returns one purchase row.
// GET /api/purchases/{id}
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id := estimate.PurchaseID(chi.URLParam(r, "id"))
	p, err := h.Purchases.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseDTO(p))
}

// EditPurchase rewrites a purchase (and its split sibling) from fresh input.
// PUT /api/purchases/{id}
func (h *Handler) EditPurchase(w http.ResponseWriter, r *http.Request) {
	id := estimate.PurchaseID(chi.URLParam(r, "id"))

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := purchaseInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase", err)
		return
	}

	rows, err := h.Purchases.Edit(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, "Failed to edit purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchaseDTOs(rows)})
}

// DeletePurchase removes a purchase, including its split sibling.
// DELETE /api/purchases/{id}
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	id := estimate.PurchaseID(chi.URLParam(r, "id"))
	if err := h.Purchases.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete purchase", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TEMPLATE ENDPOINTS
// =============================================================================

// ListTemplates returns all active recurring-charge templates.
// GET /api/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Snapshots.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, 0, len(templates))
	for _, t := range templates {
		dtos = append(dtos, templateDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": dtos})
}

// CreateTemplate stores a new recurring-charge template.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Snapshots.CreateTemplate(r.Context(), templateInput(req))
	if err != nil {
		writeDomainError(w, "Failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, templateDTO(t))
}

// EditTemplate rewrites a template and propagates to eligible snapshots.
// PUT /api/templates/{id}
func (h *Handler) EditTemplate(w http.ResponseWriter, r *http.Request) {
	id := estimate.TemplateID(chi.URLParam(r, "id"))

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Snapshots.UpdateTemplate(r.Context(), id, templateInput(req))
	if err != nil {
		writeDomainError(w, "Failed to edit template", err)
		return
	}
	writeJSON(w, http.StatusOK, templateDTO(t))
}

// DeleteTemplate retires a template for all months.
// DELETE /api/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := estimate.TemplateID(chi.URLParam(r, "id"))
	if err := h.Snapshots.DeleteTemplate(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditSnapshot applies a per-month override to a template.
// PUT /api/templates/{id}/months/{ym}
func (h *Handler) EditSnapshot(w http.ResponseWriter, r *http.Request) {
	id := estimate.TemplateID(chi.URLParam(r, "id"))
	ym, err := billing.ParseYearMonth(chi.URLParam(r, "ym"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	var req SnapshotEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	edit, err := snapshotEdit(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid override", err)
		return
	}

	snap, err := h.Snapshots.EditSnapshot(r.Context(), id, ym, edit)
	if err != nil {
		writeDomainError(w, "Failed to edit month", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotDTO(snap))
}

// SkipMonth suppresses a template's charge for one month.
// DELETE /api/templates/{id}/months/{ym}
func (h *Handler) SkipMonth(w http.ResponseWriter, r *http.Request) {
	id := estimate.TemplateID(chi.URLParam(r, "id"))
	ym, err := billing.ParseYearMonth(chi.URLParam(r, "ym"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	if err := h.Snapshots.DeleteForMonth(r.Context(), id, ym); err != nil {
		writeDomainError(w, "Failed to skip month", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevertMonth drops a month's override so it re-seeds from the template.
// POST /api/templates/{id}/months/{ym}/revert
func (h *Handler) RevertMonth(w http.ResponseWriter, r *http.Request) {
	id := estimate.TemplateID(chi.URLParam(r, "id"))
	ym, err := billing.ParseYearMonth(chi.URLParam(r, "ym"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	if err := h.Snapshots.Revert(r.Context(), id, ym); err != nil {
		writeDomainError(w, "Failed to revert month", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ESTIMATE ENDPOINTS
// =============================================================================

// GetEstimates returns the forward-looking estimate for a month range.
// GET /api/estimates?from=YYYY-MM&to=YYYY-MM
func (h *Handler) GetEstimates(w http.ResponseWriter, r *http.Request) {
	h.estimates(w, r, h.Estimates.Window)
}

// GetClosedEstimates returns the already-billed complement.
// GET /api/estimates/closed?from=YYYY-MM&to=YYYY-MM
func (h *Handler) GetClosedEstimates(w http.ResponseWriter, r *http.Request) {
	h.estimates(w, r, h.Estimates.ClosedWindow)
}

func (h *Handler) estimates(w http.ResponseWriter, r *http.Request,
	read func(ctx context.Context, from, to billing.YearMonth) ([]estimate.MonthSummary, error)) {

	from, to, err := monthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month range", err)
		return
	}

	months, err := read(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, "Failed to build estimate", err)
		return
	}

	dtos := make([]MonthSummaryDTO, 0, len(months))
	for _, m := range months {
		dtos = append(dtos, monthSummaryDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": dtos})
}

// Reflect recomputes one card's monthly total and writes it into the plan.
// POST /api/estimates/reflect
func (h *Handler) Reflect(w http.ResponseWriter, r *http.Request) {
	var req ReflectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ym, err := billing.ParseYearMonth(req.BillingMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid billing month", err)
		return
	}

	total, err := h.Estimates.Reflect(r.Context(), ym, billing.CardKey(req.Card))
	if err != nil {
		writeDomainError(w, "Failed to reflect estimate", err)
		return
	}
	writeJSON(w, http.StatusOK, ReflectResponse{
		BillingMonth: ym.String(),
		Card:         req.Card,
		Total:        total,
	})
}

// GetPlan returns the reflected plan line items of one month.
// GET /api/plan/{ym}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ym, err := billing.ParseYearMonth(chi.URLParam(r, "ym"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	items, err := h.Plan.GetLineItems(r.Context(), ym)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read plan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": ym.String(), "items": items})
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func purchaseInput(req PurchaseRequest) (estimate.PurchaseInput, error) {
	in := estimate.PurchaseInput{
		CardKey: billing.CardKey(req.Card),
		Amount:  req.Amount,
		IsSplit: req.IsSplit,
		IsBonus: req.IsBonus,
		Memo:    req.Memo,
	}
	if req.AmountUSD != nil {
		usd, err := decimal.NewFromString(*req.AmountUSD)
		if err != nil {
			return estimate.PurchaseInput{}, fmt.Errorf("invalid usd amount %q: %w", *req.AmountUSD, err)
		}
		in.AmountUSD = &usd
	}
	if req.UsageMonth != "" {
		ym, err := billing.ParseYearMonth(req.UsageMonth)
		if err != nil {
			return estimate.PurchaseInput{}, err
		}
		in.UsageMonth = ym
	}
	if req.PurchaseDate != "" {
		d, err := time.Parse("2006-01-02", req.PurchaseDate)
		if err != nil {
			return estimate.PurchaseInput{}, fmt.Errorf("invalid purchase date %q: %w", req.PurchaseDate, err)
		}
		in.PurchaseDate = &d
	}
	return in, nil
}

func templateInput(req TemplateRequest) estimate.TemplateInput {
	return estimate.TemplateInput{
		Label:         req.Label,
		CardKey:       billing.CardKey(req.Card),
		Amount:        req.Amount,
		PaymentDay:    req.PaymentDay,
		OddMonthsOnly: req.OddMonthsOnly,
		IsSplit:       req.IsSplit,
	}
}

func snapshotEdit(req SnapshotEditRequest) (estimate.SnapshotEdit, error) {
	edit := estimate.SnapshotEdit{
		Amount:  req.Amount,
		IsSplit: req.IsSplit,
	}
	if req.Card != nil {
		key := billing.CardKey(*req.Card)
		edit.CardKey = &key
	}
	if req.PurchaseDate != nil {
		d, err := time.Parse("2006-01-02", *req.PurchaseDate)
		if err != nil {
			return estimate.SnapshotEdit{}, fmt.Errorf("invalid purchase date %q: %w", *req.PurchaseDate, err)
		}
		edit.PurchaseDate = &d
	}
	return edit, nil
}

func purchaseDTO(p estimate.Purchase) PurchaseDTO {
	dto := PurchaseDTO{
		ID:           string(p.ID),
		Card:         string(p.CardKey),
		Amount:       p.Amount,
		UsageMonth:   p.UsageMonth.String(),
		BillingMonth: p.BillingMonth.String(),
		IsSplit:      p.IsSplit,
		IsBonus:      p.IsBonus,
		SplitPart:    int(p.SplitPart),
		SplitGroup:   string(p.SplitGroup),
		Memo:         p.Memo,
	}
	if p.AmountUSD != nil {
		dto.AmountUSD = p.AmountUSD.String()
	}
	if p.PurchaseDate != nil {
		dto.PurchaseDate = p.PurchaseDate.Format("2006-01-02")
	}
	if p.PaymentDate != nil {
		dto.PaymentDate = p.PaymentDate.Format("2006-01-02")
	}
	return dto
}

func purchaseDTOs(rows []estimate.Purchase) []PurchaseDTO {
	dtos := make([]PurchaseDTO, 0, len(rows))
	for _, p := range rows {
		dtos = append(dtos, purchaseDTO(p))
	}
	return dtos
}

func templateDTO(t estimate.RecurringTemplate) TemplateDTO {
	return TemplateDTO{
		ID:            string(t.ID),
		Label:         t.Label,
		Card:          string(t.CardKey),
		Amount:        t.Amount,
		PaymentDay:    t.PaymentDay,
		OddMonthsOnly: t.OddMonthsOnly,
		IsSplit:       t.IsSplit,
		Active:        t.Active,
	}
}

func snapshotDTO(s estimate.RecurringSnapshot) SnapshotDTO {
	dto := SnapshotDTO{
		TemplateID: string(s.TemplateID),
		UsageMonth: s.UsageMonth.String(),
		Amount:     s.Amount,
		Card:       string(s.CardKey),
		IsSplit:    s.IsSplit,
		Modified:   s.Modified,
		Skipped:    s.Skipped(),
	}
	if s.PurchaseDate != nil {
		dto.PurchaseDate = s.PurchaseDate.Format("2006-01-02")
	}
	return dto
}

func monthSummaryDTO(m estimate.MonthSummary) MonthSummaryDTO {
	dto := MonthSummaryDTO{
		BillingMonth: m.BillingMonth.String(),
		Total:        m.Total,
		Cards:        make([]CardSummaryDTO, 0, len(m.Cards)),
	}
	for _, c := range m.Cards {
		card := CardSummaryDTO{
			Card:              string(c.CardKey),
			Title:             c.Title,
			PaymentDate:       c.PaymentDate.Format("2006-01-02"),
			Total:             c.Total,
			PurchaseSubtotal:  c.PurchaseSubtotal,
			RecurringSubtotal: c.RecurringSubtotal,
			Entries:           make([]EntryDTO, 0, len(c.Entries)),
		}
		for _, e := range c.Entries {
			entry := EntryDTO{
				Kind:       string(e.Kind),
				SourceID:   e.SourceID,
				Label:      e.Label,
				Amount:     e.Amount,
				UsageMonth: e.UsageMonth.String(),
				IsSplit:    e.IsSplit,
				SplitPart:  int(e.SplitPart),
				IsBonus:    e.IsBonus,
			}
			if e.PaymentDate != nil {
				entry.PaymentDate = e.PaymentDate.Format("2006-01-02")
			}
			card.Entries = append(card.Entries, entry)
		}
		dto.Cards = append(dto.Cards, card)
	}
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

func monthRange(r *http.Request) (from, to billing.YearMonth, err error) {
	from, err = billing.ParseYearMonth(r.URL.Query().Get("from"))
	if err != nil {
		return billing.YearMonth{}, billing.YearMonth{}, fmt.Errorf("from: %w", err)
	}
	to, err = billing.ParseYearMonth(r.URL.Query().Get("to"))
	if err != nil {
		return billing.YearMonth{}, billing.YearMonth{}, fmt.Errorf("to: %w", err)
	}
	if to.Before(from) {
		return billing.YearMonth{}, billing.YearMonth{}, fmt.Errorf("to %s before from %s", to, from)
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
