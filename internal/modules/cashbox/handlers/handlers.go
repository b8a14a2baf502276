// Package handlers provides HTTP handlers for the drawer lifecycle and the
// reconciliation flow.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Handler handles cashbox HTTP requests.
type Handler struct {
	service *cashbox.Service
	log     zerolog.Logger
}

// NewHandler creates a new cashbox handler.
func NewHandler(service *cashbox.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "cashbox").Logger(),
	}
}

func drawerResponse(d *cashbox.Drawer) map[string]interface{} {
	if d == nil {
		return nil
	}
	return map[string]interface{}{
		"id":               d.ID,
		"business_date":    d.BusinessDate,
		"status":           d.Status,
		"opened_by":        d.OpenedBy,
		"opened_at":        d.OpenedAt,
		"closed_by":        d.ClosedBy,
		"closed_at":        d.ClosedAt,
		"opening_local":    money.Format(d.OpeningLocal),
		"opening_foreign":  money.Format(d.OpeningForeign),
		"opening_mobile":   money.Format(d.OpeningMobile),
		"income_local":     money.Format(d.IncomeLocal),
		"income_foreign":   money.Format(d.IncomeForeign),
		"expense_local":    money.Format(d.ExpenseLocal),
		"expense_foreign":  money.Format(d.ExpenseForeign),
		"mobile_total":     money.Format(d.MobileTotal),
		"expected_local":   money.Format(d.ExpectedFor(domain.LocalCash)),
		"expected_foreign": money.Format(d.ExpectedFor(domain.ForeignCash)),
		"expected_mobile":  money.Format(d.ExpectedFor(domain.MobilePayment)),
		"responsible_user": d.ResponsibleUser,
		"resolved_by":      d.ResolvedBy,
		"resolved_at":      d.ResolvedAt,
	}
}

func sessionResponse(s *cashbox.CountSession) map[string]interface{} {
	if s == nil {
		return nil
	}
	results := make([]map[string]interface{}, 0, len(s.Results))
	for _, r := range s.Results {
		results = append(results, map[string]interface{}{
			"instrument": r.Instrument,
			"expected":   money.Format(r.Expected),
			"counted":    money.Format(r.Counted),
			"difference": money.Format(r.Difference),
			"discrepant": r.Discrepant,
		})
	}
	return map[string]interface{}{
		"drawer_id":  s.DrawerID,
		"started_by": s.StartedBy,
		"started_at": s.StartedAt,
		"status":     s.Status,
		"discrepant": s.Discrepant,
		"results":    results,
	}
}

// HandleCurrentDrawer returns the open drawer plus any in-progress count.
func (h *Handler) HandleCurrentDrawer(w http.ResponseWriter, r *http.Request) {
	drawer, err := h.service.CurrentDrawer()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"drawer":  drawerResponse(drawer),
		"session": sessionResponse(h.service.ActiveSession()),
	})
}

// HandleOpenDrawer opens a new drawer with per-instrument opening amounts.
func (h *Handler) HandleOpenDrawer(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		OpeningLocal   string `json:"opening_local"`
		OpeningForeign string `json:"opening_foreign"`
		OpeningMobile  string `json:"opening_mobile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amounts := make([]decimal.Decimal, 3)
	for i, raw := range []string{req.OpeningLocal, req.OpeningForeign, req.OpeningMobile} {
		if raw == "" {
			raw = "0.00"
		}
		v, err := money.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		amounts[i] = v
	}

	drawer, err := h.service.OpenDrawer(cashbox.OpenDrawerRequest{
		OpenedBy:       claims.Name,
		OpeningLocal:   amounts[0],
		OpeningForeign: amounts[1],
		OpeningMobile:  amounts[2],
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, drawerResponse(drawer))
}

// HandleAddTransaction records an income or expense on the open drawer.
func (h *Handler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Kind       string  `json:"kind"`
		Category   string  `json:"category"`
		Instrument string  `json:"instrument"`
		Amount     string  `json:"amount"`
		Note       *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.AddTransaction("", cashbox.NewTransactionRequest{
		Kind:       domain.TransactionKind(req.Kind),
		Category:   req.Category,
		Instrument: domain.Instrument(req.Instrument),
		Amount:     amount,
		Note:       req.Note,
		CreatedBy:  claims.Name,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         tx.ID,
		"drawer_id":  tx.DrawerID,
		"kind":       tx.Kind,
		"category":   tx.Category,
		"instrument": tx.Instrument,
		"amount":     money.Format(tx.Amount),
		"created_by": tx.CreatedBy,
		"created_at": tx.CreatedAt,
	})
}

// HandleRemoveTransaction deletes a transaction from the open drawer.
func (h *Handler) HandleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	drawerID := chi.URLParam(r, "drawerID")
	txID := chi.URLParam(r, "txID")

	tx, err := h.service.RemoveTransaction(drawerID, txID, claims.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": tx.ID,
	})
}

// HandleListTransactions lists the transactions of a drawer.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	drawerID := chi.URLParam(r, "drawerID")

	txs, err := h.service.ListTransactions(drawerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		result = append(result, map[string]interface{}{
			"id":         tx.ID,
			"kind":       tx.Kind,
			"category":   tx.Category,
			"instrument": tx.Instrument,
			"amount":     money.Format(tx.Amount),
			"note":       tx.Note,
			"created_by": tx.CreatedBy,
			"created_at": tx.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleCloseDrawer closes the open drawer in one shot: it starts a count
// when none is in progress and submits the counted amounts. Discrepant
// results park in AWAITING_AUTHORIZATION exactly as the two-step flow does.
func (h *Handler) HandleCloseDrawer(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Counts map[string]string `json:"counts"`
		Note   *string           `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	counted := make(map[domain.Instrument]decimal.Decimal, len(req.Counts))
	for raw, amountStr := range req.Counts {
		instrument, err := domain.ParseInstrument(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount, err := money.Parse(amountStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		counted[instrument] = amount
	}

	if h.service.ActiveSession() == nil {
		if _, err := h.service.StartCount(claims.Name); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}
	session, err := h.service.SubmitCounts(claims.Name, counted, req.Note)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse(session))
}

// HandleStartCount begins the reconciliation and locks all terminals.
func (h *Handler) HandleStartCount(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	session, err := h.service.StartCount(claims.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse(session))
}

// HandleSubmitCounts submits counted amounts for all three instruments.
func (h *Handler) HandleSubmitCounts(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Counts map[string]string `json:"counts"`
		Note   *string           `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	counted := make(map[domain.Instrument]decimal.Decimal, len(req.Counts))
	for raw, amountStr := range req.Counts {
		instrument, err := domain.ParseInstrument(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount, err := money.Parse(amountStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		counted[instrument] = amount
	}

	session, err := h.service.SubmitCounts(claims.Name, counted, req.Note)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse(session))
}

// HandleAuthorizeCount lets a supervisor accept a discrepant count.
func (h *Handler) HandleAuthorizeCount(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	session, err := h.service.AuthorizeCount(claims.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse(session))
}

// HandleCancelCount abandons a count that has not submitted yet.
func (h *Handler) HandleCancelCount(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	if err := h.service.CancelCount(claims.Name); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cancelled"})
}

// HandleHistory lists closed and pending drawers, newest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	drawers, err := h.service.ListHistory(limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result := make([]map[string]interface{}, 0, len(drawers))
	for _, d := range drawers {
		result = append(result, drawerResponse(d))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleListPending lists drawers frozen by the end-of-day sweep.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	drawers, err := h.service.ListPending()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	result := make([]map[string]interface{}, 0, len(drawers))
	for _, d := range drawers {
		result = append(result, drawerResponse(d))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleResolvePending counts and closes a frozen drawer.
func (h *Handler) HandleResolvePending(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	drawerID := chi.URLParam(r, "drawerID")

	var req struct {
		Counts map[string]string `json:"counts"`
		Note   *string           `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	counted := make(map[domain.Instrument]decimal.Decimal, len(req.Counts))
	for raw, amountStr := range req.Counts {
		instrument, err := domain.ParseInstrument(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount, err := money.Parse(amountStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		counted[instrument] = amount
	}

	drawer, err := h.service.ResolvePending(drawerID, claims.Name, counted, req.Note)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drawerResponse(drawer))
}

// HandleForceAutoClose triggers the end-of-day sweep manually. Admin only.
func (h *Handler) HandleForceAutoClose(w http.ResponseWriter, r *http.Request) {
	frozen, err := h.service.AutoClosePending("manual")
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	result := make([]map[string]interface{}, 0, len(frozen))
	for _, d := range frozen {
		result = append(result, drawerResponse(d))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"frozen": result})
}

// HandleDrawerCounts returns the persisted counts and adjustments of a
// drawer, for the close-of-day report view.
func (h *Handler) HandleDrawerCounts(w http.ResponseWriter, r *http.Request) {
	drawerID := chi.URLParam(r, "drawerID")

	counts, err := h.service.ListCashCounts(drawerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	adjustments, err := h.service.ListAdjustments(drawerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	countList := make([]map[string]interface{}, 0, len(counts))
	for _, c := range counts {
		countList = append(countList, map[string]interface{}{
			"id":            c.ID,
			"instrument":    c.Instrument,
			"expected":      money.Format(c.Expected),
			"counted":       money.Format(c.Counted),
			"difference":    money.Format(c.Difference),
			"note":          c.Note,
			"authorized_by": c.AuthorizedBy,
			"created_at":    c.CreatedAt,
		})
	}
	adjustmentList := make([]map[string]interface{}, 0, len(adjustments))
	for _, a := range adjustments {
		adjustmentList = append(adjustmentList, map[string]interface{}{
			"id":            a.ID,
			"count_id":      a.CountID,
			"instrument":    a.Instrument,
			"direction":     a.Direction,
			"amount":        money.Format(a.Amount),
			"authorized_by": a.AuthorizedBy,
			"created_at":    a.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"counts":      countList,
		"adjustments": adjustmentList,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *cashbox.ValidationError
	if errors.As(err, &vErr) {
		h.writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	h.log.Error().Err(err).Msg("Cashbox request failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
