// Package handlers exposes the ledger adjustment audit trail over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Handler handles ledger adjustment HTTP requests. Adjustments are written
// only by the reconciliation flow; this surface is read-only.
type Handler struct {
	repo *ledger.Repository
	log  zerolog.Logger
}

// NewHandler creates a new ledger handler.
func NewHandler(repo *ledger.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "ledger").Logger(),
	}
}

type adjustmentResponse struct {
	ID           string `json:"id"`
	DrawerID     string `json:"drawer_id"`
	CountID      string `json:"count_id"`
	Instrument   string `json:"instrument"`
	Direction    string `json:"direction"`
	Amount       string `json:"amount"`
	AuthorizedBy string `json:"authorized_by"`
	CreatedAt    int64  `json:"created_at"`
}

// HandleListByDrawer returns every adjustment recorded against a drawer, in
// insertion order.
func (h *Handler) HandleListByDrawer(w http.ResponseWriter, r *http.Request, drawerID string) {
	adjustments, err := h.repo.ListByDrawer(drawerID)
	if err != nil {
		h.log.Error().Err(err).Str("drawer_id", drawerID).Msg("Failed to list adjustments")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		result = append(result, adjustmentResponse{
			ID:           a.ID,
			DrawerID:     a.DrawerID,
			CountID:      a.CountID,
			Instrument:   string(a.Instrument),
			Direction:    string(a.Direction),
			Amount:       money.Format(a.Amount),
			AuthorizedBy: a.AuthorizedBy,
			CreatedAt:    a.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"drawer_id":   drawerID,
		"adjustments": result,
	})
}

// HandleDrawerSummary returns the net adjustment per instrument for a drawer.
// Surpluses count positive, shortfalls negative.
func (h *Handler) HandleDrawerSummary(w http.ResponseWriter, r *http.Request, drawerID string) {
	adjustments, err := h.repo.ListByDrawer(drawerID)
	if err != nil {
		h.log.Error().Err(err).Str("drawer_id", drawerID).Msg("Failed to summarize adjustments")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	net := make(map[domain.Instrument]decimal.Decimal)
	for _, a := range adjustments {
		if a.Direction == domain.KindIncome {
			net[a.Instrument] = net[a.Instrument].Add(a.Amount)
		} else {
			net[a.Instrument] = net[a.Instrument].Sub(a.Amount)
		}
	}

	summary := make(map[string]string, len(domain.Instruments()))
	for _, instrument := range domain.Instruments() {
		summary[string(instrument)] = money.Format(net[instrument])
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"drawer_id": drawerID,
		"count":     len(adjustments),
		"net":       summary,
	})
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
