// Package handlers provides the HTTP handler for processing sales.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/modules/sales"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Handler handles sale HTTP requests.
type Handler struct {
	service *sales.Service
	log     zerolog.Logger
}

// NewHandler creates a new sales handler.
func NewHandler(service *sales.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "sales").Logger(),
	}
}

// HandleProcess completes a sale from the caller's reserved stock.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Instrument string `json:"instrument"`
		Amount     string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	instrument, err := domain.ParseInstrument(req.Instrument)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saleID, err := h.service.Process(sales.Request{
		SessionID:   claims.SessionID,
		Instrument:  instrument,
		Amount:      amount,
		ProcessedBy: claims.Name,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Sale failed")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"sale_id": saleID})
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
