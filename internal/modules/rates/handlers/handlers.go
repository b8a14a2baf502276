// Package handlers provides HTTP handlers for the exchange rate.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/modules/rates"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Handler handles exchange rate HTTP requests.
type Handler struct {
	service *rates.Service
	log     zerolog.Logger
}

// NewHandler creates a new rates handler.
func NewHandler(service *rates.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rates").Logger(),
	}
}

// HandleGet returns the current exchange rate.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rate, err := h.service.Current()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read exchange rate")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"rate": money.Format(rate)})
}

// HandleUpdate stores a new exchange rate.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Rate string `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rate, err := money.Parse(req.Rate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Update(rate, claims.Name); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"rate": money.Format(rate)})
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
