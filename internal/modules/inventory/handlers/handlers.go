// Package handlers provides HTTP handlers for stock items and reservations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/modules/inventory"
)

// Handler handles inventory HTTP requests.
type Handler struct {
	service *inventory.Service
	log     zerolog.Logger
}

// NewHandler creates a new inventory handler.
func NewHandler(service *inventory.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "inventory").Logger(),
	}
}

// HandleListItems returns all stock lines.
func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list stock items")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// HandleUpsertItem creates or updates a stock line.
func (h *Handler) HandleUpsertItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Quantity < 0 {
		h.writeError(w, http.StatusBadRequest, "quantity cannot be negative")
		return
	}

	item, err := h.service.UpsertItem(req.ID, req.Name, req.Quantity)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// HandleReserve holds units of an item for the caller's terminal session.
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Reserve(req.ItemID, claims.SessionID, claims.Name, req.Quantity)
	if err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// HandleRelease frees one reservation.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	reservationID := chi.URLParam(r, "reservationID")

	if err := h.service.Release(reservationID, claims.Name); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"released": reservationID})
}

// HandleReleaseSession frees every hold of the caller's session. Terminals
// call this when a sale is abandoned.
func (h *Handler) HandleReleaseSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	if err := h.service.ReleaseSession(claims.SessionID); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
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
