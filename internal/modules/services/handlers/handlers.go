// Package handlers provides HTTP handlers for repair tickets, including the
// public status lookup customers use without logging in.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/modules/services"
)

// Handler handles repair ticket HTTP requests.
type Handler struct {
	repo *services.Repository
	log  zerolog.Logger
}

// NewHandler creates a new services handler.
func NewHandler(repo *services.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "services").Logger(),
	}
}

// HandleCreate opens a repair ticket.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		CustomerName  string  `json:"customer_name"`
		CustomerPhone *string `json:"customer_phone"`
		Device        string  `json:"device"`
		Issue         *string `json:"issue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerName == "" || req.Device == "" {
		h.writeError(w, http.StatusBadRequest, "customer_name and device are required")
		return
	}

	ticket, err := h.repo.Create(req.CustomerName, req.Device, req.CustomerPhone, req.Issue, &claims.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create repair ticket")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, ticket)
}

// HandleList lists tickets, optionally filtered by ?status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.repo.List(r.URL.Query().Get("status"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list repair tickets")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// HandleGet returns one ticket with its status history.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serviceID")

	ticket, err := h.repo.Get(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ticket == nil {
		h.writeError(w, http.StatusNotFound, "repair ticket not found")
		return
	}
	history, err := h.repo.History(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":  ticket,
		"history": history,
	})
}

// HandleUpdateStatus moves a ticket through the repair flow.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "serviceID")

	var req struct {
		Status     string  `json:"status"`
		Technician *string `json:"technician"`
		Note       *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := h.repo.UpdateStatus(id, req.Status, req.Technician, req.Note, &claims.Name)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

// HandlePublicLookup serves the customer-facing status page. No auth; the
// token is the credential. Only customer-safe fields are exposed.
func (h *Handler) HandlePublicLookup(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	ticket, err := h.repo.GetByToken(token)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if ticket == nil {
		h.writeError(w, http.StatusNotFound, "repair ticket not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_name": ticket.CustomerName,
		"device":        ticket.Device,
		"status":        ticket.Status,
		"updated_at":    ticket.UpdatedAt,
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
