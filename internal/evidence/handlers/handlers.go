// Package handlers provides HTTP handlers for drawer evidence photos.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/evidence"
)

// Handler handles evidence photo HTTP requests.
type Handler struct {
	service *evidence.Service
	log     zerolog.Logger
}

// NewHandler creates a new evidence handler.
func NewHandler(service *evidence.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "evidence").Logger(),
	}
}

// HandleUpload stores a photo for a drawer. Storage failures are reported
// but never block the count flow; the terminal retries on its own.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	drawerID := chi.URLParam(r, "drawerID")

	if !h.service.Enabled() {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"stored": false,
			"reason": "evidence storage not configured",
		})
		return
	}

	var req struct {
		Photo string `json:"photo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Photo == "" {
		h.writeError(w, http.StatusBadRequest, "photo is required")
		return
	}

	key, err := h.service.StorePhoto(r.Context(), drawerID, req.Photo)
	if err != nil {
		h.log.Warn().Err(err).Str("drawer_id", drawerID).Msg("Evidence upload failed")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"stored": false,
			"reason": err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"stored": true,
		"key":    key,
	})
}

// HandleList returns the stored evidence keys of a drawer.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	drawerID := chi.URLParam(r, "drawerID")

	if !h.service.Enabled() {
		h.writeJSON(w, http.StatusOK, []string{})
		return
	}

	keys, err := h.service.ListPhotos(r.Context(), drawerID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if keys == nil {
		keys = []string{}
	}
	h.writeJSON(w, http.StatusOK, keys)
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
