// Package handlers provides HTTP handlers for outbound notifications.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/notify"
)

// Handler handles notification HTTP requests.
type Handler struct {
	queue *notify.Queue
	log   zerolog.Logger
}

// NewHandler creates a new notify handler.
func NewHandler(queue *notify.Queue, log zerolog.Logger) *Handler {
	return &Handler{
		queue: queue,
		log:   log.With().Str("handler", "notify").Logger(),
	}
}

// HandleSend queues a WhatsApp message. Delivery is asynchronous: the queue
// drain job picks it up and retries on gateway failures.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
		Kind      string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipient == "" || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "recipient and message are required")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = notify.KindWhatsAppMessage
	}
	if kind != notify.KindWhatsAppMessage && kind != notify.KindWhatsAppReport {
		h.writeError(w, http.StatusBadRequest, "unknown notification kind")
		return
	}

	n, err := h.queue.Enqueue(kind, req.Recipient, req.Message)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue notification")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, n)
}

// HandleList returns recent notifications with their delivery state.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := h.queue.List(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

// HandleGet returns one notification.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Get(chi.URLParam(r, "notificationID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n == nil {
		h.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	h.writeJSON(w, http.StatusOK, n)
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
