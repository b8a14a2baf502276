// Package handlers provides HTTP handlers for drawer reports.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/modules/reports"
	"github.com/mvalderrama/electrocaja/internal/notify"
)

// Handler handles report HTTP requests.
type Handler struct {
	service *reports.Service
	queue   *notify.Queue
	log     zerolog.Logger
}

// NewHandler creates a new reports handler. The queue may be nil when
// WhatsApp delivery is not configured.
func NewHandler(service *reports.Service, queue *notify.Queue, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		queue:   queue,
		log:     log.With().Str("handler", "reports").Logger(),
	}
}

// HandleDrawerOverview aggregates closed drawers over ?days= business dates.
func (h *Handler) HandleDrawerOverview(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	overview, err := h.service.DrawerOverview(days)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build drawer overview")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

// HandleSendOverview queues the overview as a WhatsApp report.
func (h *Handler) HandleSendOverview(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		h.writeError(w, http.StatusServiceUnavailable, "whatsapp delivery not configured")
		return
	}

	var req struct {
		Recipient string `json:"recipient"`
		Days      int    `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipient == "" {
		h.writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	overview, err := h.service.DrawerOverview(req.Days)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := formatOverview(overview)
	n, err := h.queue.Enqueue(notify.KindWhatsAppReport, req.Recipient, body)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, n)
}

func formatOverview(o *reports.Overview) string {
	body := fmt.Sprintf("Resumen de cajas (%d dias)\n", len(o.Days))
	for _, d := range o.Days {
		body += fmt.Sprintf("%s: %d cajas, ingreso local %s, descuadres %d (%s)\n",
			d.BusinessDate, d.DrawersClosed, d.IncomeLocal, d.Discrepancies, d.DiscrepancyTotal)
	}
	body += fmt.Sprintf("Descuadres totales: %d", o.TotalDiscrepancies)
	return body
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
