package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the evidence photo routes under the drawer tree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/cajas/{drawerID}/evidencia-fotografica", h.HandleUpload)
	r.Get("/cajas/{drawerID}/evidencia-fotografica", h.HandleList)
}
