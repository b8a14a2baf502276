package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the sales routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ventas", h.HandleProcess)
}
