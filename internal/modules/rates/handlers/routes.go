package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers the exchange rate routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tasa", h.HandleGet)
	r.With(auth.RequireRole("admin", "supervisor")).Put("/tasa", h.HandleUpdate)
}
