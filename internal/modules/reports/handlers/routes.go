package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers the report routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reportes", func(r chi.Router) {
		r.Use(auth.RequireRole("admin", "supervisor"))
		r.Get("/cajas", h.HandleDrawerOverview)
		r.Post("/cajas/enviar", h.HandleSendOverview)
	})
}
