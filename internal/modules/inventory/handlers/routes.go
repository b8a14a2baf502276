package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers all inventory routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/inventario", func(r chi.Router) {
		r.Get("/", h.HandleListItems)
		r.With(auth.RequireRole("admin", "supervisor")).Post("/", h.HandleUpsertItem)

		r.Post("/reservas", h.HandleReserve)
		r.Delete("/reservas/{reservationID}", h.HandleRelease)
		r.Post("/reservas/liberar-sesion", h.HandleReleaseSession)
	})
}
