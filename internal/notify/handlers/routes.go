package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers the notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/whatsapp", func(r chi.Router) {
		r.Post("/enviar", h.HandleSend)
		r.With(auth.RequireRole("admin", "supervisor")).Get("/", h.HandleList)
		r.With(auth.RequireRole("admin", "supervisor")).Get("/{notificationID}", h.HandleGet)
	})
}
