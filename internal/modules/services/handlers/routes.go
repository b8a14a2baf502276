package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authenticated repair ticket routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/servicios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{serviceID}", h.HandleGet)
		r.Put("/{serviceID}/estado", h.HandleUpdateStatus)
	})
}

// RegisterPublicRoutes registers the token-based customer lookup. Mounted
// outside the auth middleware.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/servicios/publico/{token}", h.HandlePublicLookup)
}
