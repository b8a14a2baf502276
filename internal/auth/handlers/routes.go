package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterPublicRoutes registers routes reachable without a session.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// RegisterRoutes registers the authenticated auth and user-admin routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
		r.With(auth.RequireRole("admin")).Post("/force-logout", h.HandleForceLogout)
	})

	r.Route("/usuarios", func(r chi.Router) {
		r.Get("/", h.HandleListUsers)
		r.Get("/activos", h.HandleActiveUsers)
		r.With(auth.RequireRole("admin")).Post("/", h.HandleCreateUser)
		r.With(auth.RequireRole("admin")).Delete("/{id}", h.HandleDeleteUser)
	})
}
