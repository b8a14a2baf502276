package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers the ledger routes. The audit trail is only for
// people who can authorize discrepancies.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ajustes", func(r chi.Router) {
		r.Use(auth.RequireRole("admin", "supervisor"))

		r.Get("/{drawerID}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleListByDrawer(w, r, chi.URLParam(r, "drawerID"))
		})
		r.Get("/{drawerID}/resumen", func(w http.ResponseWriter, r *http.Request) {
			h.HandleDrawerSummary(w, r, chi.URLParam(r, "drawerID"))
		})
	})
}
