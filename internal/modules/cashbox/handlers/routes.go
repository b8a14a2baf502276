package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// RegisterRoutes registers all cashbox routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cajas", func(r chi.Router) {
		r.Get("/actual", h.HandleCurrentDrawer)
		r.Post("/abrir", h.HandleOpenDrawer)
		r.Put("/cerrar", h.HandleCloseDrawer)
		r.Get("/historial", h.HandleHistory)

		r.Post("/transacciones", h.HandleAddTransaction)
		r.Get("/{drawerID}/transacciones", h.HandleListTransactions)
		r.Delete("/{drawerID}/transacciones/{txID}", h.HandleRemoveTransaction)
		r.Get("/{drawerID}/arqueo", h.HandleDrawerCounts)

		// Reconciliation flow
		r.Post("/arqueo/iniciar", h.HandleStartCount)
		r.Post("/arqueo", h.HandleSubmitCounts)
		r.Post("/arqueo/cancelar", h.HandleCancelCount)
		r.With(auth.RequireRole("admin", "supervisor")).Post("/autorizacion", h.HandleAuthorizeCount)

		// Auto-close lifecycle
		r.Get("/pendientes", h.HandleListPending)
		r.With(auth.RequireRole("admin", "supervisor")).Post("/pendientes/{drawerID}/resolver", h.HandleResolvePending)
		r.With(auth.RequireRole("admin")).Post("/forzar-auto-cierre", h.HandleForceAutoClose)
	})
}
