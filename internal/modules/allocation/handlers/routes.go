package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers allocator routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocator", func(r chi.Router) {
		r.Get("/", h.HandleGetAllocation)
		r.Get("/performance", h.HandleGetPerformance)
		r.Put("/policy", h.HandleUpdatePolicy)

		r.Post("/adapters/{address}", h.HandleApprove)
		r.Delete("/adapters/{address}", h.HandleUnapprove)
		r.Post("/active", h.HandleSetActive)

		r.Post("/rebalance", h.HandleRebalance)
		r.Post("/check", h.HandleCheck)
	})
}
