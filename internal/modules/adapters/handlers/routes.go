package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers adapter routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/adapters", func(r chi.Router) {
		r.Get("/", h.HandleGetAdapters)
		r.Route("/{address}", func(r chi.Router) {
			r.Get("/", h.HandleGetAdapter)

			// Growth
			r.Post("/index", h.HandleSetIndex)
			// ClaimableYield
			r.Post("/queue-yield", h.HandleQueueYield)
			// FixedMaturity
			r.Post("/rollover", h.HandleRollover)
			// ManualManage
			r.Route("/manager", func(r chi.Router) {
				r.Post("/withdraw", h.HandleManagerWithdraw)
				r.Post("/return", h.HandleManagerReturn)
				r.Post("/report", h.HandleManagerReport)
				r.Put("/min-buffer", h.HandleSetMinBuffer)
			})
		})
	})
}
