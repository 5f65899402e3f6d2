package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/operations", h.HandleGetOperations)
		r.Get("/operations/{id}", h.HandleGetOperation)
		r.Get("/summary", h.HandleGetSummary)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.HandleGetSnapshots)
			r.Get("/latest", h.HandleGetLatestSnapshot)
			r.Post("/", h.HandleTakeSnapshot)
		})
	})
}
