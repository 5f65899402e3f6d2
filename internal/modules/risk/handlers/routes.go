package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.HandleGetProfiles)
			r.Get("/{id}", h.HandleGetProfile)
			r.Put("/{id}", h.HandlePutProfile)
		})

		r.Route("/vaults/{vaultID}", func(r chi.Router) {
			r.Get("/limits", h.HandleGetLimits)
			r.Post("/profile", h.HandleApplyProfile)
		})
	})
}
