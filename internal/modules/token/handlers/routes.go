package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers token routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tokens", func(r chi.Router) {
		r.Get("/", h.HandleListTokens)
		r.Get("/{denom}/balances/{address}", h.HandleGetBalance)
		r.Post("/{denom}/mint", h.HandleMint)
		r.Post("/{denom}/transfer", h.HandleTransfer)
	})
}
