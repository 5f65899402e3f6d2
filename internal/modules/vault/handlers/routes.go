package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers vault routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vault", func(r chi.Router) {
		r.Get("/", h.HandleGetVault)
		r.Get("/preview", h.HandlePreview)
		r.Get("/accounts/{address}", h.HandleGetAccount)

		r.Post("/deposit", h.HandleDeposit)
		r.Post("/mint", h.HandleMint)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/redeem", h.HandleRedeem)

		r.Post("/harvest", h.HandleHarvest)
		r.Post("/rebalance", h.HandleRebalance)
		r.Put("/params", h.HandleUpdateParams)
		r.Put("/risk-limits", h.HandleSyncRiskLimits)

		r.Route("/emergency", func(r chi.Router) {
			r.Post("/pause", h.HandleEmergencyPause)
			r.Post("/resume", h.HandleEmergencyResume)
			r.Post("/withdraw", h.HandleEmergencyWithdraw)
		})
	})
}
