// Package handlers exposes the asset and share books over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
	"github.com/aristath/givevault/internal/utils"
)

// Handler serves balances and transfers. Only the asset book can be minted;
// shares are minted by the vault alone.
type Handler struct {
	asset   *token.Book
	shares  *token.Book
	journal *state.Journal
	authz   domain.Authorizer
	log     zerolog.Logger
}

// NewHandler creates a new token handler
func NewHandler(asset, shares *token.Book, journal *state.Journal, authz domain.Authorizer, log zerolog.Logger) *Handler {
	return &Handler{
		asset:   asset,
		shares:  shares,
		journal: journal,
		authz:   authz,
		log:     log.With().Str("handler", "token").Logger(),
	}
}

type transferRequest struct {
	To     domain.Address `json:"to"`
	Amount string         `json:"amount"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) (*token.Book, bool) {
	switch chi.URLParam(r, "denom") {
	case h.asset.Denom():
		return h.asset, true
	case h.shares.Denom():
		return h.shares, true
	}
	h.writeError(w, http.StatusNotFound, "Unknown token")
	return nil, false
}

// HandleListTokens returns both books with their supply
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]interface{}, 0, 2)
	_ = h.journal.Read(r.Context(), func(context.Context) error {
		for _, b := range []*token.Book{h.asset, h.shares} {
			out = append(out, map[string]interface{}{
				"denom":        b.Denom(),
				"total_supply": b.TotalSupply(),
			})
		}
		return nil
	})
	h.writeJSON(w, http.StatusOK, out)
}

// HandleGetBalance returns one holder's balance
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	b, ok := h.book(w, r)
	if !ok {
		return
	}
	addr := domain.Address(chi.URLParam(r, "address"))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"denom":   b.Denom(),
		"address": addr,
		"balance": b.BalanceOf(addr),
	})
}

// HandleMint credits asset to an address. Admin only.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	b, ok := h.book(w, r)
	if !ok {
		return
	}
	if b != h.asset {
		h.writeError(w, http.StatusMethodNotAllowed, "Shares are minted by the vault")
		return
	}
	req, amount, ok := h.decode(w, r)
	if !ok {
		return
	}
	caller := utils.Caller(r)
	err := h.journal.Atomic(r.Context(), func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, h.authz, domain.RoleAdmin, caller); err != nil {
			return err
		}
		return b.Mint(req.To, amount)
	})
	if err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.log.Info().Str("to", req.To.String()).Str("amount", amount.String()).Msg("Asset minted")
	h.writeBalance(w, b, req.To)
}

// HandleTransfer moves the caller's balance to another address
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	b, ok := h.book(w, r)
	if !ok {
		return
	}
	req, amount, ok := h.decode(w, r)
	if !ok {
		return
	}
	caller := utils.Caller(r)
	if caller.IsZero() {
		h.writeError(w, http.StatusForbidden, "Caller required")
		return
	}
	err := h.journal.Atomic(r.Context(), func(context.Context) error {
		return b.Transfer(caller, req.To, amount)
	})
	if err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.writeBalance(w, b, caller)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (transferRequest, sdkmath.Int, bool) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, sdkmath.Int{}, false
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return req, sdkmath.Int{}, false
	}
	if req.To.IsZero() {
		h.writeError(w, http.StatusBadRequest, "Recipient required")
		return req, sdkmath.Int{}, false
	}
	return req, amount, true
}

func (h *Handler) writeBalance(w http.ResponseWriter, b *token.Book, addr domain.Address) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"denom":   b.Denom(),
		"address": addr,
		"balance": b.BalanceOf(addr),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
