// Package handlers provides HTTP handlers for vault deposits, withdrawals,
// harvests and administration.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/emergency"
	"github.com/aristath/givevault/internal/modules/vault"
	"github.com/aristath/givevault/internal/utils"
)

// Rebalancer is the allocator's opportunistic rebalance check
type Rebalancer interface {
	CheckAndRebalance(ctx context.Context) bool
}

// Handler handles vault HTTP requests
type Handler struct {
	vault      *vault.Vault
	rebalancer Rebalancer
	log        zerolog.Logger
}

// NewHandler creates a new vault handler
func NewHandler(v *vault.Vault, log zerolog.Logger) *Handler {
	return &Handler{
		vault: v,
		log:   log.With().Str("handler", "vault").Logger(),
	}
}

// WithRebalancer runs r after every committed deposit, mint, withdraw and redeem
func (h *Handler) WithRebalancer(r Rebalancer) *Handler {
	h.rebalancer = r
	return h
}

// afterCapitalMove gives the allocator a chance to switch adapters. Failures
// stay inside CheckAndRebalance.
func (h *Handler) afterCapitalMove(ctx context.Context) {
	if h.rebalancer == nil {
		return
	}
	if h.rebalancer.CheckAndRebalance(ctx) {
		h.log.Info().Msg("Active adapter switched after vault interaction")
	}
}

type amountRequest struct {
	Amount   string         `json:"amount"`
	Receiver domain.Address `json:"receiver"`
	Owner    domain.Address `json:"owner"`
}

type paramsRequest struct {
	CashBufferBps *uint32 `json:"cash_buffer_bps"`
	SlippageBps   *uint32 `json:"slippage_bps"`
	MaxLossBps    *uint32 `json:"max_loss_bps"`
	InvestPaused  *bool   `json:"invest_paused"`
	HarvestPaused *bool   `json:"harvest_paused"`
}

type riskLimitsRequest struct {
	RiskID     string `json:"risk_id"`
	MaxDeposit string `json:"max_deposit"`
	MaxBorrow  string `json:"max_borrow"`
}

// decodeAmount reads an amountRequest, defaulting receiver and owner to the caller
func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (domain.Address, amountRequest, sdkmath.Int, bool) {
	caller := utils.Caller(r)
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return caller, req, sdkmath.Int{}, false
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return caller, req, sdkmath.Int{}, false
	}
	if req.Receiver.IsZero() {
		req.Receiver = caller
	}
	if req.Owner.IsZero() {
		req.Owner = caller
	}
	return caller, req, amount, true
}

// HandleGetVault returns a snapshot of the vault ledger
func (h *Handler) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	snap, err := h.vault.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetAccount returns the share position and withdrawal headroom of an address
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner := domain.Address(chi.URLParam(r, "address"))
	var resp map[string]interface{}
	err := h.vault.Read(r.Context(), func(ctx context.Context) error {
		shares := h.vault.BalanceOf(owner)
		resp = map[string]interface{}{
			"address":      owner,
			"shares":       shares,
			"assets":       h.vault.ConvertToAssets(shares),
			"max_withdraw": h.vault.MaxWithdraw(owner),
			"max_redeem":   h.vault.MaxRedeem(owner),
		}
		return nil
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandlePreview returns the conversions for an amount without changing state
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	amount, err := utils.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var resp map[string]interface{}
	err = h.vault.Read(r.Context(), func(ctx context.Context) error {
		deposit, err := h.vault.PreviewDeposit(amount)
		if err != nil {
			return err
		}
		mint, err := h.vault.PreviewMint(amount)
		if err != nil {
			return err
		}
		withdraw, err := h.vault.PreviewWithdraw(amount)
		if err != nil {
			return err
		}
		maxDeposit, limited := h.vault.MaxDeposit()
		resp = map[string]interface{}{
			"amount":          amount,
			"deposit_shares":  deposit,
			"mint_assets":     mint,
			"withdraw_shares": withdraw,
			"redeem_assets":   h.vault.PreviewRedeem(amount),
			"max_deposit":     maxDeposit,
			"deposit_limited": limited,
		}
		return nil
	})
	if err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleDeposit deposits assets and mints shares to the receiver
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, req, amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	shares, err := h.vault.Deposit(r.Context(), caller, amount, req.Receiver)
	if err != nil {
		h.writeFailure(w, "deposit", caller, err)
		return
	}
	h.afterCapitalMove(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": amount, "shares": shares})
}

// HandleMint mints an exact number of shares
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	caller, req, shares, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	assets, err := h.vault.Mint(r.Context(), caller, shares, req.Receiver)
	if err != nil {
		h.writeFailure(w, "mint", caller, err)
		return
	}
	h.afterCapitalMove(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

// HandleWithdraw withdraws an exact amount of assets
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, req, assets, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	shares, err := h.vault.Withdraw(r.Context(), caller, assets, req.Receiver, req.Owner)
	if err != nil {
		h.writeFailure(w, "withdraw", caller, err)
		return
	}
	h.afterCapitalMove(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

// HandleRedeem burns an exact number of shares
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, req, shares, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	assets, err := h.vault.Redeem(r.Context(), caller, shares, req.Receiver, req.Owner)
	if err != nil {
		h.writeFailure(w, "redeem", caller, err)
		return
	}
	h.afterCapitalMove(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

// HandleHarvest realizes adapter profit and forwards it to the payout
func (h *Handler) HandleHarvest(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	profit, loss, err := h.vault.Harvest(r.Context(), caller)
	if err != nil {
		h.writeFailure(w, "harvest", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"profit": profit, "loss": loss})
}

// HandleRebalance re-applies the cash buffer rule
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	moved, err := h.vault.Rebalance(r.Context(), caller)
	if err != nil {
		h.writeFailure(w, "rebalance", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"moved": moved})
}

// HandleEmergencyPause shuts the vault down and liquidates the adapter
func (h *Handler) HandleEmergencyPause(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	if err := h.vault.EmergencyPause(r.Context(), caller); err != nil {
		h.writeFailure(w, "emergency pause", caller, err)
		return
	}
	h.writeEmergencyState(w, r)
}

// HandleEmergencyResume lifts the shutdown
func (h *Handler) HandleEmergencyResume(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	if err := h.vault.ResumeFromEmergency(r.Context(), caller); err != nil {
		h.writeFailure(w, "emergency resume", caller, err)
		return
	}
	h.writeEmergencyState(w, r)
}

func (h *Handler) writeEmergencyState(w http.ResponseWriter, r *http.Request) {
	var st emergency.State
	err := h.vault.Read(r.Context(), func(ctx context.Context) error {
		st = h.vault.EmergencyState()
		return nil
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// HandleEmergencyWithdraw redeems shares through the emergency path
func (h *Handler) HandleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, req, shares, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	assets, err := h.vault.EmergencyWithdrawUser(r.Context(), caller, shares, req.Receiver, req.Owner)
	if err != nil {
		h.writeFailure(w, "emergency withdraw", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets, "requested_shares": shares})
}

// HandleUpdateParams changes buffer, slippage and loss tolerances and pause
// flags. The update is all or nothing.
func (h *Handler) HandleUpdateParams(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	params := vault.Params{
		CashBufferBps: req.CashBufferBps,
		SlippageBps:   req.SlippageBps,
		MaxLossBps:    req.MaxLossBps,
		InvestPaused:  req.InvestPaused,
		HarvestPaused: req.HarvestPaused,
	}
	if params.Empty() {
		h.writeError(w, http.StatusBadRequest, "No parameters provided")
		return
	}
	if err := h.vault.UpdateParams(r.Context(), caller, params); err != nil {
		h.writeFailure(w, "update params", caller, err)
		return
	}
	h.HandleGetVault(w, r)
}

// HandleSyncRiskLimits pushes absolute deposit and borrow caps to the risk limiter
func (h *Handler) HandleSyncRiskLimits(w http.ResponseWriter, r *http.Request) {
	caller := utils.Caller(r)
	var req riskLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	maxDeposit, err := utils.ParseAmount(req.MaxDeposit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxBorrow, err := utils.ParseAmount(req.MaxBorrow)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.vault.SyncRiskLimits(r.Context(), caller, req.RiskID, maxDeposit, maxBorrow); err != nil {
		h.writeFailure(w, "sync risk limits", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"risk_id":     req.RiskID,
		"max_deposit": maxDeposit,
		"max_borrow":  maxBorrow,
	})
}

// writeFailure maps an operation error to its status and logs server faults
func (h *Handler) writeFailure(w http.ResponseWriter, op string, caller domain.Address, err error) {
	status := utils.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("operation", op).Str("caller", caller.String()).Msg("Vault operation failed")
	} else {
		h.log.Debug().Err(err).Str("operation", op).Str("caller", caller.String()).Msg("Vault operation rejected")
	}
	h.writeError(w, status, err.Error())
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
