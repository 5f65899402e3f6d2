// Package handlers provides HTTP handlers for adapter approval and allocation.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/allocation"
	"github.com/aristath/givevault/internal/utils"
)

// Handler handles allocation HTTP requests
type Handler struct {
	allocator *allocation.Allocator
	registry  *adapters.Registry
	log       zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(allocator *allocation.Allocator, registry *adapters.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		allocator: allocator,
		registry:  registry,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

type activeRequest struct {
	Address domain.Address `json:"address"`
}

type policyRequest struct {
	AutoRebalance     *bool   `json:"auto_rebalance"`
	RebalanceInterval *string `json:"rebalance_interval"`
}

// HandleGetAllocation returns the policy and the approved adapters
func (h *Handler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy":   h.allocator.Policy(),
		"approved": h.allocator.Approved(),
	})
}

// HandleGetPerformance returns growth statistics per approved adapter
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	report, err := h.allocator.PerformanceReport(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleApprove adds a deployed adapter to the approved set
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, true)
}

// HandleUnapprove removes an adapter from the approved set
func (h *Handler) HandleUnapprove(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, false)
}

func (h *Handler) setApproval(w http.ResponseWriter, r *http.Request, approved bool) {
	addr := domain.Address(chi.URLParam(r, "address"))
	adapter, ok := h.registry.Get(addr)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Adapter not found")
		return
	}
	if err := h.allocator.Approve(r.Context(), utils.Caller(r), adapter, approved); err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.HandleGetAllocation(w, r)
}

// HandleSetActive binds an approved adapter to the vault
func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.allocator.SetActive(r.Context(), utils.Caller(r), req.Address); err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.HandleGetAllocation(w, r)
}

// HandleRebalance switches to the approved adapter holding the most assets
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	switched, err := h.allocator.Rebalance(r.Context(), utils.Caller(r))
	if err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"switched": switched,
		"policy":   h.allocator.Policy(),
	})
}

// HandleCheck runs the opportunistic rebalance check. It never fails.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	switched := h.allocator.CheckAndRebalance(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"switched": switched,
		"policy":   h.allocator.Policy(),
	})
}

// HandleUpdatePolicy toggles auto-rebalance and sets the interval
func (h *Handler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller := utils.Caller(r)
	if req.RebalanceInterval != nil {
		interval, err := time.ParseDuration(*req.RebalanceInterval)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid rebalance interval")
			return
		}
		if err := h.allocator.SetRebalanceInterval(r.Context(), caller, interval); err != nil {
			h.writeError(w, utils.HTTPStatus(err), err.Error())
			return
		}
	}
	if req.AutoRebalance != nil {
		if err := h.allocator.SetAutoRebalance(r.Context(), caller, *req.AutoRebalance); err != nil {
			h.writeError(w, utils.HTTPStatus(err), err.Error())
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.allocator.Policy())
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
