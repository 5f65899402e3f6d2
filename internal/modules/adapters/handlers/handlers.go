// Package handlers provides HTTP handlers for inspecting adapters and driving
// the variant-specific operations keepers and managers perform.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/utils"
)

// Handler handles adapter HTTP requests
type Handler struct {
	registry *adapters.Registry
	log      zerolog.Logger
}

// NewHandler creates a new adapter handler
func NewHandler(registry *adapters.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log.With().Str("handler", "adapters").Logger(),
	}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type seriesRequest struct {
	ID       uint64    `json:"id"`
	Start    time.Time `json:"start"`
	Maturity time.Time `json:"maturity"`
}

type bpsRequest struct {
	Bps uint32 `json:"bps"`
}

// HandleGetAdapters lists every deployed adapter
func (h *Handler) HandleGetAdapters(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()
	records := make([]adapters.Record, 0, len(all))
	for _, a := range all {
		records = append(records, a.Record())
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"adapters": records,
		"count":    len(records),
	})
}

// HandleGetAdapter returns one adapter record
func (h *Handler) HandleGetAdapter(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, a.Record())
}

// HandleSetIndex publishes a new growth index
func (h *Handler) HandleSetIndex(w http.ResponseWriter, r *http.Request) {
	growth, ok := variant[*adapters.Growth](h, w, r)
	if !ok {
		return
	}
	index, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	h.respond(w, r, growth, growth.SetIndex(r.Context(), utils.Caller(r), index))
}

// HandleQueueYield moves yield from the caller into the claimable queue
func (h *Handler) HandleQueueYield(w http.ResponseWriter, r *http.Request) {
	claimable, ok := variant[*adapters.ClaimableYield](h, w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	h.respond(w, r, claimable, claimable.QueueYield(r.Context(), utils.Caller(r), amount))
}

// HandleRollover moves a matured fixed-maturity position into its next series
func (h *Handler) HandleRollover(w http.ResponseWriter, r *http.Request) {
	fixed, ok := variant[*adapters.FixedMaturity](h, w, r)
	if !ok {
		return
	}
	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	next := adapters.Series{ID: req.ID, Start: req.Start, Maturity: req.Maturity}
	h.respond(w, r, fixed, fixed.Rollover(r.Context(), utils.Caller(r), next))
}

// HandleManagerWithdraw moves buffer capital to the off-chain manager
func (h *Handler) HandleManagerWithdraw(w http.ResponseWriter, r *http.Request) {
	manual, ok := variant[*adapters.ManualManage](h, w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	h.respond(w, r, manual, manual.WithdrawToManager(r.Context(), utils.Caller(r), amount))
}

// HandleManagerReturn brings off-chain capital back into the buffer
func (h *Handler) HandleManagerReturn(w http.ResponseWriter, r *http.Request) {
	manual, ok := variant[*adapters.ManualManage](h, w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	h.respond(w, r, manual, manual.ReturnFromManager(r.Context(), utils.Caller(r), amount))
}

// HandleManagerReport records the manager's current off-chain valuation
func (h *Handler) HandleManagerReport(w http.ResponseWriter, r *http.Request) {
	manual, ok := variant[*adapters.ManualManage](h, w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}
	h.respond(w, r, manual, manual.ReportBalance(r.Context(), utils.Caller(r), amount))
}

// HandleSetMinBuffer changes the manual adapter's minimum on-chain buffer
func (h *Handler) HandleSetMinBuffer(w http.ResponseWriter, r *http.Request) {
	manual, ok := variant[*adapters.ManualManage](h, w, r)
	if !ok {
		return
	}
	var req bpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.respond(w, r, manual, manual.SetMinBufferBps(r.Context(), utils.Caller(r), req.Bps))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (adapters.YieldAdapter, bool) {
	addr := domain.Address(chi.URLParam(r, "address"))
	a, ok := h.registry.Get(addr)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Adapter not found")
		return nil, false
	}
	return a, true
}

// variant resolves the addressed adapter as a concrete type T
func variant[T adapters.YieldAdapter](h *Handler, w http.ResponseWriter, r *http.Request) (T, bool) {
	var zero T
	a, ok := h.lookup(w, r)
	if !ok {
		return zero, false
	}
	typed, ok := a.(T)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Operation not supported by "+string(a.Kind())+" adapter")
		return zero, false
	}
	return typed, true
}

func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (amount sdkmath.Int, ok bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return amount, false
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return amount, false
	}
	return amount, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, a adapters.YieldAdapter, err error) {
	if err != nil {
		status := utils.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("adapter", a.Address().String()).Str("path", r.URL.Path).Msg("Adapter operation failed")
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, a.Record())
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
