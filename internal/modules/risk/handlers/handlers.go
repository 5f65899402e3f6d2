// Package handlers provides HTTP handlers for risk profiles and vault limits.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/modules/risk"
	"github.com/aristath/givevault/internal/utils"
)

// Handler handles risk HTTP requests
type Handler struct {
	limiter *risk.Limiter
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(limiter *risk.Limiter, log zerolog.Logger) *Handler {
	return &Handler{
		limiter: limiter,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

type applyRequest struct {
	ProfileID string `json:"profile_id"`
}

// HandleGetProfiles handles GET /api/risk/profiles
func (h *Handler) HandleGetProfiles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.limiter.Profiles(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetProfile handles GET /api/risk/profiles/{id}
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.limiter.Profile(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "Risk profile not found")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandlePutProfile handles PUT /api/risk/profiles/{id}
func (h *Handler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p risk.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := h.limiter.SetProfile(r.Context(), utils.Caller(r), p); err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleGetLimits handles GET /api/risk/vaults/{vaultID}/limits
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	limits := h.limiter.Limits(chi.URLParam(r, "vaultID"))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits":    limits,
		"unlimited": limits.MaxDeposit.IsNil() || limits.MaxDeposit.IsZero(),
	})
}

// HandleApplyProfile handles POST /api/risk/vaults/{vaultID}/profile
func (h *Handler) HandleApplyProfile(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	vaultID := chi.URLParam(r, "vaultID")
	if err := h.limiter.ApplyProfile(r.Context(), utils.Caller(r), vaultID, req.ProfileID); err != nil {
		h.writeError(w, utils.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.limiter.Limits(vaultID))
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
