// Package handlers provides HTTP handlers for the vault ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/ledger"
)

// maxListLimit caps the limit query parameter
const maxListLimit = 1000

// Handler handles ledger HTTP requests
type Handler struct {
	repo        *ledger.Repository
	snapshotter *ledger.Snapshotter
	vaultID     string
	log         zerolog.Logger
}

// NewHandler creates a new ledger handler serving vaultID
func NewHandler(repo *ledger.Repository, snapshotter *ledger.Snapshotter, vaultID string, log zerolog.Logger) *Handler {
	return &Handler{
		repo:        repo,
		snapshotter: snapshotter,
		vaultID:     vaultID,
		log:         log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetOperations lists journal rows, newest first.
// Query parameters: type, since (RFC3339), limit.
func (h *Handler) HandleGetOperations(w http.ResponseWriter, r *http.Request) {
	filter := ledger.OperationFilter{
		VaultID: h.vaultID,
		Type:    events.EventType(r.URL.Query().Get("type")),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid since parameter")
			return
		}
		filter.Since = t
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	ops, err := h.repo.ListOperations(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list operations")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ops == nil {
		ops = []ledger.Operation{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": ops,
		"metadata": map[string]interface{}{
			"count":     len(ops),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetOperation returns one journal row
func (h *Handler) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.repo.GetOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get operation")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if op == nil || op.VaultID != h.vaultID {
		h.writeError(w, http.StatusNotFound, "Operation not found")
		return
	}
	h.writeJSON(w, http.StatusOK, op)
}

// HandleGetSummary returns per-type operation totals
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.repo.Summary(r.Context(), h.vaultID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize operations")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if totals == nil {
		totals = []ledger.OperationTotals{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"vault_id": h.vaultID,
		"totals":   totals,
	})
}

// HandleGetSnapshots lists stored snapshots, newest first
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	recs, err := h.repo.ListSnapshots(r.Context(), h.vaultID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []ledger.SnapshotRecord{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

// HandleGetLatestSnapshot returns the newest stored snapshot
func (h *Handler) HandleGetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.LatestSnapshot(r.Context(), h.vaultID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "No snapshots yet")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleTakeSnapshot captures and stores a snapshot now
func (h *Handler) HandleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := h.snapshotter.Take(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to take snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		h.writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return 0, false
	}
	return limit, true
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
