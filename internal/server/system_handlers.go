package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/givevault/internal/modules/emergency"
	"github.com/aristath/givevault/internal/scheduler"
)

// LedgerDatabase is the part of the ledger database the status page reads
type LedgerDatabase interface {
	Name() string
	Path() string
	HealthCheck(ctx context.Context) error
}

// JobRunner lists and triggers background jobs
type JobRunner interface {
	Status() []scheduler.JobStatus
	RunNow(name string) error
}

// VaultStatus is the part of the vault the status page reads
type VaultStatus interface {
	ID() string
	Asset() string
	Phase() emergency.Phase
	TotalAssets() sdkmath.Int
	TotalShares() sdkmath.Int
	Read(ctx context.Context, fn func(ctx context.Context) error) error
}

// SystemHandlers serves process, database and job status
type SystemHandlers struct {
	db        LedgerDatabase
	jobs      JobRunner
	vault     VaultStatus
	startedAt time.Time
	sysStats  func() (float64, float64)
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(db LedgerDatabase, jobs JobRunner, vault VaultStatus, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		db:        db,
		jobs:      jobs,
		vault:     vault,
		startedAt: time.Now().UTC(),
		log:       log.With().Str("handler", "system").Logger(),
	}
	h.sysStats = h.getSystemStats
	return h
}

// VaultStatusView summarizes the vault on the status page
type VaultStatusView struct {
	ID          string          `json:"id"`
	Asset       string          `json:"asset"`
	Phase       emergency.Phase `json:"phase"`
	TotalAssets sdkmath.Int     `json:"total_assets"`
	TotalShares sdkmath.Int     `json:"total_shares"`
}

// DatabaseStatus reports the ledger database
type DatabaseStatus struct {
	Name    string  `json:"name"`
	Healthy bool    `json:"healthy"`
	Error   string  `json:"error,omitempty"`
	SizeMB  float64 `json:"size_mb"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	GoVersion     string          `json:"go_version"`
	Goroutines    int             `json:"goroutines"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	Vault         VaultStatusView `json:"vault"`
	Database      DatabaseStatus  `json:"database"`
}

// JobsStatusResponse is returned by GET /api/system/jobs
type JobsStatusResponse struct {
	Jobs  []scheduler.JobStatus `json:"jobs"`
	Count int                   `json:"count"`
}

func (h *SystemHandlers) vaultStatus(ctx context.Context) VaultStatusView {
	var view VaultStatusView
	_ = h.vault.Read(ctx, func(ctx context.Context) error {
		view = VaultStatusView{
			ID:          h.vault.ID(),
			Asset:       h.vault.Asset(),
			Phase:       h.vault.Phase(),
			TotalAssets: h.vault.TotalAssets(),
			TotalShares: h.vault.TotalShares(),
		}
		return nil
	})
	return view
}

// HandleSystemStatus returns process, vault and ledger database status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	writeJSON(w, h.log, http.StatusOK, h.GetSystemStatus(r.Context()))
}

// GetSystemStatus collects the status snapshot. A failing database check
// degrades the status instead of failing the request.
func (h *SystemHandlers) GetSystemStatus(ctx context.Context) SystemStatusResponse {
	cpuPercent, memPercent := h.sysStats()
	now := time.Now().UTC()

	resp := SystemStatusResponse{
		Status:        "ok",
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(now.Sub(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Vault:         h.vaultStatus(ctx),
		Database:      h.databaseStatus(ctx),
	}
	if !resp.Database.Healthy {
		resp.Status = "degraded"
	}
	return resp
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) DatabaseStatus {
	status := DatabaseStatus{Name: h.db.Name(), Healthy: true}
	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Warn().Err(err).Str("database", h.db.Name()).Msg("Database health check failed")
		status.Healthy = false
		status.Error = err.Error()
	}
	if info, err := os.Stat(h.db.Path()); err == nil {
		status.SizeMB = float64(info.Size()) / 1024 / 1024
	}
	return status
}

// HandleJobsStatus returns the status of every registered job
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.Status()
	writeJSON(w, h.log, http.StatusOK, JobsStatusResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleRunJob runs a job immediately and waits for it
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.jobs.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info().Str("job", name).Msg("Job triggered manually")
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"job":     name,
		"message": "Job completed",
	})
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// sample so the status call stays fast
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
