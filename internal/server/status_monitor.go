package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/modules/emergency"
)

const healthCheckTimeout = 5 * time.Second

// ErrorEmitter publishes error events
type ErrorEmitter interface {
	EmitError(module string, err error, context map[string]interface{})
}

// PhaseReader reports the vault's emergency phase
type PhaseReader interface {
	ID() string
	Phase() emergency.Phase
	Read(ctx context.Context, fn func(ctx context.Context) error) error
}

// StatusMonitor periodically checks the ledger database and the vault's
// emergency phase. A failing database emits one error event per outage;
// phase changes that happen with time alone, such as the grace window
// expiring, are logged.
type StatusMonitor struct {
	events ErrorEmitter
	db     LedgerDatabase
	vault  PhaseReader
	log    zerolog.Logger

	// Track previous states
	mu        sync.Mutex
	lastPhase emergency.Phase
	dbHealthy bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(emitter ErrorEmitter, db LedgerDatabase, vault PhaseReader, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		events:    emitter,
		db:        db,
		vault:     vault,
		log:       log.With().Str("component", "status_monitor").Logger(),
		lastPhase: emergency.PhaseNormal,
		dbHealthy: true,
		stop:      make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop ends the monitoring loop
func (m *StatusMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkStatuses()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkStatuses()
		}
	}
}

// checkStatuses checks all monitored statuses and reacts to changes
func (m *StatusMonitor) checkStatuses() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkPhase()
	m.checkDatabase()
}

func (m *StatusMonitor) checkPhase() {
	var phase emergency.Phase
	_ = m.vault.Read(context.Background(), func(ctx context.Context) error {
		phase = m.vault.Phase()
		return nil
	})
	if phase == m.lastPhase {
		return
	}
	if m.lastPhase == emergency.PhaseGrace && phase == emergency.PhaseForcedWithdrawal {
		m.log.Warn().Str("vault_id", m.vault.ID()).Msg("Emergency grace period expired, only forced withdrawals remain")
	} else {
		m.log.Info().
			Str("vault_id", m.vault.ID()).
			Str("from", string(m.lastPhase)).
			Str("to", string(phase)).
			Msg("Vault phase changed")
	}
	m.lastPhase = phase
}

func (m *StatusMonitor) checkDatabase() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	err := m.db.HealthCheck(ctx)
	switch {
	case err != nil && m.dbHealthy:
		m.log.Error().Err(err).Str("database", m.db.Name()).Msg("Database health check failed")
		if m.events != nil {
			m.events.EmitError("status_monitor", err, map[string]interface{}{
				"database": m.db.Name(),
			})
		}
		m.dbHealthy = false
	case err == nil && !m.dbHealthy:
		m.log.Info().Str("database", m.db.Name()).Msg("Database healthy again")
		m.dbHealthy = true
	}
}
