package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/database"
)

// walFramesWarning is the WAL size, in frames, that gets logged as a warning
const walFramesWarning = 1000

// LedgerMaintenanceJob pings the ledger database and keeps its WAL small
type LedgerMaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewLedgerMaintenanceJob creates the ledger maintenance job
func NewLedgerMaintenanceJob(db *database.DB, log zerolog.Logger) *LedgerMaintenanceJob {
	return &LedgerMaintenanceJob{
		db:  db,
		log: log.With().Str("job", "ledger_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *LedgerMaintenanceJob) Name() string {
	return "ledger_maintenance"
}

// Run checks connectivity, then runs a passive checkpoint and truncates
// the WAL when it has grown large.
func (j *LedgerMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.QuickCheck(ctx); err != nil {
		return fmt.Errorf("ledger database unreachable: %w", err)
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := j.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		return fmt.Errorf("failed to check WAL checkpoint: %w", err)
	}

	if frames > walFramesWarning {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, truncating")
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}
		return nil
	}

	j.log.Debug().
		Int("wal_frames", frames).
		Int("busy", busy).
		Msg("WAL checkpoint status OK")
	return nil
}
