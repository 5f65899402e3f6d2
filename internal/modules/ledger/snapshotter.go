package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/vault"
)

// DefaultSnapshotRetention is how many snapshots per vault are kept
const DefaultSnapshotRetention = 720

// SnapshotSource produces a consistent view of a vault
type SnapshotSource interface {
	Snapshot(ctx context.Context) (vault.Snapshot, error)
}

// EventEmitter publishes snapshot events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// Snapshotter persists vault snapshots
type Snapshotter struct {
	source    SnapshotSource
	repo      *Repository
	events    EventEmitter
	retention int
	log       zerolog.Logger
}

// NewSnapshotter creates a snapshotter. retention <= 0 uses DefaultSnapshotRetention.
func NewSnapshotter(source SnapshotSource, repo *Repository, emitter EventEmitter, retention int, log zerolog.Logger) *Snapshotter {
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}
	return &Snapshotter{
		source:    source,
		repo:      repo,
		events:    emitter,
		retention: retention,
		log:       log.With().Str("service", "ledger_snapshotter").Logger(),
	}
}

// Take captures, stores and prunes snapshots
func (s *Snapshotter) Take(ctx context.Context) (SnapshotRecord, error) {
	live, err := s.source.Snapshot(ctx)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	rec := SnapshotRecord{
		ID:       uuid.NewString(),
		VaultID:  live.VaultID,
		TakenAt:  live.TakenAt,
		Snapshot: NewVaultSnapshot(live),
	}
	if err := s.repo.InsertSnapshot(ctx, rec); err != nil {
		return SnapshotRecord{}, fmt.Errorf("failed to store snapshot: %w", err)
	}
	if _, err := s.repo.PruneSnapshots(ctx, rec.VaultID, s.retention); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune snapshots")
	}

	s.log.Info().
		Str("snapshot_id", rec.ID).
		Str("total_assets", rec.Snapshot.TotalAssets).
		Str("total_shares", rec.Snapshot.TotalShares).
		Msg("Snapshot taken")
	if s.events != nil {
		s.events.EmitTyped("ledger", &events.SnapshotTakenData{
			VaultID:     rec.VaultID,
			SnapshotID:  rec.ID,
			TotalAssets: live.TotalAssets,
		})
	}
	return rec, nil
}

// Name implements the scheduler job interface
func (s *Snapshotter) Name() string {
	return "ledger_snapshot"
}

// Run takes one snapshot
func (s *Snapshotter) Run() error {
	_, err := s.Take(context.Background())
	return err
}
