package scheduler

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/vault"
)

// Harvester is the vault operation the harvest job drives
type Harvester interface {
	Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error)
}

// HarvestJob realizes the active adapter's profit as the keeper
type HarvestJob struct {
	vault   Harvester
	keeper  domain.Address
	timeout time.Duration
	log     zerolog.Logger
}

// NewHarvestJob creates a harvest job acting as keeper
func NewHarvestJob(v Harvester, keeper domain.Address, log zerolog.Logger) *HarvestJob {
	return &HarvestJob{
		vault:   v,
		keeper:  keeper,
		timeout: time.Minute,
		log:     log.With().Str("job", "harvest").Logger(),
	}
}

// Name returns the job name
func (j *HarvestJob) Name() string {
	return "harvest"
}

// Run harvests once. A vault that cannot harvest right now (no adapter,
// harvest paused, shut down, no payout target) is skipped, not failed.
func (j *HarvestJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	profit, loss, err := j.vault.Harvest(ctx, j.keeper)
	switch {
	case isSkippable(err):
		j.log.Debug().Err(err).Msg("Harvest skipped")
		return nil
	case err != nil:
		return err
	}
	j.log.Info().
		Str("profit", profit.String()).
		Str("loss", loss.String()).
		Msg("Scheduled harvest completed")
	return nil
}

func isSkippable(err error) bool {
	return errors.Is(err, vault.ErrNoAdapter) ||
		errors.Is(err, vault.ErrHarvestPaused) ||
		errors.Is(err, vault.ErrVaultShutdown) ||
		errors.Is(err, vault.ErrNoPayout)
}
