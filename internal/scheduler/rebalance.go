package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Rebalancer is the allocator surface the rebalance job drives
type Rebalancer interface {
	Sample(ctx context.Context) error
	CheckAndRebalance(ctx context.Context) bool
}

// RebalanceJob records adapter performance samples and lets the
// allocator switch adapters once its interval has elapsed.
type RebalanceJob struct {
	allocator Rebalancer
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRebalanceJob creates a rebalance check job
func NewRebalanceJob(allocator Rebalancer, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		allocator: allocator,
		timeout:   time.Minute,
		log:       log.With().Str("job", "rebalance_check").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance_check"
}

// Run samples then checks. A sampling failure is reported after the check
// has still been given its chance to run.
func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sampleErr := j.allocator.Sample(ctx)
	if sampleErr != nil {
		j.log.Warn().Err(sampleErr).Msg("Failed to sample adapter performance")
	}
	if j.allocator.CheckAndRebalance(ctx) {
		j.log.Info().Msg("Allocator rebalanced")
	}
	return sampleErr
}
