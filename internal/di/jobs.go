package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/config"
	"github.com/aristath/givevault/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers every background job
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	sched := scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.Harvest, scheduler.NewHarvestJob(container.Vault, cfg.Vault.KeeperAddress, log)},
		{cfg.Schedules.Rebalance, scheduler.NewRebalanceJob(container.Allocator, log)},
		{cfg.Schedules.Snapshot, container.Snapshotter},
		{cfg.Schedules.LedgerMaintenance, scheduler.NewLedgerMaintenanceJob(container.LedgerDB, log)},
	}
	if container.Backup != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Schedules.Backup, container.Backup})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register %s job: %w", j.job.Name(), err)
		}
	}
	container.Scheduler = sched

	log.Info().Int("jobs", len(jobs)).Msg("Jobs registered")
	return nil
}
