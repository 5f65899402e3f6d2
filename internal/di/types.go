/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every service instance of one running vault and is
 * passed to the HTTP server for access to them.
 */
package di

import (
	"github.com/aristath/givevault/internal/config"
	"github.com/aristath/givevault/internal/database"
	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/allocation"
	"github.com/aristath/givevault/internal/modules/auth"
	"github.com/aristath/givevault/internal/modules/ledger"
	"github.com/aristath/givevault/internal/modules/payout"
	"github.com/aristath/givevault/internal/modules/risk"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/modules/vault"
	"github.com/aristath/givevault/internal/reliability"
	"github.com/aristath/givevault/internal/scheduler"
	"github.com/aristath/givevault/internal/state"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config

	// Databases
	LedgerDB *database.DB // ledger.db - operation journal and vault snapshots

	// Core state
	Clock     domain.Clock
	Journal   *state.Journal
	Roles     *auth.RoleTable
	AssetBook *token.Book
	ShareBook *token.Book

	// Vault and collaborators
	Treasury  *payout.Treasury
	Limiter   *risk.Limiter
	Vault     *vault.Vault
	Registry  *adapters.Registry
	Allocator *allocation.Allocator

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Ledger
	LedgerRepo  *ledger.Repository
	Recorder    *ledger.Recorder
	Snapshotter *ledger.Snapshotter

	// Backup is nil when no bucket is configured
	Backup *reliability.BackupService

	Scheduler *scheduler.Scheduler
}
